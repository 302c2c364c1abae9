// Package filter selects the items a subscriber should receive and
// implements the category toggle transitions of the preference keyboard.
package filter

import (
	"slices"

	"khamsat_bot/internal/model"
)

// Apply returns the items that pass the selection, preserving input order.
// All passes everything, None passes nothing, and a subset passes items
// sharing at least one category with it.
func Apply(items []model.Item, sel model.Selection) []model.Item {
	switch sel.Mode {
	case model.SelectAll:
		return items
	case model.SelectNone:
		return nil
	}

	var matched []model.Item
	for _, item := range items {
		if Match(item, sel) {
			matched = append(matched, item)
		}
	}
	return matched
}

// Match checks whether a single item passes the selection.
func Match(item model.Item, sel model.Selection) bool {
	for _, c := range item.Categories {
		if sel.Has(c) {
			return true
		}
	}
	return false
}

// Toggle flips one category in the selection.
// From All or None it starts a new subset holding just that category.
// Removing the last category of a subset yields None.
func Toggle(sel model.Selection, label string) model.Selection {
	if sel.Mode != model.SelectSubset {
		return model.Subset(label)
	}
	if slices.Contains(sel.Categories, label) {
		rest := slices.DeleteFunc(slices.Clone(sel.Categories), func(c string) bool { return c == label })
		return model.Subset(rest...)
	}
	return model.Subset(append(slices.Clone(sel.Categories), label)...)
}

// SelectAll returns the selection that passes every category.
func SelectAll() model.Selection {
	return model.AllCategories()
}

// ClearAll returns the selection that passes no category.
func ClearAll() model.Selection {
	return model.NoCategories()
}
