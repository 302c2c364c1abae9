package model

import "slices"

// NoneSentinel is the stored marker for an explicit "no categories" selection.
const NoneSentinel = "__none__"

// SelectionMode distinguishes the three states of a category selection.
type SelectionMode int

// Supported selection modes.
const (
	SelectAll SelectionMode = iota
	SelectNone
	SelectSubset
)

// Selection is a subscriber's category filter.
// Categories is only meaningful in SelectSubset mode and keeps insertion order.
type Selection struct {
	Mode       SelectionMode
	Categories []string
}

// AllCategories returns the selection that passes every item.
func AllCategories() Selection {
	return Selection{Mode: SelectAll}
}

// NoCategories returns the selection that passes nothing.
func NoCategories() Selection {
	return Selection{Mode: SelectNone}
}

// Subset returns a selection of the given labels.
// An empty list yields NoCategories.
func Subset(labels ...string) Selection {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" || l == NoneSentinel || slices.Contains(out, l) {
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return NoCategories()
	}
	return Selection{Mode: SelectSubset, Categories: out}
}

// Has reports whether the selection passes the given category.
func (s Selection) Has(label string) bool {
	switch s.Mode {
	case SelectAll:
		return true
	case SelectSubset:
		return slices.Contains(s.Categories, label)
	default:
		return false
	}
}

// Encode returns the stored list form: empty for all, the sentinel for none.
func (s Selection) Encode() []string {
	switch s.Mode {
	case SelectNone:
		return []string{NoneSentinel}
	case SelectSubset:
		return slices.Clone(s.Categories)
	default:
		return []string{}
	}
}

// DecodeSelection parses the stored list form produced by Encode.
func DecodeSelection(stored []string) Selection {
	if len(stored) == 0 {
		return AllCategories()
	}
	if slices.Contains(stored, NoneSentinel) {
		return NoCategories()
	}
	return Subset(stored...)
}
