package source

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"

	"github.com/mmcdole/gofeed"

	"khamsat_bot/internal/model"
)

// FeedParser reads requests from an RSS or Atom feed of the same listing.
type FeedParser struct{}

// Parse implements Parser.
func (FeedParser) Parse(r io.Reader, base *url.URL) ([]model.Item, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]model.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi.Title == "" {
			continue
		}
		it := model.Item{
			ID:           ItemID(fi),
			Title:        fi.Title,
			Link:         resolve(base, fi.Link),
			Author:       feedAuthor(fi),
			PostedAtText: fi.Published,
		}
		if fi.PublishedParsed != nil {
			t := fi.PublishedParsed.UTC()
			it.PostedAt = &t
		}
		items = append(items, it)
	}
	return items, nil
}

// ItemID returns the item's GUID, or a hash of title and link when the
// feed does not provide one.
func ItemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func feedAuthor(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return unknownAuthor
}
