package source

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"khamsat_bot/internal/model"
)

const (
	rowSelector    = "tr.forum_post"
	titleSelector  = "h3.details-head a"
	authorSelector = "a.user"
	timeSelector   = "li.d-lg-inline-block span[dir='ltr']"

	timestampLayout = "02/01/2006 15:04:05"
	unknownAuthor   = "unknown"
)

// HTMLParser extracts requests from the community listing page.
type HTMLParser struct{}

// Parse implements Parser. Rows without an id or title link are skipped.
func (HTMLParser) Parse(r io.Reader, base *url.URL) ([]model.Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	var items []model.Item
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		id := strings.TrimSpace(row.AttrOr("id", ""))
		link := row.Find(titleSelector).First()
		title := strings.TrimSpace(link.Text())
		if id == "" || title == "" {
			return
		}

		it := model.Item{
			ID:     id,
			Title:  title,
			Link:   resolve(base, link.AttrOr("href", "")),
			Author: strings.TrimSpace(row.Find(authorSelector).First().Text()),
		}
		if it.Author == "" {
			it.Author = unknownAuthor
		}

		ts := row.Find(timeSelector).First()
		it.PostedAtText = strings.TrimSpace(ts.Text())
		if raw, ok := ts.Attr("title"); ok {
			if t, err := ParseTimestamp(raw); err == nil {
				it.PostedAt = &t
			}
		}

		items = append(items, it)
	})
	return items, nil
}

// ParseTimestamp parses a "dd/mm/yyyy HH:MM:SS GMT" string as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "GMT"))
	t, err := time.ParseInLocation(timestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
