package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"khamsat_bot/internal/classify"
	"khamsat_bot/internal/model"
)

const testURL = "https://khamsat.com/community/requests"

type mockTransport struct {
	body       string
	statusCode int
	err        error
	userAgent  string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.userAgent = req.Header.Get("User-Agent")
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 16, 12, 1, 0, 0, time.UTC)
}

func newTestClient(t *testing.T, tr *mockTransport, parser Parser, opts Options) *Client {
	t.Helper()
	c, err := New(tr, testURL, parser, classify.Default(), opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.SetClock(fixedNow)
	return c
}

func ids(items []model.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFetchHTML(t *testing.T) {
	page := loadFixture(t, "testdata/requests.html")

	tests := []struct {
		name       string
		transport  *mockTransport
		opts       Options
		wantAll    []string
		wantRecent []string
		wantErr    bool
	}{
		{
			name:       "successful fetch",
			transport:  &mockTransport{body: page, statusCode: 200},
			wantAll:    []string{"post-1001", "post-1002", "post-1003"},
			wantRecent: []string{"post-1001"},
		},
		{
			name:       "wider age threshold",
			transport:  &mockTransport{body: page, statusCode: 200},
			opts:       Options{MaxAge: 10 * time.Minute},
			wantAll:    []string{"post-1001", "post-1002", "post-1003"},
			wantRecent: []string{"post-1001", "post-1002"},
		},
		{
			name:       "truncated to max items",
			transport:  &mockTransport{body: page, statusCode: 200},
			opts:       Options{MaxItems: 1},
			wantAll:    []string{"post-1001"},
			wantRecent: []string{"post-1001"},
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "forbidden", statusCode: 403},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "page without rows",
			transport: &mockTransport{body: "<html><body>maintenance</body></html>", statusCode: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.transport, HTMLParser{}, tt.opts)
			res, err := c.Fetch(context.Background())

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if len(res.All) != 0 || len(res.Recent) != 0 {
					t.Errorf("expected empty result on error, got %+v", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantAll, ids(res.All)); diff != "" {
				t.Errorf("all items mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRecent, ids(res.Recent)); diff != "" {
				t.Errorf("recent items mismatch (-want +got):\n%s", diff)
			}
			if tt.transport.userAgent != userAgent {
				t.Errorf("User-Agent = %q, want %q", tt.transport.userAgent, userAgent)
			}
		})
	}
}

func TestHTMLParserFields(t *testing.T) {
	base, _ := url.Parse(testURL)
	items, err := HTMLParser{}.Parse(strings.NewReader(loadFixture(t, "testdata/requests.html")), base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	posted := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	want := model.Item{
		ID:           "post-1001",
		Title:        "مطلوب تصميم شعار لمتجر",
		Link:         "https://khamsat.com/community/requests/1001-design-logo",
		Author:       "أحمد",
		PostedAtText: "منذ دقيقة",
		PostedAt:     &posted,
	}
	if diff := cmp.Diff(want, items[0]); diff != "" {
		t.Errorf("first item mismatch (-want +got):\n%s", diff)
	}

	third := items[2]
	if third.Author != unknownAuthor {
		t.Errorf("author = %q, want %q", third.Author, unknownAuthor)
	}
	if third.PostedAt != nil {
		t.Errorf("expected nil PostedAt for unparseable timestamp, got %v", third.PostedAt)
	}
	if third.Link != "https://khamsat.com/community/requests/1003-help" {
		t.Errorf("absolute link changed: %q", third.Link)
	}
}

func TestFetchClassifies(t *testing.T) {
	c := newTestClient(t, &mockTransport{body: loadFixture(t, "testdata/requests.html"), statusCode: 200}, HTMLParser{}, Options{})
	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	got := map[string][]string{}
	for _, it := range res.All {
		got[it.ID] = it.Categories
	}
	want := map[string][]string{
		"post-1001": {"design"},
		"post-1002": {"programming"},
		"post-1003": {"other"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchFeed(t *testing.T) {
	c := newTestClient(t, &mockTransport{body: loadFixture(t, "testdata/feed.xml"), statusCode: 200}, FeedParser{}, Options{})
	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.All) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.All))
	}
	if diff := cmp.Diff("post-2001", res.All[0].ID); diff != "" {
		t.Errorf("guid mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(res.All[1].ID, "sha256:") {
		t.Errorf("expected hashed id for item without guid, got %q", res.All[1].ID)
	}
	if diff := cmp.Diff("https://khamsat.com/community/requests/2001", res.All[0].Link); diff != "" {
		t.Errorf("link mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"post-2001"}, ids(res.Recent)); diff != "" {
		t.Errorf("recent mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchFeedInvalid(t *testing.T) {
	c := newTestClient(t, &mockTransport{body: "not xml at all", statusCode: 200}, FeedParser{}, Options{})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestItemID(t *testing.T) {
	a := ItemID(&gofeed.Item{Title: "x", Link: "https://example.com/1"})
	b := ItemID(&gofeed.Item{Title: "x", Link: "https://example.com/1"})
	c := ItemID(&gofeed.Item{Title: "y", Link: "https://example.com/1"})
	if a != b {
		t.Errorf("hash not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different items share id %q", a)
	}
	if got := ItemID(&gofeed.Item{GUID: "abc-123"}); got != "abc-123" {
		t.Errorf("ItemID = %q, want abc-123", got)
	}
}

func TestIsRecent(t *testing.T) {
	now := fixedNow()
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		item model.Item
		want bool
	}{
		{name: "one minute old", item: model.Item{PostedAt: at(time.Minute)}, want: true},
		{name: "exactly at threshold", item: model.Item{PostedAt: at(3 * time.Minute)}, want: true},
		{name: "five minutes old", item: model.Item{PostedAt: at(5 * time.Minute)}, want: false},
		{name: "no timestamp", item: model.Item{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecent(tt.item, now, 3*time.Minute); got != tt.want {
				t.Errorf("IsRecent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp(" 01/02/2026 09:30:15 GMT ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 2, 1, 9, 30, 15, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTimestamp = %v, want %v", got, want)
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New(&mockTransport{}, "/community/requests", HTMLParser{}, classify.Default(), Options{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
