package miniflux

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/model"
)

const testAPIKey = "secret"

type fakeCategory struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type fakeFeed struct {
	ID                int64         `json:"id"`
	FeedURL           string        `json:"feed_url"`
	SiteURL           string        `json:"site_url"`
	Title             string        `json:"title"`
	ParsingErrorCount int           `json:"parsing_error_count"`
	Disabled          bool          `json:"disabled"`
	Category          *fakeCategory `json:"category"`
}

type fakeEntry struct {
	ID          int64     `json:"id"`
	FeedID      int64     `json:"feed_id"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
	Feed        *fakeFeed `json:"feed"`
}

// fakeMiniflux serves the subset of the Miniflux v1 API the adapter uses.
type fakeMiniflux struct {
	userID     int64
	categories []*fakeCategory
	feeds      []*fakeFeed
	entries    []*fakeEntry

	entryQueries []string
	markedAll    []int64
	markedCats   []int64
	modified     map[int64]map[string]any
}

func newFakeMiniflux() *fakeMiniflux {
	tech := &fakeCategory{ID: 1, Title: "Tech"}
	art := &fakeCategory{ID: 2, Title: "Art"}
	empty := &fakeCategory{ID: 3, Title: "Empty"}
	f1 := &fakeFeed{ID: 10, FeedURL: "https://a.example/rss", SiteURL: "https://a.example", Title: "A", Category: tech}
	f2 := &fakeFeed{ID: 20, FeedURL: "https://b.example/rss", SiteURL: "https://b.example", Title: "B", ParsingErrorCount: 3, Category: art}
	f3 := &fakeFeed{ID: 30, FeedURL: "https://c.example/rss", Title: "C", Disabled: true, Category: tech}

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m := &fakeMiniflux{
		userID:     7,
		categories: []*fakeCategory{tech, art, empty},
		feeds:      []*fakeFeed{f1, f2, f3},
		modified:   make(map[int64]map[string]any),
	}
	for id := int64(1); id <= 6; id++ {
		feed := f1
		if id%2 == 0 {
			feed = f2
		}
		status := "unread"
		if id == 3 {
			status = "read"
		}
		m.entries = append(m.entries, &fakeEntry{
			ID:          id,
			FeedID:      feed.ID,
			Status:      status,
			Title:       "entry " + strconv.FormatInt(id, 10),
			URL:         "https://example.com/" + strconv.FormatInt(id, 10),
			Content:     "<p>body</p>",
			PublishedAt: base.Add(time.Duration(id) * time.Hour),
			Feed:        feed,
		})
	}
	return m
}

func (m *fakeMiniflux) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Auth-Token") != testAPIKey {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, map[string]string{"error_message": "Access Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/v1/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": m.userID, "username": "admin"})
	})
	r.Get("/v1/categories", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, m.categories)
	})
	r.Post("/v1/categories", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c := &fakeCategory{ID: int64(len(m.categories) + 1), Title: body.Title}
		m.categories = append(m.categories, c)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, c)
	})
	r.Put("/v1/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		c := m.category(chi.URLParam(r, "id"))
		if c == nil {
			notFound(w)
			return
		}
		var body struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.Title = body.Title
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, c)
	})
	r.Delete("/v1/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		m.categories = slices.DeleteFunc(m.categories, func(c *fakeCategory) bool { return c.ID == id })
		w.WriteHeader(http.StatusNoContent)
	})
	r.Put("/v1/categories/{id}/mark-all-as-read", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		m.markedCats = append(m.markedCats, id)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Put("/v1/users/{id}/mark-all-as-read", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		m.markedAll = append(m.markedAll, id)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/v1/feeds", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, m.feeds)
	})
	r.Post("/v1/feeds", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FeedURL    string `json:"feed_url"`
			CategoryID int64  `json:"category_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f := &fakeFeed{ID: 99, FeedURL: body.FeedURL, Category: m.category(strconv.FormatInt(body.CategoryID, 10))}
		m.feeds = append(m.feeds, f)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]int64{"feed_id": f.ID})
	})
	r.Get("/v1/feeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		f := m.feed(chi.URLParam(r, "id"))
		if f == nil {
			notFound(w)
			return
		}
		writeJSON(w, f)
	})
	r.Put("/v1/feeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		f := m.feed(chi.URLParam(r, "id"))
		if f == nil {
			notFound(w)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.modified[f.ID] = body
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, f)
	})
	r.Delete("/v1/feeds/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		m.feeds = slices.DeleteFunc(m.feeds, func(f *fakeFeed) bool { return f.ID == id })
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/v1/feeds/{id}/icon", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 5, "mime_type": "image/png", "data": "image/png;base64,iVBORw0KGgo="})
	})

	r.Get("/v1/entries", m.listEntries)
	r.Get("/v1/entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		for _, e := range m.entries {
			if e.ID == id {
				writeJSON(w, e)
				return
			}
		}
		notFound(w)
	})
	r.Put("/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EntryIDs []int64 `json:"entry_ids"`
			Status   string  `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, e := range m.entries {
			if slices.Contains(body.EntryIDs, e.ID) {
				e.Status = body.Status
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (m *fakeMiniflux) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	m.entryQueries = append(m.entryQueries, r.URL.RawQuery)
	intParam := func(k string) int64 {
		v, _ := strconv.ParseInt(q.Get(k), 10, 64)
		return v
	}

	var matched []*fakeEntry
	for _, e := range m.entries {
		if s := q.Get("status"); s != "" && e.Status != s {
			continue
		}
		if id := intParam("after_entry_id"); id > 0 && e.ID <= id {
			continue
		}
		if id := intParam("before_entry_id"); id > 0 && e.ID >= id {
			continue
		}
		if ts := intParam("after"); ts > 0 && !e.PublishedAt.After(time.Unix(ts, 0)) {
			continue
		}
		if cid := intParam("category_id"); cid > 0 && e.Feed.Category.ID != cid {
			continue
		}
		matched = append(matched, e)
	}
	if q.Get("direction") == "desc" {
		slices.Reverse(matched)
	}
	total := len(matched)
	if limit := int(intParam("limit")); limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	writeJSON(w, map[string]any{"total": total, "entries": matched})
}

func (m *fakeMiniflux) category(id string) *fakeCategory {
	for _, c := range m.categories {
		if strconv.FormatInt(c.ID, 10) == id {
			return c
		}
	}
	return nil
}

func (m *fakeMiniflux) feed(id string) *fakeFeed {
	for _, f := range m.feeds {
		if strconv.FormatInt(f.ID, 10) == id {
			return f
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	writeJSON(w, map[string]string{"error_message": "Not Found"})
}

func newTestAggregator(t *testing.T, apiKey string) (*Aggregator, *fakeMiniflux) {
	t.Helper()
	fake := newFakeMiniflux()
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Endpoint: srv.URL + "/", APIKey: apiKey}, log), fake
}

func iids(items []model.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.IID)
	}
	return out
}

func TestUnreadListing(t *testing.T) {
	after := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		descending bool
		count      int
		from       string
		filter     model.FeedFilter
		want       []string
	}{
		{name: "ascending from start", count: 10, want: []string{"1", "2", "4", "5", "6"}},
		{name: "ascending page", count: 2, from: "2", want: []string{"4", "5"}},
		{name: "ascending group", count: 10, filter: model.FeedFilter{GroupID: "2"}, want: []string{"2", "4", "6"}},
		{name: "ascending created after is strict", count: 10, filter: model.FeedFilter{CreatedAfter: after}, want: []string{"4", "5", "6"}},
		{name: "descending from start", descending: true, count: 3, want: []string{"6", "5", "4"}},
		{name: "descending page", descending: true, count: 10, from: "4", want: []string{"2", "1"}},
		{name: "zero count", count: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAggregator(t, testAPIKey)
			var (
				got []model.Item
				err error
			)
			if tt.descending {
				got, err = a.UnreadItemsDescending(context.Background(), tt.count, tt.from, tt.filter)
			} else {
				got, err = a.UnreadItemsAscending(context.Background(), tt.count, tt.from, tt.filter)
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, iids(got), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("iids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemMapping(t *testing.T) {
	a, _ := newTestAggregator(t, testAPIKey)

	got, err := a.Item(context.Background(), "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &model.Item{
		IID:         "2",
		FeedID:      "20",
		Groups:      []model.Group{{GID: "2", Title: "Art"}},
		Title:       "entry 2",
		FeedTitle:   "B",
		URL:         "https://example.com/2",
		HTML:        "<p>body</p>",
		PlainText:   "body",
		PublishedAt: time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC),
		Unread:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Item() mismatch (-want +got):\n%s", diff)
	}

	_, err = a.Item(context.Background(), "404")
	if !errors.Is(err, aggregator.ErrNotFound) {
		t.Errorf("Item() error = %v, want ErrNotFound", err)
	}
}

func TestItemsIncludeRead(t *testing.T) {
	a, _ := newTestAggregator(t, testAPIKey)

	got, err := a.Items(context.Background(), aggregator.ItemQuery{Count: 10, IncludeRead: true, GroupID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "3", "5"}, iids(got)); diff != "" {
		t.Errorf("Items() mismatch (-want +got):\n%s", diff)
	}
}

func TestCounts(t *testing.T) {
	a, _ := newTestAggregator(t, testAPIKey)
	ctx := context.Background()

	total, err := a.UnreadCount(ctx, model.FeedFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(5, total); diff != "" {
		t.Errorf("UnreadCount() mismatch (-want +got):\n%s", diff)
	}

	counts, err := a.UnreadCountByGroup(ctx, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"1": 2, "2": 3, "3": 0}, counts); diff != "" {
		t.Errorf("UnreadCountByGroup() mismatch (-want +got):\n%s", diff)
	}
}

func TestMarking(t *testing.T) {
	a, fake := newTestAggregator(t, testAPIKey)
	ctx := context.Background()

	if err := a.MarkItemsAsRead(ctx, []string{"1", "2"}); err != nil {
		t.Fatalf("MarkItemsAsRead: %v", err)
	}
	n, err := a.UnreadCount(ctx, model.FeedFilter{})
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if diff := cmp.Diff(3, n); diff != "" {
		t.Errorf("unread after marking mismatch (-want +got):\n%s", diff)
	}

	if err := a.MarkGroupAsRead(ctx, "2"); err != nil {
		t.Fatalf("MarkGroupAsRead: %v", err)
	}
	if err := a.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("MarkAllAsRead: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, fake.markedCats); diff != "" {
		t.Errorf("marked categories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{7}, fake.markedAll); diff != "" {
		t.Errorf("marked users mismatch (-want +got):\n%s", diff)
	}
}

func TestGroups(t *testing.T) {
	a, _ := newTestAggregator(t, testAPIKey)
	ctx := context.Background()

	got, err := a.Groups(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Group{
		{GID: "1", Title: "Tech", FeedCount: 2},
		{GID: "2", Title: "Art", FeedCount: 1},
		{GID: "3", Title: "Empty", FeedCount: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Groups() mismatch (-want +got):\n%s", diff)
	}

	created, err := a.AddGroup(ctx, "Music")
	if err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if diff := cmp.Diff(&model.Group{GID: "4", Title: "Music"}, created); diff != "" {
		t.Errorf("AddGroup() mismatch (-want +got):\n%s", diff)
	}
	if err := a.RenameGroup(ctx, "4", "Songs"); err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}
	g, err := a.Group(ctx, "4")
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if diff := cmp.Diff(&model.Group{GID: "4", Title: "Songs"}, g); diff != "" {
		t.Errorf("Group() after rename mismatch (-want +got):\n%s", diff)
	}
	if err := a.DeleteGroup(ctx, "4"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	g, err = a.Group(ctx, "4")
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if g != nil {
		t.Errorf("Group() after delete = %+v, want nil", g)
	}
}

func TestFeedManagement(t *testing.T) {
	a, fake := newTestAggregator(t, testAPIKey)
	ctx := context.Background()

	feeds, err := a.Feeds(ctx)
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	want := []model.Feed{
		{FID: "10", GroupID: "1", GroupTitle: "Tech", FeedURL: "https://a.example/rss", Features: model.FeedFeatures{SourceURL: "https://a.example/rss"}, SiteURL: "https://a.example", Title: "A"},
		{FID: "20", GroupID: "2", GroupTitle: "Art", FeedURL: "https://b.example/rss", Features: model.FeedFeatures{SourceURL: "https://b.example/rss"}, SiteURL: "https://b.example", Title: "B", HasParsingError: true},
		{FID: "30", GroupID: "1", GroupTitle: "Tech", FeedURL: "https://c.example/rss", Features: model.FeedFeatures{SourceURL: "https://c.example/rss"}, Title: "C", Disabled: true},
	}
	if diff := cmp.Diff(want, feeds); diff != "" {
		t.Errorf("Feeds() mismatch (-want +got):\n%s", diff)
	}

	fid, err := a.AddFeed(ctx, "https://d.example/rss", "2")
	if err != nil {
		t.Fatalf("AddFeed: %v", err)
	}
	if diff := cmp.Diff("99", fid); diff != "" {
		t.Errorf("AddFeed() id mismatch (-want +got):\n%s", diff)
	}
	feed, err := a.Feed(ctx, fid)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if diff := cmp.Diff("Art", feed.GroupTitle); diff != "" {
		t.Errorf("new feed group mismatch (-want +got):\n%s", diff)
	}

	if err := a.RenameFeed(ctx, "10", "Renamed"); err != nil {
		t.Fatalf("RenameFeed: %v", err)
	}
	if diff := cmp.Diff("Renamed", fake.modified[10]["title"]); diff != "" {
		t.Errorf("rename payload mismatch (-want +got):\n%s", diff)
	}
	if err := a.UpdateFeedGroup(ctx, "10", "2"); err != nil {
		t.Fatalf("UpdateFeedGroup: %v", err)
	}
	if diff := cmp.Diff(float64(2), fake.modified[10]["category_id"]); diff != "" {
		t.Errorf("move payload mismatch (-want +got):\n%s", diff)
	}
	if err := a.SetFeedDisabled(ctx, "20", true); err != nil {
		t.Fatalf("SetFeedDisabled: %v", err)
	}
	if diff := cmp.Diff(true, fake.modified[20]["disabled"]); diff != "" {
		t.Errorf("disable payload mismatch (-want +got):\n%s", diff)
	}

	if err := a.DeleteFeed(ctx, "30"); err != nil {
		t.Fatalf("DeleteFeed: %v", err)
	}
	if _, err := a.Feed(ctx, "30"); !errors.Is(err, aggregator.ErrNotFound) {
		t.Errorf("Feed() after delete error = %v, want ErrNotFound", err)
	}

	icon, err := a.FeedIcon(ctx, "10")
	if err != nil {
		t.Fatalf("FeedIcon: %v", err)
	}
	if diff := cmp.Diff(&model.Icon{MimeType: "image/png", Data: "iVBORw0KGgo="}, icon); diff != "" {
		t.Errorf("FeedIcon() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("data:image/png;base64,iVBORw0KGgo=", icon.DataURL()); diff != "" {
		t.Errorf("DataURL() mismatch (-want +got):\n%s", diff)
	}
}

func TestAuthErrors(t *testing.T) {
	a, _ := newTestAggregator(t, "wrong")

	if err := a.VerifyAuth(context.Background()); !errors.Is(err, aggregator.ErrAuth) {
		t.Errorf("VerifyAuth() error = %v, want ErrAuth", err)
	}
	if _, err := a.Groups(context.Background()); !errors.Is(err, aggregator.ErrAuth) {
		t.Errorf("Groups() error = %v, want ErrAuth", err)
	}

	ok, _ := newTestAggregator(t, testAPIKey)
	if err := ok.VerifyAuth(context.Background()); err != nil {
		t.Errorf("VerifyAuth() unexpected error: %v", err)
	}
}

func TestTransportError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(Config{Endpoint: "http://127.0.0.1:1", APIKey: testAPIKey}, log)

	_, err := a.UnreadCount(context.Background(), model.FeedFilter{})
	var upErr *aggregator.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if diff := cmp.Diff(model.KindMiniflux, upErr.Backend); diff != "" {
		t.Errorf("backend mismatch (-want +got):\n%s", diff)
	}
}

func TestCanceledContext(t *testing.T) {
	a, fake := newTestAggregator(t, testAPIKey)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.UnreadCount(ctx, model.FeedFilter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("UnreadCount() error = %v, want context.Canceled", err)
	}
	if len(fake.entryQueries) != 0 {
		t.Errorf("request issued after cancel: %v", fake.entryQueries)
	}
}
