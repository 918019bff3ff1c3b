package fever

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type fakeItem struct {
	id      int64
	feedID  int64
	created int64
	read    bool
}

// fakeFever is a scripted in-memory Fever server.
type fakeFever struct {
	apiKey    string
	batchSize int
	items     map[int64]*fakeItem
	groups    map[int64]string
	// feedsByGroup maps a group id to the feeds in it.
	feedsByGroup map[int64][]int64
	feedTitles   map[int64]string
	// beforeItems runs before each since_id batch is served.
	beforeItems func(f *fakeFever, sinceID int64)
	status      int

	queries    []string
	itemsCalls int
	marked     []int64
}

func newFakeFever(batchSize int) *fakeFever {
	return &fakeFever{
		apiKey:       APIKey("user", "pass"),
		batchSize:    batchSize,
		items:        make(map[int64]*fakeItem),
		groups:       map[int64]string{1: "Group 1"},
		feedsByGroup: map[int64][]int64{1: {1}},
		feedTitles:   map[int64]string{1: "Feed 1"},
	}
}

func (f *fakeFever) add(id, feedID int64, read bool) {
	f.items[id] = &fakeItem{id: id, feedID: feedID, created: id, read: read}
}

func (f *fakeFever) unreadIDs() []int64 {
	var ids []int64
	for id, it := range f.items {
		if !it.read {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeFever) sortedIDs() []int64 {
	ids := make([]int64, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeFever) itemJSON(it *fakeItem) map[string]any {
	isRead := 0
	if it.read {
		isRead = 1
	}
	return map[string]any{
		"id":              it.id,
		"feed_id":         strconv.FormatInt(it.feedID, 10),
		"title":           "title " + strconv.FormatInt(it.id, 10),
		"url":             "https://example.com/" + strconv.FormatInt(it.id, 10),
		"html":            "<p>item</p>",
		"is_read":         isRead,
		"created_on_time": it.created,
	}
}

func (f *fakeFever) Do(req *http.Request) (*http.Response, error) {
	f.queries = append(f.queries, req.URL.RawQuery)
	if f.status != 0 {
		return &http.Response{StatusCode: f.status, Body: io.NopCloser(strings.NewReader("boom"))}, nil
	}
	if err := req.ParseForm(); err != nil {
		return nil, err
	}

	res := map[string]any{"api_version": 3, "auth": 1}
	if req.PostForm.Get("api_key") != f.apiKey {
		res["auth"] = 0
		return jsonResponse(res)
	}

	q := req.URL.Query()
	switch {
	case q.Has("groups"):
		var groups, feedsGroups []map[string]any
		for _, gid := range sortedKeys(f.groups) {
			groups = append(groups, map[string]any{"id": strconv.FormatInt(gid, 10), "title": f.groups[gid]})
		}
		for _, gid := range sortedKeys(f.feedsByGroup) {
			var feeds []string
			for _, fid := range f.feedsByGroup[gid] {
				feeds = append(feeds, strconv.FormatInt(fid, 10))
			}
			feedsGroups = append(feedsGroups, map[string]any{"group_id": gid, "feed_ids": strings.Join(feeds, ",")})
		}
		res["groups"] = groups
		res["feeds_groups"] = feedsGroups
	case q.Has("feeds"):
		feeds := []map[string]any{}
		for _, fid := range sortedKeys(f.feedTitles) {
			feeds = append(feeds, map[string]any{"id": fid, "title": f.feedTitles[fid]})
		}
		res["feeds"] = feeds
	case q.Has("unread_item_ids"):
		var strs []string
		for _, id := range f.unreadIDs() {
			strs = append(strs, strconv.FormatInt(id, 10))
		}
		res["unread_item_ids"] = strings.Join(strs, ",")
	case q.Has("items") && q.Has("since_id"):
		f.itemsCalls++
		since, err := strconv.ParseInt(q.Get("since_id"), 10, 64)
		if err != nil {
			return nil, err
		}
		if f.beforeItems != nil {
			f.beforeItems(f, since)
		}
		items := []map[string]any{}
		for _, id := range f.sortedIDs() {
			if id > since && len(items) < f.batchSize {
				items = append(items, f.itemJSON(f.items[id]))
			}
		}
		res["items"] = items
	case q.Has("items") && q.Has("with_ids"):
		items := []map[string]any{}
		for _, s := range strings.Split(q.Get("with_ids"), ",") {
			id, _ := strconv.ParseInt(s, 10, 64)
			if it, ok := f.items[id]; ok {
				items = append(items, f.itemJSON(it))
			}
		}
		res["items"] = items
	case q.Has("mark"):
		id, err := strconv.ParseInt(q.Get("id"), 10, 64)
		if err != nil {
			return nil, err
		}
		if it, ok := f.items[id]; ok {
			it.read = true
		}
		f.marked = append(f.marked, id)
	}
	return jsonResponse(res)
}

func jsonResponse(v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newTestAggregator(t *testing.T, f *fakeFever) *Aggregator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Endpoint: "http://fever.test/", Username: "user", Password: "pass"}, f, log)
}
