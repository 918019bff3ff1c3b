// Package inoreader implements a read-only Inoreader backend over the
// Google Reader compatible API, authenticated with OAuth2.
package inoreader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/content"
	"feedgrid/internal/filter"
	"feedgrid/internal/model"
)

var (
	_ aggregator.Aggregator       = (*Aggregator)(nil)
	_ aggregator.DescendingLister = (*Aggregator)(nil)
	_ aggregator.GroupCounter     = (*Aggregator)(nil)
)

// DefaultAPIBase is the Inoreader API root.
const DefaultAPIBase = "https://www.inoreader.com/reader/api/0"

const (
	readingList = "user/-/state/com.google/reading-list"
	readState   = "user/-/state/com.google/read"
	// maxPages bounds how far a listing pages through the stream looking
	// for its cursor or enough matching items.
	maxPages        = 20
	pageSize        = 100
	maxResponseSize = 10 * 1024 * 1024
)

// Config holds the per-deployment Inoreader settings.
type Config struct {
	// APIBase overrides DefaultAPIBase.
	APIBase string
	Timeout time.Duration
}

// Aggregator reads unread articles from Inoreader.
type Aggregator struct {
	cfg    Config
	http   *http.Client
	tokens *recordingSource
	log    *slog.Logger
}

// New creates an Inoreader aggregator for the given credentials. base is
// used for both API and token refresh calls; nil means http.DefaultClient.
func New(cfg Config, o *OAuth, creds model.Credentials, base *http.Client, log *slog.Logger) *Aggregator {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if base == nil {
		base = http.DefaultClient
	}
	hc, src := o.client(base, creds)
	return &Aggregator{cfg: cfg, http: hc, tokens: src, log: log}
}

// Kind returns model.KindInoreader.
func (a *Aggregator) Kind() model.Kind { return model.KindInoreader }

// ConnectionInfo reports the hosted service.
func (a *Aggregator) ConnectionInfo() model.ConnectionInfo {
	host := "www.inoreader.com"
	if u, err := url.Parse(a.cfg.APIBase); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return model.ConnectionInfo{Kind: model.KindInoreader, Host: host}
}

// Credentials returns the most recent token, including refreshes.
func (a *Aggregator) Credentials() model.Credentials {
	return tokenCredentials(a.tokens.current())
}

func (a *Aggregator) get(ctx context.Context, path string, query url.Values, out any) error {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	u := a.cfg.APIBase + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	a.log.Debug("inoreader call", "path", path)
	resp, err := a.http.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return fmt.Errorf("refresh token: %w", aggregator.ErrAuth)
		}
		return &aggregator.UpstreamError{Backend: model.KindInoreader, Op: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", path, aggregator.ErrAuth)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &aggregator.UpstreamError{
			Backend:    model.KindInoreader,
			Op:         path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// VerifyAuth fetches the user profile.
func (a *Aggregator) VerifyAuth(ctx context.Context) error {
	var info struct {
		UserID string `json:"userId"`
	}
	if err := a.get(ctx, "user-info", nil, &info); err != nil {
		return fmt.Errorf("verify auth: %w", err)
	}
	return nil
}

type tagList struct {
	Tags []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"tags"`
}

type subscriptionList struct {
	Subscriptions []struct {
		ID         string `json:"id"`
		Categories []struct {
			ID string `json:"id"`
		} `json:"categories"`
	} `json:"subscriptions"`
}

// Groups returns folders with their subscription counts.
func (a *Aggregator) Groups(ctx context.Context) ([]model.Group, error) {
	var tags tagList
	if err := a.get(ctx, "tag/list", nil, &tags); err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	var subs subscriptionList
	if err := a.get(ctx, "subscription/list", nil, &subs); err != nil {
		return nil, fmt.Errorf("get subscriptions: %w", err)
	}

	feedCount := make(map[string]int)
	for _, s := range subs.Subscriptions {
		for _, c := range s.Categories {
			feedCount[c.ID]++
		}
	}
	var groups []model.Group
	for _, t := range tags.Tags {
		if t.Type != "folder" {
			continue
		}
		groups = append(groups, model.Group{GID: t.ID, Title: labelTitle(t.ID), FeedCount: feedCount[t.ID]})
	}
	return groups, nil
}

// Group returns the folder with the given id, or nil if there is none.
func (a *Aggregator) Group(ctx context.Context, gid string) (*model.Group, error) {
	groups, err := a.Groups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.GID == gid {
			return &g, nil
		}
	}
	return nil, nil
}

type unreadCounts struct {
	UnreadCounts []struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	} `json:"unreadcounts"`
}

func (a *Aggregator) unreadCounts(ctx context.Context) (map[string]int, error) {
	var res unreadCounts
	if err := a.get(ctx, "unread-count", nil, &res); err != nil {
		return nil, fmt.Errorf("get unread counts: %w", err)
	}
	counts := make(map[string]int, len(res.UnreadCounts))
	for _, c := range res.UnreadCounts {
		id := c.ID
		if strings.HasSuffix(id, "/state/com.google/reading-list") {
			id = readingList
		}
		counts[id] = c.Count
	}
	return counts, nil
}

// UnreadCount uses the server counters when only a group is given and
// counts the stream otherwise.
func (a *Aggregator) UnreadCount(ctx context.Context, f model.FeedFilter) (int, error) {
	if f.CreatedAfter.IsZero() {
		counts, err := a.unreadCounts(ctx)
		if err != nil {
			return 0, err
		}
		if f.GroupID == "" {
			return counts[readingList], nil
		}
		return counts[f.GroupID], nil
	}

	n := 0
	err := a.stream(ctx, f, "", func(item model.Item) bool {
		if filter.Match(item, f) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count unread items: %w", err)
	}
	return n, nil
}

// UnreadCountByGroup reads every group from one unread-count call.
func (a *Aggregator) UnreadCountByGroup(ctx context.Context, gids []string) (map[string]int, error) {
	counts, err := a.unreadCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(gids))
	for _, gid := range gids {
		out[gid] = counts[gid]
	}
	return out, nil
}

// UnreadItemsDescending lists unread articles newest first. A cursor is
// resolved by paging until the cursor article has been passed; a cursor
// that is no longer in the stream yields no items.
func (a *Aggregator) UnreadItemsDescending(ctx context.Context, count int, fromIIDExclusive string, f model.FeedFilter) ([]model.Item, error) {
	if count <= 0 {
		return nil, nil
	}
	var items []model.Item
	err := a.stream(ctx, f, fromIIDExclusive, func(item model.Item) bool {
		if filter.Match(item, f) {
			items = append(items, item)
		}
		return len(items) < count
	})
	if err != nil {
		return nil, fmt.Errorf("list unread items: %w", err)
	}
	return items, nil
}

type streamContents struct {
	Continuation string `json:"continuation"`
	Items        []struct {
		ID         string   `json:"id"`
		Title      string   `json:"title"`
		Published  int64    `json:"published"`
		Categories []string `json:"categories"`
		Canonical  []struct {
			Href string `json:"href"`
		} `json:"canonical"`
		Alternate []struct {
			Href string `json:"href"`
		} `json:"alternate"`
		Summary struct {
			Content string `json:"content"`
		} `json:"summary"`
		Origin struct {
			StreamID string `json:"streamId"`
			Title    string `json:"title"`
		} `json:"origin"`
	} `json:"items"`
}

// stream walks the unread stream for the filter's group newest first,
// starting after the item with id after when it is set.
func (a *Aggregator) stream(ctx context.Context, f model.FeedFilter, after string, visit func(model.Item) bool) error {
	streamID := readingList
	if f.GroupID != "" {
		streamID = f.GroupID
	}
	query := url.Values{
		"xt": {readState},
		"n":  {strconv.Itoa(pageSize)},
	}
	if !f.CreatedAfter.IsZero() {
		query.Set("ot", strconv.FormatInt(f.CreatedAfter.Unix(), 10))
	}

	skipping := after != ""
	for range maxPages {
		var page streamContents
		if err := a.get(ctx, "stream/contents/"+url.PathEscape(streamID), query, &page); err != nil {
			return err
		}
		for _, raw := range page.Items {
			if skipping {
				skipping = raw.ID != after
				continue
			}
			item := model.Item{
				IID:         raw.ID,
				FeedID:      raw.Origin.StreamID,
				Groups:      labelGroups(raw.Categories),
				Title:       raw.Title,
				FeedTitle:   raw.Origin.Title,
				HTML:        raw.Summary.Content,
				PlainText:   content.PlainText(raw.Summary.Content),
				PublishedAt: time.Unix(raw.Published, 0).UTC(),
				Unread:      true,
			}
			switch {
			case len(raw.Canonical) > 0:
				item.URL = raw.Canonical[0].Href
			case len(raw.Alternate) > 0:
				item.URL = raw.Alternate[0].Href
			}
			if !visit(item) {
				return nil
			}
		}
		if page.Continuation == "" {
			return nil
		}
		query.Set("c", page.Continuation)
	}
	a.log.Warn("inoreader stream truncated", "stream", streamID, "pages", maxPages)
	return nil
}

// labelGroups keeps the folder labels among an item's categories.
func labelGroups(categories []string) []model.Group {
	var groups []model.Group
	for _, c := range categories {
		if strings.Contains(c, "/label/") {
			groups = append(groups, model.Group{GID: c, Title: labelTitle(c)})
		}
	}
	return groups
}

func labelTitle(id string) string {
	if i := strings.LastIndex(id, "/label/"); i >= 0 {
		return id[i+len("/label/"):]
	}
	return id
}
