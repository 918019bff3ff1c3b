package fever

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/filter"
	"feedgrid/internal/model"
)

var (
	_ aggregator.Aggregator      = (*Aggregator)(nil)
	_ aggregator.AscendingLister = (*Aggregator)(nil)
	_ aggregator.GroupCounter    = (*Aggregator)(nil)
	_ aggregator.FilteredMarker  = (*Aggregator)(nil)
	_ aggregator.ItemMarker      = (*Aggregator)(nil)
	_ aggregator.ItemGetter      = (*Aggregator)(nil)
)

// Config describes a Fever endpoint and account.
type Config struct {
	Endpoint   string
	Username   string
	Password   string
	SelfHosted bool
	// Timeout bounds each upstream call. Zero means no extra bound.
	Timeout time.Duration
}

// Aggregator talks to a Fever compatible server.
type Aggregator struct {
	cfg    Config
	client *client
	log    *slog.Logger
}

// New creates a Fever aggregator using the given HTTP client.
func New(cfg Config, httpClient HTTPClient, log *slog.Logger) *Aggregator {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Aggregator{
		cfg: cfg,
		client: &client{
			http:     httpClient,
			endpoint: cfg.Endpoint,
			apiKey:   APIKey(cfg.Username, cfg.Password),
			timeout:  cfg.Timeout,
			log:      log,
		},
		log: log,
	}
}

// Kind returns model.KindFever.
func (a *Aggregator) Kind() model.Kind { return model.KindFever }

// ConnectionInfo returns the endpoint host.
func (a *Aggregator) ConnectionInfo() model.ConnectionInfo {
	host := a.cfg.Endpoint
	if u, err := url.Parse(a.cfg.Endpoint); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return model.ConnectionInfo{Kind: model.KindFever, Host: host, SelfHosted: a.cfg.SelfHosted}
}

// Credentials returns the endpoint and account.
func (a *Aggregator) Credentials() model.Credentials {
	return model.Credentials{
		Kind:     model.KindFever,
		Endpoint: a.cfg.Endpoint,
		Username: a.cfg.Username,
		Password: a.cfg.Password,
	}
}

// VerifyAuth calls the bare api probe.
func (a *Aggregator) VerifyAuth(ctx context.Context) error {
	if err := a.client.verify(ctx); err != nil {
		return fmt.Errorf("verify auth: %w", err)
	}
	return nil
}

// Groups returns every group with the number of feeds in it.
func (a *Aggregator) Groups(ctx context.Context) ([]model.Group, error) {
	res, err := a.client.groups(ctx)
	if err != nil {
		return nil, err
	}

	feedCount := make(map[int64]int)
	for _, fg := range res.FeedsGroups {
		ids, err := parseFeedsGroup(fg)
		if err != nil {
			return nil, err
		}
		feedCount[int64(fg.GroupID)] += len(ids)
	}

	groups := make([]model.Group, 0, len(res.Groups))
	for _, g := range res.Groups {
		groups = append(groups, model.Group{
			GID:       strconv.FormatInt(int64(g.ID), 10),
			Title:     g.Title,
			FeedCount: feedCount[int64(g.ID)],
		})
	}
	return groups, nil
}

// Group returns the group with the given id, or nil if there is none.
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

// UnreadItemsAscending lists up to count unread items after fromIIDExclusive
// that pass the filter.
func (a *Aggregator) UnreadItemsAscending(ctx context.Context, count int, fromIIDExclusive string, f model.FeedFilter) ([]model.Item, error) {
	if count <= 0 {
		return nil, nil
	}
	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	err = a.walk(ctx, snap, fromIIDExclusive, "", func(item model.Item) (bool, error) {
		if filter.Match(item, f) {
			items = append(items, item)
		}
		return len(items) < count, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list unread items: %w", err)
	}
	return items, nil
}

// UnreadCount returns the number of unread items passing the filter. An
// empty filter is answered from the unread id list alone.
func (a *Aggregator) UnreadCount(ctx context.Context, f model.FeedFilter) (int, error) {
	if f.IsZero() {
		ids, err := a.client.unreadIDs(ctx)
		if err != nil {
			return 0, err
		}
		return len(ids), nil
	}

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	err = a.walk(ctx, snap, "", "", func(item model.Item) (bool, error) {
		if filter.Match(item, f) {
			n++
		}
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("count unread items: %w", err)
	}
	return n, nil
}

// UnreadCountByGroup tallies unread items under each requested group.
func (a *Aggregator) UnreadCountByGroup(ctx context.Context, gids []string) (map[string]int, error) {
	counts := make(map[string]int, len(gids))
	for _, gid := range gids {
		counts[gid] = 0
	}
	if len(gids) == 0 {
		return counts, nil
	}

	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	err = a.walk(ctx, snap, "", "", func(item model.Item) (bool, error) {
		for _, g := range item.Groups {
			if _, ok := counts[g.GID]; ok {
				counts[g.GID]++
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("count unread items by group: %w", err)
	}
	return counts, nil
}

// MarkAsReadUpTo marks every unread item up to and including toIIDInclusive
// (empty for all) that passes the filter. Marking is not transactional: on
// error the items already marked stay read and their count is returned.
func (a *Aggregator) MarkAsReadUpTo(ctx context.Context, toIIDInclusive string, f model.FeedFilter) (int, error) {
	snap, err := a.loadSnapshot(ctx)
	if err != nil {
		return 0, err
	}

	marked := 0
	err = a.walk(ctx, snap, "", toIIDInclusive, func(item model.Item) (bool, error) {
		if !filter.Match(item, f) {
			return true, nil
		}
		id, err := parseIID(item.IID)
		if err != nil {
			return false, err
		}
		if err := a.client.markRead(ctx, id); err != nil {
			return false, err
		}
		marked++
		return true, nil
	})
	if err != nil {
		return marked, fmt.Errorf("mark items read: %w", err)
	}
	a.log.Info("fever items marked read", "count", marked, "up_to", toIIDInclusive)
	return marked, nil
}

// MarkItemsAsRead marks the given items read, one call per item, in order.
func (a *Aggregator) MarkItemsAsRead(ctx context.Context, iids []string) error {
	for _, iid := range iids {
		id, err := parseIID(iid)
		if err != nil {
			return err
		}
		if err := a.client.markRead(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Item fetches one item by id.
func (a *Aggregator) Item(ctx context.Context, iid string) (*model.Item, error) {
	id, err := parseIID(iid)
	if err != nil {
		return nil, err
	}
	feeds, err := a.loadFeedIndex(ctx)
	if err != nil {
		return nil, err
	}
	raws, err := a.client.itemsWithIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		if int64(raw.ID) == id {
			item := a.toItem(raw, feeds)
			return &item, nil
		}
	}
	return nil, fmt.Errorf("item %s: %w", iid, aggregator.ErrNotFound)
}

