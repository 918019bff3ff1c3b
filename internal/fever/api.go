package fever

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type groupJSON struct {
	ID    flexInt `json:"id"`
	Title string  `json:"title"`
}

type feedsGroupJSON struct {
	GroupID flexInt `json:"group_id"`
	FeedIDs string  `json:"feed_ids"`
}

type groupsResponse struct {
	Groups      []groupJSON      `json:"groups"`
	FeedsGroups []feedsGroupJSON `json:"feeds_groups"`
}

type feedJSON struct {
	ID    flexInt `json:"id"`
	Title string  `json:"title"`
}

type feedsResponse struct {
	Feeds []feedJSON `json:"feeds"`
}

type itemJSON struct {
	ID            flexInt `json:"id"`
	FeedID        flexInt `json:"feed_id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	HTML          string  `json:"html"`
	IsRead        flexInt `json:"is_read"`
	CreatedOnTime flexInt `json:"created_on_time"`
}

type itemsResponse struct {
	Items []itemJSON `json:"items"`
}

type unreadResponse struct {
	UnreadItemIDs string `json:"unread_item_ids"`
}

func (c *client) verify(ctx context.Context) error {
	return c.call(ctx, "/?api", nil)
}

func (c *client) groups(ctx context.Context) (*groupsResponse, error) {
	var res groupsResponse
	if err := c.call(ctx, "/?api&groups", &res); err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return &res, nil
}

func (c *client) feeds(ctx context.Context) (*feedsResponse, error) {
	var res feedsResponse
	if err := c.call(ctx, "/?api&feeds", &res); err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	return &res, nil
}

// unreadIDs returns the unread item ids sorted ascending without duplicates.
func (c *client) unreadIDs(ctx context.Context) ([]int64, error) {
	var res unreadResponse
	if err := c.call(ctx, "/?api&unread_item_ids", &res); err != nil {
		return nil, fmt.Errorf("get unread item ids: %w", err)
	}
	ids, err := parseIDList(res.UnreadItemIDs)
	if err != nil {
		return nil, fmt.Errorf("parse unread item ids: %w", err)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// itemsSince returns the batch of items with an id strictly greater than
// sinceID, as chosen by the server.
func (c *client) itemsSince(ctx context.Context, sinceID int64) ([]itemJSON, error) {
	var res itemsResponse
	if err := c.call(ctx, "/?api&items&since_id="+strconv.FormatInt(sinceID, 10), &res); err != nil {
		return nil, fmt.Errorf("get items since %d: %w", sinceID, err)
	}
	return res.Items, nil
}

func (c *client) itemsWithIDs(ctx context.Context, ids []int64) ([]itemJSON, error) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}
	var res itemsResponse
	if err := c.call(ctx, "/?api&items&with_ids="+strings.Join(strs, ","), &res); err != nil {
		return nil, fmt.Errorf("get items by id: %w", err)
	}
	return res.Items, nil
}

func (c *client) markRead(ctx context.Context, id int64) error {
	if err := c.call(ctx, "/?api&mark=item&as=read&id="+strconv.FormatInt(id, 10), nil); err != nil {
		return fmt.Errorf("mark item %d read: %w", id, err)
	}
	return nil
}

// parseIDList parses a comma separated id list. Blank entries are skipped.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
