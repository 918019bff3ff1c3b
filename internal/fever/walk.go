package fever

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"feedgrid/internal/content"
	"feedgrid/internal/model"
)

// snapshot is the unread state captured at the start of a walk.
type snapshot struct {
	ids   []int64
	pos   map[int64]int
	feeds *feedIndex
}

func (a *Aggregator) loadSnapshot(ctx context.Context) (*snapshot, error) {
	feeds, err := a.loadFeedIndex(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := a.client.unreadIDs(ctx)
	if err != nil {
		return nil, err
	}

	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	return &snapshot{ids: ids, pos: pos, feeds: feeds}, nil
}

// feedIndex resolves the groups and title of an item's feed.
type feedIndex struct {
	groups map[int64][]model.Group
	titles map[int64]string
}

func (a *Aggregator) loadFeedIndex(ctx context.Context) (*feedIndex, error) {
	groups, err := a.client.groups(ctx)
	if err != nil {
		return nil, err
	}
	byFeed, err := groupsByFeed(groups)
	if err != nil {
		return nil, err
	}
	feeds, err := a.client.feeds(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(feeds.Feeds))
	for _, f := range feeds.Feeds {
		titles[int64(f.ID)] = f.Title
	}
	return &feedIndex{groups: byFeed, titles: titles}, nil
}

// groupsByFeed inverts feeds_groups into a feed id to groups lookup.
func groupsByFeed(res *groupsResponse) (map[int64][]model.Group, error) {
	byID := make(map[int64]model.Group, len(res.Groups))
	for _, g := range res.Groups {
		byID[int64(g.ID)] = model.Group{GID: strconv.FormatInt(int64(g.ID), 10), Title: g.Title}
	}
	out := make(map[int64][]model.Group)
	for _, fg := range res.FeedsGroups {
		feedIDs, err := parseFeedsGroup(fg)
		if err != nil {
			return nil, err
		}
		g, ok := byID[int64(fg.GroupID)]
		if !ok {
			continue
		}
		for _, fid := range feedIDs {
			out[fid] = append(out[fid], g)
		}
	}
	return out, nil
}

func parseFeedsGroup(fg feedsGroupJSON) ([]int64, error) {
	ids, err := parseIDList(fg.FeedIDs)
	if err != nil {
		return nil, fmt.Errorf("parse feeds of group %d: %w", fg.GroupID, err)
	}
	return ids, nil
}

// visitFunc receives each unread item in ascending id order. Returning
// false stops the walk.
type visitFunc func(item model.Item) (bool, error)

// walk visits the snapshot's unread items with an id strictly greater than
// from (empty for the start) and at most to (empty for the end).
//
// Each batch is requested with since_id one below the next unvisited id
// so that id itself is included. Batch items outside the remaining window
// or absent from the snapshot are ignored, so nothing is visited twice.
// When a batch visits nothing, the targeted id has disappeared upstream and
// is skipped, which bounds the walk to one batch per snapshot id.
func (a *Aggregator) walk(ctx context.Context, snap *snapshot, from, to string, visit visitFunc) error {
	index, end := 0, len(snap.ids)
	if from != "" {
		id, err := parseIID(from)
		if err != nil {
			return err
		}
		index = sort.Search(len(snap.ids), func(i int) bool { return snap.ids[i] > id })
	}
	if to != "" {
		id, err := parseIID(to)
		if err != nil {
			return err
		}
		end = sort.Search(len(snap.ids), func(i int) bool { return snap.ids[i] > id })
	}

	for index < end {
		batch, err := a.client.itemsSince(ctx, snap.ids[index]-1)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		slices.SortFunc(batch, func(x, y itemJSON) int { return cmp.Compare(x.ID, y.ID) })

		advanced := false
		for _, raw := range batch {
			p, ok := snap.pos[int64(raw.ID)]
			if !ok || p < index || p >= end {
				continue
			}
			index = p + 1
			advanced = true

			more, err := visit(a.toItem(raw, snap.feeds))
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if !advanced {
			a.log.Debug("fever item vanished during walk", "id", snap.ids[index])
			index++
		}
	}
	return nil
}

func (a *Aggregator) toItem(raw itemJSON, feeds *feedIndex) model.Item {
	return model.Item{
		IID:         strconv.FormatInt(int64(raw.ID), 10),
		FeedID:      strconv.FormatInt(int64(raw.FeedID), 10),
		Groups:      feeds.groups[int64(raw.FeedID)],
		Title:       raw.Title,
		FeedTitle:   feeds.titles[int64(raw.FeedID)],
		URL:         raw.URL,
		HTML:        raw.HTML,
		PlainText:   content.PlainText(raw.HTML),
		PublishedAt: time.Unix(int64(raw.CreatedOnTime), 0).UTC(),
		Unread:      raw.IsRead == 0,
	}
}

func parseIID(iid string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(iid), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fever item id %q: %w", iid, err)
	}
	return id, nil
}
