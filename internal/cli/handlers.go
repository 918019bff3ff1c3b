package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/content"
	"feedgrid/internal/filter"
	"feedgrid/internal/model"
	"feedgrid/internal/resolver"
)

func (c *CLI) handleInfo(_ context.Context, b resolver.Backend, _ []string) error {
	c.print(FormatConnection(b.Aggregator().ConnectionInfo()))
	return nil
}

func (c *CLI) handleGroups(ctx context.Context, b resolver.Backend, _ []string) error {
	groups, err := b.Aggregator().Groups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	var counts map[string]int
	counter, err := resolver.Capability[aggregator.GroupCounter](b)
	switch {
	case err == nil:
		gids := make([]string, 0, len(groups))
		for _, g := range groups {
			gids = append(gids, g.GID)
		}
		counts, err = counter.UnreadCountByGroup(ctx, gids)
		if err != nil {
			return fmt.Errorf("count unread by group: %w", err)
		}
	case !errors.Is(err, aggregator.ErrNotSupported):
		return err
	}

	c.print(FormatGroups(groups, counts))
	return nil
}

func (c *CLI) handleList(ctx context.Context, b resolver.Backend, args []string) error {
	la, err := ParseListArgs(args, c.now())
	if err != nil {
		return err
	}
	items, err := listItems(ctx, b, la)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if la.Media {
		media, err := content.ExtractMedia(items)
		if err != nil {
			return err
		}
		c.print(FormatMedia(media))
		return nil
	}
	c.print(FormatItems(items, c.now()))
	return nil
}

// listItems picks the listing capability that serves la. Unread listings
// go oldest first unless the backend only lists newest first.
func listItems(ctx context.Context, b resolver.Backend, la ListArgs) ([]model.Item, error) {
	if la.IncludeRead {
		l, err := resolver.Capability[aggregator.ItemLister](b)
		if err != nil {
			return nil, err
		}
		items, err := l.Items(ctx, aggregator.ItemQuery{
			Count:            la.Count,
			FromIIDExclusive: la.After,
			GroupID:          la.Filter.GroupID,
			Descending:       la.Descending,
			IncludeRead:      true,
		})
		if err != nil {
			return nil, err
		}
		return filter.Items(items, model.FeedFilter{CreatedAfter: la.Filter.CreatedAfter}), nil
	}

	if !la.Descending {
		if l, err := resolver.Capability[aggregator.AscendingLister](b); err == nil {
			return l.UnreadItemsAscending(ctx, la.Count, la.After, la.Filter)
		}
	}
	l, err := resolver.Capability[aggregator.DescendingLister](b)
	if err != nil {
		return nil, err
	}
	return l.UnreadItemsDescending(ctx, la.Count, la.After, la.Filter)
}

func (c *CLI) handleCount(ctx context.Context, b resolver.Backend, args []string) error {
	f, _, err := ParseFilterArgs("count", args, c.now())
	if err != nil {
		return err
	}
	n, err := b.Aggregator().UnreadCount(ctx, f)
	if err != nil {
		return fmt.Errorf("count unread: %w", err)
	}
	c.printf("%s unread\n", humanize.Comma(int64(n)))
	return nil
}

func (c *CLI) handleItem(ctx context.Context, b resolver.Backend, args []string) error {
	id, err := oneArg(args, "item <id>")
	if err != nil {
		return err
	}
	g, err := resolver.Capability[aggregator.ItemGetter](b)
	if err != nil {
		return err
	}
	it, err := g.Item(ctx, content.SplitUID(id))
	if err != nil {
		return fmt.Errorf("get item: %w", err)
	}
	c.print(FormatItem(it, c.now()))
	return nil
}

func (c *CLI) handleMarkUpTo(ctx context.Context, b resolver.Backend, args []string) error {
	f, rest, err := ParseFilterArgs("mark-up-to", args, c.now())
	if err != nil {
		return err
	}
	id, err := oneArg(rest, "mark-up-to [-group GID] [-since WHEN] <id>")
	if err != nil {
		return err
	}
	m, err := resolver.Capability[aggregator.FilteredMarker](b)
	if err != nil {
		return err
	}
	n, err := m.MarkAsReadUpTo(ctx, content.SplitUID(id), f)
	if err != nil {
		return fmt.Errorf("mark read after %d items: %w", n, err)
	}
	c.printf("Marked %s as read.\n", english.Plural(n, "item", "items"))
	return nil
}

func (c *CLI) handleMarkRead(ctx context.Context, b resolver.Backend, args []string) error {
	iids, err := ParseIIDs(args)
	if err != nil {
		return err
	}
	m, err := resolver.Capability[aggregator.ItemMarker](b)
	if err != nil {
		return err
	}
	if err := m.MarkItemsAsRead(ctx, iids); err != nil {
		return fmt.Errorf("mark items read: %w", err)
	}
	c.printf("Marked %s as read.\n", english.Plural(len(iids), "item", "items"))
	return nil
}

func (c *CLI) handleMarkGroup(ctx context.Context, b resolver.Backend, args []string) error {
	gid, err := oneArg(args, "mark-group <gid>")
	if err != nil {
		return err
	}
	m, err := resolver.Capability[aggregator.GroupMarker](b)
	if err != nil {
		return err
	}
	if err := m.MarkGroupAsRead(ctx, gid); err != nil {
		return fmt.Errorf("mark group read: %w", err)
	}
	c.printf("Group %s marked as read.\n", gid)
	return nil
}

func (c *CLI) handleMarkAll(ctx context.Context, b resolver.Backend, _ []string) error {
	m, err := resolver.Capability[aggregator.GroupMarker](b)
	if err != nil {
		return err
	}
	if err := m.MarkAllAsRead(ctx); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	c.print("Everything marked as read.\n")
	return nil
}

func oneArg(args []string, usage string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", errUsage(usage)
	}
	return args[0], nil
}
