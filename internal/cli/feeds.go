package cli

import (
	"context"
	"fmt"
	"strings"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/resolver"
)

func (c *CLI) handleFeeds(ctx context.Context, b resolver.Backend, _ []string) error {
	fm, err := resolver.Capability[aggregator.FeedManager](b)
	if err != nil {
		return err
	}
	feeds, err := fm.Feeds(ctx)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}
	c.print(FormatFeeds(feeds))
	return nil
}

func (c *CLI) handleFeedAdd(ctx context.Context, b resolver.Backend, args []string) error {
	if len(args) != 2 {
		return errUsage("feed-add <url> <gid>")
	}
	fm, err := resolver.Capability[aggregator.FeedManager](b)
	if err != nil {
		return err
	}
	fid, err := fm.AddFeed(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("add feed: %w", err)
	}
	c.printf("Feed #%s added.\n", fid)
	return nil
}

func (c *CLI) handleFeedRemove(ctx context.Context, b resolver.Backend, args []string) error {
	fid, err := oneArg(args, "feed-rm <fid>")
	if err != nil {
		return err
	}
	fm, err := resolver.Capability[aggregator.FeedManager](b)
	if err != nil {
		return err
	}
	feed, err := fm.Feed(ctx, fid)
	if err != nil {
		return fmt.Errorf("get feed: %w", err)
	}
	if err := fm.DeleteFeed(ctx, fid); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	c.printf("Feed #%s %q deleted.\n", fid, feed.Title)
	return nil
}

func (c *CLI) handleFeedMove(ctx context.Context, b resolver.Backend, args []string) error {
	if len(args) != 2 {
		return errUsage("feed-mv <fid> <gid>")
	}
	fm, err := resolver.Capability[aggregator.FeedManager](b)
	if err != nil {
		return err
	}
	if err := fm.UpdateFeedGroup(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("move feed: %w", err)
	}
	c.printf("Feed #%s moved to group %s.\n", args[0], args[1])
	return nil
}

func (c *CLI) handleFeedRename(ctx context.Context, b resolver.Backend, args []string) error {
	fid, title, err := ParseIDAndText(args, "feed-rename <fid> <title>")
	if err != nil {
		return err
	}
	fm, err := resolver.Capability[aggregator.FeedManager](b)
	if err != nil {
		return err
	}
	if err := fm.RenameFeed(ctx, fid, title); err != nil {
		return fmt.Errorf("rename feed: %w", err)
	}
	c.printf("Feed #%s renamed to %q.\n", fid, title)
	return nil
}

func (c *CLI) handleFeedDisabled(disabled bool) backendHandler {
	name, verb := "feed-enable", "enabled"
	if disabled {
		name, verb = "feed-disable", "disabled"
	}
	return func(ctx context.Context, b resolver.Backend, args []string) error {
		fid, err := oneArg(args, name+" <fid>")
		if err != nil {
			return err
		}
		fm, err := resolver.Capability[aggregator.FeedManager](b)
		if err != nil {
			return err
		}
		if err := fm.SetFeedDisabled(ctx, fid, disabled); err != nil {
			return fmt.Errorf("%s feed: %w", strings.TrimPrefix(name, "feed-"), err)
		}
		c.printf("Feed #%s %s.\n", fid, verb)
		return nil
	}
}

func (c *CLI) handleFeedIcon(ctx context.Context, b resolver.Backend, args []string) error {
	fid, err := oneArg(args, "feed-icon <fid>")
	if err != nil {
		return err
	}
	ig, err := resolver.Capability[aggregator.IconGetter](b)
	if err != nil {
		return err
	}
	icon, err := ig.FeedIcon(ctx, fid)
	if err != nil {
		return fmt.Errorf("get feed icon: %w", err)
	}
	c.printf("%s\n", icon.DataURL())
	return nil
}

func (c *CLI) handleGroupAdd(ctx context.Context, b resolver.Backend, args []string) error {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return errUsage("group-add <title>")
	}
	gm, err := resolver.Capability[aggregator.GroupManager](b)
	if err != nil {
		return err
	}
	g, err := gm.AddGroup(ctx, title)
	if err != nil {
		return fmt.Errorf("add group: %w", err)
	}
	c.printf("Group %s %q created.\n", g.GID, g.Title)
	return nil
}

func (c *CLI) handleGroupRename(ctx context.Context, b resolver.Backend, args []string) error {
	gid, title, err := ParseIDAndText(args, "group-rename <gid> <title>")
	if err != nil {
		return err
	}
	gm, err := resolver.Capability[aggregator.GroupManager](b)
	if err != nil {
		return err
	}
	if err := gm.RenameGroup(ctx, gid, title); err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	c.printf("Group %s renamed to %q.\n", gid, title)
	return nil
}

func (c *CLI) handleGroupRemove(ctx context.Context, b resolver.Backend, args []string) error {
	gid, err := oneArg(args, "group-rm <gid>")
	if err != nil {
		return err
	}
	gm, err := resolver.Capability[aggregator.GroupManager](b)
	if err != nil {
		return err
	}
	if err := gm.DeleteGroup(ctx, gid); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	c.printf("Group %s deleted.\n", gid)
	return nil
}
