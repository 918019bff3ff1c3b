package miniflux

import (
	"context"
	"strings"

	"miniflux.app/client"

	"feedgrid/internal/content"
	"feedgrid/internal/model"
)

// Feeds returns every subscription.
func (a *Aggregator) Feeds(ctx context.Context) ([]model.Feed, error) {
	feeds, err := call(ctx, a, "feeds", a.client.Feeds)
	if err != nil {
		return nil, err
	}
	out := make([]model.Feed, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, toFeed(f))
	}
	return out, nil
}

// Feed returns one subscription.
func (a *Aggregator) Feed(ctx context.Context, fid string) (*model.Feed, error) {
	id, err := parseID(fid)
	if err != nil {
		return nil, err
	}
	f, err := call(ctx, a, "feed", func() (*client.Feed, error) { return a.client.Feed(id) })
	if err != nil {
		return nil, err
	}
	feed := toFeed(f)
	return &feed, nil
}

// AddFeed subscribes to feedURL in the given category and returns the new
// feed id.
func (a *Aggregator) AddFeed(ctx context.Context, feedURL, gid string) (string, error) {
	cid, err := parseID(gid)
	if err != nil {
		return "", err
	}
	id, err := call(ctx, a, "create feed", func() (int64, error) {
		return a.client.CreateFeed(&client.FeedCreationRequest{FeedURL: feedURL, CategoryID: cid})
	})
	if err != nil {
		return "", err
	}
	a.log.Info("miniflux feed created", "feed_id", id, "url", feedURL)
	return formatID(id), nil
}

// DeleteFeed unsubscribes from a feed.
func (a *Aggregator) DeleteFeed(ctx context.Context, fid string) error {
	id, err := parseID(fid)
	if err != nil {
		return err
	}
	return exec(ctx, a, "delete feed", func() error { return a.client.DeleteFeed(id) })
}

// UpdateFeedGroup moves a feed to another category.
func (a *Aggregator) UpdateFeedGroup(ctx context.Context, fid, gid string) error {
	cid, err := parseID(gid)
	if err != nil {
		return err
	}
	return a.updateFeed(ctx, fid, &client.FeedModificationRequest{CategoryID: &cid})
}

// RenameFeed changes a feed's title.
func (a *Aggregator) RenameFeed(ctx context.Context, fid, title string) error {
	return a.updateFeed(ctx, fid, &client.FeedModificationRequest{Title: &title})
}

// SetFeedDisabled stops or resumes refreshing a feed.
func (a *Aggregator) SetFeedDisabled(ctx context.Context, fid string, disabled bool) error {
	return a.updateFeed(ctx, fid, &client.FeedModificationRequest{Disabled: &disabled})
}

func (a *Aggregator) updateFeed(ctx context.Context, fid string, req *client.FeedModificationRequest) error {
	id, err := parseID(fid)
	if err != nil {
		return err
	}
	_, err = call(ctx, a, "update feed", func() (*client.Feed, error) { return a.client.UpdateFeed(id, req) })
	return err
}

// FeedIcon returns the favicon of a feed.
func (a *Aggregator) FeedIcon(ctx context.Context, fid string) (*model.Icon, error) {
	id, err := parseID(fid)
	if err != nil {
		return nil, err
	}
	icon, err := call(ctx, a, "feed icon", func() (*client.FeedIcon, error) { return a.client.FeedIcon(id) })
	if err != nil {
		return nil, err
	}
	// data arrives as "image/png;base64,<payload>"
	data := icon.Data
	if _, payload, ok := strings.Cut(data, ","); ok {
		data = payload
	}
	return &model.Icon{MimeType: icon.MimeType, Data: data}, nil
}

// AddGroup creates a category.
func (a *Aggregator) AddGroup(ctx context.Context, title string) (*model.Group, error) {
	c, err := call(ctx, a, "create category", func() (*client.Category, error) { return a.client.CreateCategory(title) })
	if err != nil {
		return nil, err
	}
	return &model.Group{GID: formatID(c.ID), Title: c.Title}, nil
}

// RenameGroup changes a category's title.
func (a *Aggregator) RenameGroup(ctx context.Context, gid, title string) error {
	id, err := parseID(gid)
	if err != nil {
		return err
	}
	_, err = call(ctx, a, "update category", func() (*client.Category, error) { return a.client.UpdateCategory(id, title) })
	return err
}

// DeleteGroup removes a category.
func (a *Aggregator) DeleteGroup(ctx context.Context, gid string) error {
	id, err := parseID(gid)
	if err != nil {
		return err
	}
	return exec(ctx, a, "delete category", func() error { return a.client.DeleteCategory(id) })
}

func toFeed(f *client.Feed) model.Feed {
	feed := model.Feed{
		FID:             formatID(f.ID),
		FeedURL:         f.FeedURL,
		SiteURL:         f.SiteURL,
		Title:           f.Title,
		HasParsingError: f.ParsingErrorCount > 0,
		Disabled:        f.Disabled,
		Features:        content.ParseFeedFeatures(f.FeedURL),
	}
	if f.Category != nil {
		feed.GroupID = formatID(f.Category.ID)
		feed.GroupTitle = f.Category.Title
	}
	return feed
}
