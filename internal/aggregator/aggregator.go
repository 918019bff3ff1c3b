// Package aggregator defines the capability interfaces every feed
// aggregator backend implements, and the errors they share.
//
// The base Aggregator interface is mandatory. Everything else is an
// optional capability expressed as its own small interface; a backend
// either has the method set or it does not.
package aggregator

import (
	"context"

	"feedgrid/internal/model"
)

// Aggregator is the capability set every backend provides.
type Aggregator interface {
	Kind() model.Kind
	ConnectionInfo() model.ConnectionInfo
	// Credentials returns what is needed to rebuild this aggregator later.
	Credentials() model.Credentials
	// VerifyAuth probes the upstream and returns ErrAuth if the
	// credentials are rejected.
	VerifyAuth(ctx context.Context) error
	Groups(ctx context.Context) ([]model.Group, error)
	// Group returns nil without error when gid is unknown.
	Group(ctx context.Context, gid string) (*model.Group, error)
	UnreadCount(ctx context.Context, f model.FeedFilter) (int, error)
}

// AscendingLister lists unread items oldest first.
type AscendingLister interface {
	// UnreadItemsAscending returns up to count unread items with an IID
	// strictly greater than fromIIDExclusive (empty means from the start)
	// that pass the filter.
	UnreadItemsAscending(ctx context.Context, count int, fromIIDExclusive string, f model.FeedFilter) ([]model.Item, error)
}

// DescendingLister lists unread items newest first.
type DescendingLister interface {
	UnreadItemsDescending(ctx context.Context, count int, fromIIDExclusive string, f model.FeedFilter) ([]model.Item, error)
}

// ItemQuery parameterizes a general item listing.
type ItemQuery struct {
	Count            int
	FromIIDExclusive string
	GroupID          string
	Descending       bool
	IncludeRead      bool
}

// ItemLister lists items regardless of read state.
type ItemLister interface {
	Items(ctx context.Context, q ItemQuery) ([]model.Item, error)
}

// GroupCounter counts unread items per group.
type GroupCounter interface {
	// UnreadCountByGroup returns an entry for every requested gid,
	// zero when the group has no unread items.
	UnreadCountByGroup(ctx context.Context, gids []string) (map[string]int, error)
}

// FilteredMarker marks everything up to an item as read.
type FilteredMarker interface {
	// MarkAsReadUpTo marks every unread item with an IID at most
	// toIIDInclusive that passes the filter, and returns how many were
	// marked. Items the same filter would not list are never marked.
	MarkAsReadUpTo(ctx context.Context, toIIDInclusive string, f model.FeedFilter) (int, error)
}

// GroupMarker marks whole groups or everything as read.
type GroupMarker interface {
	MarkGroupAsRead(ctx context.Context, gid string) error
	MarkAllAsRead(ctx context.Context) error
}

// ItemMarker marks individual items as read.
type ItemMarker interface {
	MarkItemsAsRead(ctx context.Context, iids []string) error
}

// ItemGetter fetches a single item by id.
type ItemGetter interface {
	Item(ctx context.Context, iid string) (*model.Item, error)
}

// FeedManager manages feed subscriptions.
type FeedManager interface {
	Feeds(ctx context.Context) ([]model.Feed, error)
	Feed(ctx context.Context, fid string) (*model.Feed, error)
	AddFeed(ctx context.Context, feedURL, gid string) (string, error)
	DeleteFeed(ctx context.Context, fid string) error
	UpdateFeedGroup(ctx context.Context, fid, gid string) error
	RenameFeed(ctx context.Context, fid, title string) error
	SetFeedDisabled(ctx context.Context, fid string, disabled bool) error
}

// GroupManager manages groups.
type GroupManager interface {
	AddGroup(ctx context.Context, title string) (*model.Group, error)
	RenameGroup(ctx context.Context, gid, title string) error
	DeleteGroup(ctx context.Context, gid string) error
}

// IconGetter returns feed favicons.
type IconGetter interface {
	FeedIcon(ctx context.Context, fid string) (*model.Icon, error)
}
