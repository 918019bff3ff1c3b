// Package model defines the entity types shared by every aggregator backend.
package model

import "time"

// Kind identifies an aggregator backend protocol.
type Kind string

// Supported backend kinds.
const (
	KindFever     Kind = "fever"
	KindMiniflux  Kind = "miniflux"
	KindInoreader Kind = "inoreader"
)

// Group is a folder or category that feeds belong to.
type Group struct {
	GID       string
	Title     string
	FeedCount int
}

// Item is a snapshot of one article as returned by the upstream at fetch time.
// IID is opaque and totally ordered within a single backend.
type Item struct {
	IID         string
	FeedID      string
	Groups      []Group
	Title       string
	FeedTitle   string
	URL         string
	HTML        string
	PlainText   string
	PublishedAt time.Time
	Unread      bool
}

// GroupIDs returns the ids of the groups the item belongs to.
func (i Item) GroupIDs() []string {
	ids := make([]string, 0, len(i.Groups))
	for _, g := range i.Groups {
		ids = append(ids, g.GID)
	}
	return ids
}

// Feed is a subscription on the upstream aggregator.
type Feed struct {
	FID             string
	GroupID         string
	GroupTitle      string
	FeedURL         string
	SiteURL         string
	Title           string
	HasParsingError bool
	Disabled        bool
	Features        FeedFeatures
}

// FeedFeatures describes how a feed URL was built. Feeds proxied through
// rss-lambda carry the transformations applied to the source feed.
type FeedFeatures struct {
	// SourceURL is the feed URL with any rss-lambda wrapping removed.
	SourceURL       string
	ToImageFeed     bool
	ImageRecog      bool
	ImageRecogHuman bool
	SimpleFilters   bool
	FilterParams    []string
}

// Proxied reports whether any rss-lambda transformation applies.
func (f FeedFeatures) Proxied() bool {
	return f.ToImageFeed || f.ImageRecog || f.SimpleFilters
}

// Icon is a feed favicon as served by the upstream.
type Icon struct {
	MimeType string
	// Data is base64 encoded image content.
	Data string
}

// DataURL returns the icon in a form that can be embedded in HTML.
func (i Icon) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Data
}

// FeedFilter restricts which items a listing, counting or marking call
// operates on. The zero value matches every item.
type FeedFilter struct {
	GroupID string
	// CreatedAfter is exclusive: only items published strictly later pass.
	CreatedAfter time.Time
}

// IsZero reports whether the filter places no constraint on items.
func (f FeedFilter) IsZero() bool {
	return f.GroupID == "" && f.CreatedAfter.IsZero()
}

// ConnectionInfo describes where an aggregator lives, for display only.
type ConnectionInfo struct {
	Kind Kind
	Host string
	// SelfHosted is true when the backend was configured by the operator
	// through the environment instead of supplied by the user at login.
	SelfHosted bool
}

// Credentials is everything needed to rebuild an aggregator for one user.
type Credentials struct {
	Kind         Kind      `json:"kind"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Username     string    `json:"username,omitempty"`
	Password     string    `json:"password,omitempty"`
	APIKey       string    `json:"api_key,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// AuthToken is a persisted login, addressed by an opaque token string.
type AuthToken struct {
	Token       string
	Credentials Credentials
	CreatedAt   time.Time
	AccessedAt  time.Time
}
