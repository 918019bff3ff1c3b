// Package filter implements the feed filter predicate shared by listing,
// counting and mark-as-read operations.
package filter

import (
	"slices"

	"feedgrid/internal/model"
)

// Match checks whether an item passes the given filter.
// An empty filter lets every item through.
// The group constraint passes if any of the item's groups matches.
// The time constraint is strict: an item published exactly at
// CreatedAfter is excluded.
func Match(item model.Item, f model.FeedFilter) bool {
	if f.IsZero() {
		return true
	}
	if !f.CreatedAfter.IsZero() && !item.PublishedAt.After(f.CreatedAfter) {
		return false
	}
	if f.GroupID != "" && !slices.Contains(item.GroupIDs(), f.GroupID) {
		return false
	}
	return true
}

// Items returns the items that pass the filter, preserving order.
func Items(items []model.Item, f model.FeedFilter) []model.Item {
	var matched []model.Item
	for _, item := range items {
		if Match(item, f) {
			matched = append(matched, item)
		}
	}
	return matched
}
