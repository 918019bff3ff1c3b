package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"feedgrid/internal/content"
	"feedgrid/internal/model"
)

const (
	statusActive   = "active"
	statusDisabled = "disabled"

	snippetLen = 120
)

// FormatConnection describes where the current backend lives.
func FormatConnection(info model.ConnectionInfo) string {
	source := "login"
	if info.SelfHosted {
		source = "server configured"
	}
	return fmt.Sprintf("%s at %s (%s)\n", info.Kind, info.Host, source)
}

// FormatGroups formats groups with their unread counts. counts may be nil
// when the backend cannot count per group.
func FormatGroups(groups []model.Group, counts map[string]int) string {
	if len(groups) == 0 {
		return "No groups.\n"
	}
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%s\t%s\t%s", g.GID, g.Title, english.Plural(g.FeedCount, "feed", "feeds"))
		if counts != nil {
			fmt.Fprintf(&b, "\t%s unread", humanize.Comma(int64(counts[g.GID])))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatItems formats a page of items, newest relative to now. The last
// line tells the user how to continue.
func FormatItems(items []model.Item, now time.Time) string {
	if len(items) == 0 {
		return "No items.\n"
	}
	var b strings.Builder
	for _, it := range items {
		formatItem(&b, it, now)
	}
	fmt.Fprintf(&b, "\nMore: list -after %s\n", items[len(items)-1].IID)
	return b.String()
}

func formatItem(b *strings.Builder, it model.Item, now time.Time) {
	mark := "*"
	if !it.Unread {
		mark = " "
	}
	fmt.Fprintf(b, "%s %s  %s\n", mark, it.IID, it.Title)
	var meta []string
	if it.FeedTitle != "" {
		meta = append(meta, it.FeedTitle)
	}
	if !it.PublishedAt.IsZero() {
		meta = append(meta, humanize.RelTime(it.PublishedAt, now, "ago", "from now"))
	}
	if len(meta) > 0 {
		fmt.Fprintf(b, "    %s\n", strings.Join(meta, " · "))
	}
	if it.URL != "" {
		fmt.Fprintf(b, "    %s\n", it.URL)
	}
	if s := snippet(it.PlainText); s != "" {
		fmt.Fprintf(b, "    %s\n", s)
	}
}

// FormatItem formats a single item in full.
func FormatItem(it *model.Item, now time.Time) string {
	var b strings.Builder
	formatItem(&b, model.Item{
		IID:         it.IID,
		Title:       it.Title,
		FeedTitle:   it.FeedTitle,
		URL:         it.URL,
		PublishedAt: it.PublishedAt,
		Unread:      it.Unread,
	}, now)
	if len(it.Groups) > 0 {
		titles := make([]string, 0, len(it.Groups))
		for _, g := range it.Groups {
			titles = append(titles, g.Title)
		}
		fmt.Fprintf(&b, "    groups: %s\n", strings.Join(titles, ", "))
	}
	if it.PlainText != "" {
		fmt.Fprintf(&b, "\n%s\n", it.PlainText)
	}
	return b.String()
}

// FormatMedia formats media tiles, one per line, by UID.
func FormatMedia(media []content.Media) string {
	if len(media) == 0 {
		return "No media.\n"
	}
	var b strings.Builder
	for _, m := range media {
		src := m.ImageURL
		if m.VideoURL != "" {
			src = m.VideoURL
		}
		fmt.Fprintf(&b, "%s\t%s\t%s", m.UID, src, m.Title)
		if m.Remaining > 0 && strings.HasSuffix(m.UID, "-0") {
			fmt.Fprintf(&b, "\t(+%d more)", m.Remaining)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatFeeds formats feed subscriptions.
func FormatFeeds(feeds []model.Feed) string {
	if len(feeds) == 0 {
		return "No feeds. Use feed-add <url> to subscribe.\n"
	}
	var b strings.Builder
	for _, f := range feeds {
		status := statusActive
		if f.Disabled {
			status = statusDisabled
		}
		fmt.Fprintf(&b, "#%s %s [%s]\n", f.FID, f.Title, status)
		fmt.Fprintf(&b, "   %s\n", f.FeedURL)
		if f.Features.Proxied() {
			fmt.Fprintf(&b, "   source: %s (%s)\n", f.Features.SourceURL, strings.Join(featureLabels(f.Features), ", "))
		}
		if f.GroupTitle != "" {
			fmt.Fprintf(&b, "   group: %s\n", f.GroupTitle)
		}
		if f.HasParsingError {
			b.WriteString("   last refresh failed\n")
		}
	}
	return b.String()
}

func featureLabels(f model.FeedFeatures) []string {
	var labels []string
	if f.ToImageFeed {
		labels = append(labels, "image feed")
	}
	switch {
	case f.ImageRecogHuman:
		labels = append(labels, "people only")
	case f.ImageRecog:
		labels = append(labels, "image recognition")
	}
	if f.SimpleFilters {
		labels = append(labels, "filtered")
		if len(f.FilterParams) > 0 {
			labels[len(labels)-1] += ": " + strings.Join(f.FilterParams, " ")
		}
	}
	return labels
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return strings.TrimSpace(string(r[:snippetLen])) + "…"
}
