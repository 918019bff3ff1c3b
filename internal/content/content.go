// Package content derives presentation data from item HTML: media tiles,
// plain text previews and the UIDs that address individual tiles.
package content

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feedgrid/internal/model"
)

// MaxMediaPerItem caps how many tiles a single item renders into.
const MaxMediaPerItem = 4

// Media is one image or video tile extracted from an item.
type Media struct {
	UID      string
	IID      string
	FeedID   string
	URL      string
	Title    string
	ImageURL string
	VideoURL string
	Groups   []model.Group
	// Remaining counts media elements dropped past MaxMediaPerItem.
	Remaining int
}

// MakeUID builds the tile UID for the index-th media element of an item.
func MakeUID(iid string, index int) string {
	return fmt.Sprintf("%s-%d", iid, index)
}

// SplitUID recovers the item IID from a tile UID. It splits on the last
// dash, so IIDs that contain dashes round-trip.
func SplitUID(uid string) string {
	i := strings.LastIndex(uid, "-")
	if i < 0 {
		return uid
	}
	return uid[:i]
}

// ExtractMedia turns items into media tiles, one per img or video element,
// at most MaxMediaPerItem per item. Items without media yield nothing.
func ExtractMedia(items []model.Item) ([]Media, error) {
	var out []Media
	for _, item := range items {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.HTML))
		if err != nil {
			return nil, fmt.Errorf("parse item %s html: %w", item.IID, err)
		}

		elems := doc.Find("img, video")
		remaining := max(elems.Length()-MaxMediaPerItem, 0)
		elems.Slice(0, min(elems.Length(), MaxMediaPerItem)).Each(func(i int, s *goquery.Selection) {
			m := Media{
				UID:       MakeUID(item.IID, i),
				IID:       item.IID,
				FeedID:    item.FeedID,
				URL:       item.URL,
				Title:     item.Title,
				Groups:    item.Groups,
				Remaining: remaining,
			}
			if goquery.NodeName(s) == "img" {
				m.ImageURL = s.AttrOr("src", "")
			} else {
				m.ImageURL = s.AttrOr("poster", "")
				if src := s.Find("source").First(); src.Length() > 0 {
					m.VideoURL = src.AttrOr("src", "")
				} else {
					m.VideoURL = s.AttrOr("src", "")
				}
			}
			out = append(out, m)
		})
	}
	return out, nil
}

// PlainText strips markup from html and collapses whitespace.
func PlainText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
