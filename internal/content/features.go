package content

import (
	"net/url"
	"strings"

	"feedgrid/internal/model"
)

const rssLambdaBase = "https://rss-lambda.xyz"

// ParseFeedFeatures unwraps rss-lambda proxy URLs, possibly nested, and
// records the transformation each layer applies.
func ParseFeedFeatures(feedURL string) model.FeedFeatures {
	var f model.FeedFeatures
	current := unescape(feedURL)
	for strings.HasPrefix(current, rssLambdaBase) {
		u, err := url.Parse(current)
		if err != nil {
			break
		}
		q := u.Query()
		inner := q.Get("url")
		if inner == "" {
			break
		}
		switch u.Path {
		case "/to_image_feed":
			f.ToImageFeed = true
		case "/rss_image_recog":
			f.ImageRecog = true
			if q.Get("class_id") == "0" {
				f.ImageRecogHuman = true
			}
		case "/rss":
			f.SimpleFilters = true
			f.FilterParams = append(f.FilterParams, q["param"]...)
		}
		current = unescape(inner)
	}
	f.SourceURL = current
	return f
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
