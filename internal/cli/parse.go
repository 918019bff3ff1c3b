package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"feedgrid/internal/content"
	"feedgrid/internal/model"
	"feedgrid/internal/resolver"
)

const defaultCount = 20

// ListArgs holds the parsed arguments of the list command.
type ListArgs struct {
	Count       int
	After       string
	Filter      model.FeedFilter
	Descending  bool
	IncludeRead bool
	Media       bool
}

// ParseListArgs parses: [-n count] [-after iid] [-group gid] [-since when]
// [-desc] [-all] [-media].
func ParseListArgs(args []string, now time.Time) (ListArgs, error) {
	var la ListArgs
	fs := newFlagSet("list")
	fs.IntVar(&la.Count, "n", defaultCount, "number of items")
	fs.StringVar(&la.After, "after", "", "continue after this item id")
	fs.BoolVar(&la.Descending, "desc", false, "newest first")
	fs.BoolVar(&la.IncludeRead, "all", false, "include read items")
	fs.BoolVar(&la.Media, "media", false, "show media tiles")
	group, since := filterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return ListArgs{}, err
	}
	if la.Count < 1 {
		return ListArgs{}, fmt.Errorf("-n must be positive")
	}
	f, err := buildFilter(*group, *since, now)
	if err != nil {
		return ListArgs{}, err
	}
	la.Filter = f
	la.After = content.SplitUID(la.After)
	return la, nil
}

// ParseFilterArgs parses [-group gid] [-since when] followed by positional
// arguments, which are returned as is.
func ParseFilterArgs(name string, args []string, now time.Time) (model.FeedFilter, []string, error) {
	fs := newFlagSet(name)
	group, since := filterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return model.FeedFilter{}, nil, err
	}
	f, err := buildFilter(*group, *since, now)
	if err != nil {
		return model.FeedFilter{}, nil, err
	}
	return f, fs.Args(), nil
}

// ParseSince accepts a duration back from now ("24h"), a date
// ("2006-01-02", midnight UTC) or an RFC 3339 timestamp.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("invalid since %q: duration must be positive", s)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q: use a duration, a date or an RFC 3339 time", s)
}

// ParseIIDs turns item or tile ids into item ids, dropping duplicates.
func ParseIIDs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one item id is required")
	}
	seen := make(map[string]bool, len(args))
	var iids []string
	for _, a := range args {
		iid := content.SplitUID(strings.TrimSpace(a))
		if iid == "" {
			return nil, fmt.Errorf("invalid item id %q", a)
		}
		if seen[iid] {
			continue
		}
		seen[iid] = true
		iids = append(iids, iid)
	}
	return iids, nil
}

// ParseLoginArgs parses the login command:
//
//	fever <endpoint> <username> <password>
//	miniflux <endpoint> <api_key>
//	miniflux <endpoint> <username> <password>
//	inoreader <code>
func ParseLoginArgs(args []string) (resolver.Login, error) {
	if len(args) == 0 {
		return resolver.Login{}, errUsage("login fever|miniflux|inoreader ...")
	}
	rest := args[1:]
	switch model.Kind(args[0]) {
	case model.KindFever:
		if len(rest) != 3 {
			return resolver.Login{}, errUsage("login fever <endpoint> <username> <password>")
		}
		return resolver.Login{Kind: model.KindFever, Endpoint: rest[0], Username: rest[1], Password: rest[2]}, nil
	case model.KindMiniflux:
		switch len(rest) {
		case 2:
			return resolver.Login{Kind: model.KindMiniflux, Endpoint: rest[0], APIKey: rest[1]}, nil
		case 3:
			return resolver.Login{Kind: model.KindMiniflux, Endpoint: rest[0], Username: rest[1], Password: rest[2]}, nil
		}
		return resolver.Login{}, errUsage("login miniflux <endpoint> <api_key> | <endpoint> <username> <password>")
	case model.KindInoreader:
		if len(rest) > 1 {
			return resolver.Login{}, errUsage("login inoreader [code]")
		}
		l := resolver.Login{Kind: model.KindInoreader}
		if len(rest) == 1 {
			l.Code = rest[0]
		}
		return l, nil
	}
	return resolver.Login{}, fmt.Errorf("unknown backend %q", args[0])
}

// ParseIDAndText extracts an id followed by free text, e.g. a new title.
func ParseIDAndText(args []string, usage string) (string, string, error) {
	if len(args) < 2 {
		return "", "", errUsage(usage)
	}
	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if text == "" {
		return "", "", errUsage(usage)
	}
	return args[0], text, nil
}

// ErrUsage wraps every argument error that should print usage.
var ErrUsage = errors.New("usage")

func errUsage(usage string) error {
	return fmt.Errorf("%w: %s", ErrUsage, usage)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func filterFlags(fs *flag.FlagSet) (group, since *string) {
	group = fs.String("group", "", "only items in this group")
	since = fs.String("since", "", "only items published after this time")
	return group, since
}

func buildFilter(group, since string, now time.Time) (model.FeedFilter, error) {
	f := model.FeedFilter{GroupID: group}
	if since != "" {
		t, err := ParseSince(since, now)
		if err != nil {
			return model.FeedFilter{}, err
		}
		f.CreatedAfter = t
	}
	return f, nil
}
