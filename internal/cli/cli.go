// Package cli implements the feedctl commands on top of the resolver and
// the aggregator capability interfaces.
package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"feedgrid/internal/model"
	"feedgrid/internal/resolver"
	"feedgrid/internal/scheduler"
)

// CLI runs one command per invocation against the resolved backend.
type CLI struct {
	resolver *resolver.Resolver
	token    string
	out      io.Writer
	log      *slog.Logger
	now      func() time.Time
}

// New creates a CLI. token is the persisted login to use, if any.
func New(res *resolver.Resolver, token string, out io.Writer, log *slog.Logger) *CLI {
	return &CLI{
		resolver: res,
		token:    token,
		out:      out,
		log:      log,
		now:      time.Now,
	}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.print(helpText)
		return errUsage("feedctl <command> [args]")
	}
	cmd, rest := args[0], args[1:]

	c.log.Debug("command", "cmd", cmd, "args", rest)

	switch cmd {
	case "help":
		c.print(helpText)
		return nil
	case "login":
		return c.handleLogin(ctx, rest)
	case "logout":
		return c.handleLogout(ctx)
	case "prune":
		return c.handlePrune(ctx, rest)
	}

	handler, ok := c.backendCommands()[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q, run help for a list of commands", cmd)
	}

	return c.resolver.Use(ctx, resolver.Request{Token: c.token}, func(b resolver.Backend) error {
		return handler(ctx, b, rest)
	})
}

type backendHandler func(ctx context.Context, b resolver.Backend, args []string) error

func (c *CLI) backendCommands() map[string]backendHandler {
	return map[string]backendHandler{
		"info":         c.handleInfo,
		"groups":       c.handleGroups,
		"list":         c.handleList,
		"count":        c.handleCount,
		"item":         c.handleItem,
		"mark-up-to":   c.handleMarkUpTo,
		"mark-read":    c.handleMarkRead,
		"mark-group":   c.handleMarkGroup,
		"mark-all":     c.handleMarkAll,
		"feeds":        c.handleFeeds,
		"feed-add":     c.handleFeedAdd,
		"feed-rm":      c.handleFeedRemove,
		"feed-mv":      c.handleFeedMove,
		"feed-rename":  c.handleFeedRename,
		"feed-disable": c.handleFeedDisabled(true),
		"feed-enable":  c.handleFeedDisabled(false),
		"feed-icon":    c.handleFeedIcon,
		"group-add":    c.handleGroupAdd,
		"group-rename": c.handleGroupRename,
		"group-rm":     c.handleGroupRemove,
	}
}

func (c *CLI) print(s string) {
	_, _ = io.WriteString(c.out, s)
}

func (c *CLI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) handleLogin(ctx context.Context, args []string) error {
	login, err := ParseLoginArgs(args)
	if err != nil {
		return err
	}

	if login.Kind == model.KindInoreader && login.Code == "" {
		o, err := c.resolver.OAuth()
		if err != nil {
			return err
		}
		state, err := newState()
		if err != nil {
			return err
		}
		c.printf("Open this URL, approve access, then run: feedctl login inoreader <code>\n%s\n", o.AuthCodeURL(state))
		return nil
	}

	b, err := c.resolver.Resolve(ctx, resolver.Request{Login: &login})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token, err := c.resolver.Persist(ctx, b)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	info := b.Aggregator().ConnectionInfo()
	if token == "" {
		c.printf("Using %s", FormatConnection(info))
		return nil
	}
	c.printf("Logged in to %sexport FEEDGRID_TOKEN=%s\n", FormatConnection(info), token)
	return nil
}

func (c *CLI) handleLogout(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("not logged in")
	}
	if err := c.resolver.Forget(ctx, c.token); err != nil {
		return err
	}
	c.print("Logged out.\n")
	return nil
}

func (c *CLI) handlePrune(ctx context.Context, args []string) error {
	fs := newFlagSet("prune")
	every := fs.Duration("every", 0, "keep running and prune on this interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *every > 0 {
		c.log.Info("pruning idle logins", "every", *every)
		scheduler.New(c.resolver, *every, c.log).Run(ctx)
		return nil
	}

	n, err := c.resolver.Prune(ctx)
	if err != nil {
		return err
	}
	c.printf("Removed %d idle logins.\n", n)
	return nil
}

func newState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

const helpText = `Session:
  login fever <endpoint> <username> <password>
  login miniflux <endpoint> <api_key>|<username> <password>
  login inoreader [code]
  logout
  info                      show the current backend
  prune [-every 1h]         remove idle logins, optionally on an interval

Reading:
  groups                    list groups with unread counts
  list [-n N] [-after ID] [-group GID] [-since WHEN] [-desc] [-all] [-media]
  count [-group GID] [-since WHEN]
  item <id>

Marking:
  mark-up-to [-group GID] [-since WHEN] <id>
  mark-read <id>...
  mark-group <gid>
  mark-all

Feeds and groups:
  feeds
  feed-add <url> <gid>
  feed-rm <fid>
  feed-mv <fid> <gid>
  feed-rename <fid> <title>
  feed-disable <fid>
  feed-enable <fid>
  feed-icon <fid>
  group-add <title>
  group-rename <gid> <title>
  group-rm <gid>

WHEN is a duration back from now (24h), a date (2024-05-01) or an RFC 3339 time.
`
