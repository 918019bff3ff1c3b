// Package resolver decides which aggregator serves a request. Operator
// configured backends win, then an explicit login, then a previously
// persisted auth token.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"feedgrid/internal/config"
	"feedgrid/internal/fever"
	"feedgrid/internal/inoreader"
	"feedgrid/internal/miniflux"
	"feedgrid/internal/model"
	"feedgrid/internal/storage"
)

// ErrNoCredentials means no backend could be built for the request.
var ErrNoCredentials = errors.New("no credentials")

// ErrInoreaderDisabled is returned for Inoreader logins when no
// Inoreader app is configured.
var ErrInoreaderDisabled = errors.New("inoreader is not configured")

// Login is what a user submits to sign in. Kind defaults to Fever.
type Login struct {
	Kind     model.Kind
	Endpoint string
	Username string
	Password string
	APIKey   string
	// Code is the OAuth authorization code for Inoreader.
	Code string
}

// Request carries the per-request inputs to Resolve.
type Request struct {
	Login *Login
	Token string
}

// Resolver builds aggregators from configuration, logins and stored tokens.
type Resolver struct {
	cfg   *config.Config
	store storage.Storage
	http  *http.Client
	oauth *inoreader.OAuth
	log   *slog.Logger
	now   func() time.Time

	inoreaderAPIBase string
}

// New creates a Resolver. httpClient is used for Fever and Inoreader calls;
// nil means http.DefaultClient.
func New(cfg *config.Config, store storage.Storage, httpClient *http.Client, log *slog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	r := &Resolver{
		cfg:   cfg,
		store: store,
		http:  httpClient,
		log:   log,
		now:   time.Now,
	}
	if cfg.Inoreader.Enabled() {
		r.oauth = inoreader.NewOAuth(cfg.Inoreader.AppID, cfg.Inoreader.AppKey, cfg.BaseURL, inoreader.Endpoint)
	}
	return r
}

// OAuth returns the Inoreader authorization flow.
func (r *Resolver) OAuth() (*inoreader.OAuth, error) {
	if r.oauth == nil {
		return nil, ErrInoreaderDisabled
	}
	return r.oauth, nil
}

// Resolve returns the backend for req. It does not contact the upstream
// except to exchange an Inoreader authorization code.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Backend, error) {
	if c := r.cfg.Miniflux; c.Enabled() {
		return MinifluxBackend(miniflux.New(miniflux.Config{
			Endpoint:   c.Endpoint,
			Username:   c.Username,
			Password:   c.Password,
			APIKey:     c.APIKey,
			SelfHosted: true,
		}, r.log)), nil
	}
	if c := r.cfg.Fever; c.Enabled() {
		return FeverBackend(fever.New(fever.Config{
			Endpoint:   c.Endpoint,
			Username:   c.Username,
			Password:   c.Password,
			SelfHosted: true,
			Timeout:    r.cfg.HTTPTimeout,
		}, r.http, r.log)), nil
	}
	if req.Login != nil {
		return r.fromLogin(ctx, *req.Login)
	}
	if req.Token != "" {
		return r.fromToken(ctx, req.Token)
	}
	return Backend{}, ErrNoCredentials
}

func (r *Resolver) fromLogin(ctx context.Context, l Login) (Backend, error) {
	switch l.Kind {
	case "", model.KindFever:
		if l.Endpoint == "" || l.Username == "" {
			return Backend{}, fmt.Errorf("fever login needs endpoint and username: %w", ErrNoCredentials)
		}
		return r.build(model.Credentials{
			Kind:     model.KindFever,
			Endpoint: l.Endpoint,
			Username: l.Username,
			Password: l.Password,
		})
	case model.KindMiniflux:
		if l.Endpoint == "" || (l.APIKey == "" && l.Username == "") {
			return Backend{}, fmt.Errorf("miniflux login needs endpoint and api key or username: %w", ErrNoCredentials)
		}
		return r.build(model.Credentials{
			Kind:     model.KindMiniflux,
			Endpoint: l.Endpoint,
			Username: l.Username,
			Password: l.Password,
			APIKey:   l.APIKey,
		})
	case model.KindInoreader:
		if r.oauth == nil {
			return Backend{}, ErrInoreaderDisabled
		}
		if l.Code == "" {
			return Backend{}, fmt.Errorf("inoreader login needs an authorization code: %w", ErrNoCredentials)
		}
		creds, err := r.oauth.Exchange(ctx, l.Code)
		if err != nil {
			return Backend{}, fmt.Errorf("inoreader login: %w", err)
		}
		return r.build(creds)
	}
	return Backend{}, fmt.Errorf("unknown backend kind %q", l.Kind)
}

func (r *Resolver) fromToken(ctx context.Context, token string) (Backend, error) {
	tok, err := r.store.GetToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return Backend{}, fmt.Errorf("unknown token: %w", ErrNoCredentials)
	}
	if err != nil {
		return Backend{}, fmt.Errorf("get token: %w", err)
	}

	now := r.now()
	if r.cfg.TokenTTL > 0 && now.Sub(tok.AccessedAt) > r.cfg.TokenTTL {
		if err := r.store.DeleteToken(ctx, token); err != nil {
			r.log.Warn("delete expired token", "error", err)
		}
		return Backend{}, fmt.Errorf("token expired: %w", ErrNoCredentials)
	}
	if err := r.store.TouchToken(ctx, token, now); err != nil {
		return Backend{}, fmt.Errorf("touch token: %w", err)
	}
	return r.build(tok.Credentials)
}

func (r *Resolver) build(creds model.Credentials) (Backend, error) {
	switch creds.Kind {
	case model.KindFever:
		return FeverBackend(fever.New(fever.Config{
			Endpoint: creds.Endpoint,
			Username: creds.Username,
			Password: creds.Password,
			Timeout:  r.cfg.HTTPTimeout,
		}, r.http, r.log)), nil
	case model.KindMiniflux:
		return MinifluxBackend(miniflux.New(miniflux.Config{
			Endpoint: creds.Endpoint,
			Username: creds.Username,
			Password: creds.Password,
			APIKey:   creds.APIKey,
		}, r.log)), nil
	case model.KindInoreader:
		if r.oauth == nil {
			return Backend{}, ErrInoreaderDisabled
		}
		return InoreaderBackend(inoreader.New(inoreader.Config{
			APIBase: r.inoreaderAPIBase,
			Timeout: r.cfg.HTTPTimeout,
		}, r.oauth, creds, r.http, r.log)), nil
	}
	return Backend{}, fmt.Errorf("unknown backend kind %q", creds.Kind)
}

// Persist verifies the backend's credentials and stores them under a new
// opaque token. Operator configured backends are not persisted and yield
// an empty token.
func (r *Resolver) Persist(ctx context.Context, b Backend) (string, error) {
	agg := b.Aggregator()
	if err := agg.VerifyAuth(ctx); err != nil {
		return "", err
	}
	if agg.ConnectionInfo().SelfHosted {
		return "", nil
	}

	now := r.now().UTC()
	tok := &model.AuthToken{
		Token:       uuid.NewString(),
		Credentials: agg.Credentials(),
		CreatedAt:   now,
		AccessedAt:  now,
	}
	if err := r.store.SaveToken(ctx, tok); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	r.log.Info("persisted login", "kind", agg.Kind(), "host", agg.ConnectionInfo().Host)
	return tok.Token, nil
}

// Update stores the backend's current credentials under an existing
// token, so refreshed OAuth tokens survive the request.
func (r *Resolver) Update(ctx context.Context, token string, b Backend) error {
	agg := b.Aggregator()
	if token == "" || agg.ConnectionInfo().SelfHosted {
		return nil
	}
	err := r.store.SaveToken(ctx, &model.AuthToken{
		Token:       token,
		Credentials: agg.Credentials(),
		AccessedAt:  r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	return nil
}

// Use resolves the backend for req and runs fn with it. Credentials
// refreshed while fn ran are stored back under req.Token whether or not fn
// succeeded, as the upstream may already have revoked the previous ones.
func (r *Resolver) Use(ctx context.Context, req Request, fn func(Backend) error) error {
	b, err := r.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("resolve backend: %w", err)
	}
	fnErr := fn(b)
	if err := r.Update(ctx, req.Token, b); err != nil {
		r.log.Warn("update token", "error", err)
	}
	return fnErr
}

// Forget deletes a persisted token.
func (r *Resolver) Forget(ctx context.Context, token string) error {
	if err := r.store.DeleteToken(ctx, token); err != nil {
		return fmt.Errorf("forget token: %w", err)
	}
	return nil
}

// Prune deletes tokens idle for longer than the configured TTL.
func (r *Resolver) Prune(ctx context.Context) (int64, error) {
	if r.cfg.TokenTTL <= 0 {
		return 0, nil
	}
	n, err := r.store.DeleteTokensIdleSince(ctx, r.now().Add(-r.cfg.TokenTTL))
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	if n > 0 {
		r.log.Info("pruned idle tokens", "count", n)
	}
	return n, nil
}
