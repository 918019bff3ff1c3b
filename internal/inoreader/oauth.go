package inoreader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"feedgrid/internal/model"
)

// Endpoint is the Inoreader OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://www.inoreader.com/oauth2/auth",
	TokenURL: "https://www.inoreader.com/oauth2/token",
}

// OAuth drives the authorization code flow for one registered app.
type OAuth struct {
	cfg *oauth2.Config
}

// NewOAuth configures the flow. Users are sent back to
// baseURL + "/oauth/redirect" after granting access.
func NewOAuth(appID, appKey, baseURL string, endpoint oauth2.Endpoint) *OAuth {
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     appID,
		ClientSecret: appKey,
		Endpoint:     endpoint,
		RedirectURL:  strings.TrimRight(baseURL, "/") + "/oauth/redirect",
		Scopes:       []string{"read", "write"},
	}}
}

// AuthCodeURL returns the consent page URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for credentials.
func (o *OAuth) Exchange(ctx context.Context, code string) (model.Credentials, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("exchange code: %w", err)
	}
	return tokenCredentials(tok), nil
}

// client returns an HTTP client that authenticates with creds and
// refreshes the access token when it expires. Refreshed tokens are
// recorded so Credentials reflects them.
func (o *OAuth) client(base *http.Client, creds model.Credentials) (*http.Client, *recordingSource) {
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := &recordingSource{src: o.cfg.TokenSource(ctx, tok), last: tok}
	return oauth2.NewClient(ctx, src), src
}

type recordingSource struct {
	src  oauth2.TokenSource
	mu   sync.Mutex
	last *oauth2.Token
}

func (s *recordingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = tok
	s.mu.Unlock()
	return tok, nil
}

func (s *recordingSource) current() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func tokenCredentials(tok *oauth2.Token) model.Credentials {
	return model.Credentials{
		Kind:         model.KindInoreader,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
