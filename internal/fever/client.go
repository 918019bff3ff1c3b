// Package fever implements the Fever API backend.
//
// Fever offers no server side filtering or descending order, and its
// since_id cursor is exclusive. Listing, counting and bulk marking are
// therefore synthesized client side by walking the unread id snapshot in
// ascending batches.
package fever

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the Fever protocol mandates md5 api keys
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseSize = 10 * 1024 * 1024

// APIKey computes the Fever api_key for a user.
func APIKey(username, password string) string {
	sum := md5.Sum([]byte(username + ":" + password)) //nolint:gosec // protocol requirement
	return hex.EncodeToString(sum[:])
}

type client struct {
	http     HTTPClient
	endpoint string
	apiKey   string
	timeout  time.Duration
	log      *slog.Logger
}

// call posts the api key to endpoint+path and decodes the JSON response
// into out. Every Fever response carries an auth flag; a missing or
// rejected flag is reported as aggregator.ErrAuth.
func (c *client) call(ctx context.Context, path string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	form := url.Values{"api_key": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "feedgrid/1.0")

	c.log.Debug("fever call", "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return &aggregator.UpstreamError{Backend: model.KindFever, Op: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &aggregator.UpstreamError{
			Backend:    model.KindFever,
			Op:         path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &aggregator.UpstreamError{Backend: model.KindFever, Op: path, Err: fmt.Errorf("read body: %w", err)}
	}

	var env struct {
		Auth *flexInt `json:"auth"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if env.Auth == nil || *env.Auth != 1 {
		return aggregator.ErrAuth
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// flexInt decodes ids that some Fever servers send as numbers and others
// as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parse fever id %q: %w", data, err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("parse fever id %q: %w", data, err)
	}
	*f = flexInt(v)
	return nil
}
