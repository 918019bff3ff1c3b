// Package storage persists login tokens so a user's aggregator can be
// rebuilt on later requests. SQLite and PostgreSQL are supported.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"feedgrid/internal/model"
)

// ErrNotFound is returned when a token does not exist.
var ErrNotFound = errors.New("token not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// SaveToken inserts or replaces a token.
	SaveToken(ctx context.Context, tok *model.AuthToken) error
	GetToken(ctx context.Context, token string) (*model.AuthToken, error)
	// TouchToken records that a token was used at the given time.
	TouchToken(ctx context.Context, token string, at time.Time) error
	DeleteToken(ctx context.Context, token string) error
	// DeleteTokensIdleSince removes tokens not used since before and
	// returns how many were removed.
	DeleteTokensIdleSince(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs
// open PostgreSQL, anything else is a SQLite path.
func Open(dsn string) (*DB, error) {
	if IsPostgres(dsn) {
		return NewPostgres(dsn)
	}
	return NewSQLite(dsn)
}

// IsPostgres reports whether dsn addresses a PostgreSQL server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
