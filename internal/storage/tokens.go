package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedgrid/internal/model"
)

const timeLayout = "2006-01-02T15:04:05Z"

var _ Storage = (*DB)(nil)

// DB implements Storage over database/sql. Queries are written with ?
// placeholders and rewritten by bind for the target dialect.
type DB struct {
	db   *sql.DB
	bind func(string) string
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// SaveToken inserts a token or replaces the one with the same value.
func (s *DB) SaveToken(ctx context.Context, tok *model.AuthToken) error {
	creds, err := json.Marshal(tok.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	now := time.Now().UTC()
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now
	}
	if tok.AccessedAt.IsZero() {
		tok.AccessedAt = now
	}

	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO auth_tokens (token, kind, credentials, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET
		   kind = excluded.kind,
		   credentials = excluded.credentials,
		   accessed_at = excluded.accessed_at`),
		tok.Token, string(tok.Credentials.Kind), string(creds),
		tok.CreatedAt.UTC().Format(timeLayout), tok.AccessedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken returns a token by value.
func (s *DB) GetToken(ctx context.Context, token string) (*model.AuthToken, error) {
	row := s.db.QueryRowContext(ctx, s.bind(
		`SELECT token, credentials, created_at, accessed_at FROM auth_tokens WHERE token = ?`), token,
	)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// TouchToken updates the last access time of a token.
func (s *DB) TouchToken(ctx context.Context, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE auth_tokens SET accessed_at = ? WHERE token = ?`),
		at.UTC().Format(timeLayout), token,
	)
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteToken removes a token. Deleting a missing token is not an error.
func (s *DB) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM auth_tokens WHERE token = ?`), token)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// DeleteTokensIdleSince removes tokens last used before the given time.
func (s *DB) DeleteTokensIdleSince(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.bind(
		`DELETE FROM auth_tokens WHERE accessed_at < ?`), before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("delete idle tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanToken(row scannable) (*model.AuthToken, error) {
	var tok model.AuthToken
	var creds, created, accessed string
	if err := row.Scan(&tok.Token, &creds, &created, &accessed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	if err := json.Unmarshal([]byte(creds), &tok.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	tok.CreatedAt, _ = time.Parse(timeLayout, created)
	tok.AccessedAt, _ = time.Parse(timeLayout, accessed)
	return &tok, nil
}
