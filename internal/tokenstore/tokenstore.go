// Package tokenstore persists an audit record of issued invite tokens
// under the per-service data directory. Token values are never stored
// in the clear; only a bcrypt hash is kept, enough to later confirm
// whether a presented token was issued here.
package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

// IssuedToken is one audit record.
type IssuedToken struct {
	ID          string
	ServiceID   string
	UserID      string
	UsesAllowed int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// ErrNotFound is returned by Verify when no record matches the id.
var ErrNotFound = errors.New("tokenstore: no such token")

// Store manages invite-token persistence.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the token database inside dataDir. The
// directory is created if missing.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "tokens.db"))
	if err != nil {
		return nil, fmt.Errorf("open token database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tokens: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS invite_tokens (
			id TEXT PRIMARY KEY,
			service_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			token_hash BLOB NOT NULL,
			uses_allowed INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invite_tokens_user
			ON invite_tokens(service_id, user_id);
	`)
	return err
}

// Record stores an audit entry for token, hashing the token value
// before it touches disk.
func (s *Store) Record(ctx context.Context, rec IssuedToken, token string) error {
	if rec.ID == "" {
		return fmt.Errorf("tokenstore: record needs an id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invite_tokens (id, service_id, user_id, token_hash, uses_allowed, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ServiceID, rec.UserID, hash, rec.UsesAllowed,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// Verify reports whether token matches the stored hash for id. It
// returns ErrNotFound when no record exists, and false (with nil
// error) on a hash mismatch or an expired record.
func (s *Store) Verify(ctx context.Context, id, token string) (bool, error) {
	var hash []byte
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT token_hash, expires_at FROM invite_tokens WHERE id = ?`, id).
		Scan(&hash, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query token record: %w", err)
	}

	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil, nil
}

// ListForUser returns all audit records for a user on a service, newest
// first.
func (s *Store) ListForUser(ctx context.Context, serviceID, userID string) ([]IssuedToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, user_id, uses_allowed, created_at, expires_at
		FROM invite_tokens
		WHERE service_id = ? AND user_id = ?
		ORDER BY created_at DESC`, serviceID, userID)
	if err != nil {
		return nil, fmt.Errorf("query token records: %w", err)
	}
	defer rows.Close()

	var out []IssuedToken
	for rows.Next() {
		var rec IssuedToken
		if err := rows.Scan(&rec.ID, &rec.ServiceID, &rec.UserID,
			&rec.UsesAllowed, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan token record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
