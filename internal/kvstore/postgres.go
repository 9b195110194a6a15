package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Postgres is a Store backed by a single session_kv table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres-backed store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_kv table: %w", err)
	}
	return nil
}

// Get returns the value for key.
func (p *Postgres) Get(ctx context.Context, key string) (string, bool) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM session_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Err(err).Str("key", key).Msg("session store read failed")
		}
		return "", false
	}
	return value, true
}

// Set upserts value under key. Backend errors are logged and reported as
// false.
func (p *Postgres) Set(ctx context.Context, key, value string) bool {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("session store write failed")
		return false
	}
	return true
}

// Delete removes key.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM session_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// List returns keys with the given prefix in sorted order.
func (p *Postgres) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeLike(prefix) + "%"
	rows, err := p.pool.Query(ctx,
		`SELECT key FROM session_kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
