package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultPostgresTable = "mediarelay_kv"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PgxAPI is the subset of pgxpool.Pool used by PostgresStore.
type PgxAPI interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on one PostgreSQL table.
//
// PutIfAbsent relies on INSERT ... ON CONFLICT, which serializes writers on the primary key.
type PostgresStore struct {
	db    PgxAPI
	table string
	now   func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on table, using the default table name when empty.
func NewPostgresStore(db PgxAPI, table string) (*PostgresStore, error) {
	if table == "" {
		table = defaultPostgresTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid postgres table name %q", table)
	}

	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		now:   time.Now,
	}, nil
}

// EnsureSchema creates the coordination table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) expiresAt(ttl time.Duration) *time.Time {
	at := expiry(s.now(), ttl)
	if at.IsZero() {
		return nil
	}
	at = at.UTC()
	return &at
}

func (s *PostgresStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, s.table)
	if _, err := s.db.Exec(ctx, query, key, value, s.expiresAt(ttl)); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %[1]s (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE %[1]s.expires_at IS NOT NULL AND %[1]s.expires_at <= $4
RETURNING key`, s.table)

	var claimed string
	err := s.db.QueryRow(ctx, query, key, value, s.expiresAt(ttl), s.now().UTC()).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert if absent %s: %w", key, err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`, s.table)

	var value string
	err := s.db.QueryRow(ctx, query, key, s.now().UTC()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) (Page, error) {
	limit := opts.limit()
	query := fmt.Sprintf(`SELECT key FROM %s
WHERE starts_with(key, $1) AND key > $2 AND (expires_at IS NULL OR expires_at > $3)
ORDER BY key LIMIT $4`, s.table)

	rows, err := s.db.Query(ctx, query, opts.Prefix, opts.Cursor, s.now().UTC(), limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("list prefix=%s: %w", opts.Prefix, err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Page{}, fmt.Errorf("scan keys prefix=%s: %w", opts.Prefix, err)
	}

	if len(keys) <= limit {
		return Page{Keys: keys, Complete: true}, nil
	}

	keys = keys[:limit]
	return Page{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
