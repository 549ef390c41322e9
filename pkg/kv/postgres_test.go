package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/pkg/config"
)

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakePgx struct {
	row       fakeRow
	lastQuery string
}

func (f *fakePgx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.lastQuery = sql
	return pgconn.CommandTag{}, nil
}

func (f *fakePgx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.lastQuery = sql
	return f.row
}

func (f *fakePgx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePgx) Ping(context.Context) error {
	return nil
}

func TestNewPostgresStoreRejectsBadTable(t *testing.T) {
	_, err := NewPostgresStore(&fakePgx{}, "kv; DROP TABLE users")
	require.Error(t, err)
}

func TestPostgresPutIfAbsent(t *testing.T) {
	db := &fakePgx{row: fakeRow{value: "k"}}
	store, err := NewPostgresStore(db, "")
	require.NoError(t, err)

	claimed, err := store.PutIfAbsent(context.Background(), "k", "v", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Contains(t, db.lastQuery, `"mediarelay_kv"`)

	db.row = fakeRow{err: pgx.ErrNoRows}
	claimed, err = store.PutIfAbsent(context.Background(), "k", "v", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestPostgresGetMissing(t *testing.T) {
	store, err := NewPostgresStore(&fakePgx{row: fakeRow{err: pgx.ErrNoRows}}, "relay_kv")
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, closeFn, err := Open(context.Background(), storeConfig("redis"))
	require.Error(t, err)
	require.NotNil(t, closeFn)
}

func storeConfig(backend string) config.StoreConfig {
	return config.StoreConfig{Backend: backend, TTLSeconds: 60}
}
