// Package kv is the shared key-value store used to coordinate concurrent webhook deliveries.
//
// Every backend must implement PutIfAbsent atomically at the store level. It is the only
// mutual-exclusion primitive available to deliveries that may run on different instances.
package kv

import (
	"context"
	"fmt"
	"time"
)

const defaultListLimit = 1000

// Store is a TTL-bounded key-value store with an atomic set-if-absent.
type Store interface {
	// Put writes value under key, replacing any previous value. ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	// PutIfAbsent writes value only when key is missing or expired and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Get returns the live value of key.
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	// List returns one page of live keys with the given prefix. Key order is backend-defined
	// and Cursor is opaque.
	List(ctx context.Context, opts ListOptions) (Page, error)
	// Ping checks that the backend answers.
	Ping(ctx context.Context) error
}

// ListOptions selects one page of keys.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// Page is one listing result. Cursor resumes the listing when Complete is false.
type Page struct {
	Keys     []string
	Cursor   string
	Complete bool
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	return o.Limit
}

// ListAll follows cursors until every key with prefix has been listed.
func ListAll(ctx context.Context, store Store, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for {
		page, err := store.List(ctx, ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		keys = append(keys, page.Keys...)
		if page.Complete || page.Cursor == "" {
			return keys, nil
		}
		cursor = page.Cursor
	}
}

// Clear deletes every key with prefix and returns how many were deleted.
func Clear(ctx context.Context, store Store, prefix string) (int, error) {
	deleted := 0
	cursor := ""
	for {
		page, err := store.List(ctx, ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return deleted, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, key := range page.Keys {
			if err := store.Delete(ctx, key); err != nil {
				return deleted, fmt.Errorf("delete %q: %w", key, err)
			}
			deleted++
		}
		if page.Complete || page.Cursor == "" {
			return deleted, nil
		}
		cursor = page.Cursor
	}
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
