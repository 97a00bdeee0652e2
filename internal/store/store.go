// Package store provides the key-value persistence used by the interview engine.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// KV is the get/set-by-key contract the engine depends on. Implementations
// must make a single Get or Set atomic; no multi-key transactions are needed.
type KV interface {
	// Get returns the raw value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Lister is implemented by backends that can enumerate and prune keys.
// Only operator tooling relies on it.
type Lister interface {
	// Keys returns every key with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Prune deletes keys with the prefix not updated within maxAge.
	Prune(ctx context.Context, prefix string, maxAge time.Duration) (int64, error)
}

// GetJSON decodes the value under key into dst. It reports false when the key
// is missing.
func GetJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// Open builds the backend named by kind ("sqlite", "badger" or "memory").
func Open(kind, sqlitePath, badgerDir string) (KV, error) {
	switch kind {
	case "sqlite", "":
		s, err := NewSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		b, err := NewBadger(badgerDir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
