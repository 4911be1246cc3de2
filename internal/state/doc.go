// Package state provides the key-value stores that back client-local
// counters: a JSON file, a SQLite table and an in-memory map.
package state

import (
	"context"
	"fmt"

	"github.com/user/tickerchat/internal/types"
)

// Compile-time interface compliance checks.
var _ types.KVStore = (*FileStore)(nil)
var _ types.Updater = (*FileStore)(nil)
var _ types.KVStore = (*SQLiteStore)(nil)
var _ types.Updater = (*SQLiteStore)(nil)
var _ types.KVStore = (*MemoryStore)(nil)
var _ types.Updater = (*MemoryStore)(nil)

// Store is the full capability set shared by the concrete stores.
type Store interface {
	types.KVStore
	types.Updater
	Delete(ctx context.Context, key string) error
}

// Open returns the store named by kind ("file", "sqlite" or "memory") rooted
// at path. The returned close function is always non-nil.
func Open(kind, path string) (Store, func() error, error) {
	switch kind {
	case "", "file":
		return NewFileStore(path), func() error { return nil }, nil
	case "sqlite":
		s, err := OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind: %s", kind)
	}
}
