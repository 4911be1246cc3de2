package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore is a JSON-file-backed key-value store. The whole map is kept in
// a single file and rewritten atomically on every change. Access is
// serialised across processes by an advisory lock on a sibling ".lock"
// file, so a CLI and a server may share one store.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates a FileStore at the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the file path used by this store.
func (s *FileStore) Path() string {
	return s.path
}

// withLock runs fn holding both the in-process mutex and the file lock.
// Readers take the file lock shared.
func (s *FileStore) withLock(shared bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	acquire := s.lock.Lock
	if shared {
		acquire = s.lock.RLock
	}
	if err := acquire(); err != nil {
		return fmt.Errorf("lock store file: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

// Get returns the value stored under key.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.withLock(true, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		v, ok = values[key]
		return nil
	})
	return v, ok, err
}

// Set stores value under key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	return s.withLock(false, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		values[key] = value
		return s.save(values)
	})
}

// Update runs fn on the current value of key and stores its result while
// holding the store lock.
func (s *FileStore) Update(_ context.Context, key string, fn func(old string, ok bool) (string, error)) error {
	return s.withLock(false, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		old, ok := values[key]
		next, err := fn(old, ok)
		if err != nil {
			return err
		}
		values[key] = next
		return s.save(values)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	return s.withLock(false, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := values[key]; !ok {
			return nil
		}
		delete(values, key)
		return s.save(values)
	})
}

// load reads the JSON file. A missing file is an empty store.
func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal store: %w", err)
	}
	return values, nil
}

// save writes the map through a uniquely named temp file in the same
// directory, then renames it over the store file.
func (s *FileStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename temp store file: %w", err)
	}
	return nil
}
