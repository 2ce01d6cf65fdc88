// Package filestore persists incidents as a single JSON array on disk.
//
// Every change reads the whole file, mutates it in memory and writes it back
// through a temporary file that is renamed over the original, so readers never
// observe a partial write.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/linnemanlabs/beacon/internal/incident"
)

// Store is a file-backed incident.Store. A single lock guards the whole file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path. The file is created on first write.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create incidents dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string { return s.path }

// Apply runs one load-mutate-save cycle under the store lock.
func (s *Store) Apply(ctx context.Context, monitor string, fn incident.MutateFunc) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list, err := s.load()
	if err != nil {
		return nil, err
	}

	list, saved, changed := incident.ApplyToList(list, monitor, fn)
	if !changed {
		return nil, nil
	}

	if err := s.save(list); err != nil {
		return nil, err
	}
	return saved, nil
}

// List returns every incident in file order.
func (s *Store) List(_ context.Context) ([]incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get retrieves an incident by ID.
func (s *Store) Get(_ context.Context, id int64) (*incident.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, false, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], true, nil
		}
	}
	return nil, false, nil
}

// load reads the full incident list. A missing or empty file is an empty list.
func (s *Store) load() ([]incident.Incident, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read incidents: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var list []incident.Incident
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode incidents %s: %w", s.path, err)
	}
	return list, nil
}

// save rewrites the full list via temp file + rename.
func (s *Store) save(list []incident.Incident) error {
	if list == nil {
		list = []incident.Incident{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode incidents: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename incidents file: %w", err)
	}
	return nil
}
