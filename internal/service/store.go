package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"giftvault/server/internal/model"
)

// ErrFlushInProgress signals that a concurrent flush already owns the file.
// Callers skip, they do not queue; the periodic sync tick retries later.
var ErrFlushInProgress = errors.New("flush already in progress")

// FileStore persists pool snapshots to a single JSON file. Writes go to a
// temporary file in the same directory followed by an atomic rename, so the
// canonical file is never observed half-written.
type FileStore struct {
	path    string
	syncing atomic.Bool
}

// NewFileStore creates a store for the given snapshot path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the canonical snapshot location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the last persisted snapshot. An absent file is a normal
// first-run state and yields an empty snapshot.
func (s *FileStore) Load() (model.PoolSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolSnapshot{}, nil
		}
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}

	var snap model.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	return snap, nil
}

// Flush writes the full snapshot atomically. A second flush while one is
// in flight returns ErrFlushInProgress.
func (s *FileStore) Flush(snap model.PoolSnapshot) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrFlushInProgress
	}
	defer s.syncing.Store(false)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cards-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Syncing reports whether a flush is currently in flight.
func (s *FileStore) Syncing() bool {
	return s.syncing.Load()
}

// FlushRegistry persists the registry if dirty. A failed flush leaves the
// dirty state set so the next tick retries; mutations racing the flush keep
// the registry dirty because only the captured generation is acknowledged.
func FlushRegistry(reg *Registry, store *FileStore) error {
	if !reg.Dirty() {
		return nil
	}
	gen := reg.Generation()
	if err := store.Flush(reg.Snapshot()); err != nil {
		if errors.Is(err, ErrFlushInProgress) {
			log.Debug().Msg("Flush skipped, sync already running")
			return nil
		}
		return err
	}
	reg.AckFlushed(gen)
	return nil
}
