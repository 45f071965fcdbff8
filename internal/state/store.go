// Package state persists the per-line reconciliation state as a JSON file.
// Reads fail open: a missing or corrupt file degrades to the empty state,
// so the worst case after data loss is one round of re-notification.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"linewatch/internal/domain"
)

// Store owns the persisted state file for one monitored line.
type Store struct {
	Path   string
	Logger *log.Logger
}

// New returns a store rooted in the workspace, keyed by line id.
func New(workspace, lineID string) *Store {
	if workspace == "" {
		workspace = "."
	}
	return &Store{Path: filepath.Join(workspace, ".linewatch", "state-"+lineID+".json")}
}

func (s *Store) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Load reads the last persisted state. A missing file is not an error:
// it returns the empty state, which makes everything currently reported
// classify as new on the next reconciliation. A corrupt file is treated
// the same way, logged rather than fatal.
func (s *Store) Load() domain.PersistedState {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger().Printf("state: read %s: %v (starting from empty state)", s.Path, err)
		}
		return domain.PersistedState{}
	}
	var st domain.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger().Printf("state: corrupt %s: %v (starting from empty state)", s.Path, err)
		return domain.PersistedState{}
	}
	return st
}

// Save writes the state atomically: marshal to a temp file in the same
// directory, then rename over the target, so a crash mid-write never
// leaves a truncated file behind.
func (s *Store) Save(st domain.PersistedState) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// Lock takes the single-writer guard for one cycle. If the host schedule
// ever overlaps ticks, the second cycle fails here instead of racing a
// lost update. The returned release func removes the lock file.
func (s *Store) Lock() (release func(), err error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lockPath := s.Path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("state: %s held by another cycle", lockPath)
		}
		return nil, err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}
