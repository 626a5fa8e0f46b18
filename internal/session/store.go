package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manash/image-gen/internal/apperr"
)

// DefaultFileName is created in the working directory of each project.
const DefaultFileName = ".image-gen-session.json"

var ErrCorrupt = errors.New("session file is corrupt")

type Store struct {
	path string
}

func NewStoreWithPath(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load always returns a usable record. A missing file yields the empty
// record and no error; an unreadable or corrupt file yields the empty record
// and a KindSessionState error the caller is expected to report as a warning.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRecord(), nil
	}
	if err != nil {
		return NewRecord(), apperr.New(apperr.KindSessionState, "load session", err)
	}

	rec := NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return NewRecord(), apperr.New(apperr.KindSessionState, "load session",
			fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err))
	}
	if rec.History == nil {
		rec.History = []Entry{}
	}
	return rec, nil
}

// Save writes the record to a temp file in the same directory and renames
// it over the session file, so readers never observe a partial write.
func (s *Store) Save(rec *Record) error {
	if rec.History == nil {
		rec.History = []Entry{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set session permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear deletes the session file. Clearing an absent session is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
