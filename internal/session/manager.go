package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultOutputDir is resolved against the working directory.
const DefaultOutputDir = "generated-images"

var (
	ErrNoCurrentImage = errors.New("no current image in session: pass --input or generate one first")
	ErrInputNotFound  = errors.New("input image not found")
)

// Manager holds the record for the lifetime of one command: it is loaded
// once at start and saved once at the end.
type Manager struct {
	store            *Store
	record           *Record
	defaultOutputDir string
}

func NewManager(store *Store, defaultOutputDir string) *Manager {
	if defaultOutputDir == "" {
		defaultOutputDir = DefaultOutputDir
	}
	return &Manager{
		store:            store,
		defaultOutputDir: defaultOutputDir,
	}
}

// Load reads the session file. The returned error, if any, is a warning:
// the manager still holds a usable empty record.
func (m *Manager) Load() error {
	rec, err := m.store.Load()
	m.record = rec
	return err
}

func (m *Manager) Record() *Record {
	if m.record == nil {
		m.record = NewRecord()
	}
	return m.record
}

func (m *Manager) Store() *Store {
	return m.store
}

// OutputDir picks the directory for new images: an explicit override
// (remembered in the session), then the stored directory, then the default
// (also remembered).
func (m *Manager) OutputDir(override string) (string, error) {
	rec := m.Record()
	switch {
	case override != "":
		dir, err := absPath(override)
		if err != nil {
			return "", err
		}
		rec.SetOutputDir(dir)
		return dir, nil
	case rec.OutputDir != "":
		return rec.OutputDir, nil
	default:
		dir, err := absPath(m.defaultOutputDir)
		if err != nil {
			return "", err
		}
		rec.SetOutputDir(dir)
		return dir, nil
	}
}

// SetOutputDir stores an absolute form of dir.
func (m *Manager) SetOutputDir(dir string) (string, error) {
	abs, err := absPath(dir)
	if err != nil {
		return "", err
	}
	m.Record().SetOutputDir(abs)
	return abs, nil
}

// EditInputs returns the explicit inputs, or the current image when none
// were given. Every path must exist.
func (m *Manager) EditInputs(explicit []string) ([]string, error) {
	inputs := explicit
	if len(inputs) == 0 {
		if m.Record().CurrentImage == "" {
			return nil, ErrNoCurrentImage
		}
		inputs = []string{m.Record().CurrentImage}
	}

	resolved := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p, err := absPath(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, in)
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

func (m *Manager) RecordGeneration(mode, prompt, model string, inputs []string, output string, meta Metadata) Entry {
	return m.Record().RecordGeneration(mode, prompt, model, inputs, output, meta)
}

func (m *Manager) Save() error {
	return m.store.Save(m.Record())
}

// Clear removes the session file and resets the in-memory record.
func (m *Manager) Clear() error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.record = NewRecord()
	return nil
}

func absPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}
