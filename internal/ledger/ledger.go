// Package ledger keeps a machine-wide log of generations and their estimated
// cost in a sqlite database, independent of any one project's session file.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    project_dir TEXT NOT NULL,
    mode TEXT NOT NULL,
    prompt TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    output_path TEXT NOT NULL,
    cost REAL NOT NULL DEFAULT 0,
    image_count INTEGER NOT NULL DEFAULT 1,
    metadata_json TEXT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_generations_timestamp ON generations(timestamp);
CREATE INDEX IF NOT EXISTS idx_generations_provider ON generations(provider);
CREATE INDEX IF NOT EXISTS idx_generations_project_dir ON generations(project_dir);
`

type Store struct {
	db *sql.DB
}

func NewStore() (*Store, error) {
	dbPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".image-gen", "ledger.db"), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Entry struct {
	ID         string
	ProjectDir string
	Mode       string
	Prompt     string
	Provider   string
	Model      string
	OutputPath string
	Cost       float64
	ImageCount int
	Metadata   map[string]string
	Timestamp  time.Time
}

type Summary struct {
	TotalCost  float64
	ImageCount int
	EntryCount int
}

type ProviderSummary struct {
	Provider   string
	TotalCost  float64
	ImageCount int
}

// Log inserts an entry, filling in id, count and timestamp when unset.
func (s *Store) Log(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ImageCount == 0 {
		e.ImageCount = 1
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	var meta sql.NullString
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, project_dir, mode, prompt, provider, model, output_path, cost, image_count, metadata_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectDir, e.Mode, e.Prompt, e.Provider, e.Model, e.OutputPath,
		e.Cost, e.ImageCount, meta, e.Timestamp.UTC())
	return err
}

// Recent lists the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_dir, mode, prompt, provider, model, output_path, cost, image_count, metadata_json, timestamp
		 FROM generations ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectDir, &e.Mode, &e.Prompt, &e.Provider, &e.Model,
			&e.OutputPath, &e.Cost, &e.ImageCount, &meta, &e.Timestamp); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("entry %s has corrupt metadata: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CostByDateRange(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM generations WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC(), end.UTC())
	return scanSummary(row)
}

func (s *Store) CostByProvider(ctx context.Context) ([]ProviderSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0)
		 FROM generations GROUP BY provider ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ProviderSummary
	for rows.Next() {
		var ps ProviderSummary
		if err := rows.Scan(&ps.Provider, &ps.TotalCost, &ps.ImageCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	return summaries, rows.Err()
}

func (s *Store) TotalCost(ctx context.Context) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM generations`)
	return scanSummary(row)
}

func (s *Store) ProjectCost(ctx context.Context, projectDir string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0), COALESCE(SUM(image_count), 0), COUNT(*)
		 FROM generations WHERE project_dir = ?`,
		projectDir)
	return scanSummary(row)
}

func scanSummary(row *sql.Row) (*Summary, error) {
	var summary Summary
	if err := row.Scan(&summary.TotalCost, &summary.ImageCount, &summary.EntryCount); err != nil {
		return nil, err
	}
	return &summary, nil
}
