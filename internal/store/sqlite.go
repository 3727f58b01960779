// Package store journals sync runs in SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

var (
	// ErrNotFound is returned when no run matches an id
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned when an id prefix matches several runs
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Status is the outcome of a run
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusAborted Status = "aborted"
	StatusFailed  Status = "failed"
)

// Counters are the per-run totals recorded when a run finishes
type Counters struct {
	Uploaded        int `json:"uploaded"`
	Reused          int `json:"reused"`
	Failed          int `json:"failed"`
	SkippedFailed   int `json:"skippedFailed"`
	Pruned          int `json:"pruned"`
	PruneDropped    int `json:"pruneDropped"`
	PruneFailed     int `json:"pruneFailed"`
	LayoutHits      int `json:"layoutHits"`
	LayoutMisses    int `json:"layoutMisses"`
	NarrativeHits   int `json:"narrativeHits"`
	NarrativeMisses int `json:"narrativeMisses"`
	GenerativeCalls int `json:"generativeCalls"`
	Fallbacks       int `json:"fallbacks"`
}

// Run is one journal row
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     Status     `json:"status"`
	LastFetch  string     `json:"lastFetch,omitempty"`
	Error      string     `json:"error,omitempty"`
	Counters   Counters   `json:"counters"`
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New opens the journal at dbPath, creating the file and schema if needed
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a run and returns it
func (s *Store) BeginRun(lastFetch string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
		LastFetch: lastFetch,
	}

	_, err := s.db.Exec(
		"INSERT INTO runs (id, started_at, status, last_fetch) VALUES (?, ?, ?, ?)",
		run.ID, run.StartedAt, run.Status, run.LastFetch,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome and counters of a run
func (s *Store) FinishRun(id string, status Status, c Counters, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	res, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?, status = ?, error = ?,
			uploaded = ?, reused = ?, failed = ?, skipped_failed = ?,
			pruned = ?, prune_dropped = ?, prune_failed = ?,
			layout_hits = ?, layout_misses = ?, narrative_hits = ?, narrative_misses = ?,
			generative_calls = ?, fallbacks = ?
		WHERE id = ?`,
		time.Now().UTC(), status, msg,
		c.Uploaded, c.Reused, c.Failed, c.SkippedFailed,
		c.Pruned, c.PruneDropped, c.PruneFailed,
		c.LayoutHits, c.LayoutMisses, c.NarrativeHits, c.NarrativeMisses,
		c.GenerativeCalls, c.Fallbacks,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, last_fetch, error,
	uploaded, reused, failed, skipped_failed, pruned, prune_dropped, prune_failed,
	layout_hits, layout_misses, narrative_hits, narrative_misses, generative_calls, fallbacks`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var finished sql.NullTime
	c := &r.Counters
	err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.LastFetch, &r.Error,
		&c.Uploaded, &c.Reused, &c.Failed, &c.SkippedFailed, &c.Pruned, &c.PruneDropped, &c.PruneFailed,
		&c.LayoutHits, &c.LayoutMisses, &c.NarrativeHits, &c.NarrativeMisses, &c.GenerativeCalls, &c.Fallbacks)
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}

// GetRun retrieves a run by id or unambiguous id prefix
func (s *Store) GetRun(idPrefix string) (*Run, error) {
	if idPrefix == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs WHERE id LIKE ? || '%' ORDER BY started_at DESC LIMIT 2",
		idPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("run id %q: %w", idPrefix, ErrAmbiguous)
	}
}
