// Package store provides SQLite persistence for Callsight's run history.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguousID is returned when an ID prefix matches more than one run.
var ErrAmbiguousID = errors.New("run id prefix is ambiguous")

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Run is one completed analysis run's history row.
type Run struct {
	ID              string
	Created         time.Time
	Source          string // "file", "text", "sample"
	IsSample        bool
	Duration        time.Duration
	TranscriptChars int
	EvidenceCount   int
	WhysComplete    int // sections with real content, out of 3
	MEDDICComplete  int // sections with real content, out of 6
	StageReadiness  string
	HasDealReview   bool
	ResultJSON      string // merged result exactly as assembled
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		is_sample INTEGER DEFAULT 0,
		duration_ms INTEGER NOT NULL,
		transcript_chars INTEGER NOT NULL,
		evidence_count INTEGER NOT NULL,
		whys_complete INTEGER NOT NULL,
		meddic_complete INTEGER NOT NULL,
		stage_readiness TEXT,
		has_deal_review INTEGER DEFAULT 0,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun stores one run.
// Thread-safe: acquires write lock.
func (s *Store) SaveRun(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (
			id, created_at, source, is_sample, duration_ms, transcript_chars,
			evidence_count, whys_complete, meddic_complete, stage_readiness,
			has_deal_review, result_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Created,
		run.Source,
		boolToInt(run.IsSample),
		run.Duration.Milliseconds(),
		run.TranscriptChars,
		run.EvidenceCount,
		run.WhysComplete,
		run.MEDDICComplete,
		run.StageReadiness,
		boolToInt(run.HasDealReview),
		run.ResultJSON,
	)
	return err
}

// ListRuns retrieves the most recent runs, newest first.
// Thread-safe: acquires read lock.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, created_at, source, is_sample, duration_ms, transcript_chars,
			evidence_count, whys_complete, meddic_complete, stage_readiness,
			has_deal_review, result_json
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`

	return s.queryRuns(query, limit)
}

// GetRun retrieves one run by ID. A unique ID prefix works too, so CLI
// users can pass the first few characters shown in the history list.
// Thread-safe: acquires read lock.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, created_at, source, is_sample, duration_ms, transcript_chars,
			evidence_count, whys_complete, meddic_complete, stage_readiness,
			has_deal_review, result_json
		FROM runs
		WHERE id = ? OR id LIKE ? || '%'
		ORDER BY created_at DESC
		LIMIT 2
	`

	runs, err := s.queryRuns(query, id, id)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &runs[0], nil
	default:
		return nil, ErrAmbiguousID
	}
}

// AttachReview records a deal review onto an existing run, replacing the
// stored result with the enriched version.
// Thread-safe: acquires write lock.
func (s *Store) AttachReview(id, stageReadiness, resultJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE runs
		SET has_deal_review = 1, stage_readiness = ?, result_json = ?
		WHERE id = ?
	`, stageReadiness, resultJSON, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// queryRuns is a helper that executes a query and scans results into Runs.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var isSampleInt, hasReviewInt int
		var durationMs int64
		err := rows.Scan(
			&run.ID,
			&run.Created,
			&run.Source,
			&isSampleInt,
			&durationMs,
			&run.TranscriptChars,
			&run.EvidenceCount,
			&run.WhysComplete,
			&run.MEDDICComplete,
			&run.StageReadiness,
			&hasReviewInt,
			&run.ResultJSON,
		)
		if err != nil {
			return nil, err
		}
		run.IsSample = isSampleInt != 0
		run.HasDealReview = hasReviewInt != 0
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	// Critical: check for errors from row iteration
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
