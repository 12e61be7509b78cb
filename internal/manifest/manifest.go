package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// File statuses recorded per run.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Store persists per-run, per-file extraction outcomes. It backs the
// run summary command and lets a re-run skip files whose content hash
// already produced records.
type Store struct {
	db *sql.DB
}

// RunSummary is one completed run's aggregate outcome.
type RunSummary struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	FilesTotal  int
	FilesFailed int
	Records     int
}

// Open opens (creating if necessary) the manifest database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		files_total  INTEGER NOT NULL DEFAULT 0,
		files_failed INTEGER NOT NULL DEFAULT 0,
		records      INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS files (
		run_id     TEXT NOT NULL REFERENCES runs(id),
		path       TEXT NOT NULL,
		checksum   TEXT NOT NULL,
		status     TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		error_msg  TEXT NOT NULL DEFAULT '',
		records    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate manifest schema: %w", err)
	}
	return nil
}

// BeginRun registers a new run.
func (s *Store) BeginRun(id string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, startedAt)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// RecordFile stores one file's outcome for a run.
func (s *Store) RecordFile(runID, path, checksum, status, errorKind, errorMsg string, records int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO files (run_id, path, checksum, status, error_kind, error_msg, records)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, path, checksum, status, errorKind, errorMsg, records)
	if err != nil {
		return fmt.Errorf("failed to record file outcome: %w", err)
	}
	return nil
}

// FinishRun closes out a run with its aggregate counters.
func (s *Store) FinishRun(runID string, finishedAt time.Time, filesTotal, filesFailed, records int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, files_total = ?, files_failed = ?, records = ? WHERE id = ?`,
		finishedAt, filesTotal, filesFailed, records, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// SucceededChecksums returns the most recent successful checksum per
// file path. A re-run can skip any file whose current hash matches.
func (s *Store) SucceededChecksums() (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT path, checksum FROM files
		 WHERE status = ? AND rowid IN (
			SELECT MAX(rowid) FROM files WHERE status = ? GROUP BY path
		 )`, StatusOK, StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to query checksums: %w", err)
	}
	defer rows.Close()

	checksums := make(map[string]string)
	for rows.Next() {
		var path, checksum string
		if err := rows.Scan(&path, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan checksum row: %w", err)
		}
		checksums[path] = checksum
	}
	return checksums, rows.Err()
}

// LastRun returns the most recently started run, or nil when the
// manifest is empty.
func (s *Store) LastRun() (*RunSummary, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, finished_at, files_total, files_failed, records
		 FROM runs ORDER BY started_at DESC LIMIT 1`)

	var run RunSummary
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.FilesTotal, &run.FilesFailed, &run.Records)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	// An unfinished (crashed or in-flight) run reports zero duration.
	run.FinishedAt = run.StartedAt
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// ErrorCounts aggregates error kinds for one run.
func (s *Store) ErrorCounts(runID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT error_kind, COUNT(*) FROM files
		 WHERE run_id = ? AND error_kind != '' GROUP BY error_kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query error counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan error count row: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
