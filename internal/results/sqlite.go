package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/carnetocr/carnetocr/constants"
)

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (or creates) the database at dbPath and runs migrations.
func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: logger}
	if err = s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			job_id            TEXT PRIMARY KEY,
			status            TEXT NOT NULL,
			raw_text          TEXT NOT NULL DEFAULT '',
			nombre            TEXT NOT NULL DEFAULT '',
			codigo_estudiante TEXT NOT NULL DEFAULT '',
			carrera           TEXT NOT NULL DEFAULT '',
			institucion       TEXT NOT NULL DEFAULT '',
			confidence        TEXT NOT NULL DEFAULT '{}',
			error             TEXT NOT NULL DEFAULT '',
			processed_at      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
	`)
	return err
}

// Put replaces any existing record for the same job id in one statement, so
// readers never observe a partial write.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	confidence, err := json.Marshal(rec.Confidence)
	if err != nil {
		return fmt.Errorf("encode confidence: %w", err)
	}
	processedAt := ""
	if rec.ProcessedAt != nil {
		processedAt = rec.ProcessedAt.UTC().Format(time.RFC3339)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (
			job_id, status, raw_text, nombre, codigo_estudiante,
			carrera, institucion, confidence, error, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, string(rec.Status), rec.RawText, rec.Name, rec.StudentCode,
		rec.Program, rec.Institution, string(confidence), rec.Error, processedAt,
	)
	if err != nil {
		return fmt.Errorf("put result %s: %w", rec.JobID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, status, raw_text, nombre, codigo_estudiante,
		       carrera, institucion, confidence, error, processed_at
		FROM results WHERE job_id = ?`, jobID)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, status, raw_text, nombre, codigo_estudiante,
		       carrera, institucion, confidence, error, processed_at
		FROM results ORDER BY processed_at`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecord(scan func(...any) error) (*Record, error) {
	var rec Record
	var status, confidence, processedAt string
	if err := scan(
		&rec.JobID, &status, &rec.RawText, &rec.Name, &rec.StudentCode,
		&rec.Program, &rec.Institution, &confidence, &rec.Error, &processedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = constants.ResultStatus(status)
	if confidence != "" && confidence != "null" {
		if err := json.Unmarshal([]byte(confidence), &rec.Confidence); err != nil {
			return nil, fmt.Errorf("decode confidence: %w", err)
		}
	}
	if processedAt != "" {
		t, err := time.Parse(time.RFC3339, processedAt)
		if err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		rec.ProcessedAt = &t
	}
	return &rec, nil
}
