package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carnetocr/carnetocr/constants"
)

// PostgresStore is a pgx-backed implementation of Store for deployments that
// share results across hosts.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres creates a pgx pool, verifies connectivity and runs migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "carnet-ocr"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool, log: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("results.postgres.connected")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS results (
			job_id            TEXT PRIMARY KEY,
			status            TEXT NOT NULL,
			raw_text          TEXT NOT NULL DEFAULT '',
			nombre            TEXT NOT NULL DEFAULT '',
			codigo_estudiante TEXT NOT NULL DEFAULT '',
			carrera           TEXT NOT NULL DEFAULT '',
			institucion       TEXT NOT NULL DEFAULT '',
			confidence        JSONB NOT NULL DEFAULT '{}',
			error             TEXT NOT NULL DEFAULT '',
			processed_at      TIMESTAMPTZ
		)`)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	confidence, err := json.Marshal(rec.Confidence)
	if err != nil {
		return fmt.Errorf("encode confidence: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO results (
			job_id, status, raw_text, nombre, codigo_estudiante,
			carrera, institucion, confidence, error, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			raw_text = EXCLUDED.raw_text,
			nombre = EXCLUDED.nombre,
			codigo_estudiante = EXCLUDED.codigo_estudiante,
			carrera = EXCLUDED.carrera,
			institucion = EXCLUDED.institucion,
			confidence = EXCLUDED.confidence,
			error = EXCLUDED.error,
			processed_at = EXCLUDED.processed_at`,
		rec.JobID, string(rec.Status), rec.RawText, rec.Name, rec.StudentCode,
		rec.Program, rec.Institution, confidence, rec.Error, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("put result %s: %w", rec.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT job_id, status, raw_text, nombre, codigo_estudiante,
		       carrera, institucion, confidence, error, processed_at
		FROM results WHERE job_id = $1`, jobID)
	rec, err := scanPgRecord(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, status, raw_text, nombre, codigo_estudiante,
		       carrera, institucion, confidence, error, processed_at
		FROM results ORDER BY processed_at`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPgRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgRecord(scan func(...any) error) (*Record, error) {
	var rec Record
	var status string
	var confidence []byte
	var processedAt *time.Time
	if err := scan(
		&rec.JobID, &status, &rec.RawText, &rec.Name, &rec.StudentCode,
		&rec.Program, &rec.Institution, &confidence, &rec.Error, &processedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = constants.ResultStatus(status)
	if len(confidence) > 0 && string(confidence) != "null" {
		if err := json.Unmarshal(confidence, &rec.Confidence); err != nil {
			return nil, fmt.Errorf("decode confidence: %w", err)
		}
	}
	rec.ProcessedAt = processedAt
	return &rec, nil
}
