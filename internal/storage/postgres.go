/**
 * PostgreSQL Client for the Prescription Scan Worker
 *
 * Persists scan outcomes and serves the medicine lexicon from the
 * medicines table.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/lexicon"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
)

// Scan statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Schema creates the scan table when it does not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS prescription_scans (
	id                 UUID PRIMARY KEY,
	job_id             TEXT NOT NULL UNIQUE,
	user_id            TEXT NOT NULL DEFAULT 'anonymous',
	filename           TEXT NOT NULL DEFAULT '',
	mime_type          TEXT NOT NULL DEFAULT '',
	image_sha256       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	ocr_engine         TEXT,
	ocr_confidence     NUMERIC(5,4),
	warnings           TEXT[] NOT NULL DEFAULT '{}',
	result             JSONB,
	error_code         TEXT,
	error_message      TEXT,
	processing_time_ms BIGINT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// ScanRecord is one processed (or failed) scan job
type ScanRecord struct {
	ID               string
	JobID            string
	UserID           string
	Filename         string
	MimeType         string
	ImageSHA256      string
	Status           string
	Result           *parser.Result
	ErrorCode        string
	ErrorMessage     string
	ProcessingTimeMs int64
	UpdatedAt        time.Time
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the scan table if needed
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create prescription_scans: %w", err)
	}
	return nil
}

// SaveScan upserts a scan record keyed by job ID
func (p *PostgresClient) SaveScan(ctx context.Context, rec *ScanRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if rec.Status == "" {
		return fmt.Errorf("status is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	var (
		resultJSON []byte
		engine     string
		confidence float64
		warnings   []string
	)
	if rec.Result != nil {
		var err error
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		engine = rec.Result.OCREngine
		confidence = parser.RoundConfidence(rec.Result.OCRConfidence)
		warnings = rec.Result.Warnings
	}
	if warnings == nil {
		warnings = []string{}
	}

	query := `
		INSERT INTO prescription_scans (
			id, job_id, user_id, filename, mime_type, image_sha256,
			status, ocr_engine, ocr_confidence, warnings, result,
			error_code, error_message, processing_time_ms,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, COALESCE(NULLIF($3, ''), 'anonymous'), $4, $5, $6,
			$7, NULLIF($8, ''), $9::NUMERIC(5,4), $10, $11::jsonb,
			NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, 0),
			NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			ocr_engine = EXCLUDED.ocr_engine,
			ocr_confidence = EXCLUDED.ocr_confidence,
			warnings = EXCLUDED.warnings,
			result = COALESCE(EXCLUDED.result, prescription_scans.result),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, prescription_scans.processing_time_ms),
			image_sha256 = EXCLUDED.image_sha256,
			updated_at = NOW()
		RETURNING id
	`

	var resultArg interface{}
	if resultJSON != nil {
		resultArg = string(resultJSON)
	}

	var returnedID string
	err := p.db.QueryRowContext(
		ctx,
		query,
		rec.ID,               // $1
		rec.JobID,            // $2
		rec.UserID,           // $3
		rec.Filename,         // $4
		rec.MimeType,         // $5
		rec.ImageSHA256,      // $6
		rec.Status,           // $7
		engine,               // $8
		confidence,           // $9
		pq.Array(warnings),   // $10
		resultArg,            // $11
		rec.ErrorCode,        // $12
		rec.ErrorMessage,     // $13
		rec.ProcessingTimeMs, // $14
	).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to save scan (job=%s, status=%s, confidence=%.4f): %w",
			rec.JobID, rec.Status, confidence, err)
	}

	rec.ID = returnedID
	return nil
}

// GetScan retrieves a scan record by job ID
func (p *PostgresClient) GetScan(ctx context.Context, jobID string) (*ScanRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT id, job_id, user_id, filename, mime_type, image_sha256, status,
			result, error_code, error_message, processing_time_ms, updated_at
		FROM prescription_scans
		WHERE job_id = $1
	`

	var (
		rec                     ScanRecord
		resultJSON              []byte
		errorCode, errorMessage sql.NullString
		processingTimeMs        sql.NullInt64
	)
	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.JobID, &rec.UserID, &rec.Filename, &rec.MimeType,
		&rec.ImageSHA256, &rec.Status, &resultJSON,
		&errorCode, &errorMessage, &processingTimeMs, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.ProcessingTimeMs = processingTimeMs.Int64
	if len(resultJSON) > 0 {
		var result parser.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
		}
		rec.Result = &result
	}
	return &rec, nil
}

// LoadEntries reads brand and generic names from the medicines table
func (p *PostgresClient) LoadEntries(ctx context.Context) ([]lexicon.Entry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT brand_name, COALESCE(generic_name, '') FROM medicines`)
	if err != nil {
		return nil, fmt.Errorf("failed to query medicines: %w", err)
	}
	defer rows.Close()

	var entries []lexicon.Entry
	for rows.Next() {
		var e lexicon.Entry
		if err := rows.Scan(&e.Brand, &e.Generic); err != nil {
			return nil, fmt.Errorf("failed to scan medicine row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read medicines: %w", err)
	}
	return entries, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
