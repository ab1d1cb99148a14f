/**
 * PostgreSQL store for transcript records and job tracking
 *
 * Persists the canonical transcript record as JSONB alongside the
 * queryable columns review tooling filters on, and tracks job status
 * transitions for the queue consumer.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/landreg/transcript-worker/internal/payload"
)

// Job statuses persisted for queue consumers.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// PostgresStore handles database operations.
type PostgresStore struct {
	db *sql.DB
}

// JobUpdate is one job status transition.
type JobUpdate struct {
	JobID            string
	Status           string
	Confidence       float64
	ProcessingTimeMs int64
	DocumentID       string
	EngineUsed       string
	ErrorCode        string
	ErrorMessage     string
}

// TranscriptRow is the stored record plus its queryable columns.
type TranscriptRow struct {
	DocumentID     string
	PropertyID     string
	SourceFile     string
	RegisterOffice string
	Confidence     float64
	ReviewStatus   string
	Record         *payload.TranscriptPayload
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// sanitizeConfidence rounds to 4 decimal places and clamps to [0, 1] so
// float noise like 0.9632000000000001 never reaches the NUMERIC column.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresStore connects and verifies the database.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// UpdateJobStatus upserts one job transition. The worker may see a job
// before the API created its row, so the first transition creates it.
func (p *PostgresStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	query := `
		INSERT INTO landreg.processing_jobs (
			id, status, confidence, processing_time_ms, document_id,
			engine_used, error_code, error_message, created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3::NUMERIC(5,4), 0), NULLIF($4, 0),
			CASE WHEN $5 = '' THEN NULL ELSE $5::uuid END,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = COALESCE(NULLIF(EXCLUDED.confidence::NUMERIC(5,4), 0), landreg.processing_jobs.confidence),
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), landreg.processing_jobs.processing_time_ms),
			document_id = COALESCE(EXCLUDED.document_id, landreg.processing_jobs.document_id),
			engine_used = COALESCE(NULLIF(EXCLUDED.engine_used, ''), landreg.processing_jobs.engine_used),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err := p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.Status,
		sanitizeConfidence(update.Confidence),
		update.ProcessingTimeMs,
		update.DocumentID,
		update.EngineUsed,
		update.ErrorCode,
		update.ErrorMessage,
	).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// StoreTranscript persists one sealed record. Reprocessing the same
// document id replaces the stored record and resets review to pending.
func (p *PostgresStore) StoreTranscript(ctx context.Context, record *payload.TranscriptPayload) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if !record.VerifyChecksum() {
		return fmt.Errorf("record checksum does not match content")
	}

	recordJSON, err := record.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO landreg.transcripts (
			document_id, property_id, source_file, register_office,
			confidence, review_status, record, created_at, updated_at
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5::NUMERIC(5,4), $6, $7::jsonb, NOW(), NOW())
		ON CONFLICT (document_id) DO UPDATE SET
			property_id = EXCLUDED.property_id,
			source_file = EXCLUDED.source_file,
			register_office = EXCLUDED.register_office,
			confidence = EXCLUDED.confidence,
			review_status = EXCLUDED.review_status,
			record = EXCLUDED.record,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(
		ctx,
		query,
		record.Metadata.DocumentID,
		record.Metadata.PropertyID,
		record.Metadata.SourceFile,
		record.RegisterOffice,
		sanitizeConfidence(record.Metadata.OCREngine.Confidence),
		record.Audit.ReviewStatus,
		recordJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store transcript (document=%s): %w",
			record.Metadata.DocumentID, err)
	}

	return nil
}

// GetTranscript loads one stored record by document id.
func (p *PostgresStore) GetTranscript(ctx context.Context, documentID string) (*TranscriptRow, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	query := `
		SELECT document_id, property_id, source_file, register_office,
			confidence, review_status, record, created_at, updated_at
		FROM landreg.transcripts
		WHERE document_id = $1::uuid
	`

	var row TranscriptRow
	var registerOffice sql.NullString
	var confidence sql.NullFloat64
	var recordJSON []byte

	err := p.db.QueryRowContext(ctx, query, documentID).Scan(
		&row.DocumentID, &row.PropertyID, &row.SourceFile, &registerOffice,
		&confidence, &row.ReviewStatus, &recordJSON, &row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transcript not found: %s", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	row.RegisterOffice = registerOffice.String
	row.Confidence = confidence.Float64

	record, err := payload.Unmarshal(recordJSON)
	if err != nil {
		return nil, fmt.Errorf("stored transcript %s is corrupt: %w", documentID, err)
	}
	row.Record = record

	return &row, nil
}

// SetReviewStatus transitions a stored record through human review. The
// status also lands inside the record JSON so the two never diverge.
func (p *PostgresStore) SetReviewStatus(ctx context.Context, documentID, status string) error {
	switch status {
	case payload.ReviewPending, payload.ReviewConfirmed, payload.ReviewRejected:
	default:
		return fmt.Errorf("invalid review status: %s", status)
	}

	query := `
		UPDATE landreg.transcripts
		SET review_status = $2,
			record = jsonb_set(record, '{audit,review_status}', to_jsonb($2::text)),
			updated_at = NOW()
		WHERE document_id = $1::uuid
	`
	result, err := p.db.ExecContext(ctx, query, documentID, status)
	if err != nil {
		return fmt.Errorf("failed to set review status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("transcript not found: %s", documentID)
	}
	return nil
}

// ListPendingReview returns transcripts awaiting review, lowest
// confidence first.
func (p *PostgresStore) ListPendingReview(ctx context.Context, limit int) ([]*TranscriptRow, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT document_id, property_id, source_file, register_office,
			confidence, review_status, record, created_at, updated_at
		FROM landreg.transcripts
		WHERE review_status = $1
		ORDER BY confidence ASC NULLS FIRST, created_at ASC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, payload.ReviewPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transcripts: %w", err)
	}
	defer rows.Close()

	var results []*TranscriptRow
	for rows.Next() {
		var row TranscriptRow
		var registerOffice sql.NullString
		var confidence sql.NullFloat64
		var recordJSON []byte
		if err := rows.Scan(
			&row.DocumentID, &row.PropertyID, &row.SourceFile, &registerOffice,
			&confidence, &row.ReviewStatus, &recordJSON, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		row.RegisterOffice = registerOffice.String
		row.Confidence = confidence.Float64
		record, err := payload.Unmarshal(recordJSON)
		if err != nil {
			return nil, fmt.Errorf("stored transcript %s is corrupt: %w", row.DocumentID, err)
		}
		row.Record = record
		results = append(results, &row)
	}
	return results, rows.Err()
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics.
func (p *PostgresStore) GetStats() sql.DBStats {
	return p.db.Stats()
}
