package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landreg/transcript-worker/internal/payload"
)

// These cover the store's input invariants, which hold before any SQL
// runs; query behavior itself is exercised against a real database in
// deployment smoke tests.

func TestSanitizeConfidence(t *testing.T) {
	assert.Equal(t, 0.9632, sanitizeConfidence(0.9632000000000001))
	assert.Equal(t, 0.1235, sanitizeConfidence(0.12345))
	assert.Equal(t, 0.0, sanitizeConfidence(-0.2))
	assert.Equal(t, 1.0, sanitizeConfidence(1.7))
}

func TestStoreTranscriptRequiresSealedRecord(t *testing.T) {
	store := &PostgresStore{}
	ctx := context.Background()

	err := store.StoreTranscript(ctx, nil)
	assert.Error(t, err)

	record := payload.New("scan.png")
	err = store.StoreTranscript(ctx, record)
	require.Error(t, err, "an unsealed record must never be persisted")
	assert.Contains(t, err.Error(), "checksum")

	record.Sections.RawText = "大安段一小段0032地號"
	require.NoError(t, record.Seal())
	record.Sections.RawText = "tampered"
	err = store.StoreTranscript(ctx, record)
	require.Error(t, err, "a record mutated after sealing must be rejected")
	assert.Contains(t, err.Error(), "checksum")
}

func TestSetReviewStatusRejectsUnknownStatus(t *testing.T) {
	store := &PostgresStore{}
	err := store.SetReviewStatus(context.Background(), "11111111-1111-1111-1111-111111111111", "archived")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid review status")
}

func TestUpdateJobStatusRequiresIdentity(t *testing.T) {
	store := &PostgresStore{}
	ctx := context.Background()

	err := store.UpdateJobStatus(ctx, &JobUpdate{Status: JobQueued})
	assert.Error(t, err, "missing job id")

	err = store.UpdateJobStatus(ctx, &JobUpdate{JobID: "j1"})
	assert.Error(t, err, "missing status")
}
