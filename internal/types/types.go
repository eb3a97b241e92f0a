package types

import (
	"context"

	"github.com/ktsuji/budgetscan/internal/models"
)

// Core interfaces

// DocumentSource enumerates budget documents from a directory.
// Per-file read failures are logged and skipped inside Enumerate;
// an error return means the directory itself is unusable.
type DocumentSource interface {
	Enumerate(ctx context.Context, dir string) ([]models.Document, error)
}

// RecordExtractor turns segment text into structured budget records.
type RecordExtractor interface {
	// Extract performs one extraction attempt on a single segment.
	Extract(ctx context.Context, text string) (models.BudgetRecord, error)

	// ExtractBatch applies Extract to every segment of a document,
	// returning one result per segment in source order. Segment
	// failures are captured in the result, never raised.
	ExtractBatch(ctx context.Context, doc models.Document) []models.SegmentResult
}

// RecordStore persists extracted records and serves the denormalized
// projection the mirror reads.
type RecordStore interface {
	FindOrCreatePolicyArea(ctx context.Context, name string) (int64, error)
	PersistRecord(ctx context.Context, record models.BudgetRecord) (int64, error)

	// PersistBatch persists each record independently, returning
	// identifiers for the records that succeeded.
	PersistBatch(ctx context.Context, records []models.BudgetRecord) []int64

	MirrorRows(ctx context.Context) ([]models.MirrorRow, error)
	Close()
}

// WorkspaceMirror projects persisted rows into an external workspace.
// Returns the number of rows mirrored; per-row failures are logged
// and skipped.
type WorkspaceMirror interface {
	Mirror(ctx context.Context, databaseID string) (int, error)
}
