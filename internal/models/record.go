package models

import (
	"errors"
	"fmt"
	"time"
)

// KPIValue is one metric attached to a budget record: the target the
// project commits to and the value measured so far.
type KPIValue struct {
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
}

// BudgetRecord is the normalized output of one extracted segment.
// Amounts are integer yen with separators and currency symbols
// already stripped. Records are immutable once built.
type BudgetRecord struct {
	ProjectName  string              `json:"project_name"`
	BudgetAmount int64               `json:"budget_amount"`
	PolicyArea   string              `json:"policy_area"`
	Description  string              `json:"description"`
	FiscalYear   int                 `json:"fiscal_year"`
	KPI          map[string]KPIValue `json:"kpi"`
}

// Record validation errors.
var (
	ErrEmptyProjectName = errors.New("project name cannot be empty")
	ErrEmptyPolicyArea  = errors.New("policy area cannot be empty")
	ErrNegativeBudget   = errors.New("budget amount cannot be negative")
	ErrInvalidYear      = errors.New("fiscal year must be a 4-digit year")
)

// Validate checks the record invariants: non-empty project name and
// policy area, non-negative amount, 4-digit fiscal year.
func (r *BudgetRecord) Validate() error {
	if r.ProjectName == "" {
		return ErrEmptyProjectName
	}
	if r.PolicyArea == "" {
		return ErrEmptyPolicyArea
	}
	if r.BudgetAmount < 0 {
		return ErrNegativeBudget
	}
	if r.FiscalYear < 1000 || r.FiscalYear > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// Summary is a short identifying string used in failure logs so a
// rejected record can be found and re-run manually.
func (r *BudgetRecord) Summary() string {
	return fmt.Sprintf("%s (FY%d, %d yen)", r.ProjectName, r.FiscalYear, r.BudgetAmount)
}

// SegmentResult is the outcome of extracting one segment: either a
// record or the error that made the segment fail. The orchestrator
// partitions these explicitly instead of relying on logging side
// effects for control flow.
type SegmentResult struct {
	Document string
	Segment  int
	Record   BudgetRecord
	Err      error
}

// MirrorRow is one row of the denormalized projection the workspace
// mirror reads: the persisted project joined with its policy area
// and municipality, KPI summary pre-rendered as JSON text.
type MirrorRow struct {
	ProjectID    int64
	ProjectName  string
	Description  string
	BudgetAmount int64
	PolicyArea   string
	Municipality string
	FiscalYear   int
	KPISummary   string
}

// BatchResult aggregates one pipeline run: the extracted records in
// document order plus the per-stage counters the run summary
// reports. It is written once at the end of a run and never mutated.
type BatchResult struct {
	RunID              string
	Records            []BudgetRecord
	DocumentsProcessed int
	SegmentsExtracted  int
	SegmentsFailed     int
	RecordsPersisted   int
	RecordsFailed      int
	RowsMirrored       int
	ArtifactPath       string
	CompletedAt        time.Time
}
