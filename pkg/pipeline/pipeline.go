package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/ktsuji/budgetscan/internal/models"
	"github.com/ktsuji/budgetscan/internal/types"
)

// PipelineConfig configures one batch run.
type PipelineConfig struct {
	SourceDir        string
	OutputDir        string
	Workers          int
	MirrorDatabaseID string

	// OnStage is called on every stage transition.
	OnStage func(stage Stage)
	// OnProgress reports per-item progress within a stage.
	OnProgress func(stage Stage, done, total int)
}

// Pipeline sequences Source → Extractor → Store → Mirror over a
// document set. It is the only component with cross-document state:
// the aggregate record list and the per-stage counters. Per-item
// failures are absorbed at the stage that produced them; only setup
// errors abort a run.
type Pipeline struct {
	config    PipelineConfig
	source    types.DocumentSource
	extractor types.RecordExtractor
	store     types.RecordStore
	mirror    types.WorkspaceMirror // nil when no mirror target is configured
	pool      *ants.Pool
	logger    *slog.Logger

	mu    sync.Mutex
	stage Stage
}

// New creates a pipeline. The mirror may be nil; the mirroring stage
// is then skipped with a warning. Construction fails only on missing
// required collaborators or an unusable worker pool.
func New(config PipelineConfig, source types.DocumentSource, extractor types.RecordExtractor, store types.RecordStore, mirror types.WorkspaceMirror) (*Pipeline, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if config.SourceDir == "" {
		return nil, ErrSourceDirRequired
	}
	if config.OutputDir == "" {
		config.OutputDir = "output"
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:    config,
		source:    source,
		extractor: extractor,
		store:     store,
		mirror:    mirror,
		pool:      pool,
		logger:    slog.Default().With("component", "pipeline"),
		stage:     StageInit,
	}, nil
}

// Stage returns the pipeline's current stage.
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

func (p *Pipeline) setStage(stage Stage) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()

	p.logger.Info("stage transition", "stage", stage.String())
	if p.config.OnStage != nil {
		p.config.OnStage(stage)
	}
}

func (p *Pipeline) fail(stage Stage, err error) (*models.BatchResult, error) {
	p.setStage(StageFailed)
	return nil, &SetupError{Stage: stage, Err: err}
}

// Run executes one batch over the configured source directory and
// returns the aggregate result. Partial success is the normal case:
// the error return is non-nil only for setup failures.
func (p *Pipeline) Run(ctx context.Context) (*models.BatchResult, error) {
	runID := uuid.NewString()
	p.logger.Info("starting batch run", "run_id", runID, "source_dir", p.config.SourceDir)

	// Ingesting: enumerate every document before extraction begins.
	p.setStage(StageIngesting)
	docs, err := p.source.Enumerate(ctx, p.config.SourceDir)
	if err != nil {
		return p.fail(StageIngesting, err)
	}
	p.logger.Info("documents enumerated", "count", len(docs))

	// Extracting: documents are independent, so they fan out across
	// the worker pool. Each slot is written by exactly one job.
	p.setStage(StageExtracting)
	docResults := make([][]models.SegmentResult, len(docs))

	var wg sync.WaitGroup
	var done atomic.Int32
	for i := range docs {
		i := i
		wg.Add(1)
		job := func() {
			defer wg.Done()
			docResults[i] = p.extractor.ExtractBatch(ctx, docs[i])
			n := int(done.Add(1))
			if p.config.OnProgress != nil {
				p.config.OnProgress(StageExtracting, n, len(docs))
			}
		}
		if err := p.pool.Submit(job); err != nil {
			// Pool unavailable: run the job on the caller.
			job()
		}
	}
	wg.Wait()

	records := make([]models.BudgetRecord, 0)
	segmentsFailed := 0
	for _, results := range docResults {
		for _, result := range results {
			if result.Err != nil {
				segmentsFailed++
				continue
			}
			records = append(records, result.Record)
		}
	}
	p.logger.Info("extraction complete",
		"records", len(records), "failed_segments", segmentsFailed)

	// Persisting begins only after every record is collected.
	p.setStage(StagePersisting)
	ids := p.store.PersistBatch(ctx, records)
	recordsFailed := len(records) - len(ids)
	p.logger.Info("persistence complete",
		"persisted", len(ids), "failed", recordsFailed)

	// Mirroring is best effort and optional.
	p.setStage(StageMirroring)
	mirrored := 0
	switch {
	case p.mirror == nil || p.config.MirrorDatabaseID == "":
		p.logger.Warn("no mirror target configured, skipping sync")
	default:
		mirrored, err = p.mirror.Mirror(ctx, p.config.MirrorDatabaseID)
		if err != nil {
			p.logger.Error("mirror sync failed", "err", err)
		} else {
			p.logger.Info("mirror sync complete", "rows", mirrored)
		}
	}

	p.setStage(StageDone)
	artifactPath, err := p.writeArtifact(records)
	if err != nil {
		return p.fail(StageDone, err)
	}

	result := &models.BatchResult{
		RunID:              runID,
		Records:            records,
		DocumentsProcessed: len(docs),
		SegmentsExtracted:  len(records),
		SegmentsFailed:     segmentsFailed,
		RecordsPersisted:   len(ids),
		RecordsFailed:      recordsFailed,
		RowsMirrored:       mirrored,
		ArtifactPath:       artifactPath,
		CompletedAt:        time.Now(),
	}

	p.logger.Info("run complete",
		"run_id", runID,
		"documents", result.DocumentsProcessed,
		"records", result.SegmentsExtracted,
		"failed_segments", result.SegmentsFailed,
		"persisted", result.RecordsPersisted,
		"failed_records", result.RecordsFailed,
		"mirrored", result.RowsMirrored,
		"artifact", result.ArtifactPath)

	return result, nil
}

// Release frees the worker pool. The pipeline cannot run afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
