package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/budgetscan/internal/models"
	"github.com/ktsuji/budgetscan/pkg/pipeline"
)

type fakeSource struct {
	docs []models.Document
	err  error
}

func (f *fakeSource) Enumerate(ctx context.Context, dir string) ([]models.Document, error) {
	return f.docs, f.err
}

// fakeExtractor returns pre-canned per-document results keyed by
// document name.
type fakeExtractor struct {
	results map[string][]models.SegmentResult
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (models.BudgetRecord, error) {
	return models.BudgetRecord{}, errors.New("not used")
}

func (f *fakeExtractor) ExtractBatch(ctx context.Context, doc models.Document) []models.SegmentResult {
	return f.results[doc.Name]
}

type fakeStore struct {
	mu        sync.Mutex
	persisted []models.BudgetRecord
	rejectAt  int // 1-based index of record to reject, 0 for none
}

func (f *fakeStore) FindOrCreatePolicyArea(ctx context.Context, name string) (int64, error) {
	return 1, nil
}

func (f *fakeStore) PersistRecord(ctx context.Context, record models.BudgetRecord) (int64, error) {
	return 1, nil
}

func (f *fakeStore) PersistBatch(ctx context.Context, records []models.BudgetRecord) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(records))
	for i, record := range records {
		if f.rejectAt == i+1 {
			continue
		}
		f.persisted = append(f.persisted, record)
		ids = append(ids, int64(len(f.persisted)))
	}
	return ids
}

func (f *fakeStore) MirrorRows(ctx context.Context) ([]models.MirrorRow, error) {
	return nil, nil
}

func (f *fakeStore) Close() {}

type fakeMirror struct {
	calls      int
	databaseID string
	mirrored   int
	err        error
}

func (f *fakeMirror) Mirror(ctx context.Context, databaseID string) (int, error) {
	f.calls++
	f.databaseID = databaseID
	return f.mirrored, f.err
}

func record(name string) models.BudgetRecord {
	return models.BudgetRecord{
		ProjectName:  name,
		BudgetAmount: 1000000,
		PolicyArea:   "地域振興",
		FiscalYear:   2025,
	}
}

func okResult(doc string, segment int, name string) models.SegmentResult {
	return models.SegmentResult{Document: doc, Segment: segment, Record: record(name)}
}

func failedResult(doc string, segment int) models.SegmentResult {
	return models.SegmentResult{Document: doc, Segment: segment, Err: errors.New("malformed payload")}
}

func testConfig(t *testing.T) pipeline.PipelineConfig {
	t.Helper()
	return pipeline.PipelineConfig{
		SourceDir: "docs",
		OutputDir: t.TempDir(),
		Workers:   2,
	}
}

func TestRun(t *testing.T) {
	source := &fakeSource{docs: []models.Document{
		{Name: "a.pdf"}, {Name: "b.pdf"}, {Name: "c.pdf"},
	}}
	extractor := &fakeExtractor{results: map[string][]models.SegmentResult{
		"a.pdf": {okResult("a.pdf", 0, "事業A")},
		"b.pdf": {failedResult("b.pdf", 0), failedResult("b.pdf", 1)},
		"c.pdf": {okResult("c.pdf", 0, "事業C"), okResult("c.pdf", 1, "事業D")},
	}}
	store := &fakeStore{}
	mirror := &fakeMirror{mirrored: 3}

	var stages []pipeline.Stage
	config := testConfig(t)
	config.MirrorDatabaseID = "db-id"
	config.OnStage = func(s pipeline.Stage) { stages = append(stages, s) }

	p, err := pipeline.New(config, source, extractor, store, mirror)
	require.NoError(t, err)
	defer p.Release()

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// One document failing entirely does not disturb its siblings
	assert.Equal(t, 3, result.DocumentsProcessed)
	assert.Equal(t, 3, result.SegmentsExtracted)
	assert.Equal(t, 2, result.SegmentsFailed)
	assert.Equal(t, 3, result.RecordsPersisted)
	assert.Equal(t, 0, result.RecordsFailed)
	assert.Equal(t, 3, result.RowsMirrored)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, "db-id", mirror.databaseID)

	assert.Equal(t, []pipeline.Stage{
		pipeline.StageIngesting,
		pipeline.StageExtracting,
		pipeline.StagePersisting,
		pipeline.StageMirroring,
		pipeline.StageDone,
	}, stages)

	// Artifact round-trips with integer amounts intact
	records, err := pipeline.ReadArtifact(result.ArtifactPath)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1000000), records[0].BudgetAmount)

	names := []string{records[0].ProjectName, records[1].ProjectName, records[2].ProjectName}
	assert.ElementsMatch(t, []string{"事業A", "事業C", "事業D"}, names)
}

func TestRunStoreRejectsRecord(t *testing.T) {
	source := &fakeSource{docs: []models.Document{{Name: "a.pdf"}}}
	extractor := &fakeExtractor{results: map[string][]models.SegmentResult{
		"a.pdf": {
			okResult("a.pdf", 0, "事業A"),
			okResult("a.pdf", 1, "事業B"),
			okResult("a.pdf", 2, "事業C"),
		},
	}}
	store := &fakeStore{rejectAt: 2}

	p, err := pipeline.New(testConfig(t), source, extractor, store, nil)
	require.NoError(t, err)
	defer p.Release()

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.SegmentsExtracted)
	assert.Equal(t, 2, result.RecordsPersisted)
	assert.Equal(t, 1, result.RecordsFailed)

	// Rejected records still reach the artifact
	records, err := pipeline.ReadArtifact(result.ArtifactPath)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRunSkipsMirrorWhenUnconfigured(t *testing.T) {
	source := &fakeSource{docs: []models.Document{{Name: "a.pdf"}}}
	extractor := &fakeExtractor{results: map[string][]models.SegmentResult{
		"a.pdf": {okResult("a.pdf", 0, "事業A")},
	}}

	p, err := pipeline.New(testConfig(t), source, extractor, &fakeStore{}, nil)
	require.NoError(t, err)
	defer p.Release()

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.RowsMirrored)
}

func TestRunMirrorFailureIsBestEffort(t *testing.T) {
	source := &fakeSource{docs: []models.Document{{Name: "a.pdf"}}}
	extractor := &fakeExtractor{results: map[string][]models.SegmentResult{
		"a.pdf": {okResult("a.pdf", 0, "事業A")},
	}}
	mirror := &fakeMirror{err: errors.New("workspace unreachable")}

	config := testConfig(t)
	config.MirrorDatabaseID = "db-id"

	p, err := pipeline.New(config, source, extractor, &fakeStore{}, mirror)
	require.NoError(t, err)
	defer p.Release()

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsPersisted)
	assert.Zero(t, result.RowsMirrored)
}

func TestRunEnumerateFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("no such directory")}
	extractor := &fakeExtractor{}

	p, err := pipeline.New(testConfig(t), source, extractor, &fakeStore{}, nil)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background())
	require.Error(t, err)

	var setupErr *pipeline.SetupError
	assert.ErrorAs(t, err, &setupErr)
	assert.Equal(t, pipeline.StageIngesting, setupErr.Stage)
	assert.Equal(t, pipeline.StageFailed, p.Stage())
}

func TestNewValidatesCollaborators(t *testing.T) {
	source := &fakeSource{}
	extractor := &fakeExtractor{}
	store := &fakeStore{}
	config := pipeline.PipelineConfig{SourceDir: "docs"}

	_, err := pipeline.New(config, nil, extractor, store, nil)
	assert.ErrorIs(t, err, pipeline.ErrSourceRequired)

	_, err = pipeline.New(config, source, nil, store, nil)
	assert.ErrorIs(t, err, pipeline.ErrExtractorRequired)

	_, err = pipeline.New(config, source, extractor, nil, nil)
	assert.ErrorIs(t, err, pipeline.ErrStoreRequired)

	_, err = pipeline.New(pipeline.PipelineConfig{}, source, extractor, store, nil)
	assert.ErrorIs(t, err, pipeline.ErrSourceDirRequired)
}

func TestProgressCallback(t *testing.T) {
	source := &fakeSource{docs: []models.Document{
		{Name: "a.pdf"}, {Name: "b.pdf"},
	}}
	extractor := &fakeExtractor{results: map[string][]models.SegmentResult{
		"a.pdf": {okResult("a.pdf", 0, "事業A")},
		"b.pdf": {okResult("b.pdf", 0, "事業B")},
	}}

	var mu sync.Mutex
	seen := 0
	config := testConfig(t)
	config.OnProgress = func(stage pipeline.Stage, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, pipeline.StageExtracting, stage)
		assert.Equal(t, 2, total)
		seen++
	}

	p, err := pipeline.New(config, source, extractor, &fakeStore{}, nil)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}
