package mirror

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/budgetscan/internal/models"
)

type fakePages struct {
	created []*notionapi.PageCreateRequest
	failOn  map[string]error // keyed by title content
}

func (f *fakePages) Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if title, ok := req.Properties["事業名"].(notionapi.TitleProperty); ok {
		content := title.Title[0].Text.Content
		if err, ok := f.failOn[content]; ok {
			return nil, err
		}
	}
	f.created = append(f.created, req)
	return &notionapi.Page{}, nil
}

func (f *fakePages) Get(ctx context.Context, id notionapi.PageID) (*notionapi.Page, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePages) Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return nil, errors.New("not implemented")
}

type fakeRows struct {
	rows []models.MirrorRow
	err  error
}

func (f *fakeRows) MirrorRows(ctx context.Context) ([]models.MirrorRow, error) {
	return f.rows, f.err
}

func sampleRow(name string) models.MirrorRow {
	return models.MirrorRow{
		ProjectID:    1,
		ProjectName:  name,
		Description:  "地域の活性化を図る",
		BudgetAmount: 1000000,
		PolicyArea:   "地域振興",
		Municipality: "富山市",
		FiscalYear:   2025,
		KPISummary:   `{"参加者数":{"target":1000,"current":120}}`,
	}
}

func TestMirror(t *testing.T) {
	pages := &fakePages{}
	rows := &fakeRows{rows: []models.MirrorRow{sampleRow("事業A"), sampleRow("事業B")}}
	m := newWithPages(MirrorConfig{Token: "secret"}, pages, rows)

	n, err := m.Mirror(context.Background(), "db-id")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pages.created, 2)

	parent := pages.created[0].Parent
	assert.Equal(t, notionapi.ParentTypeDatabaseID, parent.Type)
	assert.Equal(t, notionapi.DatabaseID("db-id"), parent.DatabaseID)
}

func TestMirrorSkipsFailedRows(t *testing.T) {
	pages := &fakePages{failOn: map[string]error{"事業B": errors.New("validation failed")}}
	rows := &fakeRows{rows: []models.MirrorRow{
		sampleRow("事業A"), sampleRow("事業B"), sampleRow("事業C"),
	}}
	m := newWithPages(MirrorConfig{Token: "secret"}, pages, rows)

	n, err := m.Mirror(context.Background(), "db-id")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMirrorRowSourceFailure(t *testing.T) {
	pages := &fakePages{}
	rows := &fakeRows{err: errors.New("connection lost")}
	m := newWithPages(MirrorConfig{Token: "secret"}, pages, rows)

	n, err := m.Mirror(context.Background(), "db-id")
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pages.created)
}

func TestNewWithConfigRequiresToken(t *testing.T) {
	_, err := NewWithConfig(MirrorConfig{}, &fakeRows{})
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestBuildProperties(t *testing.T) {
	props := buildProperties(sampleRow("テスト事業"))

	title, ok := props["事業名"].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "テスト事業", title.Title[0].Text.Content)

	desc, ok := props["事業概要"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "地域の活性化を図る", desc.RichText[0].Text.Content)

	budget, ok := props["予算額"].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, float64(1000000), budget.Number)

	area, ok := props["施策分野"].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "地域振興", area.Select.Name)

	muni, ok := props["自治体"].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "富山市", muni.Select.Name)

	kpi, ok := props["KPI"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Contains(t, kpi.RichText[0].Text.Content, "参加者数")
}

func TestBuildPropertiesTruncatesLongText(t *testing.T) {
	row := sampleRow("テスト事業")
	row.Description = strings.Repeat("あ", maxRichTextLen+500)

	props := buildProperties(row)
	desc := props["事業概要"].(notionapi.RichTextProperty)
	assert.Len(t, []rune(desc.RichText[0].Text.Content), maxRichTextLen)
}
