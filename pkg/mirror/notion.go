package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jomei/notionapi"

	"github.com/ktsuji/budgetscan/internal/models"
)

// Notion rich text values are capped at 2000 characters; longer
// content is truncated rather than failing the row.
const maxRichTextLen = 2000

// ErrTokenRequired is returned when no Notion API token is configured.
var ErrTokenRequired = errors.New("Notion API token required")

// RowError reports one row the workspace rejected. The row is
// logged and skipped; the scan continues.
type RowError struct {
	Project string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("mirror failed for %q: %v", e.Project, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// RowSource yields the denormalized projection of persisted records.
type RowSource interface {
	MirrorRows(ctx context.Context) ([]models.MirrorRow, error)
}

type MirrorConfig struct {
	Token          string
	RequestTimeout time.Duration
}

// Mirror projects persisted budget records into a Notion database,
// one page per row. The projection is one-way and keeps no mapping
// back to persisted rows, so repeated runs may create duplicate
// pages.
type Mirror struct {
	config MirrorConfig
	pages  notionapi.PageService
	rows   RowSource
	logger *slog.Logger
}

func NewWithConfig(config MirrorConfig, rows RowSource) (*Mirror, error) {
	if config.Token == "" {
		return nil, ErrTokenRequired
	}

	client := notionapi.NewClient(notionapi.Token(config.Token))
	return newWithPages(config, client.Page, rows), nil
}

func newWithPages(config MirrorConfig, pages notionapi.PageService, rows RowSource) *Mirror {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &Mirror{
		config: config,
		pages:  pages,
		rows:   rows,
		logger: slog.Default().With("component", "mirror"),
	}
}

// Mirror creates one workspace page per denormalized row and returns
// the number of rows mirrored. Per-row failures are logged and
// skipped; only a failure to read the projection itself is returned.
func (m *Mirror) Mirror(ctx context.Context, databaseID string) (int, error) {
	rows, err := m.rows.MirrorRows(ctx)
	if err != nil {
		return 0, err
	}

	mirrored := 0
	for _, row := range rows {
		if err := m.createPage(ctx, databaseID, row); err != nil {
			m.logger.Warn("row not mirrored", "project", row.ProjectName, "err", &RowError{Project: row.ProjectName, Err: err})
			continue
		}
		mirrored++
	}

	return mirrored, nil
}

func (m *Mirror) createPage(ctx context.Context, databaseID string, row models.MirrorRow) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.RequestTimeout)
	defer cancel()

	_, err := m.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: buildProperties(row),
	})
	return err
}

// buildProperties maps one row onto the fixed Notion property set
// the review database uses: title, rich text, number, two selects
// and a rich text KPI summary.
func buildProperties(row models.MirrorRow) notionapi.Properties {
	return notionapi.Properties{
		"事業名": notionapi.TitleProperty{
			Title: richText(row.ProjectName),
		},
		"事業概要": notionapi.RichTextProperty{
			RichText: richText(truncate(row.Description)),
		},
		"予算額": notionapi.NumberProperty{
			Number: float64(row.BudgetAmount),
		},
		"施策分野": notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.PolicyArea},
		},
		"自治体": notionapi.SelectProperty{
			Select: notionapi.Option{Name: row.Municipality},
		},
		"KPI": notionapi.RichTextProperty{
			RichText: richText(truncate(row.KPISummary)),
		},
	}
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: content}},
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxRichTextLen {
		return s
	}
	return string(runes[:maxRichTextLen])
}
