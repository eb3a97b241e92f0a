package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSegments(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "two segments in order",
			text: "事業名：テスト事業\n予算額：1,000,000円\n\n事業名：第二事業\n予算額：500,000円",
			want: []string{
				"事業名：テスト事業\n予算額：1,000,000円",
				"事業名：第二事業\n予算額：500,000円",
			},
		},
		{
			name: "whitespace-only slices dropped",
			text: "first\n\n   \n\nsecond",
			want: []string{"first", "second"},
		},
		{
			name: "windows line endings",
			text: "first\r\n\r\nsecond",
			want: []string{"first", "second"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name: "only whitespace",
			text: " \n \n ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSegments(tt.text))
		})
	}
}

func TestEnumerate(t *testing.T) {
	dir := t.TempDir()

	// Not a real PDF: text extraction degrades to "", but the
	// document is still enumerated.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budget1.pdf"), []byte("%PDF-1.4 not really"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BUDGET2.PDF"), []byte("%PDF-1.4 neither"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0755))

	var seen []string
	s := NewWithConfig(SourceConfig{
		OnProgress: func(name string) { seen = append(seen, name) },
	})

	docs, err := s.Enumerate(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"BUDGET2.PDF", "budget1.pdf"}, seen)

	for _, doc := range docs {
		assert.Empty(t, doc.Text)
		assert.NotZero(t, doc.Metadata.SizeBytes)
		assert.False(t, doc.ProcessedAt.IsZero())
	}
}

func TestEnumerateMissingDirectory(t *testing.T) {
	s := New()
	_, err := s.Enumerate(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestExtractTextTotalOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("garbage that is not a pdf"), 0644))

	s := New()
	assert.Equal(t, "", s.ExtractText(path))
	assert.Equal(t, "", s.ExtractText(filepath.Join(dir, "does-not-exist.pdf")))
}

func TestExtractMetadataTotalOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	s := New()
	meta := s.ExtractMetadata(path)
	assert.Equal(t, int64(7), meta.SizeBytes)
	assert.Zero(t, meta.PageCount)
	assert.Empty(t, meta.Title)
}

func TestParsePDFDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"D:20250401093000+09'00'", time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)},
		{"D:20250401", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
		{"", time.Time{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePDFDate(tt.raw), tt.raw)
	}
}
