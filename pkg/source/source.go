package source

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/ktsuji/budgetscan/internal/models"
)

// SourceConfig configures a directory source.
type SourceConfig struct {
	// OnProgress is called once per enumerated document.
	OnProgress func(name string)
}

// Source enumerates budget PDFs from a directory and turns each into
// a models.Document. A single corrupt or unreadable file degrades to
// an empty document or is skipped; enumeration itself only fails
// when the directory cannot be read at all.
type Source struct {
	config SourceConfig
	logger *slog.Logger
}

func NewWithConfig(config SourceConfig) *Source {
	return &Source{
		config: config,
		logger: slog.Default().With("component", "source"),
	}
}

func New() *Source {
	return NewWithConfig(SourceConfig{})
}

// Enumerate lists all PDF files in dir and produces one Document per
// file. Files that cannot be stat'd are logged and skipped.
func (s *Source) Enumerate(ctx context.Context, dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var documents []models.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return documents, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn("skipping unreadable file", "file", entry.Name(), "err", err)
			continue
		}

		doc := models.Document{
			Name:        entry.Name(),
			Path:        path,
			Text:        s.ExtractText(path),
			Metadata:    s.ExtractMetadata(path),
			ProcessedAt: time.Now(),
		}
		documents = append(documents, doc)

		if s.config.OnProgress != nil {
			s.config.OnProgress(entry.Name())
		}
	}

	return documents, nil
}

// ExtractText returns the plain text of the PDF at path, pages
// joined by newlines. It is a total function: any parser failure
// yields "" so one corrupt file cannot abort a batch.
func (s *Source) ExtractText(path string) (text string) {
	// The PDF parser panics on some malformed files; the contract
	// here is an empty string, never a raised error.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("text extraction failed", "file", filepath.Base(path), "err", r)
			text = ""
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		s.logger.Warn("text extraction failed", "file", filepath.Base(path), "err", err)
		return ""
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		s.logger.Warn("text extraction failed", "file", filepath.Base(path), "err", err)
		return ""
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		s.logger.Warn("text extraction failed", "file", filepath.Base(path), "err", err)
		return ""
	}
	return buf.String()
}

// ExtractMetadata reads the PDF info dictionary plus file size and
// page count. Like ExtractText it never fails: unreadable fields
// stay zero-valued.
func (s *Source) ExtractMetadata(path string) (meta models.DocumentMetadata) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("metadata extraction failed", "file", filepath.Base(path), "err", r)
		}
	}()

	if info, err := os.Stat(path); err == nil {
		meta.SizeBytes = info.Size()
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		s.logger.Warn("metadata extraction failed", "file", filepath.Base(path), "err", err)
		return meta
	}
	defer f.Close()

	meta.PageCount = reader.NumPage()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	meta.Title = info.Key("Title").RawString()
	meta.Author = info.Key("Author").RawString()
	meta.CreatedAt = parsePDFDate(info.Key("CreationDate").RawString())
	meta.ModifiedAt = parsePDFDate(info.Key("ModDate").RawString())

	return meta
}

// SplitSegments splits document text on blank-line boundaries into
// ordered segments. Whitespace-only slices are dropped; ordering
// matches position in the source text.
func SplitSegments(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var segments []string
	for _, part := range strings.Split(normalized, "\n\n") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// parsePDFDate parses PDF info-dictionary dates of the form
// "D:YYYYMMDDHHmmSS" with an optional timezone suffix. Returns the
// zero time when the value does not parse.
func parsePDFDate(raw string) time.Time {
	raw = strings.TrimPrefix(raw, "D:")
	if len(raw) > 14 {
		raw = raw[:14]
	}

	layouts := []string{"20060102150405", "200601021504", "20060102"}
	for _, layout := range layouts {
		if len(raw) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
