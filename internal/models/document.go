package models

import "time"

// DocumentMetadata holds the descriptive fields read from a PDF's
// info dictionary plus filesystem facts. Fields are zero-valued when
// the underlying parser cannot read them.
type DocumentMetadata struct {
	Title      string
	Author     string
	CreatedAt  time.Time
	ModifiedAt time.Time
	SizeBytes  int64
	PageCount  int
}

// Document is one budget PDF as produced by the source: its identity
// (file name and path), the extracted plain text, and metadata.
// Text is empty when text extraction failed; such a document still
// flows through the pipeline and simply yields no segments.
type Document struct {
	Name        string
	Path        string
	Text        string
	Metadata    DocumentMetadata
	ProcessedAt time.Time
}

// Segment is one blank-line-delimited slice of a document's text,
// the unit of extraction. It has no identity beyond its containing
// document and position.
type Segment struct {
	Document string
	Index    int
	Text     string
}
