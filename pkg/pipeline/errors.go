package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceRequired is returned when a document source is not provided.
	ErrSourceRequired = errors.New("document source required")

	// ErrExtractorRequired is returned when a record extractor is not provided.
	ErrExtractorRequired = errors.New("record extractor required")

	// ErrStoreRequired is returned when a record store is not provided.
	ErrStoreRequired = errors.New("record store required")

	// ErrSourceDirRequired is returned when no source directory is configured.
	ErrSourceDirRequired = errors.New("source directory required")
)

// SetupError is the only fatal error class: a stage could not be set
// up at all (unreadable source directory, uncreatable output
// location). It aborts the run before or instead of item
// processing and propagates to the caller.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
