package extractor

import (
	"errors"
	"fmt"
)

// ErrTokenRequired is returned when no API token is configured.
var ErrTokenRequired = errors.New("OpenAI API token required")

// ExtractionError reports a failed extraction of one segment: the
// reasoning call itself failed, or the returned payload did not fit
// the record schema. It is always recovered at the segment boundary.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
