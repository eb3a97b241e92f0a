package store

import "fmt"

// PersistenceError reports a store rejection for one record or
// dimension lookup. The whole record is treated as not persisted;
// the caller skips it and the run continues.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
