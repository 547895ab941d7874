package storage

import (
	"errors"
	"fmt"
)

var ErrPersistence = errors.New("persistence error")

// PersistenceError reports a failed read or write of a backing file. The
// previous file contents are left untouched when a write fails.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
