package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"reelpost/pkg/fsutil"
)

// Document is a JSON file that is read in full and rewritten in full.
// Access is serialized in-process by mu and across processes by an advisory
// lock on <path>.lock, so a read-modify-write cycle never interleaves with
// another one, even from a CLI command running next to the bot.
type Document[T any] struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewDocument[T any](path string) *Document[T] {
	return &Document[T]{path: path, lock: flock.New(path + ".lock")}
}

func (d *Document[T]) Path() string {
	return d.path
}

// Read returns the current contents. A missing file reads as the zero T.
func (d *Document[T]) Read() (*T, error) {
	var doc *T
	err := d.locked(false, func() error {
		var err error
		doc, err = d.load()
		return err
	})
	return doc, err
}

// Update loads the document, applies fn and writes the result back when fn
// reports a change. fn errors abort the update without writing.
func (d *Document[T]) Update(fn func(doc *T) (bool, error)) error {
	return d.locked(true, func() error {
		doc, err := d.load()
		if err != nil {
			return err
		}

		changed, err := fn(doc)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		return d.save(doc)
	})
}

// locked runs fn holding mu and the file lock, shared for reads and
// exclusive for writes.
func (d *Document[T]) locked(exclusive bool, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return &PersistenceError{Op: "lock", Path: d.lock.Path(), Err: err}
	}

	acquire := d.lock.RLock
	if exclusive {
		acquire = d.lock.Lock
	}
	if err := acquire(); err != nil {
		return &PersistenceError{Op: "lock", Path: d.lock.Path(), Err: err}
	}
	defer func() { _ = d.lock.Unlock() }()

	return fn()
}

func (d *Document[T]) load() (*T, error) {
	var doc T

	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &doc, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: d.path, Err: err}
	}
	if len(data) == 0 {
		return &doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &PersistenceError{Op: "decode", Path: d.path, Err: err}
	}

	return &doc, nil
}

func (d *Document[T]) save(doc *T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: d.path, Err: err}
	}

	if err := fsutil.WriteFileAtomic(d.path, data, 0644); err != nil {
		return &PersistenceError{Op: "write", Path: d.path, Err: err}
	}

	return nil
}
