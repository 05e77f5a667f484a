package store

import (
	"fmt"

	"github.com/gofrs/flock"
)

// WriteLock serializes store mutations across OS processes. The API server
// and the worker both write to the same database file; an exclusive advisory
// lock on a companion lock file keeps their writes from interleaving.
type WriteLock struct {
	path string
}

// NewWriteLock returns a lock bound to the given lock-file path.
func NewWriteLock(path string) *WriteLock {
	return &WriteLock{path: path}
}

// Acquire blocks until the exclusive lock is held and returns the release
// function. Callers must release in a defer so the lock is dropped even when
// the guarded write fails; a leaked lock deadlocks every future writer.
func (l *WriteLock) Acquire() (func(), error) {
	fl := flock.New(l.path)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire write lock %s: %w", l.path, err)
	}
	return func() {
		_ = fl.Unlock()
	}, nil
}
