// Package filetracker implements the reference-counted fragment file
// lifecycle: a fragment file is unlinked only once every tablet stack
// and open scanner that could still reference it has released it.
package filetracker

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/kdilog"
)

// FileTracker maps a fragment path to its live reference count.
type FileTracker struct {
	mu   sync.Mutex
	refs map[string]int
}

// New returns an empty FileTracker.
func New() *FileTracker {
	return &FileTracker{refs: make(map[string]int)}
}

// Ref increments path's reference count, registering it at 1 if this
// is the first reference — called when a fragment is produced and
// enters a tablet stack.
func (t *FileTracker) Ref(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[path]++
}

// Release decrements path's reference count and unlinks the file once
// it reaches zero. Releasing a path with no outstanding references is a
// no-op rather than an error, since a tablet's final Release during
// teardown may race harmlessly with another holder's Release.
func (t *FileTracker) Release(path string) error {
	t.mu.Lock()
	n, ok := t.refs[path]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	n--
	if n > 0 {
		t.refs[path] = n
		t.mu.Unlock()
		return nil
	}
	delete(t.refs, path)
	t.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unlink fragment %s", path)
	}
	kdilog.Debug("fragment file unlinked", kdilog.String("path", path))
	return nil
}

// Count reports path's current reference count (0 if untracked).
func (t *FileTracker) Count(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[path]
}
