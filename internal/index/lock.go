package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// LockFile is the name of the indexer lock inside the data directory.
const LockFile = "index.lock"

// FileLock keeps two indexer processes from writing the same data directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates the lock at <dataDir>/index.lock.
func NewFileLock(dataDir string) *FileLock {
	lockPath := filepath.Join(dataDir, LockFile)
	return &FileLock{path: lockPath, flock: flock.New(lockPath)}
}

// TryLock acquires the lock without blocking. A lock held elsewhere returns
// ERR_403_INDEX_LOCKED.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return brainerrors.New(brainerrors.ErrCodeIndexLocked,
			"another indexer holds "+l.path, nil).
			WithSuggestion("wait for the other 'notebrain index' or 'notebrain watch' to finish")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// keyedMutex serializes work per document ID. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
