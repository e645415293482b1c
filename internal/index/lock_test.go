package index

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

func TestFileLock_Contention(t *testing.T) {
	dir := t.TempDir()

	// Given: one indexer holding the lock
	first := NewFileLock(dir)
	require.NoError(t, first.TryLock())

	// When: a second one tries
	second := NewFileLock(dir)
	err := second.TryLock()

	// Then: it is told the index is locked
	require.Error(t, err)
	assert.Equal(t, brainerrors.ErrCodeIndexLocked, brainerrors.GetCode(err))

	// And: it succeeds once the first lets go
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	l := NewFileLock(t.TempDir())
	assert.NoError(t, l.Unlock())
	assert.Contains(t, l.Path(), LockFile)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var active, maxActive atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a.md")
			defer unlock()
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Empty(t, k.locks, "entries are dropped once released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a.md")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b.md")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b.md blocked behind a.md")
	}
}
