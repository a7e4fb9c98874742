package lock

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

func TestTryLockExclusive(t *testing.T) {
	m, err := New(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)

	unlock, err := m.TryLock("alice/followers")
	require.NoError(t, err)

	_, err = m.TryLock("alice/followers")
	assert.True(t, errs.Is(err, errs.KindConflict))

	other, err := m.TryLock("alice/followees")
	require.NoError(t, err, "different keys do not contend")
	other()

	unlock()
	unlock()

	again, err := m.TryLock("alice/followers")
	require.NoError(t, err)
	again()
}

func TestLockFileBlocksOtherProcess(t *testing.T) {
	dir := t.TempDir()
	first, err := New(dir, logger.NewNopLogger())
	require.NoError(t, err)
	second, err := New(dir, logger.NewNopLogger())
	require.NoError(t, err)

	unlock, err := first.TryLock("bob/followers")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, Dir, "bob_followers.lock"))

	_, err = second.TryLock("bob/followers")
	assert.True(t, errs.Is(err, errs.KindConflict))

	unlock()
	assert.NoFileExists(t, filepath.Join(dir, Dir, "bob_followers.lock"))

	unlock2, err := second.TryLock("bob/followers")
	require.NoError(t, err)
	unlock2()
}

func TestStaleLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, logger.NewNopLogger())
	require.NoError(t, err)

	path := filepath.Join(dir, Dir, "carol_followees.lock")
	require.NoError(t, os.WriteFile(path, []byte("pid=1\n"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	unlock, err := m.TryLock("carol/followees")
	require.NoError(t, err)
	unlock()
}

func TestConcurrentTryLock(t *testing.T) {
	m, err := New("", logger.NewNopLogger())
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		attempts atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			unlock, err := m.TryLock("dave/followers")
			attempts.Add(1)
			if err != nil {
				return
			}
			winners.Add(1)
			// hold until everyone has tried
			for attempts.Load() < workers {
				time.Sleep(time.Millisecond)
			}
			unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
