package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PathIsDeterministic(t *testing.T) {
	mgr := NewManager("/workspace", "build_")
	assert.Equal(t, "/workspace/build_sensor-01", mgr.Path("sensor-01"))
	assert.Equal(t, mgr.Path("sensor-01"), mgr.Path("sensor-01"))
	assert.NotEqual(t, mgr.Path("sensor-01"), mgr.Path("sensor-02"))
}

func TestManager_ResetRemovesPreviousContents(t *testing.T) {
	mgr := NewManager(t.TempDir(), "build_")

	path, warning, err := mgr.Reset("dev1")
	require.NoError(t, err)
	require.NoError(t, warning)
	stale := filepath.Join(path, "repo", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o750))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	path2, warning, err := mgr.Reset("dev1")
	require.NoError(t, err)
	require.NoError(t, warning)
	assert.Equal(t, path, path2)
	assert.DirExists(t, path2)
	assert.NoFileExists(t, stale)
}

func TestManager_ResetCreateFailure(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// root is a regular file, so no workspace can be created beneath it
	mgr := NewManager(blocker, "build_")
	_, _, err := mgr.Reset("dev1")
	require.Error(t, err)
}

func TestManager_LockSerializesSameIdentity(t *testing.T) {
	mgr := NewManager(t.TempDir(), "build_")
	var active, maxActive int32
	var wg sync.WaitGroup

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := mgr.Lock(context.Background(), "dev1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestManager_LockDifferentIdentitiesIndependent(t *testing.T) {
	mgr := NewManager(t.TempDir(), "build_")
	unlockA, err := mgr.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, ok := mgr.TryLock("b")
	require.True(t, ok)
	unlockB()
}

func TestManager_LockHonorsContext(t *testing.T) {
	mgr := NewManager(t.TempDir(), "build_")
	unlock, err := mgr.Lock(context.Background(), "dev1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = mgr.Lock(ctx, "dev1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	_, ok := mgr.TryLock("dev1")
	assert.True(t, ok)
}

func TestManager_Prune(t *testing.T) {
	root := t.TempDir()
	mgr := NewManager(root, "build_")

	oldPath, _, err := mgr.Reset("old")
	require.NoError(t, err)
	busyPath, _, err := mgr.Reset("busy")
	require.NoError(t, err)
	freshPath, _, err := mgr.Reset("fresh")
	require.NoError(t, err)
	other := filepath.Join(root, "unrelated")
	require.NoError(t, os.MkdirAll(other, 0o750))

	past := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{oldPath, busyPath, other} {
		require.NoError(t, os.Chtimes(p, past, past))
	}

	unlock, ok := mgr.TryLock("busy")
	require.True(t, ok)
	defer unlock()

	removed, err := mgr.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{oldPath}, removed)
	assert.NoDirExists(t, oldPath)
	assert.DirExists(t, busyPath)
	assert.DirExists(t, freshPath)
	assert.DirExists(t, other)
}

func TestManager_PruneMissingRoot(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "absent"), "build_")
	removed, err := mgr.Prune(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
