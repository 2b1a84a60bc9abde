package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPruner struct {
	calls     atomic.Int32
	retention atomic.Int64
	removed   []string
	err       error
}

func (s *stubPruner) Prune(olderThan time.Duration) ([]string, error) {
	s.calls.Add(1)
	s.retention.Store(int64(olderThan))
	return s.removed, s.err
}

func TestSweepAggregatesTargets(t *testing.T) {
	ws := &stubPruner{removed: []string{"/workspace/build_a"}}
	arch := &stubPruner{removed: []string{"/workspace/build/a.zip", "/workspace/build/b.zip"}}
	broken := &stubPruner{err: assert.AnError}

	j, err := New(time.Hour, 24*time.Hour,
		Target{Name: "workspaces", Pruner: ws},
		Target{Name: "broken", Pruner: broken},
		Target{Name: "archives", Pruner: arch},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Stop(context.Background()) })

	assert.Equal(t, 3, j.Sweep())
	assert.Equal(t, int64(24*time.Hour), ws.retention.Load())
	assert.Equal(t, int32(1), broken.calls.Load())
}

func TestStartRunsSweepImmediately(t *testing.T) {
	p := &stubPruner{}
	j, err := New(time.Hour, time.Minute, Target{Name: "workspaces", Pruner: p})
	require.NoError(t, err)

	j.Start(context.Background())
	require.Eventually(t, func() bool { return p.calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, j.Stop(context.Background()))
}
