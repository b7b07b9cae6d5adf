package taskqueue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/stageengine"
	"github.com/hakim/reconcore/internal/storage"
)

// fakeEngine satisfies the Engine interface without driving any real stage
// functions — RunScan blocks on a per-scan gate so tests can observe the
// queue's active/paused bookkeeping mid-run.
type fakeEngine struct {
	mu       sync.Mutex
	controls map[string]*stageengine.Control
	gates    map[string]chan struct{}
	runFunc  func(scanID string) error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		controls: make(map[string]*stageengine.Control),
		gates:    make(map[string]chan struct{}),
	}
}

func (f *fakeEngine) gateFor(scanID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[scanID]
	if !ok {
		g = make(chan struct{})
		f.gates[scanID] = g
	}
	return g
}

func (f *fakeEngine) ControlFor(scanID string) *stageengine.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.controls[scanID]
	if !ok {
		c = stageengine.NewControl()
		f.controls[scanID] = c
	}
	return c
}

func (f *fakeEngine) RunScan(ctx context.Context, scanID string) error {
	if f.runFunc != nil {
		return f.runFunc(scanID)
	}
	<-f.gateFor(scanID)
	return nil
}

func (f *fakeEngine) release(scanID string) {
	close(f.gateFor(scanID))
}

func newTestStoreWithScan(t *testing.T) (*storage.Store, *models.Scan) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))
	return store, sc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestQueue_AddRunsToCompletion(t *testing.T) {
	store, sc := newTestStoreWithScan(t)
	engine := newFakeEngine()
	engine.runFunc = func(scanID string) error { return nil }

	q := New(store, engine, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Add(sc.ID)
	waitFor(t, time.Second, func() bool {
		st := q.QueueStatus()
		return len(st.Active) == 0 && st.Pending == 0
	})

	cancel()
	q.Shutdown()
}

func TestQueue_PauseAndResumeActiveScan(t *testing.T) {
	store, sc := newTestStoreWithScan(t)
	engine := newFakeEngine()

	q := New(store, engine, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Add(sc.ID)
	waitFor(t, time.Second, func() bool {
		st := q.QueueStatus()
		return len(st.Active) == 1
	})

	require.NoError(t, q.Pause(sc.ID))
	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, got.Status)

	require.NoError(t, q.Resume(sc.ID))
	got, err = store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)

	engine.release(sc.ID)
	waitFor(t, time.Second, func() bool {
		st := q.QueueStatus()
		return len(st.Active) == 0
	})

	cancel()
	q.Shutdown()
}

func TestQueue_PauseRejectsInactiveScan(t *testing.T) {
	store, sc := newTestStoreWithScan(t)
	engine := newFakeEngine()
	q := New(store, engine, nil, nil)

	err := q.Pause(sc.ID)
	assert.Error(t, err)
}

func TestQueue_StopPendingScanNeverDequeued(t *testing.T) {
	store, sc := newTestStoreWithScan(t)
	blocker := newSecondScan(t, store)

	engine := newFakeEngine()
	q := New(store, engine, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	// Occupy the worker with the first scan so the second stays pending.
	q.Add(blocker.ID)
	waitFor(t, time.Second, func() bool {
		st := q.QueueStatus()
		return len(st.Active) == 1
	})

	q.Add(sc.ID)
	require.NoError(t, q.Stop(sc.ID))

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	engine.release(blocker.ID)
	cancel()
	q.Shutdown()
}

// newSecondScan registers another scan in the same store so it can compete
// with sc for the single worker slot.
func newSecondScan(t *testing.T, store *storage.Store) *models.Scan {
	t.Helper()
	target := models.NewTarget("other", "other.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))
	return sc
}

func TestQueue_PauseAllAndResumeOutage(t *testing.T) {
	store, sc := newTestStoreWithScan(t)
	engine := newFakeEngine()

	q := New(store, engine, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Add(sc.ID)
	waitFor(t, time.Second, func() bool {
		st := q.QueueStatus()
		return len(st.Active) == 1
	})

	q.PauseAll()
	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, got.Status)

	q.ResumeOutage()
	got, err = store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)

	engine.release(sc.ID)
	cancel()
	q.Shutdown()
}
