package stageengine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/checkpoint"
	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/storage"
)

// newTestEngine wires a real sqlite-backed Store and Checkpoint Store
// rooted under t.TempDir() — no external tools are invoked since every
// test below replaces stageFuncs with fakes.
func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cp, err := checkpoint.New(t.TempDir(), store)
	require.NoError(t, err)

	cfg := &config.Config{}
	return New(store, cp, nil, cfg), store
}

// newTestScan builds a pending scan for a freshly registered target but
// does NOT persist it — callers mutate fields (SkipStages, StopOnError)
// before the single CreateScan call.
func newTestScan(t *testing.T, store *storage.Store) *models.Scan {
	t.Helper()
	target := models.NewTarget("example", "example.com")
	require.NoError(t, store.CreateTarget(target))

	return models.NewScan(target.ID, models.ProfileNormal)
}

// withStageFuncs temporarily swaps the package-level stage registry for
// the duration of a test.
func withStageFuncs(t *testing.T, fakes map[string]StageFunc) {
	t.Helper()
	orig := stageFuncs
	stageFuncs = fakes
	t.Cleanup(func() { stageFuncs = orig })
}

func okStage(name string) StageFunc {
	return func(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}
}

func TestRunScan_CompletesAllStages(t *testing.T) {
	e, store := newTestEngine(t)
	sc := newTestScan(t, store)
	require.NoError(t, store.CreateScan(sc))

	fakes := make(map[string]StageFunc, len(stageOrder()))
	for _, name := range stageOrder() {
		fakes[name] = okStage(name)
	}
	withStageFuncs(t, fakes)

	err := e.RunScan(context.Background(), sc.ID)
	require.NoError(t, err)

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Len(t, got.StagesRun, len(stageOrder()))
}

func TestRunScan_SkipsConfiguredStages(t *testing.T) {
	e, store := newTestEngine(t)
	sc := newTestScan(t, store)
	sc.SkipStages = []string{"fuzzing", "nuclei_scan"}
	require.NoError(t, store.CreateScan(sc))

	fakes := make(map[string]StageFunc, len(stageOrder()))
	for _, name := range stageOrder() {
		fakes[name] = okStage(name)
	}
	withStageFuncs(t, fakes)

	err := e.RunScan(context.Background(), sc.ID)
	require.NoError(t, err)

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Contains(t, got.StagesRun, "fuzzing")
	require.Contains(t, got.StagesRun, "nuclei_scan")
}

func TestRunScan_AbsorbsStageErrorByDefault(t *testing.T) {
	e, store := newTestEngine(t)
	sc := newTestScan(t, store)
	require.NoError(t, store.CreateScan(sc))

	fakes := make(map[string]StageFunc, len(stageOrder()))
	for _, name := range stageOrder() {
		fakes[name] = okStage(name)
	}
	fakes["port_scan"] = func(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
		return nil, ErrToolExitNonZero
	}
	withStageFuncs(t, fakes)

	err := e.RunScan(context.Background(), sc.ID)
	require.NoError(t, err)

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
	require.Contains(t, got.StagesRun, "port_scan")
	require.NotEmpty(t, got.StageErrors["port_scan"])
}

func TestRunScan_StopOnErrorFailsScan(t *testing.T) {
	e, store := newTestEngine(t)
	sc := newTestScan(t, store)
	sc.StopOnError = true
	require.NoError(t, store.CreateScan(sc))

	fakes := make(map[string]StageFunc, len(stageOrder()))
	for _, name := range stageOrder() {
		fakes[name] = okStage(name)
	}
	fakes["http_probe"] = func(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
		return nil, ErrToolTimeout
	}
	withStageFuncs(t, fakes)

	err := e.RunScan(context.Background(), sc.ID)
	require.Error(t, err)

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.NotContains(t, got.StagesRun, "http_probe")
}

func TestRunScan_StoreWriteFailureIsAlwaysFatal(t *testing.T) {
	e, store := newTestEngine(t)
	sc := newTestScan(t, store)
	require.NoError(t, store.CreateScan(sc))

	fakes := make(map[string]StageFunc, len(stageOrder()))
	for _, name := range stageOrder() {
		fakes[name] = okStage(name)
	}
	fakes["dns_resolution"] = func(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
		return nil, ErrStoreWriteFailure
	}
	withStageFuncs(t, fakes)

	err := e.RunScan(context.Background(), sc.ID)
	require.Error(t, err)

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
}

func TestIsSkipped(t *testing.T) {
	require.True(t, isSkipped("fuzzing", []string{"fuzzing", "nuclei_scan"}))
	require.False(t, isSkipped("fuzzing", nil))
	require.False(t, isSkipped("fuzzing", []string{"nuclei_scan"}))
}
