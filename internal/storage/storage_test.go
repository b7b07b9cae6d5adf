package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetTarget(t *testing.T) {
	store := newTestStore(t)

	target := models.NewTarget("acme", "acme.com")
	target.Include = []string{"*.acme.com"}
	target.Exclude = []string{"staging.acme.com"}
	target.IPRanges = []string{"10.0.0.0/8"}

	require.NoError(t, store.CreateTarget(target))

	got, err := store.GetTarget(target.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, target.Domain, got.Domain)
	assert.Equal(t, target.Include, got.Include)
	assert.Equal(t, target.Exclude, got.Exclude)
	assert.Equal(t, target.IPRanges, got.IPRanges)
}

func TestGetTarget_NotFound(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetTarget("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListTargets(t *testing.T) {
	store := newTestStore(t)
	a := models.NewTarget("a", "a.com")
	b := models.NewTarget("b", "b.com")
	require.NoError(t, store.CreateTarget(a))
	require.NoError(t, store.CreateTarget(b))

	targets, err := store.ListTargets()
	require.NoError(t, err)
	assert.Len(t, targets, 2)
}

func TestCreateAndGetScan(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))

	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.ProfileNormal, got.Profile)
}

func TestUpdateScanState_FreezesAfterTerminal(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	require.NoError(t, store.MarkTerminal(sc.ID, models.StatusCompleted, ""))

	require.NoError(t, store.UpdateScanState(sc.ID, models.StatusRunning, "dns_resolution", nil))

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status, "a terminal scan's status must not be overwritten")
}

func TestAppendStageRun_Idempotent(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	require.NoError(t, store.AppendStageRun(sc.ID, "dns_resolution"))
	require.NoError(t, store.AppendStageRun(sc.ID, "dns_resolution"))

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dns_resolution"}, got.StagesRun)
}

func TestRecordStageError(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	require.NoError(t, store.RecordStageError(sc.ID, "port_scan", "tool exited non-zero"))

	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "tool exited non-zero", got.StageErrors["port_scan"])
}

func TestCheckpointBlobRoundTrip(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	require.NoError(t, store.SaveCheckpointBlob(sc.ID, []byte("opaque-blob")))
	got, err := store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("opaque-blob"), got.CheckpointData)
	assert.True(t, got.HasCheckpoint())

	require.NoError(t, store.ClearCheckpointBlob(sc.ID))
	got, err = store.GetScan(sc.ID)
	require.NoError(t, err)
	assert.False(t, got.HasCheckpoint())
}

func TestAddAndListFindings(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	f := models.NewFinding(sc.ID, "Reflected XSS", models.SeverityHigh)
	require.NoError(t, store.AddFinding(f))

	findings, err := store.ListFindings(sc.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "Reflected XSS", findings[0].Title)
}

func TestUpdateFindingTriage(t *testing.T) {
	store := newTestStore(t)
	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))
	sc := models.NewScan(target.ID, models.ProfileNormal)
	require.NoError(t, store.CreateScan(sc))

	f := models.NewFinding(sc.ID, "Possible SSRF", models.SeverityMedium)
	require.NoError(t, store.AddFinding(f))

	require.NoError(t, store.UpdateFindingTriage(f.ID, true, models.SeverityLow, "response matches known benign pattern"))

	findings, err := store.ListFindings(sc.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].FalsePositive)
	assert.Equal(t, models.SeverityLow, findings[0].Severity)
	assert.Equal(t, "response matches known benign pattern", findings[0].Rationale)
}
