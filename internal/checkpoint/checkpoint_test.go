package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/models"
)

// fakeBlobStore is an in-memory BlobStore used to exercise Save/Load/Clear
// without a real Artifact Store.
type fakeBlobStore struct {
	scans map[string]*models.Scan
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{scans: map[string]*models.Scan{}}
}

func (f *fakeBlobStore) SaveCheckpointBlob(scanID string, blob []byte) error {
	sc, ok := f.scans[scanID]
	if !ok {
		sc = &models.Scan{ID: scanID}
		f.scans[scanID] = sc
	}
	sc.CheckpointData = blob
	return nil
}

func (f *fakeBlobStore) ClearCheckpointBlob(scanID string) error {
	if sc, ok := f.scans[scanID]; ok {
		sc.CheckpointData = nil
	}
	return nil
}

func (f *fakeBlobStore) GetScan(scanID string) (*models.Scan, error) {
	return f.scans[scanID], nil
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	cache := map[string]json.RawMessage{"subdomain_enum": json.RawMessage(`{"count":5}`)}
	saved, err := store.Save("scan-1", "dns_resolution", []string{"subdomain_enum"}, []string{"dns_resolution", "http_probe"}, cache, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.Checksum)

	loaded, err := store.Load("scan-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "dns_resolution", loaded.CurrentModule)
	assert.Equal(t, []string{"subdomain_enum"}, loaded.CompletedModules)
	assert.Equal(t, saved.Checksum, loaded.Checksum)
}

func TestLoad_PrefersFileOverRow(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	_, err = store.Save("scan-1", "dns_resolution", nil, nil, nil, nil)
	require.NoError(t, err)

	// Corrupt only the row copy — Load must still succeed via the file.
	blobs.scans["scan-1"].CheckpointData = []byte(`{"not":"valid"}`)

	loaded, err := store.Load("scan-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "dns_resolution", loaded.CurrentModule)
}

func TestLoad_FallsBackToRowWhenFileMissing(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	_, err = store.Save("scan-1", "http_probe", nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(store.dir, "scan-1.json")))

	loaded, err := store.Load("scan-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "http_probe", loaded.CurrentModule)
}

func TestLoad_CorruptDigestReturnsErrCorrupt(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	_, err = store.Save("scan-1", "dns_resolution", nil, nil, nil, nil)
	require.NoError(t, err)

	path := filepath.Join(store.dir, "scan-1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cp models.Checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	cp.CurrentModule = "tampered"
	tampered, err := json.Marshal(&cp)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))
	blobs.scans["scan-1"].CheckpointData = tampered

	_, err = store.Load("scan-1")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_NoCheckpointReturnsNil(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	loaded, err := store.Load("never-ran")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestClear_RemovesFileAndRow(t *testing.T) {
	blobs := newFakeBlobStore()
	store, err := New(t.TempDir(), blobs)
	require.NoError(t, err)

	_, err = store.Save("scan-1", "dns_resolution", nil, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.Clear("scan-1"))

	_, statErr := os.Stat(filepath.Join(store.dir, "scan-1.json"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, blobs.scans["scan-1"].CheckpointData)
}
