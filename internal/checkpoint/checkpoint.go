// Package checkpoint implements the dual-backed Checkpoint Store (C4):
// a per-scan JSON file alongside an opaque blob column on the scan row in
// the Artifact Store, guarded by a truncated SHA-256 digest.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hakim/reconcore/internal/models"
)

// ErrCorrupt is returned when a loaded checkpoint's digest does not match
// its payload.
var ErrCorrupt = errors.New("checkpoint: digest mismatch")

// BlobStore is the minimal Artifact Store contract the Checkpoint Store
// needs: read/write the opaque blob column on a scan row.
type BlobStore interface {
	SaveCheckpointBlob(scanID string, blob []byte) error
	ClearCheckpointBlob(scanID string) error
	GetScan(scanID string) (*models.Scan, error)
}

// Store manages checkpoint files under dir and mirrors them into a
// BlobStore-backed scan row.
type Store struct {
	dir   string
	blobs BlobStore
}

// New returns a Checkpoint Store rooted at dir (created if missing).
func New(dir string, blobs BlobStore) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: creating directory %s: %w", dir, err)
	}
	return &Store{dir: dir, blobs: blobs}, nil
}

func (s *Store) path(scanID string) string {
	return filepath.Join(s.dir, scanID+".json")
}

// Save writes a checkpoint for scanID: last completed stage, remaining
// stages in canonical order, and the accumulated per-stage results cache.
// The payload is written to file first, then to the scan row, bounding any
// inconsistency on crash to "newer file, older row" — the read path prefers
// the file for exactly that reason.
func (s *Store) Save(scanID, currentModule string, completed, pending []string, resultsCache map[string]json.RawMessage, moduleState map[string]any) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{
		ScanID:           scanID,
		Timestamp:        time.Now(),
		CurrentModule:    currentModule,
		CompletedModules: completed,
		PendingModules:   pending,
		ModuleState:      moduleState,
		ResultsCache:     resultsCache,
	}

	digest, err := computeDigest(cp)
	if err != nil {
		return nil, err
	}
	cp.Checksum = digest

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshaling payload for scan %s: %w", scanID, err)
	}

	if err := os.WriteFile(s.path(scanID), data, 0o644); err != nil {
		return nil, fmt.Errorf("checkpoint: writing file for scan %s: %w", scanID, err)
	}

	if err := s.blobs.SaveCheckpointBlob(scanID, data); err != nil {
		// The file write already succeeded; a failed row write leaves the
		// file as the authoritative copy, which Load already prefers.
		return cp, fmt.Errorf("checkpoint: saving blob for scan %s: %w", scanID, err)
	}

	return cp, nil
}

// Load restores a checkpoint for scanID, preferring the on-disk file and
// falling back to the scan row's blob column. A payload whose recomputed
// digest does not match the stored digest is rejected with ErrCorrupt; the
// caller is expected to discard it and restart the scan from stage 0.
func (s *Store) Load(scanID string) (*models.Checkpoint, error) {
	if data, err := os.ReadFile(s.path(scanID)); err == nil {
		cp, verr := verify(data)
		if verr == nil {
			return cp, nil
		}
		if !errors.Is(verr, ErrCorrupt) {
			return nil, verr
		}
		// Fall through to the row copy; file may have raced a partial write.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checkpoint: reading file for scan %s: %w", scanID, err)
	}

	sc, err := s.blobs.GetScan(scanID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: loading scan row %s: %w", scanID, err)
	}
	if sc == nil || len(sc.CheckpointData) == 0 {
		return nil, nil
	}

	cp, err := verify(sc.CheckpointData)
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// Clear removes both the file and the row blob after a scan completes
// successfully.
func (s *Store) Clear(scanID string) error {
	if err := os.Remove(s.path(scanID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: removing file for scan %s: %w", scanID, err)
	}
	return s.blobs.ClearCheckpointBlob(scanID)
}

func verify(data []byte) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshaling payload: %w", err)
	}
	want := cp.Checksum
	got, err := computeDigest(&cp)
	if err != nil {
		return nil, err
	}
	if want != got {
		return nil, ErrCorrupt
	}
	return &cp, nil
}

// computeDigest returns the first 16 hex characters of the SHA-256 digest
// over cp's JSON encoding with the Checksum field cleared.
func computeDigest(cp *models.Checkpoint) (string, error) {
	clone := *cp
	clone.Checksum = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshaling for digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
