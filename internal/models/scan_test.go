package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScan_DefaultsToNormalProfile(t *testing.T) {
	sc := NewScan("target-1", "")
	assert.Equal(t, ProfileNormal, sc.Profile)
}

func TestNewScan_PreservesExplicitProfile(t *testing.T) {
	sc := NewScan("target-1", ProfileAggressive)
	assert.Equal(t, ProfileAggressive, sc.Profile)
}

func TestNewScan_InitializesPendingStateAndEmptyMaps(t *testing.T) {
	sc := NewScan("target-1", ProfileStealth)

	require.NotEmpty(t, sc.ID)
	assert.Equal(t, "target-1", sc.TargetID)
	assert.Equal(t, StatusPending, sc.Status)
	assert.NotNil(t, sc.Progress)
	assert.Empty(t, sc.Progress)
	assert.NotNil(t, sc.StageErrors)
	assert.Empty(t, sc.StageErrors)
	assert.False(t, sc.CreatedAt.IsZero())
	assert.Nil(t, sc.StartedAt)
	assert.Nil(t, sc.CompletedAt)
	assert.False(t, sc.StopOnError)
	assert.False(t, sc.Resumed)
}

func TestNewScan_GeneratesDistinctIDs(t *testing.T) {
	a := NewScan("target-1", ProfileNormal)
	b := NewScan("target-1", ProfileNormal)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestHasCheckpoint_FalseWhenNoCheckpointData(t *testing.T) {
	sc := NewScan("target-1", ProfileNormal)
	assert.False(t, sc.HasCheckpoint())
}

func TestHasCheckpoint_TrueOnceCheckpointDataSet(t *testing.T) {
	sc := NewScan("target-1", ProfileNormal)
	sc.CheckpointData = []byte(`{"current_module":"http_probe"}`)
	assert.True(t, sc.HasCheckpoint())
}
