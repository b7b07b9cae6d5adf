package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPreset_KnownNames(t *testing.T) {
	for _, name := range []string{"bug-bounty", "quick-recon", "internal-pentest"} {
		p, err := GetPreset(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Profile)
	}
}

func TestGetPreset_Unknown(t *testing.T) {
	_, err := GetPreset("does-not-exist")
	assert.Error(t, err)
}

func TestGetPreset_ReturnsDistinctStructPerCall(t *testing.T) {
	p1, err := GetPreset("quick-recon")
	require.NoError(t, err)
	p2, err := GetPreset("quick-recon")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
}

func TestBuiltinPresets_ReturnsAllThree(t *testing.T) {
	all := BuiltinPresets()
	assert.Len(t, all, 3)
	assert.Contains(t, all, "bug-bounty")
	assert.Contains(t, all, "quick-recon")
	assert.Contains(t, all, "internal-pentest")
}

func TestQuickReconSkipsExpensiveStages(t *testing.T) {
	p, err := GetPreset("quick-recon")
	require.NoError(t, err)
	assert.Contains(t, p.Skip, "nuclei_scan")
	assert.Contains(t, p.Skip, "fuzzing")
}

func TestInternalPentestStopsOnError(t *testing.T) {
	p, err := GetPreset("internal-pentest")
	require.NoError(t, err)
	assert.True(t, p.StopOnError)
	assert.Empty(t, p.Skip)
}
