package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
}

func TestStageOrder_IsTheCanonicalNineStageSequence(t *testing.T) {
	want := []StageName{
		StageSubdomainEnum,
		StageDNSResolution,
		StageHTTPProbe,
		StagePortScan,
		StageWaybackURLs,
		StageJSAnalysis,
		StageGFPatterns,
		StageFuzzing,
		StageNucleiScan,
	}
	assert.Equal(t, want, StageOrder)
}

func TestStageIndex_ResolvesKnownStages(t *testing.T) {
	assert.Equal(t, 0, StageIndex(string(StageSubdomainEnum)))
	assert.Equal(t, 3, StageIndex(string(StagePortScan)))
	assert.Equal(t, len(StageOrder)-1, StageIndex(string(StageNucleiScan)))
}

func TestStageIndex_UnknownNameFallsBackToZero(t *testing.T) {
	assert.Equal(t, 0, StageIndex("not_a_real_stage"))
	assert.Equal(t, 0, StageIndex(""))
}
