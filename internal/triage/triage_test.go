package triage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
)

func TestTriage_DisabledReturnsZeroResult(t *testing.T) {
	a := New(config.TriageConfig{Disabled: true}, nil)
	f := models.NewFinding("scan-1", "Reflected XSS", models.SeverityHigh)

	got := a.Triage(context.Background(), f)
	assert.Equal(t, Result{}, got)
}

func TestTriage_NilFindingReturnsZeroResult(t *testing.T) {
	a := New(config.TriageConfig{}, nil)
	got := a.Triage(context.Background(), nil)
	assert.Equal(t, Result{}, got)
}

func TestAutoScale_PicksLowestTierWhenMemoryNeverClearsHigherThresholds(t *testing.T) {
	a := New(config.TriageConfig{
		Models: []config.ModelTier{
			{ThresholdMB: math.MaxInt64, Model: "claude-opus-4"},
			{ThresholdMB: 0, Model: "claude-haiku-4"},
		},
	}, nil)
	assert.Equal(t, "claude-haiku-4", a.autoScale())
}

func TestAutoScale_PicksHighestQualifyingTier(t *testing.T) {
	a := New(config.TriageConfig{
		Models: []config.ModelTier{
			{ThresholdMB: 0, Model: "claude-haiku-4"},
			{ThresholdMB: 1, Model: "claude-opus-4"},
		},
	}, nil)
	assert.Equal(t, "claude-opus-4", a.autoScale())
}

func TestAutoScale_FallsBackWhenNoModelConfigured(t *testing.T) {
	a := New(config.TriageConfig{}, nil)
	assert.NotEmpty(t, a.autoScale())
}

func TestExtractJSON_StripsSurroundingProse(t *testing.T) {
	in := `Sure thing, here's my answer: {"false_positive": true, "severity": "low", "rationale": "benign"} Hope that helps!`
	got := extractJSON(in)
	assert.Equal(t, `{"false_positive": true, "severity": "low", "rationale": "benign"}`, got)
}

func TestExtractJSON_NoBracesReturnsInputUnchanged(t *testing.T) {
	in := "not json at all"
	assert.Equal(t, in, extractJSON(in))
}

func TestNew_IdleUnloadFallsBackOnInvalidDuration(t *testing.T) {
	a := New(config.TriageConfig{IdleUnloadAfter: "not-a-duration"}, nil)
	assert.Greater(t, a.idleAfter.Seconds(), float64(0))
}
