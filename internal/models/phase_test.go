package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOf(t *testing.T) {
	tests := []struct {
		draft, prerelease bool
		want              Phase
	}{
		{draft: true, prerelease: false, want: PhaseDevelopment},
		{draft: true, prerelease: true, want: PhaseDevelopment},
		{draft: false, prerelease: true, want: PhaseStaging},
		{draft: false, prerelease: false, want: PhaseProduction},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PhaseOf(tt.draft, tt.prerelease), "draft=%v prerelease=%v", tt.draft, tt.prerelease)
	}
}

func TestPhaseFlagsRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseDevelopment, PhaseStaging, PhaseProduction} {
		draft, prerelease := p.Flags()
		assert.Equal(t, p, PhaseOf(draft, prerelease))
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase(" Staging ")
	require.NoError(t, err)
	assert.Equal(t, PhaseStaging, p)

	_, err = ParsePhase("beta")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "phase", verr.Field)
}

func TestSummarizeRuns(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	runs := []WorkflowRun{
		{Status: "completed", Conclusion: "success", StartedAt: base, UpdatedAt: base.Add(2 * time.Minute)},
		{Status: "completed", Conclusion: "failure", CreatedAt: base, UpdatedAt: base.Add(4 * time.Minute)},
		{Status: "completed", Conclusion: "cancelled", StartedAt: base, UpdatedAt: base.Add(6 * time.Minute)},
		{Status: "in_progress", StartedAt: base},
	}

	stats := SummarizeRuns(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.InProgress)
	assert.InDelta(t, 1.0/3.0, stats.SuccessRate, 0.0001)
	assert.Equal(t, 4*time.Minute, stats.AverageDuration)
}

func TestSummarizeRunsEmpty(t *testing.T) {
	stats := SummarizeRuns(nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate)
}
