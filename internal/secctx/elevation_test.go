package secctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevationRequestFromNormal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := ElevationState{}.Request("patient_record", "emergency room intake", now)
	require.NoError(t, err)

	assert.Equal(t, PhaseElevatedRequested, s.Phase)
	assert.Equal(t, "patient_record", s.Scope)
	assert.Equal(t, now, s.RequestedAt)
}

func TestElevationRequestRejectedFromActive(t *testing.T) {
	s := ElevationState{Phase: PhaseElevatedActive}

	_, err := s.Request("x", "y", time.Now())
	require.Error(t, err)
}

func TestElevationActivateRequiresRequested(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	_, err := ElevationState{Phase: PhaseNormal}.Activate("ov-1", until)
	require.Error(t, err)

	s, err := ElevationState{Phase: PhaseElevatedRequested}.Activate("ov-1", until)
	require.NoError(t, err)
	assert.Equal(t, PhaseElevatedActive, s.Phase)
	assert.Equal(t, "ov-1", s.OverrideID)
	assert.Equal(t, until, s.ActiveUntil)
}

func TestElevationRevokeRequiresActive(t *testing.T) {
	_, err := ElevationState{Phase: PhaseElevatedRequested}.Revoke()
	require.Error(t, err)

	s, err := ElevationState{Phase: PhaseElevatedActive}.Revoke()
	require.NoError(t, err)
	assert.Equal(t, PhaseRevoked, s.Phase)
}

func TestElevationObserveExpiresPastWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := ElevationState{Phase: PhaseElevatedActive, ActiveUntil: now.Add(-time.Minute)}

	observed := s.Observe(now)
	assert.Equal(t, PhaseExpired, observed.Phase)

	// Observe never mutates the receiver's own fields via a write back.
	assert.Equal(t, PhaseElevatedActive, s.Phase)
}

func TestElevationActiveReflectsWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	active := ElevationState{Phase: PhaseElevatedActive, ActiveUntil: now.Add(time.Minute)}
	assert.True(t, active.Active(now))

	expired := ElevationState{Phase: PhaseElevatedActive, ActiveUntil: now.Add(-time.Minute)}
	assert.False(t, expired.Active(now))

	assert.False(t, ElevationState{Phase: PhaseNormal}.Active(now))
}
