package secctx

import (
	"time"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// ElevationPhase is one state of spec §4.E's elevation state machine:
// Normal -> ElevatedRequested -> ElevatedActive(until T) -> Expired|Revoked.
type ElevationPhase string

const (
	PhaseNormal            ElevationPhase = "normal"
	PhaseElevatedRequested ElevationPhase = "elevated_requested"
	PhaseElevatedActive    ElevationPhase = "elevated_active"
	PhaseExpired           ElevationPhase = "expired"
	PhaseRevoked           ElevationPhase = "revoked"
)

// ElevationState tracks a request's (or a session's, if persisted across
// requests by the caller) break-glass elevation. An active elevation is
// silent to the handler — it only widens the allowed-resources set — but
// is stamped on every audit row for the request (spec §4.E).
type ElevationState struct {
	Phase          ElevationPhase
	Scope          string // elevation_scope: the resource type/relation the override widens
	Reason         string
	RequestedAt    time.Time
	ActiveUntil    time.Time
	OverrideID     string
}

// Request transitions Normal -> ElevatedRequested. Only valid from Normal
// or a terminal phase (Expired/Revoked), matching a fresh break-glass
// request after a prior one lapsed.
func (s ElevationState) Request(scope, reason string, at time.Time) (ElevationState, error) {
	if s.Phase != "" && s.Phase != PhaseNormal && s.Phase != PhaseExpired && s.Phase != PhaseRevoked {
		return s, rcerrors.Validation("secctx.elevation_invalid_transition", nil, "cannot request elevation from phase %q", s.Phase)
	}

	return ElevationState{Phase: PhaseElevatedRequested, Scope: scope, Reason: reason, RequestedAt: at}, nil
}

// Activate transitions ElevatedRequested -> ElevatedActive(until), bound
// to an approved override's id and its validity window (spec §4.D rule 1
// / §9 hard bound of 8h, enforced by the override store, not here).
func (s ElevationState) Activate(overrideID string, until time.Time) (ElevationState, error) {
	if s.Phase != PhaseElevatedRequested {
		return s, rcerrors.Validation("secctx.elevation_invalid_transition", nil, "cannot activate from phase %q", s.Phase)
	}

	s.Phase = PhaseElevatedActive
	s.OverrideID = overrideID
	s.ActiveUntil = until

	return s, nil
}

// Revoke transitions ElevatedActive -> Revoked, an explicit administrative
// action distinct from natural expiry.
func (s ElevationState) Revoke() (ElevationState, error) {
	if s.Phase != PhaseElevatedActive {
		return s, rcerrors.Validation("secctx.elevation_invalid_transition", nil, "cannot revoke from phase %q", s.Phase)
	}

	s.Phase = PhaseRevoked

	return s, nil
}

// Observe reconciles the state machine against the wall clock: an
// ElevatedActive phase whose window has passed transitions (purely as a
// read-time projection; no write occurs) to Expired.
func (s ElevationState) Observe(now time.Time) ElevationState {
	if s.Phase == PhaseElevatedActive && !now.Before(s.ActiveUntil) {
		s.Phase = PhaseExpired
	}

	return s
}

// Active reports whether the handler should see a widened allowed set.
func (s ElevationState) Active(now time.Time) bool {
	return s.Observe(now).Phase == PhaseElevatedActive
}
