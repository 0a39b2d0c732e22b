// goclient - multi-backend replication client for experiment tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/trackforge/goclient

package backend

// Health is a sealed union over a backend's three observable states.
// Its isHealth method is unexported, so only types in this package can
// implement it; the members are the three exported state types
// declared below, and callers switch on concrete type.
type Health interface {
	isHealth()
	String() string
}

// HealthyState is the initial and fully-recovered state: the backend
// is routable and counted as authoritative for reads/writes.
type HealthyState struct{}

func (HealthyState) isHealth()     {}
func (HealthyState) String() string { return "healthy" }

// FailingState counts consecutive failures below the degrade
// threshold. A backend in this state is still routable.
type FailingState struct {
	Count int
}

func (FailingState) isHealth()     {}
func (f FailingState) String() string { return "failing" }

// DegradedState marks a backend that has failed FailureThreshold or
// more times consecutively. Degraded backends are not routable; they
// only recover via an explicit successful health ping.
type DegradedState struct {
	Count int
}

func (DegradedState) isHealth()     {}
func (DegradedState) String() string { return "degraded" }

// FailureThreshold is the consecutive-failure count at which a
// backend transitions from Failing to Degraded, grounded on the
// original implementation's FAILURE_THRESHOLD constant.
const FailureThreshold = 3

// Transition is the pure state-transition function for a backend's
// health: given the current state and whether the most recent
// operation against that backend succeeded, it returns the next
// state. A successful operation always resets to HealthyState,
// including recovery from DegradedState via a health ping. A failed
// operation increments the consecutive-failure count, escalating to
// DegradedState once FailureThreshold is reached.
func Transition(current Health, success bool) Health {
	if success {
		return HealthyState{}
	}

	switch s := current.(type) {
	case HealthyState:
		return FailingState{Count: 1}
	case FailingState:
		next := s.Count + 1
		if next >= FailureThreshold {
			return DegradedState{Count: next}
		}
		return FailingState{Count: next}
	case DegradedState:
		return DegradedState{Count: s.Count + 1}
	default:
		return FailingState{Count: 1}
	}
}

// Routable reports whether a backend in health h should be considered
// for read/write dispatch: Healthy and Failing backends are routable,
// Degraded backends are not until a health ping recovers them.
func Routable(h Health) bool {
	switch h.(type) {
	case HealthyState, FailingState:
		return true
	default:
		return false
	}
}
