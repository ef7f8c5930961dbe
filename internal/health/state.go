package health

import (
	"fmt"
	"net/http"
)

// State is the composite or per-dependency health state.
// Numeric values are stable and used as histogram observations.
type State int

const (
	StateUp State = iota
	StateUnknown
	StateDegraded
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "UP"
	case StateUnknown:
		return "UNKNOWN"
	case StateDegraded:
		return "DEGRADED"
	case StateDown:
		return "DOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Value is the numeric code reported to metrics (0..3).
func (s State) Value() float64 { return float64(s) }

func (s State) MarshalText() ([]byte, error) {
	switch s {
	case StateUp, StateUnknown, StateDegraded, StateDown:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("health: cannot marshal invalid state %d", int(s))
	}
}

// StatusCode maps a state to the HTTP status returned to probes:
// UP and DEGRADED are 200, DOWN and UNKNOWN are 500.
func (s State) StatusCode() int {
	switch s {
	case StateUp, StateDegraded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// CheckType classifies a check for aggregation and for the
// health_check_type metric label.
type CheckType int

const (
	CheckSelf CheckType = iota
	CheckUnknown
	CheckDependencyOptional
	CheckDependencyCritical
)

func (t CheckType) String() string {
	switch t {
	case CheckSelf:
		return "SELF"
	case CheckUnknown:
		return "UNKNOWN"
	case CheckDependencyOptional:
		return "DEPENDENCY_OPTIONAL"
	case CheckDependencyCritical:
		return "DEPENDENCY_CRITICAL"
	default:
		return fmt.Sprintf("CheckType(%d)", int(t))
	}
}

func (t CheckType) valid() bool {
	return t >= CheckSelf && t <= CheckDependencyCritical
}
