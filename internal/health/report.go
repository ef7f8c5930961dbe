package health

import (
	"time"

	"github.com/keithlinneman/platform-demo/internal/probe"
)

// Dependency is a classified dependency of this service.
type Dependency struct {
	Name  string
	Type  CheckType
	Probe probe.Probe
}

// DependencyResult is the outcome of one probe in one evaluation.
type DependencyResult struct {
	Name     string
	Type     CheckType
	OK       bool
	Duration time.Duration
}

// State is UP when the probe succeeded and DOWN otherwise.
func (r DependencyResult) State() State {
	if r.OK {
		return StateUp
	}
	return StateDown
}

// Report is the composite result of one evaluation.
type Report struct {
	ServiceName  string             `json:"service_name"`
	State        State              `json:"service_state"`
	LastUpdated  time.Time          `json:"last_updated"`
	Dependencies []DependencyResult `json:"-"`
}

// Derive folds dependency results into a composite state.
// Rules are evaluated in order and the first match wins, so a critical
// failure always dominates:
//
//	any critical down     -> DOWN
//	any unclassified down -> UNKNOWN
//	any optional down     -> DEGRADED
//	all up                -> UP
//	no results            -> UNKNOWN
func Derive(results []DependencyResult) State {
	if len(results) == 0 {
		return StateUnknown
	}
	var unknownDown, optionalDown bool
	for _, r := range results {
		if r.OK {
			continue
		}
		switch r.Type {
		case CheckDependencyCritical:
			return StateDown
		case CheckDependencyOptional:
			optionalDown = true
		default:
			unknownDown = true
		}
	}
	switch {
	case unknownDown:
		return StateUnknown
	case optionalDown:
		return StateDegraded
	default:
		return StateUp
	}
}
