package health

import "time"

// Recorder receives health observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// ObserveSelf records the composite state; name is the self check name
	// (the service name).
	ObserveSelf(service, name string, state State)
	// ObserveDependency records one dependency probe and its duration.
	ObserveDependency(service string, typ CheckType, name string, state State, d time.Duration)
}

// NopRecorder discards observations.
type NopRecorder struct{}

func (NopRecorder) ObserveSelf(string, string, State)                                {}
func (NopRecorder) ObserveDependency(string, CheckType, string, State, time.Duration) {}
