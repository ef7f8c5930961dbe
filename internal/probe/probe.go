package probe

import (
	"context"
	"time"
)

// Result is the outcome of one probe call.
type Result struct {
	OK       bool
	Duration time.Duration
}

// Probe checks one dependency, identified by name.
type Probe interface {
	Check(ctx context.Context, name string) (Result, error)
}

// Func adapts a function into a Probe.
type Func func(ctx context.Context, name string) (Result, error)

func (f Func) Check(ctx context.Context, name string) (Result, error) { return f(ctx, name) }

// Timed wraps an ok/err check and measures its wall-clock duration.
func Timed(fn func(context.Context) (bool, error)) Func {
	return func(ctx context.Context, _ string) (Result, error) {
		start := time.Now()
		ok, err := fn(ctx)
		d := time.Since(start)
		if err != nil {
			return Result{Duration: d}, err
		}
		return Result{OK: ok, Duration: d}, nil
	}
}

// Static returns a probe with a fixed outcome.
func Static(ok bool) Func {
	return Timed(func(context.Context) (bool, error) { return ok, nil })
}
