package health

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/probe"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// Aggregator evaluates the composite health of one service.
// It holds no state between evaluations and is safe for concurrent use.
type Aggregator struct {
	service  string
	deps     []Dependency
	recorder Recorder
	timeout  time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

type Option func(*Aggregator)

// WithRecorder sets where observations are sent. Defaults to NopRecorder.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTimeout bounds each probe call. A probe still running at the deadline
// is reported as down with the elapsed duration. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator validates deps and returns an aggregator for service.
func NewAggregator(service string, deps []Dependency, opts ...Option) (*Aggregator, error) {
	if service == "" {
		return nil, xerrors.New("health: service name is required")
	}
	seen := make(map[string]bool, len(deps))
	for i, d := range deps {
		switch {
		case d.Name == "":
			return nil, xerrors.Newf("health: dependency %d has no name", i)
		case seen[d.Name]:
			return nil, xerrors.Newf("health: duplicate dependency %q", d.Name)
		case d.Probe == nil:
			return nil, xerrors.Newf("health: dependency %q has no probe", d.Name)
		case d.Type == CheckSelf || !d.Type.valid():
			return nil, xerrors.Newf("health: dependency %q has invalid type %s", d.Name, d.Type)
		}
		seen[d.Name] = true
	}

	a := &Aggregator{
		service:  service,
		deps:     append([]Dependency(nil), deps...),
		recorder: NopRecorder{},
		now:      time.Now,
		tracer:   otel.Tracer("platform-demo/health"),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// ServiceName is the name reported in every Report.
func (a *Aggregator) ServiceName() string { return a.service }

// EvaluateSelf runs every dependency probe once and derives the composite
// state. Probes run concurrently; a fast failure does not cancel the others.
// A probe error (misconfiguration) aborts the evaluation: the self state is
// recorded as UNKNOWN and the error is returned with no report.
func (a *Aggregator) EvaluateSelf(ctx context.Context) (Report, error) {
	ctx, span := a.tracer.Start(ctx, "health.evaluate_self",
		trace.WithAttributes(attribute.String("service.name", a.service)))
	defer span.End()

	results := make([]DependencyResult, len(a.deps))
	done := make([]bool, len(a.deps))
	var g errgroup.Group
	for i, d := range a.deps {
		g.Go(func() error {
			res, err := a.check(ctx, d)
			if err != nil {
				return xerrors.Wrapf(err, "check %s", d.Name)
			}
			results[i], done[i] = res, true
			return nil
		})
	}
	err := g.Wait()

	for i, r := range results {
		if !done[i] {
			continue
		}
		a.recorder.ObserveDependency(a.service, r.Type, r.Name, r.State(), r.Duration)
	}

	L := log.FromContext(ctx)
	if err != nil {
		a.recorder.ObserveSelf(a.service, a.service, StateUnknown)
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		L.Error(ctx, err, "health evaluation failed", "service_name", a.service)
		return Report{}, err
	}

	state := Derive(results)
	a.recorder.ObserveSelf(a.service, a.service, state)
	span.SetAttributes(attribute.String("health.state", state.String()))

	if state != StateUp {
		kv := []any{"service_name", a.service, "service_state", state.String()}
		for _, r := range results {
			if !r.OK {
				kv = append(kv, "failed_"+r.Name, r.Type.String())
			}
		}
		L.Warn(ctx, "service not healthy", kv...)
	} else {
		L.Debug(ctx, "service healthy", "service_name", a.service)
	}

	return Report{
		ServiceName:  a.service,
		State:        state,
		LastUpdated:  a.now(),
		Dependencies: results,
	}, nil
}

func (a *Aggregator) check(ctx context.Context, d Dependency) (DependencyResult, error) {
	ctx, span := a.tracer.Start(ctx, "health.probe", trace.WithAttributes(
		attribute.String("health.check.name", d.Name),
		attribute.String("health.check.type", d.Type.String()),
	))
	defer span.End()

	start := time.Now()
	res, err := a.run(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DependencyResult{}, err
	}
	// probes that do not time themselves get the aggregator's measurement
	if res.Duration <= 0 {
		res.Duration = time.Since(start)
	}
	span.SetAttributes(attribute.Bool("health.check.ok", res.OK))
	return DependencyResult{Name: d.Name, Type: d.Type, OK: res.OK, Duration: res.Duration}, nil
}

// run calls the probe, bounded by the configured timeout if any.
func (a *Aggregator) run(ctx context.Context, d Dependency) (probe.Result, error) {
	if a.timeout <= 0 {
		return d.Probe.Check(ctx, d.Name)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		res probe.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := d.Probe.Check(ctx, d.Name)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		L := log.FromContext(ctx)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			L.Warn(ctx, "dependency probe timed out",
				"health_check_name", d.Name,
				"timeout", a.timeout.String(),
			)
		} else {
			// caller went away, usually a disconnected client
			L.Debug(ctx, "dependency probe cancelled",
				"health_check_name", d.Name,
				"reason", ctx.Err().Error(),
			)
		}
		return probe.Result{OK: false, Duration: time.Since(start)}, nil
	}
}
