// Package health derives the composite health state of this service from its
// dependency probes.
//
// An [Aggregator] owns a fixed, classified set of dependencies. Each call to
// [Aggregator.EvaluateSelf] runs every probe once, concurrently, waits for all
// of them and folds the outcomes into a single [State] with [Derive]. Nothing
// is cached between evaluations: the composite state is a pure function of
// the results of that evaluation.
//
// Observations go to an injected [Recorder] (the Prometheus-backed
// metrics.ServerMetrics in production, [NopRecorder] in tests).
//
// [ShutdownGate] flips readiness to false during drain so load balancers and
// orchestrators stop routing before in-flight requests finish.
package health
