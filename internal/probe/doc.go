// Package probe defines the dependency probe capability used by the health
// aggregator and its implementations.
//
// A [Probe] reports whether one dependency is reachable and how long the
// check took. An unreachable dependency is a normal result (OK=false), never
// an error; errors are reserved for misconfiguration such as an uptime
// outside [0,100] ([ErrInvalidConfiguration]).
//
// [Simulated] stands in for real dependencies in demos. [HTTP], [GRPC],
// [Redis], [SQL] and [S3] check real ones; [New] builds any of them from a
// [Spec].
package probe
