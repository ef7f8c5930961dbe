// Package ratelimit provides per-IP rate limiting for the public port with
// background eviction of idle entries.
//
// It is single-instance and in-memory, meant to stop one client from
// flooding /healthz evaluations and the demo pages. Distributed floods need
// upstream filtering.
package ratelimit
