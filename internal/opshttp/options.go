package opshttp

import "net/http"

// Gate reports a non-nil error while the service is draining.
type Gate interface {
	Err() error
}

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	// Gate drives /-/ready; nil is always ready.
	Gate    Gate
	OnPanic func() // runs after a recovered handler panic, e.g. the panic counter
}
