package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/httpmw"
	"github.com/keithlinneman/platform-demo/internal/log"
)

// RouteRegistrar mounts a group of routes on the public router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type Options struct {
	Logger log.Logger
	Port   int

	// Routes are mounted in order; NotFound serves unmatched paths and
	// disallowed methods (chi defaults when nil).
	Routes   []RouteRegistrar
	NotFound http.Handler

	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// OnPanic runs after a recovered handler panic.
	OnPanic func()

	MaxBodyBytes  int64
	ShutdownGrace time.Duration
}
