package healthhttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/health"
	"github.com/keithlinneman/platform-demo/internal/httpmw"
	"github.com/keithlinneman/platform-demo/internal/log"
)

// Evaluator computes a fresh health report. *health.Aggregator implements it.
type Evaluator interface {
	EvaluateSelf(ctx context.Context) (health.Report, error)
}

// Gate reports a non-nil error while the service is draining.
type Gate interface {
	Err() error
}

// API implements httpserver.RouteRegistrar for health endpoints.
type API struct {
	Evaluator Evaluator
	Gate      Gate
	// OnHealthz is called for every /healthz request with the request method.
	OnHealthz func(method string)
}

// NewAPI constructs a health API. gate may be nil.
func NewAPI(ev Evaluator, gate Gate) *API {
	return &API{Evaluator: ev, Gate: gate}
}

type errorBody struct {
	Error string `json:"error"`
}

// RegisterRoutes attaches /-/ping, /healthz and /readyz to the main chi router.
func (api *API) RegisterRoutes(router chi.Router) {
	r := router.With(httpmw.Scope("health"))

	// super-dumb liveness: "is the process up and answering?"
	r.Method(http.MethodGet, "/-/ping",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("pong\n"))
		}),
	)

	// composite self state, evaluated fresh on every request
	r.Method(http.MethodGet, "/healthz", http.HandlerFunc(api.healthz))

	// same as /healthz but fails fast once shutdown has started
	r.Method(http.MethodGet, "/readyz",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if api.Gate != nil {
				if err := api.Gate.Err(); err != nil {
					writeJSON(r.Context(), w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
					return
				}
			}
			api.healthz(w, r)
		}),
	)
}

func (api *API) healthz(w http.ResponseWriter, r *http.Request) {
	if api.OnHealthz != nil && r.URL.Path == "/healthz" {
		api.OnHealthz(r.Method)
	}
	ctx := r.Context()
	if api.Evaluator == nil {
		writeJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: "no health evaluator configured"})
		return
	}

	rep, err := api.Evaluator.EvaluateSelf(ctx)
	if err != nil {
		// the evaluator has already logged and recorded the failure
		writeJSON(ctx, w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(ctx, w, rep.State.StatusCode(), rep)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "encode health response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode health response"}`)
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
