package healthhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/health"
	"github.com/keithlinneman/platform-demo/internal/probe"
)

type evalFunc func(ctx context.Context) (health.Report, error)

func (f evalFunc) EvaluateSelf(ctx context.Context) (health.Report, error) { return f(ctx) }

func fixedReport(s health.State) Evaluator {
	return evalFunc(func(context.Context) (health.Report, error) {
		return health.Report{
			ServiceName: "platform-demo",
			State:       s,
			LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}, nil
	})
}

func newRouter(api *API) chi.Router {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q is not json: %v", rec.Body.String(), err)
	}
	return body
}

func TestPing(t *testing.T) {
	rec := get(t, newRouter(NewAPI(nil, nil)), "/-/ping")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong\n" {
		t.Fatalf("ping = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthz_StatusMapping(t *testing.T) {
	tests := []struct {
		state health.State
		code  int
	}{
		{health.StateUp, http.StatusOK},
		{health.StateDegraded, http.StatusOK},
		{health.StateDown, http.StatusInternalServerError},
		{health.StateUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			rec := get(t, newRouter(NewAPI(fixedReport(tt.state), nil)), "/healthz")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			body := decode(t, rec)
			if body["service_state"] != tt.state.String() {
				t.Errorf("service_state = %v, want %s", body["service_state"], tt.state)
			}
		})
	}
}

func TestHealthz_Body(t *testing.T) {
	rec := get(t, newRouter(NewAPI(fixedReport(health.StateUp), nil)), "/healthz")

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	body := decode(t, rec)
	if len(body) != 3 {
		t.Errorf("want exactly 3 fields, got %v", body)
	}
	if body["service_name"] != "platform-demo" {
		t.Errorf("service_name = %v", body["service_name"])
	}
	if body["last_updated"] != "2026-01-02T03:04:05Z" {
		t.Errorf("last_updated = %v", body["last_updated"])
	}
}

func TestHealthz_EvaluationError(t *testing.T) {
	ev := evalFunc(func(context.Context) (health.Report, error) {
		return health.Report{}, errors.New("check db: invalid configuration")
	})
	rec := get(t, newRouter(NewAPI(ev, nil)), "/healthz")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decode(t, rec)
	if body["error"] != "check db: invalid configuration" {
		t.Errorf("error = %v", body["error"])
	}
	if _, ok := body["service_state"]; ok {
		t.Error("error response must not carry a partial report")
	}
}

func TestHealthz_NoEvaluator(t *testing.T) {
	rec := get(t, newRouter(NewAPI(nil, nil)), "/healthz")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealthz_EvaluatesEveryRequest(t *testing.T) {
	calls := 0
	ev := evalFunc(func(context.Context) (health.Report, error) {
		calls++
		return health.Report{ServiceName: "s", State: health.StateUp}, nil
	})
	r := newRouter(NewAPI(ev, nil))
	get(t, r, "/healthz")
	get(t, r, "/healthz")
	if calls != 2 {
		t.Fatalf("EvaluateSelf called %d times, want 2", calls)
	}
}

func TestReadyz_Gate(t *testing.T) {
	var gate health.ShutdownGate
	r := newRouter(NewAPI(fixedReport(health.StateDegraded), &gate))

	if rec := get(t, r, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("open gate: status = %d, want 200", rec.Code)
	}

	gate.Set("shutting down")
	rec := get(t, r, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed gate: status = %d, want 503", rec.Code)
	}
	if body := decode(t, rec); body["error"] != "shutting down" {
		t.Errorf("error = %v", body["error"])
	}

	// liveness is unaffected by draining
	if rec := get(t, r, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz while draining: status = %d, want 200", rec.Code)
	}

	gate.Clear()
	if rec := get(t, r, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("cleared gate: status = %d, want 200", rec.Code)
	}
}

func TestHealthz_CountsRequests(t *testing.T) {
	var methods []string
	api := NewAPI(fixedReport(health.StateUp), nil)
	api.OnHealthz = func(method string) { methods = append(methods, method) }
	r := newRouter(api)

	get(t, r, "/healthz")
	get(t, r, "/readyz")
	get(t, r, "/-/ping")

	if len(methods) != 1 || methods[0] != http.MethodGet {
		t.Fatalf("OnHealthz calls = %v, want [GET]", methods)
	}
}

func TestHealthz_WithAggregator(t *testing.T) {
	agg, err := health.NewAggregator("platform-demo", []health.Dependency{
		{Name: "db", Type: health.CheckDependencyCritical, Probe: probe.Static(true)},
		{Name: "foo", Type: health.CheckDependencyOptional, Probe: probe.Static(false)},
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	rec := get(t, newRouter(NewAPI(agg, nil)), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for degraded", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"service_state":"DEGRADED"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHealthz_InvalidUptimeIsServerError(t *testing.T) {
	agg, err := health.NewAggregator("platform-demo", []health.Dependency{
		{Name: "db", Type: health.CheckDependencyCritical, Probe: probe.NewSimulated(true, 150)},
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	rec := get(t, newRouter(NewAPI(agg, nil)), "/healthz")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decode(t, rec); !strings.Contains(body["error"].(string), "invalid configuration") {
		t.Fatalf("error = %v", body["error"])
	}
}
