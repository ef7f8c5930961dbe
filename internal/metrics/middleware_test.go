package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// recorder

func TestRecorder(t *testing.T) {
	rw := &recorder{ResponseWriter: httptest.NewRecorder()}
	if rw.code() != http.StatusOK {
		t.Fatalf("code before write = %d, want 200", rw.code())
	}

	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 || rw.bytes != 5 {
		t.Fatalf("n=%d bytes=%d err=%v", n, rw.bytes, err)
	}
	rw.WriteHeader(http.StatusTeapot) // superfluous, first status wins
	if rw.code() != http.StatusOK {
		t.Fatalf("code = %d, want 200", rw.code())
	}
}

// Middleware

func TestMiddleware_UsesChiRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := m.Middleware(r)

	serve(t, h, "GET", "/items/1")
	serve(t, h, "GET", "/items/2")

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/items/{id}", "200")); got != 2 {
		t.Fatalf("http_requests_total{route=/items/{id}} = %f, want 2", got)
	}
}

func TestMiddleware_UnmatchedPathsShareALabel(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})
	h := m.Middleware(r)

	serve(t, h, "GET", "/wp-admin.php")
	serve(t, h, "GET", "/.env")

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "404")); got != 2 {
		t.Fatalf("http_requests_total{route=unmatched} = %f, want 2", got)
	}
}

func TestMiddleware_OutsideChi(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	serve(t, h, "GET", "/plain")

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "200")); got != 1 {
		t.Fatalf("http_requests_total = %f, want 1", got)
	}
}

func TestMiddleware_5xxIncrementsErrorCounter(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := m.Middleware(r)

	serve(t, h, "GET", "/broken")

	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/broken")); got != 1 {
		t.Fatalf("http_errors_total = %f, want 1", got)
	}
}

func TestMiddleware_UnhealthyProbeIsNotAnError(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := m.Middleware(r)

	serve(t, h, "GET", "/healthz")

	if n := testutil.CollectAndCount(m.errorsTotal); n != 0 {
		t.Fatalf("http_errors_total series = %d, want 0", n)
	}
	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/healthz", "500")); got != 1 {
		t.Fatalf("http_requests_total{status=500} = %f, want 1", got)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(m.inflight)
	}))

	serve(t, h, "GET", "/")

	if during != 1 {
		t.Fatalf("inflight during request = %f, want 1", during)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight after request = %f, want 0", got)
	}
}

// traceExemplar

func TestTraceExemplar_NoTrace(t *testing.T) {
	if ex := traceExemplar(httptest.NewRequest("GET", "/", nil).Context()); ex != nil {
		t.Fatalf("exemplar = %v, want nil", ex)
	}
}

func TestTraceExemplar_ValidSampled(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(httptest.NewRequest("GET", "/", nil).Context(), sc)

	ex := traceExemplar(ctx)
	if ex["trace_id"] != sc.TraceID().String() {
		t.Fatalf("trace_id = %q, want %q", ex["trace_id"], sc.TraceID().String())
	}
}
