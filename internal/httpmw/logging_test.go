package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/log"
)

type logEntry struct {
	level string
	msg   string
	kv    map[string]any
}

// captureLogger records entries, merging With() fields into each one.
type captureLogger struct {
	mu      *sync.Mutex
	fields  []any
	entries *[]logEntry
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (c *captureLogger) With(kv ...any) log.Logger {
	f := append(append([]any{}, c.fields...), kv...)
	return &captureLogger{mu: c.mu, fields: f, entries: c.entries}
}

func (c *captureLogger) add(level, msg string, kv []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := map[string]any{}
	all := append(append([]any{}, c.fields...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			m[k] = all[i+1]
		}
	}
	*c.entries = append(*c.entries, logEntry{level, msg, m})
}

func (c *captureLogger) Debug(_ context.Context, msg string, kv ...any) { c.add("debug", msg, kv) }
func (c *captureLogger) Info(_ context.Context, msg string, kv ...any)  { c.add("info", msg, kv) }
func (c *captureLogger) Warn(_ context.Context, msg string, kv ...any)  { c.add("warn", msg, kv) }
func (c *captureLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	c.add("error", msg, append(kv, "err", err))
}
func (c *captureLogger) Sync() error { return nil }

func (c *captureLogger) all() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]logEntry(nil), *c.entries...)
}

func loggedRouter(L log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/env", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	return Chain(r, RequestID(""), ClientIPWithOptions(ClientIPOptions{}), WithLogger(L), AccessLog())
}

func TestAccessLog_Fields(t *testing.T) {
	L := newCaptureLogger()
	loggedRouter(L).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/env?secret=1", nil))

	entries := L.all()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.level != "info" || e.msg != "http request" {
		t.Fatalf("entry = %s %q", e.level, e.msg)
	}
	if e.kv["http.response.status_code"] != http.StatusTeapot {
		t.Errorf("status = %v", e.kv["http.response.status_code"])
	}
	if e.kv["http.response.body.size"] != int64(5) {
		t.Errorf("body size = %v", e.kv["http.response.body.size"])
	}
	if e.kv["url.path"] != "/env" {
		t.Errorf("url.path = %v", e.kv["url.path"])
	}
	if id, _ := e.kv["request_id"].(string); id == "" {
		t.Error("request_id missing")
	}
	for k := range e.kv {
		if k == "url.query" {
			t.Error("query string must not be logged")
		}
	}
}

func TestAccessLog_ProbeRoutesAtDebug(t *testing.T) {
	L := newCaptureLogger()
	loggedRouter(L).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := L.all()
	if len(entries) != 1 || entries[0].level != "debug" {
		t.Fatalf("entries = %+v, want one debug entry", entries)
	}
}

func TestSchemeFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := schemeFromRequest(r); got != "http" {
		t.Errorf("plain = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "HTTPS, http")
	if got := schemeFromRequest(r); got != "https" {
		t.Errorf("forwarded = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "gopher")
	if got := schemeFromRequest(r); got != "http" {
		t.Errorf("bogus forwarded = %q", got)
	}
}

func TestScope(t *testing.T) {
	L := newCaptureLogger()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info(r.Context(), "inside")
	}), WithLogger(L), Scope("site"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := L.all()
	if len(entries) != 1 || entries[0].kv["handler"] != "site" {
		t.Fatalf("entries = %+v", entries)
	}
}
