package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/health"
	"github.com/keithlinneman/platform-demo/internal/healthhttp"
	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/metrics"
	"github.com/keithlinneman/platform-demo/internal/probe"
	"github.com/keithlinneman/platform-demo/internal/sitehttp"
)

// test helpers

type routeFunc func(r chi.Router)

func (f routeFunc) RegisterRoutes(r chi.Router) { f(r) }

func textRoute(path, body string) RouteRegistrar {
	return routeFunc(func(r chi.Router) {
		r.Get(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	})
}

func defaultOpts() Options {
	return Options{Logger: log.Nop()}
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// NewHandler

func TestNewHandler_Routes(t *testing.T) {
	opts := defaultOpts()
	opts.Routes = []RouteRegistrar{textRoute("/a", "A"), nil, textRoute("/b", "B")}
	h := NewHandler(opts)

	for path, want := range map[string]string{"/a": "A", "/b": "B"} {
		rec := doRequest(t, h, http.MethodGet, path)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Errorf("%s = %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestNewHandler_NotFound(t *testing.T) {
	opts := defaultOpts()
	opts.Routes = []RouteRegistrar{textRoute("/a", "A")}
	opts.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("custom 404"))
	})
	h := NewHandler(opts)

	rec := doRequest(t, h, http.MethodGet, "/missing")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "custom 404" {
		t.Fatalf("unmatched = %d %q", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodPost, "/a")
	if rec.Body.String() != "custom 404" {
		t.Fatalf("method not allowed = %d %q", rec.Code, rec.Body.String())
	}
}

var hrefRE = regexp.MustCompile(`href="(/[^"]*)"`)

func TestNewHandler_IndexLinksResolve(t *testing.T) {
	m := metrics.New()
	agg, err := health.NewAggregator("platform-demo", []health.Dependency{
		{Name: "db", Type: health.CheckDependencyCritical, Probe: probe.Static(true)},
	}, health.WithRecorder(m))
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	site := sitehttp.New(sitehttp.Options{Metrics: m.Handler()})

	opts := defaultOpts()
	opts.Routes = []RouteRegistrar{healthhttp.NewAPI(agg, nil), site}
	opts.NotFound = site.NotFound()
	h := NewHandler(opts)

	index := doRequest(t, h, http.MethodGet, "/")
	if index.Code != http.StatusOK {
		t.Fatalf("GET / = %d", index.Code)
	}
	links := hrefRE.FindAllStringSubmatch(index.Body.String(), -1)
	if len(links) == 0 {
		t.Fatal("index has no local links")
	}
	for _, l := range links {
		if rec := doRequest(t, h, http.MethodGet, l[1]); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", l[1], rec.Code)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/metrics")
	if !strings.Contains(rec.Body.String(), "health_self_state") {
		t.Fatalf("/metrics body missing health series:\n%s", rec.Body.String())
	}
}

func TestNewHandler_HeadersOnEveryResponse(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, http.MethodGet, "/nothing-here")

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on 404")
	}
	if len(rec.Header().Get("X-Request-Id")) != 32 {
		t.Error("request id missing on 404")
	}
}

func TestNewHandler_MiddlewareHooks(t *testing.T) {
	var metricsSaw, limitSaw string
	opts := defaultOpts()
	opts.Routes = []RouteRegistrar{textRoute("/items/{id}", "ok")}
	opts.RateLimitMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limitSaw = r.URL.Path
			next.ServeHTTP(w, r)
		})
	}
	opts.MetricsMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			metricsSaw = chi.RouteContext(r.Context()).RoutePattern()
		})
	}
	doRequest(t, NewHandler(opts), http.MethodGet, "/items/7")

	if limitSaw != "/items/7" {
		t.Errorf("rate limit middleware saw %q", limitSaw)
	}
	if metricsSaw != "/items/{id}" {
		t.Errorf("metrics middleware saw route %q, want pattern", metricsSaw)
	}
}

func TestNewHandler_RecoversPanics(t *testing.T) {
	panics := 0
	opts := defaultOpts()
	opts.OnPanic = func() { panics++ }
	opts.Routes = []RouteRegistrar{routeFunc(func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	})}

	rec := doRequest(t, NewHandler(opts), http.MethodGet, "/boom")
	if rec.Code != http.StatusInternalServerError || panics != 1 {
		t.Fatalf("status=%d panics=%d", rec.Code, panics)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers missing on recovered panic")
	}
}

func TestNewHandler_CompressesJSON(t *testing.T) {
	opts := defaultOpts()
	opts.Routes = []RouteRegistrar{routeFunc(func(r chi.Router) {
		r.Get("/j", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"service_state":"` + strings.Repeat("UP", 200) + `"}`))
		})
	})}
	h := NewHandler(opts)

	req := httptest.NewRequest(http.MethodGet, "/j", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	if srv.ReadHeaderTimeout != DefaultReadHeaderTimeout || srv.WriteTimeout != DefaultWriteTimeout ||
		srv.IdleTimeout != DefaultIdleTimeout || srv.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Fatalf("unexpected server config %+v", srv)
	}
}

// Start

func TestStart_ServeAndShutdown(t *testing.T) {
	port := getFreePort(t)
	opts := defaultOpts()
	opts.Port = port
	opts.Routes = []RouteRegistrar{textRoute("/-/ping", "pong\n")}

	ctx := context.Background()
	stop, err := Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d/-/ping", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(addr); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", addr, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong\n" {
		t.Fatalf("body = %q", body)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := stop(sctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(sctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, err := http.Get(addr); err == nil {
		t.Fatal("server still accepting connections after shutdown")
	}
}

func TestStart_PortConflict(t *testing.T) {
	port := getFreePort(t)
	opts := defaultOpts()
	opts.Port = port

	ctx := context.Background()
	stop, err := Start(ctx, opts)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer stop(ctx)

	if _, err := Start(ctx, opts); err == nil {
		t.Fatal("expected error for port conflict")
	}
}
