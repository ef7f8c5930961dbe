// Package sitehttp serves the demo HTML pages on the public port.
package sitehttp

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/platform-demo/internal/httpmw"
	"github.com/keithlinneman/platform-demo/internal/log"
)

//go:embed templates
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// EnvVar is one row on /env.
type EnvVar struct {
	Name  string
	Value string
}

type Options struct {
	// DashboardURL adds a dashboard link to the index page when set.
	DashboardURL string
	Env          []EnvVar
	// OnFoo is called for every request to /foo with the request method.
	OnFoo func(method string)
	// Metrics is served at /metrics so the index link resolves on the
	// public port too. Omitted when nil.
	Metrics http.Handler
}

type Site struct {
	opts Options
}

func New(opts Options) *Site {
	return &Site{opts: opts}
}

type pageData struct {
	Title        string
	DashboardURL string
	Env          []EnvVar
}

func (s *Site) RegisterRoutes(router chi.Router) {
	r := router.With(httpmw.Scope("site"))
	r.Get("/", s.index)
	r.Get("/env", s.env)
	r.HandleFunc("/foo", s.foo)
	if s.opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
}

// NotFound serves the HTML 404 page.
func (s *Site) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		render(w, r, http.StatusNotFound, "404.html", pageData{Title: "Not Found"})
	})
}

func (s *Site) index(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "index.html", pageData{
		Title:        "Platform Demo",
		DashboardURL: s.opts.DashboardURL,
	})
}

func (s *Site) env(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "env.html", pageData{
		Title: "Environment",
		Env:   s.opts.Env,
	})
}

func (s *Site) foo(w http.ResponseWriter, r *http.Request) {
	if s.opts.OnFoo != nil {
		s.opts.OnFoo(r.Method)
	}
	render(w, r, http.StatusOK, "foo.html", pageData{Title: "Foo"})
}

// render executes into a buffer so a template error can still become a 500.
func render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "render page", "template", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
