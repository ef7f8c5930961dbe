package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/platform-demo/internal/health"
	"github.com/keithlinneman/platform-demo/internal/version"
)

// health series are keyed by these labels
var healthLabels = []string{"service_name", "health_check_type", "health_check_name"}

// state codes 0..3 each get their own bucket
var stateBuckets = []float64{0, 1, 2, 3}

type ServerMetrics struct {
	reg                  *prometheus.Registry
	handler              http.Handler
	inflight             prometheus.Gauge
	reqTotal             *prometheus.CounterVec
	reqDur               *prometheus.HistogramVec
	respBytes            *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	httpPanicTotal       prometheus.Counter
	buildInfo            *prometheus.GaugeVec
	appInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal prometheus.Counter
	profilingActive      prometheus.Gauge
	fooTotal             *prometheus.CounterVec
	healthzTotal         *prometheus.CounterVec

	// health observations
	selfState      *prometheus.GaugeVec
	selfStateH     *prometheus.HistogramVec
	depState       *prometheus.GaugeVec
	depStateH      *prometheus.HistogramVec
	depDuration    *prometheus.GaugeVec
	depDurationH   *prometheus.HistogramVec
	evaluationsTot *prometheus.CounterVec
}

var _ health.Recorder = (*ServerMetrics)(nil)

// New returns a fresh registry + standard collectors + HTTP and health metrics.
// Nothing is registered on the prometheus default registry.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered http handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		appInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application info (value is always 1)",
		}, []string{"service_name", "version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		fooTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foo_requests_total",
			Help: "Number of requests for /foo",
		}, []string{"path", "method"}),
		healthzTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthz_requests_total",
			Help: "Number of requests for /healthz",
		}, []string{"path", "method"}),
		selfState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_self_state",
			Help: "state of self health check (gauge)",
		}, healthLabels),
		selfStateH: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_self_state_h",
			Help:    "state of self health check (histogram)",
			Buckets: stateBuckets,
		}, healthLabels),
		depState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_dependency_state",
			Help: "state of dependency health check (gauge)",
		}, healthLabels),
		depStateH: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_dependency_state_h",
			Help:    "state of dependency health check (histogram)",
			Buckets: stateBuckets,
		}, healthLabels),
		depDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "health_dependency_duration",
			Help: "duration of dependency health check in seconds (gauge)",
		}, healthLabels),
		depDurationH: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_dependency_duration_h",
			Help:    "duration of dependency health check in seconds (histogram)",
			Buckets: prometheus.DefBuckets,
		}, healthLabels),
		evaluationsTot: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_evaluations_total",
			Help: "Total self health evaluations by resulting state",
		}, []string{"service_name", "state"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.appInfo,
		m.ratelimitDeniedTotal,
		m.profilingActive,
		m.fooTotal,
		m.healthzTotal,
		m.selfState,
		m.selfStateH,
		m.depState,
		m.depStateH,
		m.depDuration,
		m.depDurationH,
		m.evaluationsTot,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// ObserveSelf implements health.Recorder.
func (m *ServerMetrics) ObserveSelf(service, name string, state health.State) {
	lv := []string{service, health.CheckSelf.String(), name}
	m.selfState.WithLabelValues(lv...).Set(state.Value())
	m.selfStateH.WithLabelValues(lv...).Observe(state.Value())
	m.evaluationsTot.WithLabelValues(service, state.String()).Inc()
}

// ObserveDependency implements health.Recorder.
func (m *ServerMetrics) ObserveDependency(service string, typ health.CheckType, name string, state health.State, d time.Duration) {
	lv := []string{service, typ.String(), name}
	secs := d.Seconds()
	m.depDuration.WithLabelValues(lv...).Set(secs)
	m.depDurationH.WithLabelValues(lv...).Observe(secs)
	m.depState.WithLabelValues(lv...).Set(state.Value())
	m.depStateH.WithLabelValues(lv...).Observe(state.Value())
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncFooRequest(method string) {
	m.fooTotal.WithLabelValues("/foo", method).Inc()
}

func (m *ServerMetrics) IncHealthzRequest(method string) {
	m.healthzTotal.WithLabelValues("/healthz", method).Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   vi.Dirty(),
	}).Set(1)
}

// SetAppInfo publishes the deployed application version; set once at startup.
func (m *ServerMetrics) SetAppInfo(service, appVersion string) {
	if appVersion == "" {
		appVersion = "NOT_FOUND"
	}
	m.appInfo.Reset()
	m.appInfo.WithLabelValues(service, appVersion).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
