package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/keithlinneman/platform-demo/internal/cfg"
	"github.com/keithlinneman/platform-demo/internal/health"
	"github.com/keithlinneman/platform-demo/internal/healthhttp"
	"github.com/keithlinneman/platform-demo/internal/httpmw"
	"github.com/keithlinneman/platform-demo/internal/httpserver"
	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/metrics"
	"github.com/keithlinneman/platform-demo/internal/opshttp"
	"github.com/keithlinneman/platform-demo/internal/otelx"
	"github.com/keithlinneman/platform-demo/internal/probe"
	"github.com/keithlinneman/platform-demo/internal/prof"
	"github.com/keithlinneman/platform-demo/internal/ratelimit"
	"github.com/keithlinneman/platform-demo/internal/sitehttp"
	v "github.com/keithlinneman/platform-demo/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi)
		os.Exit(0)
	}

	// env names are unprefixed (SERVICE_NAME, MOCK_DB_UPTIME, ...) to match the deployment manifests
	err := cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Service:           conf.ServiceName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting up",
		"service_name", conf.ServiceName,
		"application_version", conf.AppVersion,
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"simulate_with_probability", conf.SimulateWithProbability,
		"mock_db_uptime", conf.MockDBUptime,
		"mock_foo_uptime", conf.MockFooUptime,
		"db_probe", conf.DBProbe,
		"foo_probe", conf.FooProbe,
		"probe_timeout", conf.ProbeTimeout.String(),
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"rate_limit_rps", conf.RateLimitRPS,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetAppInfo(conf.ServiceName, conf.AppVersion)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       conf.ServiceName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// the collector runs as a node-local agent, plaintext is fine
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  conf.ServiceName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without tracing")
		shutdownOTEL, _ = otelx.Init(ctx, otelx.Options{})
	}

	// dependencies: db is critical, foo is optional
	var closers []func() error
	newDep := func(name string, typ health.CheckType, kind, target string, uptime float64) health.Dependency {
		p, closeFn, err := probe.New(ctx, conf.ProbeSpec(kind, target, uptime))
		if err != nil {
			L.Error(ctx, err, "failed to create dependency probe", "health_check_name", name, "probe_kind", kind)
			os.Exit(1)
		}
		closers = append(closers, closeFn)
		return health.Dependency{Name: name, Type: typ, Probe: p}
	}
	deps := []health.Dependency{
		newDep("db", health.CheckDependencyCritical, conf.DBProbe, conf.DBTarget, conf.MockDBUptime),
		newDep("foo", health.CheckDependencyOptional, conf.FooProbe, conf.FooTarget, conf.MockFooUptime),
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				L.Warn(context.Background(), "close dependency probe", "error", err)
			}
		}
	}()

	agg, err := health.NewAggregator(conf.ServiceName, deps,
		health.WithRecorder(m),
		health.WithTimeout(conf.ProbeTimeout),
	)
	if err != nil {
		L.Error(ctx, err, "failed to create health aggregator")
		os.Exit(1)
	}

	// flipped on shutdown so /readyz and /-/ready fail while connections drain
	var gate health.ShutdownGate

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			// kubelet probes must never be throttled
			ratelimit.WithExemptPaths("/healthz", "/readyz", "/-/ping", "/metrics"),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	site := sitehttp.New(sitehttp.Options{
		DashboardURL: conf.MetricsDashboardURL,
		Env: []sitehttp.EnvVar{
			{Name: "CONFIGMAP_TEST", Value: conf.ConfigmapTest},
			{Name: "CONFIGMAP_DEFAULT_EXAMPLE", Value: conf.ConfigmapDefaultExample},
			{Name: "CONFIGMAP_OVERLAY_EXAMPLE", Value: conf.ConfigmapOverlayExample},
			{Name: "APPLICATION_VERSION", Value: conf.AppVersion},
			{Name: "MOCK_DB_UPTIME", Value: strconv.FormatFloat(conf.MockDBUptime, 'g', -1, 64)},
			{Name: "MOCK_FOO_UPTIME", Value: strconv.FormatFloat(conf.MockFooUptime, 'g', -1, 64)},
		},
		OnFoo:   m.IncFooRequest,
		Metrics: m.Handler(),
	})

	healthAPI := healthhttp.NewAPI(agg, &gate)
	healthAPI.OnHealthz = m.IncHealthzRequest

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger: L,
		Port:   conf.HTTPPort,
		Routes: []httpserver.RouteRegistrar{
			healthAPI,
			site,
		},
		NotFound:      site.NotFound(),
		MetricsMW:     m.Middleware,
		RateLimitMW:   rateLimitMW,
		ClientIPOpts:  httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		OnPanic:       m.IncHttpPanic,
		ShutdownGrace: conf.ShutdownGrace,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}

	// admin listener: metrics, liveness/readiness and pprof, private networks only
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Gate:        &gate,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = siteHTTPStop(context.Background())
		os.Exit(1)
	}

	L.Info(ctx, "started", "service_name", conf.ServiceName, "application_version", conf.AppVersion)

	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining for shutdown")
	L.Info(bg, "shutdown gate closed, draining", "drain_delay", conf.DrainDelay.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	grace := conf.ShutdownGrace
	if grace <= 0 {
		grace = httpserver.DefaultShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(bg, grace)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
}
