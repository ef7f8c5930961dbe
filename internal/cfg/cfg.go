package cfg

import (
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/probe"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

type App struct {
	ServiceName string
	AppVersion  string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort      int
	AdminPort     int
	DrainDelay    time.Duration
	ShutdownGrace time.Duration

	// mock dependencies
	SimulateWithProbability bool
	MockDBUptime            float64
	MockFooUptime           float64

	DBProbe      string
	DBTarget     string
	FooProbe     string
	FooTarget    string
	ProbeTimeout time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxyHops int

	// demo page values, usually injected by a k8s configmap
	MetricsDashboardURL     string
	ConfigmapTest           string
	ConfigmapDefaultExample string
	ConfigmapOverlayExample string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.ServiceName, "service-name", "platform-demo", "service name reported by /healthz and on every metric")
	fs.StringVar(&c.AppVersion, "application-version", "", "deployed application version (app_info metric)")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 5000, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 5001, "admin (metrics) listen TCP port (1..65535)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 5*time.Second, "time between failing readiness and stopping listeners")
	fs.DurationVar(&c.ShutdownGrace, "shutdown-grace", 10*time.Second, "max time to finish in-flight requests on shutdown")

	fs.BoolVar(&c.SimulateWithProbability, "simulate-with-probability", false, "mock dependencies fail at random according to their uptime")
	fs.Float64Var(&c.MockDBUptime, "mock-db-uptime", 99.0, "simulated db uptime percentage (0..100)")
	fs.Float64Var(&c.MockFooUptime, "mock-foo-uptime", 99.0, "simulated foo uptime percentage (0..100)")

	fs.StringVar(&c.DBProbe, "db-probe", "simulated", "critical dependency probe kind (simulated|http|grpc|redis|postgres|s3)")
	fs.StringVar(&c.DBTarget, "db-target", "", "critical dependency probe target (url, address, dsn or bucket)")
	fs.StringVar(&c.FooProbe, "foo-probe", "simulated", "optional dependency probe kind (simulated|http|grpc|redis|postgres|s3)")
	fs.StringVar(&c.FooTarget, "foo-target", "", "optional dependency probe target (url, address, dsn or bucket)")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", 0, "per-probe deadline, 0 waits for every probe to finish")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 50, "per-client requests per second on the public port, 0 disables")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 100, "per-client burst on the public port")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the public port whose X-Forwarded-For is trusted")

	fs.StringVar(&c.MetricsDashboardURL, "metrics-dashboard-url", "", "dashboard link shown on the index page")
	fs.StringVar(&c.ConfigmapTest, "configmap-test", "", "shown on /env")
	fs.StringVar(&c.ConfigmapDefaultExample, "configmap-default-example", "", "shown on /env")
	fs.StringVar(&c.ConfigmapOverlayExample, "configmap-overlay-example", "", "shown on /env")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
//
// An env value the flag cannot parse (MOCK_DB_UPTIME=ninety) leaves the flag
// unchanged and is reported in the returned error.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) error {
	var errs []error
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", key, envVal, err))
		}
	})
	return xerrors.Join(errs...)
}

// EnvKey is the environment variable consulted for flag name.
func EnvKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
//
// Mock uptimes are deliberately not range-checked here: an out-of-range
// uptime makes every health evaluation fail instead of refusing to start.
func Validate(c App) error {
	var errs []error

	if strings.TrimSpace(c.ServiceName) == "" {
		errs = append(errs, fmt.Errorf("SERVICE_NAME must not be empty"))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.DrainDelay < 0 || c.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY and SHUTDOWN_GRACE must not be negative"))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Probes
	errs = append(errs, validateProbe("DB", c.DBProbe, c.DBTarget)...)
	errs = append(errs, validateProbe("FOO", c.FooProbe, c.FooTarget)...)
	if c.ProbeTimeout < 0 {
		errs = append(errs, fmt.Errorf("PROBE_TIMEOUT must not be negative (got %s)", c.ProbeTimeout))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Rate limit
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative (got %v)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting (got %d)", c.RateLimitBurst))
	}
	if c.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative (got %d)", c.TrustedProxyHops))
	}

	return xerrors.Join(errs...)
}

func validateProbe(name, kind, target string) []error {
	k, err := probe.ParseKind(kind)
	if err != nil {
		return []error{fmt.Errorf("invalid %s_PROBE: %w", name, err)}
	}
	if k != probe.KindSimulated && strings.TrimSpace(target) == "" {
		return []error{fmt.Errorf("%s_TARGET required when %s_PROBE=%s", name, name, k)}
	}
	return nil
}

// ProbeSpec builds the probe description for one mock dependency.
func (c App) ProbeSpec(kind, target string, uptime float64) probe.Spec {
	k, _ := probe.ParseKind(kind)
	return probe.Spec{
		Kind:     k,
		Target:   target,
		Simulate: c.SimulateWithProbability,
		Uptime:   uptime,
	}
}
