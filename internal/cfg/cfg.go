package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
)

const (
	DefaultPort    = 80
	DefaultWebRoot = "/var/www"
)

type App struct {
	Port    int
	WebRoot string

	AdminPort   int
	EnablePprof bool
	ConfigFile  string

	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	EnableRateLimit bool
	RateLimitRPS    float64
	RateLimitBurst  int
	TrustedHops     int

	WatchMarkers bool
	ConfinePaths bool
}

// portValue is an int flag that only accepts 0..65535 so an out of range
// PORT falls back to the default the same way an unparsable one does.
type portValue int

func (p *portValue) String() string { return strconv.Itoa(int(*p)) }

func (p *portValue) Set(s string) error {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = portValue(n)
	return nil
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	c.Port = DefaultPort
	fs.Var((*portValue)(&c.Port), "port", "listen TCP port for tenant traffic (0..65535)")
	fs.StringVar(&c.WebRoot, "web-root", DefaultWebRoot, "base directory holding one document root per tenant")

	c.AdminPort = 9000
	fs.Var((*portValue)(&c.AdminPort), "admin-port", "admin listen TCP port for metrics/health/pprof (0 disables)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.StringVar(&c.ConfigFile, "config", "", "optional TOML file with defaults for any flag (cli and env take precedence)")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.BoolVar(&c.EnableRateLimit, "enable-rate-limit", false, "Enable per-client-IP rate limiting on the tenant listener")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-IP token refill rate (requests/second)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 60, "per-IP bucket size")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted proxies in front of the server for X-Forwarded-For (0 ignores it)")

	fs.BoolVar(&c.WatchMarkers, "watch-markers", true, "Watch the web root for .maintenance marker changes and log/export them")
	fs.BoolVar(&c.ConfinePaths, "confine-paths", false, "Refuse (empty 200) request paths that resolve outside the tenant directory")
}

// envKey maps flag "foo-bar" to PREFIX_FOO_BAR.
func envKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "web-root" maps to PREFIX_WEB_ROOT.
// Precedence: cli flag > env var > default. Invalid values keep the
// previous value and are reported through logf.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := envKey(prefix, f.Name)
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
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// FillFromFile applies a TOML file to every flag that has not been set yet
// by the CLI or FillFromEnv, so it must run after both. Keys are flag names;
// underscores are accepted in place of dashes.
func FillFromFile(fs *flag.FlagSet, path string, logf func(string, ...any)) error {
	if path == "" {
		return nil
	}
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var errs []error
	for k, v := range raw {
		name := strings.ReplaceAll(strings.ToLower(k), "_", "-")
		f := fs.Lookup(name)
		if f == nil {
			errs = append(errs, fmt.Errorf("config file %s: unknown key %q", path, k))
			continue
		}
		if set[name] {
			if logf != nil {
				logf("flag -%s: cli/env value %q overrides config file", name, f.Value.String())
			}
			continue
		}
		if err := fs.Set(name, fmt.Sprint(v)); err != nil {
			errs = append(errs, fmt.Errorf("config file %s: key %q: %w", path, k, err))
		}
	}
	return errors.Join(errs...)
}

// ResolveAdminPort disables the admin listener when it collides with the
// site port and admin-port was never set by the CLI, env or config file.
// Run it after FillFromFile. An explicit collision is left for Validate.
func ResolveAdminPort(fs *flag.FlagSet, c *App, logf func(string, ...any)) {
	if c.AdminPort == 0 || c.AdminPort != c.Port {
		return
	}
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "admin-port" {
			explicit = true
		}
	})
	if explicit {
		return
	}
	if logf != nil {
		logf("flag -admin-port: default %d collides with PORT, admin listener disabled (set ADMIN_PORT to enable)", c.AdminPort)
	}
	c.AdminPort = 0
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.WebRoot == "" {
		errs = append(errs, fmt.Errorf("WEB_ROOT must not be empty"))
	}
	if c.AdminPort != 0 && c.AdminPort == c.Port {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and PORT must differ (both %d)", c.Port))
	}

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

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

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

	if c.EnableRateLimit {
		if c.RateLimitRPS <= 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be > 0 (got %v)", c.RateLimitRPS))
		}
		if c.RateLimitBurst < 1 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
		}
	}
	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}

	return errors.Join(errs...)
}
