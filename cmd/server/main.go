package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/health"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/maintenance"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/markerwatch"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/prof"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/sitehandler"
	v "github.com/keithlinneman/linnemanlabs-vhost/internal/version"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
)

// drainPeriod is how long readiness fails before listeners close, so a
// load balancer polling the admin port stops sending traffic first.
const drainPeriod = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags, env and the optional config file
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	stderrf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	// no prefix: PORT and WEB_ROOT are the documented names
	cfg.FillFromEnv(flag.CommandLine, "", stderrf)
	if err := cfg.FillFromFile(flag.CommandLine, conf.ConfigFile, stderrf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg.ResolveAdminPort(flag.CommandLine, &conf, stderrf)

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl := lvl
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
			os.Exit(1)
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
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
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"port", conf.Port,
		"web_root", conf.WebRoot,
		"admin_port", conf.AdminPort,
		"config_file", conf.ConfigFile,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_rate_limit", conf.EnableRateLimit,
		"trusted_hops", conf.TrustedHops,
		"watch_markers", conf.WatchMarkers,
		"confine_paths", conf.ConfinePaths,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
	)

	// Setup metrics
	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Warn(ctx, "continuing without pyroscope", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	tracing, err := otelx.Init(ctx, otelx.Options{
		Enabled:    conf.EnableTracing,
		Endpoint:   conf.OTLPEndpoint,
		Insecure:   true,
		Sample:     conf.TraceSample,
		Service:    v.AppName,
		Component:  "server",
		Version:    vi.Version,
		Attributes: map[string]string{"vhost.web_root": conf.WebRoot},
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, continuing without tracing")
		if tracing, err = otelx.Init(ctx, otelx.Options{}); err != nil {
			L.Error(ctx, err, "otel fallback init failed")
			os.Exit(1)
		}
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	// web root layout and maintenance decisions, both read the disk per request
	root := webroot.New(conf.WebRoot, nil)
	if !root.FS().IsDir(root.Dir()) {
		// not fatal: every request answers with an empty 200 until it appears
		L.Warn(ctx, "web root is not a directory", "web_root", root.Dir())
	}
	checker := maintenance.New(root, webassets.DefaultMaintenancePage())

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:         L,
		Root:           root,
		Maintenance:    checker,
		ConfinePaths:   conf.ConfinePaths,
		Outcomes:       m,
		TracerProvider: tracing.TracerProvider(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	// observational only, serving never depends on it
	if conf.WatchMarkers {
		if _, err := markerwatch.Start(ctx, markerwatch.Options{
			Logger:  L,
			Root:    root,
			Metrics: m,
		}); err != nil {
			L.Warn(ctx, "maintenance marker watcher not started", "web_root", root.Dir(), "error", err.Error())
			m.IncWatcherError()
		}
	}

	// Setup rate limiter middleware for site handler
	var rateLimitMW func(next http.Handler) http.Handler
	if conf.EnableRateLimit {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			// increment prometheus counter on each denied request
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// only log the first time an ip is denied each time it is cleaned from the bucket
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	// start tenant http server
	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.Port,
		SiteHandler:  siteHandler,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener port")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// start admin/ops listener to serve metrics, health checks and pprof
	// rejects public peers in middleware to prevent accidental exposure
	opsHTTPStop := func(context.Context) error { return nil }
	if conf.AdminPort != 0 {
		opsHTTPStop, err = opshttp.Start(ctx, L, &opshttp.Options{
			Port:        conf.AdminPort,
			Metrics:     m.Handler(),
			EnablePprof: conf.EnablePprof,
			Health:      health.Fixed(true, ""),
			// ready while the web root is a directory and we are not draining
			Readiness: health.All(gate.Probe(), health.WebRoot(root, m.SetWebRootReady)),
			OnPanic:   m.IncHttpPanic,
		})
		if err != nil {
			L.Error(ctx, err, "failed to start ops http listener")
			os.Exit(1)
		}
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Debug(ctx, "systemd readiness not sent", "error", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop sending new requests
	gate.Set("draining")
	if conf.AdminPort != 0 {
		L.Info(context.Background(), "draining before closing listeners", "drain_period", drainPeriod.String())
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(drainPeriod):
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
