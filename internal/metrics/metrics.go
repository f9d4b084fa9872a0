// Package metrics owns the Prometheus registry served on the admin
// listener. Labels are kept to bounded sets (method, route pattern, status,
// outcome, scope); tenants and raw paths never become label values.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/version"
)

// Marker scopes for the maintenance gauges.
const (
	ScopeGlobal = "global"
	ScopeTenant = "tenant"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	siteResponses   *prometheus.CounterVec
	markerPresent   *prometheus.GaugeVec
	markerChanges   *prometheus.CounterVec
	watcherErrors   prometheus.Counter
	webRootReady    prometheus.Gauge
	profilingActive prometheus.Gauge
}

// New returns metrics on a private registry with the Go and process
// collectors.
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
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route, excluding maintenance 503s",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the rate limiter visitor table was full",
		}),
		siteResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_responses_total",
			Help: "Tenant responses by outcome (served, missing, maintenance_global, maintenance_tenant)",
		}, []string{"outcome"}),
		markerPresent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "maintenance_marker_present",
			Help: "Number of .maintenance markers currently present, by scope",
		}, []string{"scope"}),
		markerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_marker_changes_total",
			Help: "Maintenance marker creations and removals seen by the watcher",
		}, []string{"scope", "change"}),
		watcherErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maintenance_watcher_errors_total",
			Help: "Errors reported by the filesystem watcher",
		}),
		webRootReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "web_root_ready",
			Help: "Whether the web root existed as a directory at the last readiness check",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.siteResponses,
		m.markerPresent,
		m.markerChanges,
		m.watcherErrors,
		m.webRootReady,
		m.profilingActive,
	)

	// expose zero series for the bounded label sets
	m.markerPresent.WithLabelValues(ScopeGlobal)
	m.markerPresent.WithLabelValues(ScopeTenant)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry is exposed for components that bring their own collectors.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied()   { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }

// IncSiteResponse implements sitehandler.OutcomeRecorder.
func (m *ServerMetrics) IncSiteResponse(outcome string) {
	m.siteResponses.WithLabelValues(outcome).Inc()
}

// SetMaintenanceMarkers sets how many markers are present in scope.
func (m *ServerMetrics) SetMaintenanceMarkers(scope string, n int) {
	m.markerPresent.WithLabelValues(scope).Set(float64(n))
}

// IncMaintenanceMarkerChange counts a marker being "added" or "removed".
func (m *ServerMetrics) IncMaintenanceMarkerChange(scope, change string) {
	m.markerChanges.WithLabelValues(scope, change).Inc()
}

func (m *ServerMetrics) IncWatcherError() { m.watcherErrors.Inc() }

func (m *ServerMetrics) SetWebRootReady(ok bool) { m.webRootReady.Set(boolFloat(ok)) }

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolFloat(active)) }

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
