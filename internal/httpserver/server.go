package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/xerrors"
)

// NewHandler builds the tenant listener handler: every request, whatever
// its method or path, ends up in opts.SiteHandler.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	site := opts.SiteHandler
	if site == nil {
		site = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}

	// chi router
	r := chi.NewRouter()

	// Annotate logger and tracer with http.route from chi route pattern if trace is recording
	r.Use(httpmw.AnnotateHTTPRoute)

	// Access log middleware
	r.Use(httpmw.AccessLog())

	r.Use(httpmw.Scope("site"))

	// one catch-all route so no request falls through to chi's own 404/405
	r.Handle(httpmw.CatchAllRoute, site)
	r.NotFound(site.ServeHTTP)
	r.MethodNotAllowed(site.ServeHTTP)

	// tracing for the whole request, span names never carry the raw path
	traced := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				// dont trace favicon/robots.txt
				switch r.URL.Path {
				case "/favicon.ico", "/favicon.svg", "/robots.txt":
					return false
				}
				return true
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// tenants control the path and span names must stay bounded
				return r.Method + " " + httpmw.CatchAllRoute
			}),
			// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
			otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
		)
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// outermost first; nil entries (optional middleware) are skipped
	return httpmw.Chain(r,
		// security headers outermost so they are on every response, 500s included
		httpmw.SecurityHeaders,
		// log panics and serve 500
		recoverMW,
		// request ID before everything that logs
		httpmw.RequestID(httpmw.DefaultRequestIDHeader),
		// client IP before the rate limiter and logging
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		traced,
		// add trace-id headers to any requests with a recording trace
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		// tenant from Host, resolved once for logs, spans and the handler
		httpmw.Tenant,
		// prometheus instrumentation
		opts.MetricsMW,
		// request-scoped logging (inner so it sees trace_id, tenant, etc)
		httpmw.WithLogger(opts.Logger),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start the tenant HTTP server. A bind failure is returned before anything
// is served.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	// port 0 binds an ephemeral port, the log line carries the real one
	addr := fmt.Sprintf(":%d", opts.Port)
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for http on addr=%v", addr)
	}

	L.Info(ctx, "http server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
