package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorderProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func TestRoutePattern(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/some/file.css", nil)
	if got := RoutePattern(r); got != CatchAllRoute {
		t.Fatalf("no route context: %q", got)
	}

	var inRoute, inNotFound string
	router := chi.NewRouter()
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { inRoute = RoutePattern(r) })
	router.NotFound(func(w http.ResponseWriter, r *http.Request) { inNotFound = RoutePattern(r) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a/b/c.html", nil))

	if inRoute != "/metrics" {
		t.Errorf("matched route = %q", inRoute)
	}
	if inNotFound != CatchAllRoute {
		t.Errorf("not found route = %q, raw paths must not leak into labels", inNotFound)
	}
}

func TestAnnotateHTTPRoute(t *testing.T) {
	tp, sr := newRecorderProvider(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "GET /raw/path")

	h := AnnotateHTTPRoute(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw/path", nil).WithContext(ctx))
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended = %d", len(ended))
	}
	if got := ended[0].Name(); got != "GET "+CatchAllRoute {
		t.Fatalf("span name = %q", got)
	}
}

func TestTraceResponseHeaders(t *testing.T) {
	tp, _ := newRecorderProvider(t)
	h := TraceResponseHeaders("", "")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Trace-Id") != "" {
		t.Fatal("no span: header should be absent")
	}

	ctx, span := tp.Tracer("test").Start(context.Background(), "req")
	defer span.End()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	sc := span.SpanContext()
	if got := rec.Header().Get("X-Trace-Id"); got != sc.TraceID().String() {
		t.Fatalf("X-Trace-Id = %q", got)
	}
	if got := rec.Header().Get("X-Span-Id"); got != sc.SpanID().String() {
		t.Fatalf("X-Span-Id = %q", got)
	}
}
