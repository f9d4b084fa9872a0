package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/tenant"
)

// Tenant resolves the tenant from the Host header once per request and
// stores it in the context, so the logger, metrics and site handler all see
// the same value.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := tenant.FromHost(r.Host)
		ctx := tenant.WithContext(r.Context(), name)
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("app.tenant", name))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
