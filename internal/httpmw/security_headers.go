package httpmw

import "net/http"

// SecurityHeaders sets headers that are safe for arbitrary tenant content.
// Framing, CSP and HSTS are left to each site since one policy cannot fit
// every tenant, and the listener usually sits behind a TLS terminator.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		next.ServeHTTP(w, r)
	})
}
