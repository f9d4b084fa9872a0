// Package tenant derives the tenant identifier from a request's Host header.
//
// The identifier is used as a single path segment under the web root. It is
// not validated as a domain name.
package tenant

import (
	"context"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Default is used when the Host header is absent, empty or not decodable.
const Default = "default"

// FromHost strips any ":port" suffix from a Host value. It never fails.
func FromHost(host string) string {
	if host == "" || !decodable(host) {
		return Default
	}

	// [::1]:8080 -> ::1
	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end > 0 {
			if h := host[1:end]; h != "" {
				return h
			}
		}
		return Default
	}

	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return Default
	}
	return host
}

// decodable reports whether the raw header value is visible ASCII and legal
// in a Host header.
func decodable(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return httpguts.ValidHostHeader(s)
}

type ctxKey struct{}

// WithContext stores the resolved tenant so later middleware and the site
// handler agree on one value per request.
func WithContext(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the tenant stored by WithContext.
func FromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(ctxKey{}).(string)
	return t, ok && t != ""
}
