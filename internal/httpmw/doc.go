// Package httpmw provides HTTP middleware for the tenant listener.
//
// httpserver.NewHandler composes it outermost first: security headers,
// panic recovery, request ID, client IP, rate limiting, OTel tracing, trace
// response headers, tenant resolution, metrics, request-scoped logging,
// access log and the chi router.
//
// Query strings, user agents and other client-supplied headers are kept out
// of logs.
package httpmw
