// Package ratelimit is an optional per-client-IP token bucket for the tenant
// listener.
//
// It is in-memory and per-process. It caps a single address flooding the
// server; it does nothing against distributed floods, and request bytes have
// already been read by the time it runs. The visitor table is bounded so a
// spray of spoofed or rotating addresses cannot grow it without limit.
package ratelimit
