package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/health"
)

type Options struct {
	// Port defaults to 9000.
	Port int
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic skips the private-network guard (tests, trusted setups).
	AllowPublic bool
	// OnPanic runs for every recovered panic, e.g. to count it.
	OnPanic func()
}
