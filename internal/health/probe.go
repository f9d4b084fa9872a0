package health

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/xerrors"
)

// Probe returns nil when healthy, or the reason it is not.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every non-nil probe passes and returns the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// WebRoot fails unless the web root exists and is a directory. observe, if
// set, receives every result (metrics hook). The check stats the directory
// on each call, like request handling does.
func WebRoot(root webroot.Root, observe func(ok bool)) CheckFunc {
	return func(context.Context) error {
		ok := root.FS().IsDir(root.Dir())
		if observe != nil {
			observe(ok)
		}
		if !ok {
			return xerrors.Newf("web root %s is not a directory", root.Dir())
		}
		return nil
	}
}

// ShutdownGate fails readiness once Set is called.
type ShutdownGate struct {
	mu       sync.RWMutex
	draining bool
	reason   string
}

func (g *ShutdownGate) Set(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining = true
	g.reason = reason
}

func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining = false
	g.reason = ""
}

func (g *ShutdownGate) Draining() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draining
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		draining, reason := g.draining, g.reason
		g.mu.RUnlock()
		if !draining {
			return nil
		}
		if reason == "" {
			reason = "draining"
		}
		return xerrors.New(reason)
	}
}
