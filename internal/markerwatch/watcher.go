// Package markerwatch follows maintenance markers under the web root and
// reports them through logs and metrics.
//
// It is observational only. Request handling checks the filesystem on every
// request and never depends on this package.
package markerwatch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/xerrors"
)

const (
	ScopeGlobal = "global"
	ScopeTenant = "tenant"

	ChangeAdded   = "added"
	ChangeRemoved = "removed"
)

// Metrics is implemented by the metrics package.
type Metrics interface {
	SetMaintenanceMarkers(scope string, n int)
	IncMaintenanceMarkerChange(scope, change string)
	IncWatcherError()
}

type Options struct {
	Logger  log.Logger
	Root    webroot.Root
	Metrics Metrics
}

// ignore events that are only chmod
const chmodMask fsnotify.Op = ^fsnotify.Op(0) ^ fsnotify.Chmod

// Watcher watches the web root and every first-level tenant directory.
type Watcher struct {
	fw      *fsnotify.Watcher
	root    webroot.Root
	logger  log.Logger
	metrics Metrics

	mu     sync.Mutex
	global bool
	// tenants holds every tenant whose marker is present
	tenants map[string]struct{}
}

// New sets up watches and records the markers already present. Markers
// found here are not reported as changes.
func New(opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	dir := opts.Root.Dir()
	if dir == "" {
		return nil, xerrors.New("markerwatch: web root is empty")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Wrap(err, "create fsnotify watcher")
	}
	w := &Watcher{
		fw:      fw,
		root:    opts.Root,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tenants: make(map[string]struct{}),
	}

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, xerrors.Wrapf(err, "watch web root %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = fw.Close()
		return nil, xerrors.Wrapf(err, "list web root %s", dir)
	}
	w.global = w.root.FS().Exists(w.root.GlobalMarker())
	for _, e := range entries {
		if !e.IsDir() || e.Name() == webroot.MarkerFile {
			continue
		}
		w.addTenantDir(context.Background(), e.Name())
		if w.root.FS().Exists(w.root.TenantMarker(e.Name())) {
			w.tenants[e.Name()] = struct{}{}
		}
	}
	w.publish()
	return w, nil
}

// Start runs the watcher until ctx is done.
func Start(ctx context.Context, opts Options) (*Watcher, error) {
	w, err := New(opts)
	if err != nil {
		return nil, err
	}
	global, tenants := w.Markers()
	w.logger.Info(ctx, "maintenance marker watcher started",
		"web_root", w.root.Dir(),
		"global", global,
		"tenants_in_maintenance", len(tenants),
	)
	go w.Run(ctx)
	return w, nil
}

// Markers returns the current view: whether the global marker exists and
// which tenants have one, sorted.
func (w *Watcher) Markers() (bool, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.tenants))
	for t := range w.tenants {
		out = append(out, t)
	}
	sort.Strings(out)
	return w.global, out
}

// Run consumes fsnotify events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&chmodMask == 0 {
				continue
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "maintenance marker watcher error", "error", err.Error())
			if w.metrics != nil {
				w.metrics.IncWatcherError()
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	parent := filepath.Dir(name)
	base := filepath.Base(name)
	rootDir := filepath.Clean(w.root.Dir())

	switch {
	case parent == rootDir && base == webroot.MarkerFile:
		w.reconcileGlobal(ctx)

	case parent == rootDir:
		// a tenant directory came or went; its marker may have moved with it
		if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 && w.root.FS().IsDir(name) {
			w.addTenantDir(ctx, base)
		}
		w.reconcileTenant(ctx, base)

	case filepath.Dir(parent) == rootDir && base == webroot.MarkerFile:
		w.reconcileTenant(ctx, filepath.Base(parent))
	}
}

func (w *Watcher) addTenantDir(ctx context.Context, name string) {
	err := w.fw.Add(w.root.TenantDir(name))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	w.logger.Warn(ctx, "could not watch tenant directory", "tenant", name, "error", err.Error())
	if w.metrics != nil {
		w.metrics.IncWatcherError()
	}
}

// reconcile* compare the filesystem with the last known state, so repeated
// or out-of-order events never double count.
func (w *Watcher) reconcileGlobal(ctx context.Context) {
	now := w.root.FS().Exists(w.root.GlobalMarker())

	w.mu.Lock()
	changed := now != w.global
	w.global = now
	w.mu.Unlock()

	if changed {
		w.report(ctx, ScopeGlobal, "", now)
	}
}

func (w *Watcher) reconcileTenant(ctx context.Context, name string) {
	now := w.root.FS().Exists(w.root.TenantMarker(name))

	w.mu.Lock()
	_, was := w.tenants[name]
	if now {
		w.tenants[name] = struct{}{}
	} else {
		delete(w.tenants, name)
	}
	w.mu.Unlock()

	if now != was {
		w.report(ctx, ScopeTenant, name, now)
	}
}

func (w *Watcher) report(ctx context.Context, scope, tenant string, present bool) {
	change, msg := ChangeRemoved, "maintenance marker removed"
	if present {
		change, msg = ChangeAdded, "maintenance marker added"
	}
	kv := []any{"scope", scope}
	if tenant != "" {
		kv = append(kv, "tenant", tenant)
	}
	w.logger.Info(ctx, msg, kv...)

	if w.metrics != nil {
		w.metrics.IncMaintenanceMarkerChange(scope, change)
	}
	w.publish()
}

func (w *Watcher) publish() {
	if w.metrics == nil {
		return
	}
	w.mu.Lock()
	global, tenants := 0, len(w.tenants)
	if w.global {
		global = 1
	}
	w.mu.Unlock()
	w.metrics.SetMaintenanceMarkers(ScopeGlobal, global)
	w.metrics.SetMaintenanceMarkers(ScopeTenant, tenants)
}
