package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
)

var errBoom = errors.New("boom")

func fail(err error) CheckFunc { return func(context.Context) error { return err } }

func TestFixed(t *testing.T) {
	if err := Fixed(true, "ignored").Check(context.Background()); err != nil {
		t.Fatalf("ok: %v", err)
	}
	if err := Fixed(false, "db down").Check(context.Background()); err == nil || err.Error() != "db down" {
		t.Fatalf("fail: %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("default reason: %v", err)
	}
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		probes []Probe
		want   error
	}{
		{"empty", nil, nil},
		{"all ok", []Probe{Fixed(true, ""), Fixed(true, "")}, nil},
		{"nil skipped", []Probe{nil, Fixed(true, "")}, nil},
		{"first failure wins", []Probe{Fixed(true, ""), fail(errBoom), fail(errors.New("second"))}, errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := All(tt.probes...).Check(ctx); err != tt.want {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWebRoot(t *testing.T) {
	dir := t.TempDir()
	var seen []bool
	observe := func(ok bool) { seen = append(seen, ok) }

	if err := WebRoot(webroot.New(dir, nil), observe).Check(context.Background()); err != nil {
		t.Fatalf("existing dir: %v", err)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WebRoot(webroot.New(file, nil), observe).Check(context.Background()); err == nil {
		t.Fatal("a regular file is not a web root")
	}
	err := WebRoot(webroot.New(filepath.Join(dir, "missing"), nil), observe).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("missing dir: %v", err)
	}

	if len(seen) != 3 || !seen[0] || seen[1] || seen[2] {
		t.Fatalf("observed = %v", seen)
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	ctx := context.Background()

	if err := p.Check(ctx); err != nil || g.Draining() {
		t.Fatalf("fresh gate: %v", err)
	}
	g.Set("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("draining: %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("reason: %v", err)
	}
	g.Clear()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("cleared: %v", err)
	}
}

func TestShutdownGate_Concurrent(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); g.Set("x"); g.Clear() }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), 200, "ok"},
		{"healthz nil probe", HealthzHandler(nil), 200, "ok"},
		{"healthz fail", HealthzHandler(Fixed(false, "db down")), 503, "db down"},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), 200, "ready"},
		{"readyz fail", ReadyzHandler(Fixed(false, "draining")), 503, "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("probe responses must not be cached")
			}
		})
	}
}
