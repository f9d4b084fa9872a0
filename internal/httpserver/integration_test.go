package httpserver_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/log"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/maintenance"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/sitehandler"
	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
)

func mkfile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// stack wires the tenant listener the way main does, over a temp web root.
func stack(t *testing.T) (http.Handler, string, *metrics.ServerMetrics) {
	t.Helper()
	dir := t.TempDir()
	root := webroot.New(dir, nil)
	m := metrics.New()

	site, err := sitehandler.New(sitehandler.Options{
		Logger:      log.Nop(),
		Root:        root,
		Maintenance: maintenance.New(root, []byte("<h1>builtin</h1>")),
		Outcomes:    m,
	})
	if err != nil {
		t.Fatalf("sitehandler.New: %v", err)
	}

	h := httpserver.NewHandler(&httpserver.Options{
		Logger:       log.Nop(),
		SiteHandler:  site,
		UseRecoverMW: true,
		MetricsMW:    m.Middleware,
	})
	return h, dir, m
}

func get(h http.Handler, method, host, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	req.Host = host
	h.ServeHTTP(rec, req)
	return rec
}

func TestIntegration_ServesTenantFiles(t *testing.T) {
	h, dir, _ := stack(t)
	mkfile(t, dir, "a.com/index.html", "<p>a</p>")
	mkfile(t, dir, "b.com/index.html", "<p>b</p>")
	mkfile(t, dir, "a.com/css/site.css", "body{}")

	tests := []struct {
		host, target, body, ctype string
	}{
		{"a.com", "/", "<p>a</p>", "text/html; charset=utf-8"},
		{"a.com:8080", "/index.html", "<p>a</p>", "text/html; charset=utf-8"},
		{"b.com", "/", "<p>b</p>", "text/html; charset=utf-8"},
		{"a.com", "/css/site.css?v=3", "body{}", "text/css; charset=utf-8"},
	}
	for _, tt := range tests {
		rec := get(h, http.MethodGet, tt.host, tt.target)
		if rec.Code != http.StatusOK || rec.Body.String() != tt.body {
			t.Errorf("%s%s = %d %q", tt.host, tt.target, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != tt.ctype {
			t.Errorf("%s%s Content-Type = %q, want %q", tt.host, tt.target, got, tt.ctype)
		}
	}
}

func TestIntegration_MissingIsEmpty200(t *testing.T) {
	h, dir, _ := stack(t)
	mkfile(t, dir, "a.com/index.html", "x")

	for _, target := range []string{"/nope.html", "/dir/"} {
		rec := get(h, http.MethodPost, "unknown.example", target)
		if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
			t.Fatalf("%s = %d %q, want empty 200", target, rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "" {
			t.Fatalf("%s Content-Type = %q, want none", target, ct)
		}
	}
}

func TestIntegration_Maintenance(t *testing.T) {
	h, dir, _ := stack(t)
	mkfile(t, dir, "a.com/index.html", "live")
	mkfile(t, dir, "b.com/index.html", "live")
	mkfile(t, dir, "a.com/.maintenance", "")
	mkfile(t, dir, "a.com/maintenance.html", "<p>a is down</p>")

	rec := get(h, http.MethodGet, "a.com", "/")
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "<p>a is down</p>" {
		t.Fatalf("a.com = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "300" || rec.Header().Get("Content-Type") != "text/html" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("security headers missing on maintenance response")
	}

	if rec := get(h, http.MethodGet, "b.com", "/"); rec.Code != http.StatusOK {
		t.Fatalf("b.com = %d, tenant marker must not affect other tenants", rec.Code)
	}

	mkfile(t, dir, ".maintenance", "")
	rec = get(h, http.MethodGet, "b.com", "/")
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "<h1>builtin</h1>" {
		t.Fatalf("b.com under global marker = %d %q", rec.Code, rec.Body.String())
	}
}

func TestIntegration_MetricsUseBoundedRoute(t *testing.T) {
	h, dir, m := stack(t)
	mkfile(t, dir, "a.com/index.html", "x")

	for i := 0; i < 5; i++ {
		get(h, http.MethodGet, "a.com", fmt.Sprintf("/unique/%d/path", i))
	}
	get(h, http.MethodGet, "a.com", "/")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	if !strings.Contains(out, `route="/*"`) {
		t.Fatal("requests should be labelled with the catch-all route")
	}
	if strings.Contains(out, "/unique/") {
		t.Fatal("raw request paths leaked into metric labels")
	}
	if !strings.Contains(out, `outcome="missing"`) || !strings.Contains(out, `outcome="served"`) {
		t.Fatal("site outcomes not counted")
	}
}

// TestIntegration_LiveServerEmptyResponse checks what a client sees over the
// wire for a missing file: 200, no body and no Content-Type.
func TestIntegration_LiveServerEmptyResponse(t *testing.T) {
	h, dir, _ := stack(t)
	mkfile(t, dir, "127.0.0.1/index.html", "home")

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing.txt")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		t.Fatalf("Content-Type = %q", ct)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "home" {
		t.Fatalf("index body = %q", body)
	}
}

// rawGet sends request lines verbatim so the Host header can be left out.
func rawGet(t *testing.T, addr, request string) (*http.Response, string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, request); err != nil {
		t.Fatal(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestIntegration_NoHostHeader(t *testing.T) {
	h, dir, _ := stack(t)
	mkfile(t, dir, "default/index.html", "fallback")

	srv := httptest.NewServer(h)
	defer srv.Close()
	addr := srv.Listener.Addr().String()

	// HTTP/1.0 may omit Host; the request reaches the default tenant
	resp, body := rawGet(t, addr, "GET / HTTP/1.0\r\n\r\n")
	if resp.StatusCode != http.StatusOK || body != "fallback" {
		t.Fatalf("HTTP/1.0 without Host: %d %q", resp.StatusCode, body)
	}

	// HTTP/1.1 requires Host; net/http answers 400 before any handler runs
	resp, _ = rawGet(t, addr, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("HTTP/1.1 without Host: status = %d, want 400", resp.StatusCode)
	}
}
