package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		hops   int
		want   string
		kept   bool // X-Forwarded-For still present afterwards
	}{
		{"public peer, no hops", "203.0.113.9:5000", "", 0, "203.0.113.9", false},
		{"public peer ignores xff", "203.0.113.9:5000", "1.2.3.4", 1, "203.0.113.9", false},
		{"private peer, zero hops ignores xff", "10.0.0.5:5000", "1.2.3.4", 0, "10.0.0.5", false},
		{"private peer, one hop", "10.0.0.5:5000", "9.9.9.9, 1.2.3.4", 1, "1.2.3.4", true},
		{"private peer, two hops", "10.0.0.5:5000", "9.9.9.9, 1.2.3.4", 2, "9.9.9.9", true},
		{"too few entries", "10.0.0.5:5000", "1.2.3.4", 2, "10.0.0.5", false},
		{"loopback proxy", "127.0.0.1:5000", "198.51.100.7", 1, "198.51.100.7", true},
		{"garbage entry", "10.0.0.5:5000", "not-an-ip", 1, "10.0.0.5", true},
		{"private, no header", "10.0.0.5:5000", "", 1, "10.0.0.5", false},
		{"ipv6 peer", "[2001:db8::1]:443", "", 0, "2001:db8::1", false},
		{"v4-mapped", "[::ffff:10.0.0.5]:80", "1.2.3.4", 1, "1.2.3.4", true},
		{"no port", "192.0.2.1", "", 0, "192.0.2.1", false},
		{"malformed", "nonsense", "", 0, "0.0.0.0", false},
		{"empty", "", "", 0, "0.0.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientAddr(r, tt.hops); got != tt.want {
				t.Fatalf("clientAddr = %q, want %q", got, tt.want)
			}
			if kept := r.Header.Get("X-Forwarded-For") != ""; kept != tt.kept {
				t.Fatalf("X-Forwarded-For kept = %v, want %v", kept, tt.kept)
			}
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:999"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "198.51.100.1" {
		t.Fatalf("client ip = %q", got)
	}

	ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), r)
	if got != "10.1.2.3" {
		t.Fatalf("default options: client ip = %q", got)
	}
}

func TestClientIPContext(t *testing.T) {
	ctx := context.Background()
	if ClientIPFromContext(ctx) != "" || WithClientIP(ctx, "") != ctx {
		t.Fatal("empty values should be no-ops")
	}
	if got := ClientIPFromContext(WithClientIP(ctx, "1.1.1.1")); got != "1.1.1.1" {
		t.Fatalf("ip = %q", got)
	}
}
