package pathutil

import (
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.com", false},
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{".", true},
		{"..", true},
		{"/...", false},     // three dots is a name
		{"/.hidden", false}, // dotfile
		{"/.maintenance", false},
		{"/path/to/.", true},
		{"/../", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		base, p string
		want    bool
	}{
		{"/var/www/a.com", "/var/www/a.com", true},
		{"/var/www/a.com", "/var/www/a.com/index.html", true},
		{"/var/www/a.com", "/var/www/a.com/sub/../index.html", true},
		{"/var/www/a.com", "/var/www/a.com/..foo", true},
		{"/var/www/a.com", "/var/www/b.com/index.html", false},
		{"/var/www/a.com", "/var/www/a.com.evil/index.html", false},
		{"/var/www/a.com", "/var/www/.maintenance", false},
		{"/var/www/a.com", "/etc/passwd", false},
		{"/var/www/a.com/", "/var/www/a.com/x", true},
		{"rel/a.com", "rel/a.com/x", true},
		{"/var/www/a.com", "rel/a.com/x", false},
	}
	for _, tt := range tests {
		if got := Within(tt.base, tt.p); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.base, tt.p, got, tt.want)
		}
	}
}

func FuzzHasDotSegments(f *testing.F) {
	f.Add("foo/./bar")
	f.Add("foo/../bar")
	f.Add("./foo")
	f.Add("...")

	f.Fuzz(func(t *testing.T, p string) {
		want := false
		for _, seg := range strings.Split(p, "/") {
			if seg == "." || seg == ".." {
				want = true
				break
			}
		}
		if got := HasDotSegments(p); got != want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", p, got, want)
		}
	})
}
