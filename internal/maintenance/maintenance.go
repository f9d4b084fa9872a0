// Package maintenance decides, per request, whether a tenant is in
// maintenance mode and which page to serve while it is.
//
// Markers and pages are looked up on every call. Nothing is cached, so
// touching or removing a .maintenance file takes effect on the next request.
package maintenance

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/webroot"
)

const (
	Status      = http.StatusServiceUnavailable
	ContentType = "text/html"
	RetryAfter  = "300"
)

type Mode string

const (
	ModeNone   Mode = "none"
	ModeGlobal Mode = "global"
	ModeTenant Mode = "tenant"
)

// Response is what the site handler writes while maintenance is active.
type Response struct {
	Mode   Mode
	Status int
	Header http.Header
	Body   []byte
}

type Checker struct {
	root        webroot.Root
	defaultPage []byte
}

// New returns a Checker over root. defaultPage is served when no
// maintenance.html exists on disk.
func New(root webroot.Root, defaultPage []byte) *Checker {
	return &Checker{root: root, defaultPage: defaultPage}
}

// Mode reports which marker, if any, is present. The global marker is
// checked first and wins.
func (c *Checker) Mode(tenant string) Mode {
	fsys := c.root.FS()
	if fsys.Exists(c.root.GlobalMarker()) {
		return ModeGlobal
	}
	if fsys.Exists(c.root.TenantMarker(tenant)) {
		return ModeTenant
	}
	return ModeNone
}

// Body picks the page independently of which marker triggered: the tenant's
// maintenance.html, then the web root's, then the built-in page. Unreadable
// files are skipped.
func (c *Checker) Body(tenant string) []byte {
	fsys := c.root.FS()
	for _, p := range []string{c.root.TenantPage(tenant), c.root.GlobalPage()} {
		if b, err := fsys.ReadFile(p); err == nil {
			return b
		}
	}
	return c.defaultPage
}

// Evaluate returns the 503 response when maintenance is active for tenant.
func (c *Checker) Evaluate(tenant string) (*Response, bool) {
	mode := c.Mode(tenant)
	if mode == ModeNone {
		return nil, false
	}
	h := make(http.Header, 2)
	h.Set("Content-Type", ContentType)
	h.Set("Retry-After", RetryAfter)
	return &Response{
		Mode:   mode,
		Status: Status,
		Header: h,
		Body:   c.Body(tenant),
	}, true
}
