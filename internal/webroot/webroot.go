// Package webroot maps tenants and request paths onto the on-disk layout:
//
//	{root}/.maintenance
//	{root}/maintenance.html
//	{root}/{tenant}/.maintenance
//	{root}/{tenant}/maintenance.html
//	{root}/{tenant}/...
//
// A Root is immutable after New and safe to share between goroutines.
package webroot

import (
	"path/filepath"
	"strings"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/pathutil"
)

const (
	MarkerFile      = ".maintenance"
	MaintenancePage = "maintenance.html"
	IndexFile       = "index.html"
)

type Root struct {
	dir string
	fs  Filesystem
}

// New returns a Root for dir. A nil fsys means OS().
func New(dir string, fsys Filesystem) Root {
	if fsys == nil {
		fsys = OS()
	}
	return Root{dir: dir, fs: fsys}
}

func (r Root) Dir() string    { return r.dir }
func (r Root) FS() Filesystem { return r.fs }
func (r Root) Join(elem ...string) string {
	return filepath.Join(append([]string{r.dir}, elem...)...)
}

// TenantDir is {root}/{tenant}.
func (r Root) TenantDir(tenant string) string { return r.Join(tenant) }

// GlobalMarker and TenantMarker are the maintenance sentinel paths.
func (r Root) GlobalMarker() string              { return r.Join(MarkerFile) }
func (r Root) TenantMarker(tenant string) string { return r.Join(tenant, MarkerFile) }
func (r Root) GlobalPage() string                { return r.Join(MaintenancePage) }
func (r Root) TenantPage(tenant string) string   { return r.Join(tenant, MaintenancePage) }

// Resolve builds {root}/{tenant}/{urlPath} and appends index.html when the
// result is a directory or urlPath ends in "/". Only one leading "/" is
// stripped and ".." is left to filepath.Join, so the result may point
// outside the tenant directory; see Confined.
func (r Root) Resolve(tenant, urlPath string) string {
	rel := strings.TrimPrefix(urlPath, "/")
	p := filepath.Join(r.dir, tenant, rel)

	if r.fs.IsDir(p) || strings.HasSuffix(urlPath, "/") {
		p = filepath.Join(p, IndexFile)
	}
	return p
}

// Confined reports whether resolved stays inside the tenant's directory and
// the tenant itself is a single clean path segment.
func (r Root) Confined(tenant, resolved string) bool {
	if tenant == "" || strings.ContainsAny(tenant, `/\`) || pathutil.HasDotSegments(tenant) {
		return false
	}
	return pathutil.Within(r.TenantDir(tenant), resolved)
}
