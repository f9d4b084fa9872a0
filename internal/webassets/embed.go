// Package webassets embeds the pages the server can always fall back to,
// independent of anything under the web root.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// DefaultMaintenanceFile is served with 503 when neither the tenant nor the
// web root provides its own maintenance.html.
const DefaultMaintenanceFile = "maintenance.html"

//go:embed fallback
var embedded embed.FS

func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}

// DefaultMaintenancePage returns a copy of the built-in maintenance page.
func DefaultMaintenancePage() []byte {
	b, err := fs.ReadFile(FallbackFS(), DefaultMaintenanceFile)
	if err != nil {
		panic(fmt.Errorf("webassets: %s missing from build: %w", DefaultMaintenanceFile, err))
	}
	return b
}
