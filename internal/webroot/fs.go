package webroot

import "os"

// Filesystem is the set of primitives the request pipeline needs. Every
// failure is folded into false/err so callers can treat it as absent.
type Filesystem interface {
	// Exists does not distinguish not-found from permission or I/O errors.
	Exists(path string) bool
	IsDir(path string) bool
	ReadFile(path string) ([]byte, error)
}

type osFS struct{}

// OS returns the Filesystem backed by the host operating system.
func OS() Filesystem { return osFS{} }

func (osFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (osFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
