package program

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSource supplies shader text and modification times. ModTime returns 0
// when the time is unknown, which never triggers a reload.
type FileSource interface {
	ReadFile(path string) ([]byte, error)
	ModTime(path string) int64
}

// OSFiles reads from disk, relative to Root when it is set.
type OSFiles struct {
	Root string
}

func (f OSFiles) Resolve(path string) string {
	if f.Root == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(f.Root, path)
}

func (f OSFiles) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(f.Resolve(path))
}

func (f OSFiles) ModTime(path string) int64 {
	info, err := os.Stat(f.Resolve(path))
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// FSFiles reads from an fs.FS such as the embedded shader set.
type FSFiles struct {
	FS fs.FS
}

func (f FSFiles) ReadFile(path string) ([]byte, error) {
	return fs.ReadFile(f.FS, filepath.ToSlash(path))
}

func (f FSFiles) ModTime(path string) int64 {
	info, err := fs.Stat(f.FS, filepath.ToSlash(path))
	if err != nil || info.ModTime().IsZero() {
		return 0
	}
	return info.ModTime().UnixNano()
}
