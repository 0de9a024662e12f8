package spits

import (
	"path/filepath"
)

// ResolvePath turns a job binary location into the absolute, symlink-free
// path that identifies it.
func ResolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
