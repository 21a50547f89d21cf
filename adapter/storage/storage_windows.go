//go:build windows

package storage

import (
	"os"
	"path/filepath"
)

// ensureDir skips volume roots such as C:\, which MkdirAll cannot create.
func ensureDir(o osOps, dir string, mode os.FileMode) error {
	if dir == filepath.VolumeName(dir)+string(filepath.Separator) {
		return nil
	}
	return o.MkdirAll(dir, mode)
}

// syncFile does nothing for directories. Windows cannot flush them.
func syncFile(f *os.File, isDir bool) error {
	if isDir {
		return nil
	}
	return f.Sync()
}
