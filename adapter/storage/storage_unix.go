//go:build !windows

package storage

import "os"

func ensureDir(o osOps, dir string, mode os.FileMode) error {
	return o.MkdirAll(dir, mode)
}

// syncFile flushes files and directories alike. Syncing the parent directory
// makes a rename durable.
func syncFile(f *os.File, _ bool) error {
	return f.Sync()
}
