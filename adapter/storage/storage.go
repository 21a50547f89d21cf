// Package storage contains the default [domain.Storage] implementation.
//
// Rewrites go through a backup file named after the data file with a trailing
// '~': the new content is written and synced there first, then renamed over
// the data file. A backup found without a data file is the result of an
// interrupted rewrite and is restored on load.
package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Storage implements [domain.Storage].
type Storage struct {
	osOps osOps
}

// NewStorage returns a new implementation of [domain.Storage].
func NewStorage() domain.Storage {
	return &Storage{osOps: &osImpl{}}
}

// AppendFile implements [domain.Storage].
func (s *Storage) AppendFile(filename string, mode os.FileMode, data []byte) (int, error) {
	f, err := s.osOps.OpenFile(filename, os.O_WRONLY|os.O_APPEND|os.O_CREATE, mode)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if errClose := f.Close(); err == nil {
		err = errClose
	}
	return n, err
}

// Exists implements [domain.Storage].
func (s *Storage) Exists(filename string) (bool, error) {
	_, err := s.osOps.Stat(filename)
	if err == nil {
		return true, nil
	}
	if s.osOps.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// EnsureParentDirectoryExists implements [domain.Storage].
func (s *Storage) EnsureParentDirectoryExists(filename string, mode os.FileMode) error {
	return ensureDir(s.osOps, filepath.Dir(filename), mode)
}

// EnsureDatafileIntegrity implements [domain.Storage].
func (s *Storage) EnsureDatafileIntegrity(filename string, mode os.FileMode) error {
	backup := filename + "~"
	exists, err := s.Exists(filename)
	if err != nil || exists {
		return err
	}
	backupExists, err := s.Exists(backup)
	if err != nil {
		return err
	}
	if backupExists {
		return s.osOps.Rename(backup, filename)
	}
	return s.osOps.WriteFile(filename, nil, mode)
}

// CrashSafeWriteFileLines implements [domain.Storage].
func (s *Storage) CrashSafeWriteFileLines(filename string, lines [][]byte, dirMode, fileMode os.FileMode) error {
	backup := filename + "~"
	dir := filepath.Dir(filename)

	if err := s.flushToStorage(dir, true, dirMode); err != nil {
		return err
	}
	exists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if exists {
		if err := s.flushToStorage(filename, false, fileMode); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := s.osOps.WriteFile(backup, buf.Bytes(), fileMode); err != nil {
		return err
	}
	if err := s.flushToStorage(backup, false, fileMode); err != nil {
		return err
	}
	if err := s.osOps.Rename(backup, filename); err != nil {
		return err
	}
	return s.flushToStorage(dir, true, dirMode)
}

func (s *Storage) flushToStorage(name string, isDir bool, mode os.FileMode) error {
	flag := os.O_RDWR
	if isDir {
		flag = os.O_RDONLY
	}
	f, err := s.osOps.OpenFile(name, flag, mode)
	if err != nil {
		return err
	}
	errSync := syncFile(f, isDir)
	errClose := f.Close()
	if errSync != nil || errClose != nil {
		return domain.ErrFlushToStorage{ErrorOnFsync: errSync, ErrorOnClose: errClose}
	}
	return nil
}

// ReadFileStream implements [domain.Storage].
func (s *Storage) ReadFileStream(filename string, mode os.FileMode) (io.ReadCloser, error) {
	return s.osOps.OpenFile(filename, os.O_RDONLY, mode)
}

// Remove implements [domain.Storage].
func (s *Storage) Remove(filename string) error {
	return s.osOps.Remove(filename)
}
