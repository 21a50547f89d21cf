package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type osMock struct {
	mock.Mock
	osImpl
}

func (o *osMock) Rename(oldpath, newpath string) error {
	return o.Called(oldpath, newpath).Error(0)
}

type StorageTestSuite struct {
	suite.Suite
	dir string
	s   *Storage
}

func (s *StorageTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.s = NewStorage().(*Storage)
}

func (s *StorageTestSuite) read(name string) string {
	b, err := os.ReadFile(name)
	s.Require().NoError(err)
	return string(b)
}

func (s *StorageTestSuite) TestAppendFile() {
	name := filepath.Join(s.dir, "books.db")
	n, err := s.s.AppendFile(name, 0o644, []byte("a\n"))
	s.NoError(err)
	s.Equal(2, n)
	_, err = s.s.AppendFile(name, 0o644, []byte("b\n"))
	s.NoError(err)
	s.Equal("a\nb\n", s.read(name))
}

func (s *StorageTestSuite) TestExists() {
	name := filepath.Join(s.dir, "books.db")
	exists, err := s.s.Exists(name)
	s.NoError(err)
	s.False(exists)

	s.NoError(os.WriteFile(name, nil, 0o644))
	exists, err = s.s.Exists(name)
	s.NoError(err)
	s.True(exists)
}

func (s *StorageTestSuite) TestEnsureParentDirectoryExists() {
	name := filepath.Join(s.dir, "a", "b", "books.db")
	s.NoError(s.s.EnsureParentDirectoryExists(name, 0o755))
	info, err := os.Stat(filepath.Join(s.dir, "a", "b"))
	s.NoError(err)
	s.True(info.IsDir())
}

func (s *StorageTestSuite) TestEnsureDatafileIntegrity() {
	s.Run("CreatesEmptyFile", func() {
		name := filepath.Join(s.dir, "empty.db")
		s.NoError(s.s.EnsureDatafileIntegrity(name, 0o644))
		s.Equal("", s.read(name))
	})
	s.Run("KeepsExistingFile", func() {
		name := filepath.Join(s.dir, "existing.db")
		s.NoError(os.WriteFile(name, []byte("current\n"), 0o644))
		s.NoError(os.WriteFile(name+"~", []byte("backup\n"), 0o644))
		s.NoError(s.s.EnsureDatafileIntegrity(name, 0o644))
		s.Equal("current\n", s.read(name))
	})
	s.Run("RestoresBackup", func() {
		name := filepath.Join(s.dir, "interrupted.db")
		s.NoError(os.WriteFile(name+"~", []byte("backup\n"), 0o644))
		s.NoError(s.s.EnsureDatafileIntegrity(name, 0o644))
		s.Equal("backup\n", s.read(name))
		_, err := os.Stat(name + "~")
		s.True(os.IsNotExist(err))
	})
}

func (s *StorageTestSuite) TestCrashSafeWriteFileLines() {
	name := filepath.Join(s.dir, "books.db")
	s.NoError(os.WriteFile(name, []byte("old\n"), 0o644))
	s.NoError(s.s.CrashSafeWriteFileLines(name, [][]byte{[]byte("a"), []byte("b")}, 0o755, 0o644))
	s.Equal("a\nb\n", s.read(name))
	_, err := os.Stat(name + "~")
	s.True(os.IsNotExist(err))
}

func (s *StorageTestSuite) TestInterruptedRewriteKeepsOldFile() {
	name := filepath.Join(s.dir, "books.db")
	s.NoError(os.WriteFile(name, []byte("old\n"), 0o644))
	errRename := errors.New("rename failed")
	o := new(osMock)
	o.On("Rename", name+"~", name).Return(errRename).Once()
	s.s.osOps = o

	err := s.s.CrashSafeWriteFileLines(name, [][]byte{[]byte("new")}, 0o755, 0o644)
	s.ErrorIs(err, errRename)
	s.Equal("old\n", s.read(name))
	s.Equal("new\n", s.read(name+"~"))
	o.AssertExpectations(s.T())
}

func (s *StorageTestSuite) TestReadFileStreamAndRemove() {
	name := filepath.Join(s.dir, "books.db")
	s.NoError(os.WriteFile(name, []byte("line\n"), 0o644))
	r, err := s.s.ReadFileStream(name, 0o644)
	s.Require().NoError(err)
	b, err := io.ReadAll(r)
	s.NoError(err)
	s.NoError(r.Close())
	s.Equal("line\n", string(b))

	s.NoError(s.s.Remove(name))
	exists, err := s.s.Exists(name)
	s.NoError(err)
	s.False(exists)
}

func (s *StorageTestSuite) TestFlushMissingFile() {
	err := s.s.flushToStorage(filepath.Join(s.dir, "missing"), false, 0o644)
	s.ErrorIs(err, os.ErrNotExist)
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}
