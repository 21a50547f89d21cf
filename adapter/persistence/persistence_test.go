package persistence

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type M = data.M

type storageMock struct{ mock.Mock }

func (s *storageMock) AppendFile(name string, mode os.FileMode, b []byte) (int, error) {
	call := s.Called(name, mode, b)
	return call.Int(0), call.Error(1)
}

func (s *storageMock) Exists(name string) (bool, error) {
	call := s.Called(name)
	return call.Bool(0), call.Error(1)
}

func (s *storageMock) EnsureParentDirectoryExists(name string, mode os.FileMode) error {
	return s.Called(name, mode).Error(0)
}

func (s *storageMock) EnsureDatafileIntegrity(name string, mode os.FileMode) error {
	return s.Called(name, mode).Error(0)
}

func (s *storageMock) CrashSafeWriteFileLines(name string, lines [][]byte, dirMode, fileMode os.FileMode) error {
	return s.Called(name, lines, dirMode, fileMode).Error(0)
}

func (s *storageMock) ReadFileStream(name string, mode os.FileMode) (io.ReadCloser, error) {
	call := s.Called(name, mode)
	rc, _ := call.Get(0).(io.ReadCloser)
	return rc, call.Error(1)
}

func (s *storageMock) Remove(name string) error {
	return s.Called(name).Error(0)
}

type PersistenceTestSuite struct {
	suite.Suite
	ctx       context.Context
	testDbDir string
	filename  string
	p         *Persistence
}

func (s *PersistenceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.testDbDir = s.T().TempDir()
	s.filename = filepath.Join(s.testDbDir, "data", "books.db")
	p, err := NewPersistence(WithFilename(s.filename))
	s.Require().NoError(err)
	s.p = p.(*Persistence)
}

func (s *PersistenceTestSuite) lines() []string {
	b, err := os.ReadFile(s.filename)
	s.Require().NoError(err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func (s *PersistenceTestSuite) writeFile(lines ...string) {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.filename), 0o755))
	s.Require().NoError(os.WriteFile(s.filename, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func (s *PersistenceTestSuite) TestInMemoryOnly() {
	p, err := NewPersistence()
	s.Require().NoError(err)
	docs, indexes, err := p.LoadDatabase(s.ctx)
	s.NoError(err)
	s.Nil(docs)
	s.Nil(indexes)
	s.NoError(p.PersistNewState(s.ctx, M{"_id": "a"}))
	s.NoError(p.PersistIndexes(s.ctx, []domain.IndexDescriptor{{Fields: []domain.IndexField{{Path: "a", Order: 1}}}}, nil))
	s.NoError(p.PersistCachedDatabase(s.ctx, nil, nil))
	s.NoError(p.DropDatabase(s.ctx))
}

func (s *PersistenceTestSuite) TestReservedFilename() {
	_, err := NewPersistence(WithFilename("books.db~"))
	s.ErrorAs(err, new(domain.ErrDatafileName))
}

func (s *PersistenceTestSuite) TestLoadMissingFile() {
	docs, indexes, err := s.p.LoadDatabase(s.ctx)
	s.NoError(err)
	s.Empty(docs)
	s.Empty(indexes)
	_, err = os.Stat(s.filename)
	s.NoError(err)
}

func (s *PersistenceTestSuite) TestLoadReplaysAndCompacts() {
	_, _, err := s.p.LoadDatabase(s.ctx)
	s.Require().NoError(err)

	isbn := domain.IndexDescriptor{Fields: []domain.IndexField{{Path: "isbn", Order: 1}}, Unique: true}
	text := domain.IndexDescriptor{
		Fields:  []domain.IndexField{{Path: "title"}, {Path: "tags"}},
		Kind:    domain.IndexText,
		Weights: map[string]int{"title": 3},
	}
	genre := domain.IndexDescriptor{Name: "by_genre", Fields: []domain.IndexField{{Path: "genre", Order: -1}}}

	s.NoError(s.p.PersistNewState(s.ctx,
		M{"_id": "gatsby", "title": "The Great Gatsby", "rating": 4.5},
		M{"_id": "1984", "title": "1984"},
		M{"_id": "hobbit", "title": "The Hobbit"},
	))
	s.NoError(s.p.PersistIndexes(s.ctx, []domain.IndexDescriptor{isbn, text, genre}, nil))
	s.NoError(s.p.PersistNewState(s.ctx,
		M{"_id": "gatsby", "title": "The Great Gatsby", "rating": 4.6},
		Tombstone("1984"),
	))
	s.NoError(s.p.PersistIndexes(s.ctx, nil, []string{"by_genre"}))
	s.Len(s.lines(), 9)

	docs, indexes, err := s.p.LoadDatabase(s.ctx)
	s.Require().NoError(err)
	s.Equal([]domain.Document{
		M{"_id": "gatsby", "title": "The Great Gatsby", "rating": 4.6},
		Tombstone("1984"),
		M{"_id": "hobbit", "title": "The Hobbit"},
	}, docs)
	s.False(IsTombstone(docs[0]))
	s.True(IsTombstone(docs[1]))

	isbn.Name = "isbn_1"
	text.Name = "title_text_tags_text"
	s.Equal([]domain.IndexDescriptor{isbn, text}, indexes)
	// the tombstone survives compaction
	s.Len(s.lines(), 5)
}

func (s *PersistenceTestSuite) TestDatesSurviveReload() {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.writeFile()
	s.NoError(s.p.PersistNewState(s.ctx, M{"_id": "hobbit", "createdAt": created}))
	docs, _, err := s.p.LoadDatabase(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	loaded, ok := docs[0].Get("createdAt").(time.Time)
	s.Require().True(ok)
	s.True(created.Equal(loaded))
}

func (s *PersistenceTestSuite) TestCorruptLinesBelowThreshold() {
	lines := []string{`{"_id":"bad-json"`}
	for n := range 10 {
		lines = append(lines, `{"_id":"`+string(rune('a'+n))+`"}`)
	}
	s.writeFile(lines...)
	docs, _, err := s.p.LoadDatabase(s.ctx)
	s.NoError(err)
	s.Len(docs, 10)
}

func (s *PersistenceTestSuite) TestCorruptLinesAboveThreshold() {
	s.writeFile(
		`{"_id":"a"}`,
		`not json`,
		`{"_id":1}`,
		`{"$$indexCreated":{"name":"x"}}`,
		`{"something":"else"}`,
	)
	_, _, err := s.p.LoadDatabase(s.ctx)
	var target domain.ErrCorruptFiles
	s.Require().ErrorAs(err, &target)
	s.Equal(4, target.CorruptItems)
	s.Equal(5, target.DataLength)

	p, err := NewPersistence(WithFilename(s.filename), WithCorruptAlertThreshold(1))
	s.Require().NoError(err)
	docs, _, err := p.LoadDatabase(s.ctx)
	s.NoError(err)
	s.Equal([]domain.Document{M{"_id": "a"}}, docs)
}

func (s *PersistenceTestSuite) TestDropDatabase() {
	s.writeFile(`{"_id":"a"}`)
	s.NoError(s.p.DropDatabase(s.ctx))
	_, err := os.Stat(s.filename)
	s.True(os.IsNotExist(err))
	s.NoError(s.p.DropDatabase(s.ctx))
}

func (s *PersistenceTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, _, err := s.p.LoadDatabase(ctx)
	s.ErrorIs(err, context.Canceled)
	s.ErrorIs(s.p.PersistNewState(ctx, M{"_id": "a"}), context.Canceled)
	s.ErrorIs(s.p.PersistIndexes(ctx, nil, []string{"a"}), context.Canceled)
	s.ErrorIs(s.p.PersistCachedDatabase(ctx, nil, nil), context.Canceled)
	s.ErrorIs(s.p.DropDatabase(ctx), context.Canceled)
}

func (s *PersistenceTestSuite) TestStorageErrors() {
	errStorage := errors.New("disk full")
	st := new(storageMock)
	p, err := NewPersistence(WithFilename("books.db"), WithStorage(st))
	s.Require().NoError(err)

	st.On("AppendFile", "books.db", DefaultFileMode, mock.Anything).Return(0, errStorage).Once()
	s.ErrorIs(p.PersistNewState(s.ctx, M{"_id": "a"}), errStorage)

	st.On("EnsureParentDirectoryExists", "books.db", DefaultDirMode).Return(nil).Once()
	st.On("EnsureDatafileIntegrity", "books.db", DefaultFileMode).Return(errStorage).Once()
	_, _, err = p.LoadDatabase(s.ctx)
	s.ErrorIs(err, errStorage)

	st.On("CrashSafeWriteFileLines", "books.db", mock.Anything, DefaultDirMode, DefaultFileMode).Return(errStorage).Once()
	s.ErrorIs(p.PersistCachedDatabase(s.ctx, []domain.Document{M{"_id": "a"}}, nil), errStorage)

	st.On("Exists", "books.db").Return(false, errStorage).Once()
	s.ErrorIs(p.DropDatabase(s.ctx), errStorage)

	st.AssertExpectations(s.T())
}

func (s *PersistenceTestSuite) TestNothingToAppend() {
	st := new(storageMock)
	p, err := NewPersistence(WithFilename("books.db"), WithStorage(st))
	s.Require().NoError(err)
	s.NoError(p.PersistNewState(s.ctx))
	s.NoError(p.PersistIndexes(s.ctx, nil, nil))
	st.AssertNotCalled(s.T(), "AppendFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersistenceTestSuite(t *testing.T) {
	suite.Run(t, new(PersistenceTestSuite))
}
