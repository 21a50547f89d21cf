//go:build !windows

package persistence

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Repeated rewrites must not leak file descriptors.
//
// Not run on Windows as there is no clean way to limit file descriptors.
func (s *PersistenceTestSuite) TestRewritesDoNotLeakFileDescriptors() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	const n = 64

	var originalRLimit syscall.Rlimit
	s.Require().NoError(syscall.Getrlimit(syscall.RLIMIT_NOFILE, &originalRLimit))
	rLimit := syscall.Rlimit{Cur: 128, Max: originalRLimit.Max}
	s.Require().NoError(syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit))
	defer func() {
		s.NoError(syscall.Setrlimit(syscall.RLIMIT_NOFILE, &originalRLimit))
	}()

	var handles []*os.File
	var err error
	for range n * 2 {
		var f *os.File
		if f, err = os.OpenFile(filepath.Join(s.testDbDir, "openFds"), os.O_RDONLY|os.O_CREATE, 0o666); err != nil {
			break
		}
		handles = append(handles, f)
	}
	s.ErrorIs(err, syscall.EMFILE)
	for _, f := range handles {
		f.Close()
	}

	p, err := NewPersistence(WithFilename(filepath.Join(s.testDbDir, "openfds.db")))
	s.Require().NoError(err)
	docs, _, err := p.LoadDatabase(ctx)
	s.Require().NoError(err)

	s.NoError(p.PersistNewState(ctx, M{"_id": uuid.NewString(), "hello": "world"}))
	docs = append(docs, M{"_id": uuid.NewString()})
	for range n * 2 {
		if err = p.PersistCachedDatabase(ctx, docs, []domain.IndexDescriptor{}); err != nil {
			break
		}
	}
	s.NoError(err)
	s.NoError(ctx.Err())
}
