package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/indexer"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type timeGetterMock struct{ mock.Mock }

func (t *timeGetterMock) GetTime() time.Time {
	return t.Called().Get(0).(time.Time)
}

type idGeneratorMock struct{ mock.Mock }

func (i *idGeneratorMock) GenerateID() (string, error) {
	call := i.Called()
	return call.String(0), call.Error(1)
}

type book struct {
	ID     string   `shelfdb:"_id,omitempty"`
	Title  string   `shelfdb:"title"`
	Author string   `shelfdb:"author"`
	Genres []string `shelfdb:"genres,omitempty"`
	Rating float64  `shelfdb:"rating"`
}

type StoreTestSuite struct {
	suite.Suite
	ctx     context.Context
	indexer domain.IndexManager
	store   *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	idx, err := indexer.NewIndexer()
	s.Require().NoError(err)
	s.indexer = idx
	s.store = NewStore(idx).(*Store)
}

func (s *StoreTestSuite) scan() []domain.Document {
	var res []domain.Document
	for doc, err := range s.store.Scan(s.ctx) {
		s.Require().NoError(err)
		res = append(res, doc)
	}
	return res
}

func (s *StoreTestSuite) indexIDs(h domain.IndexHandle) []string {
	seq, err := s.indexer.Lookup(s.ctx, h, domain.KeyRange{})
	s.Require().NoError(err)
	var res []string
	for id, err := range seq {
		s.Require().NoError(err)
		res = append(res, id)
	}
	slices.Sort(res)
	return slices.Compact(res)
}

func (s *StoreTestSuite) TestInsertGet() {
	in := data.M{"title": "The Alchemist", "author": "Paulo Coelho", "genres": []any{"Fiction"}}
	docs, err := s.store.Insert(s.ctx, in)
	s.NoError(err)
	s.Len(docs, 1)

	id, ok := docs[0].ID().(string)
	s.True(ok)
	s.NotEmpty(id)
	s.False(in.Has(domain.IDField))

	got, err := s.store.Get(s.ctx, id)
	s.NoError(err)
	got.Unset(domain.IDField)
	s.Equal(in, got)

	// returned documents are copies
	docs[0].Set("title", "changed")
	got, err = s.store.Get(s.ctx, id)
	s.NoError(err)
	s.Equal("The Alchemist", got.Get("title"))
	got.Get("genres").([]any)[0] = "changed"
	got, err = s.store.Get(s.ctx, id)
	s.NoError(err)
	s.Equal([]any{"Fiction"}, got.Get("genres"))

	_, err = s.store.Get(s.ctx, "unknown")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreTestSuite) TestInsertStruct() {
	docs, err := s.store.Insert(s.ctx, book{ID: "alchemist", Title: "The Alchemist", Author: "Paulo Coelho", Rating: 4.7})
	s.NoError(err)
	s.Equal(data.M{"_id": "alchemist", "title": "The Alchemist", "author": "Paulo Coelho", "rating": 4.7}, docs[0])

	_, err = s.store.Insert(s.ctx, 12)
	s.ErrorIs(err, domain.ErrBadQuery)
}

func (s *StoreTestSuite) TestInsertInvalid() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": 1, "title": "Dune"})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = s.store.Insert(s.ctx, data.M{"$title": "Dune"})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = s.store.Insert(s.ctx, data.M{"title": "Dune", "notes": make(chan int)})
	s.ErrorIs(err, domain.ErrBadQuery)

	s.Zero(s.store.Len())
}

func (s *StoreTestSuite) TestInsertAtomic() {
	_, err := s.store.CreateIndex(s.ctx, domain.IndexDescriptor{
		Fields: []domain.IndexField{{Path: "isbn", Order: 1}},
		Unique: true,
	})
	s.Require().NoError(err)

	_, err = s.store.Insert(s.ctx, data.M{"title": "Dune", "isbn": "978-0441013593"})
	s.NoError(err)

	_, err = s.store.Insert(s.ctx,
		data.M{"title": "The Alchemist", "isbn": "978-0062315007"},
		data.M{"title": "Dune Messiah", "isbn": "978-0441013593"},
	)
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.Equal(1, s.store.Len())
	s.Len(s.indexIDs(domain.IDIndex), 1)
	s.Len(s.indexIDs("isbn_1"), 1)
}

func (s *StoreTestSuite) TestDuplicateIDs() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": "a"}, data.M{"_id": "a"})
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.Zero(s.store.Len())

	_, err = s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.NoError(err)
	_, err = s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.ErrorIs(err, domain.ErrDuplicateKey)

	// ids are never reused
	deleted, err := s.store.Delete(s.ctx, "a")
	s.NoError(err)
	s.True(deleted)
	_, err = s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.ErrorIs(err, domain.ErrDuplicateKey)
}

func (s *StoreTestSuite) TestIDGeneratorError() {
	errGen := errors.New("no entropy")
	gen := new(idGeneratorMock)
	gen.On("GenerateID").Return("", errGen).Once()
	s.store.idGenerator = gen

	_, err := s.store.Insert(s.ctx, data.M{"title": "Dune"})
	s.ErrorIs(err, errGen)
	gen.AssertExpectations(s.T())
}

func (s *StoreTestSuite) TestUpdate() {
	docs, err := s.store.Insert(s.ctx, data.M{"title": "The Alchemist", "stock": 3})
	s.Require().NoError(err)
	id := docs[0].ID().(string)

	updated, err := s.store.Update(s.ctx, id, map[string]any{"$inc": map[string]any{"stock": -1}})
	s.NoError(err)
	s.Equal(data.M{"_id": id, "title": "The Alchemist", "stock": 2}, updated)

	updated, err = s.store.Update(s.ctx, id, map[string]any{"rating": 4.7})
	s.NoError(err)
	s.Equal(data.M{"_id": id, "title": "The Alchemist", "stock": 2, "rating": 4.7}, updated)

	_, err = s.store.Update(s.ctx, id, map[string]any{"_id": "other"})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = s.store.Update(s.ctx, "unknown", map[string]any{"rating": 1})
	s.ErrorIs(err, domain.ErrNotFound)

	got, err := s.store.Get(s.ctx, id)
	s.NoError(err)
	s.Equal(updated, got)
}

func (s *StoreTestSuite) TestUpdateUniqueViolation() {
	_, err := s.store.CreateIndex(s.ctx, domain.IndexDescriptor{
		Fields: []domain.IndexField{{Path: "isbn", Order: 1}},
		Unique: true,
	})
	s.Require().NoError(err)
	docs, err := s.store.Insert(s.ctx,
		data.M{"_id": "dune", "isbn": "978-0441013593"},
		data.M{"_id": "alchemist", "isbn": "978-0062315007"},
	)
	s.Require().NoError(err)

	_, err = s.store.Update(s.ctx, "alchemist", map[string]any{"isbn": "978-0441013593"})
	s.ErrorIs(err, domain.ErrDuplicateKey)

	got, err := s.store.Get(s.ctx, "alchemist")
	s.NoError(err)
	s.Equal(docs[1], got)
}

func (s *StoreTestSuite) TestDelete() {
	docs, err := s.store.Insert(s.ctx, data.M{"title": "Dune"}, data.M{"title": "Emma"})
	s.Require().NoError(err)
	id := docs[0].ID().(string)

	deleted, err := s.store.Delete(s.ctx, id)
	s.NoError(err)
	s.True(deleted)

	_, err = s.store.Get(s.ctx, id)
	s.ErrorIs(err, domain.ErrNotFound)

	deleted, err = s.store.Delete(s.ctx, id)
	s.NoError(err)
	s.False(deleted)

	s.Equal(1, s.store.Len())
	s.Equal([]string{docs[1].ID().(string)}, s.indexIDs(domain.IDIndex))
}

func (s *StoreTestSuite) TestScan() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": "b"}, data.M{"_id": "a"}, data.M{"_id": "c"})
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, "b", map[string]any{"title": "Dune"})
	s.Require().NoError(err)

	seq := s.store.Scan(s.ctx)
	var ids []any
	for doc, err := range seq {
		s.NoError(err)
		ids = append(ids, doc.ID())
	}
	// insertion order, updates keep their place
	s.Equal([]any{"b", "a", "c"}, ids)

	_, err = s.store.Insert(s.ctx, data.M{"_id": "d"})
	s.Require().NoError(err)

	ids = nil
	for doc, err := range seq {
		s.NoError(err)
		ids = append(ids, doc.ID())
	}
	s.Equal([]any{"b", "a", "c", "d"}, ids)

	// stopping early and canceling
	for range seq {
		break
	}
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	for doc, err := range s.store.Scan(ctx) {
		s.Nil(doc)
		s.ErrorIs(err, context.Canceled)
	}
}

func (s *StoreTestSuite) TestSnapshot() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": "b"}, data.M{"_id": "a"})
	s.Require().NoError(err)

	err = s.store.Snapshot(s.ctx, func(snap domain.Snapshot) error {
		s.Equal(2, snap.Len())
		rec, ok := snap.Record("a")
		s.True(ok)
		s.Equal(uint64(1), rec.Seq)
		_, ok = snap.Record("c")
		s.False(ok)
		var seqs []uint64
		for rec := range snap.Records() {
			seqs = append(seqs, rec.Seq)
		}
		s.Equal([]uint64{0, 1}, seqs)
		return nil
	})
	s.NoError(err)

	errStop := errors.New("stop")
	s.ErrorIs(s.store.Snapshot(s.ctx, func(domain.Snapshot) error { return errStop }), errStop)
}

func (s *StoreTestSuite) TestTimestamps() {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Hour)
	tg := new(timeGetterMock)
	tg.On("GetTime").Return(created).Once()
	tg.On("GetTime").Return(updated).Once()
	s.store.timeGetter = tg

	docs, err := s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.NoError(err)
	s.Equal(data.M{"_id": "a", "createdAt": created, "updatedAt": created}, docs[0])

	doc, err := s.store.Update(s.ctx, "a", map[string]any{"title": "Dune"})
	s.NoError(err)
	s.Equal(data.M{"_id": "a", "title": "Dune", "createdAt": created, "updatedAt": updated}, doc)
	tg.AssertExpectations(s.T())
}

func (s *StoreTestSuite) TestIndexesFollowMutations() {
	_, err := s.store.CreateIndex(s.ctx, domain.IndexDescriptor{Fields: []domain.IndexField{{Path: "tags", Order: 1}}})
	s.Require().NoError(err)
	s.Equal([]domain.IndexHandle{domain.IDIndex, "tags_1"}, handles(s.store.Indexes()))

	_, err = s.store.Insert(s.ctx,
		data.M{"_id": "a", "tags": []any{"x", "y"}},
		data.M{"_id": "b", "tags": "x"},
		data.M{"_id": "c"},
	)
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, "b", map[string]any{"$unset": map[string]any{"tags": true}})
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, "c", map[string]any{"$push": map[string]any{"tags": "z"}})
	s.Require().NoError(err)
	_, err = s.store.Delete(s.ctx, "a")
	s.Require().NoError(err)

	var scanned []string
	for _, doc := range s.scan() {
		scanned = append(scanned, doc.ID().(string))
	}
	s.Equal(scanned, s.indexIDs("tags_1"))
	s.Equal(scanned, s.indexIDs(domain.IDIndex))

	seq, err := s.indexer.Lookup(s.ctx, "tags_1", domain.KeyRange{Prefix: []any{"z"}})
	s.Require().NoError(err)
	for id, err := range seq {
		s.NoError(err)
		s.Equal("c", id)
	}

	s.NoError(s.store.DropIndex(s.ctx, "tags_1"))
	s.ErrorIs(s.store.DropIndex(s.ctx, "tags_1"), domain.ErrNotFound)
}

func handles(descs []domain.IndexDescriptor) []domain.IndexHandle {
	res := make([]domain.IndexHandle, len(descs))
	for n, d := range descs {
		res[n] = d.Handle()
	}
	return res
}

func (s *StoreTestSuite) TestConcurrentUpdates() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": "counter", "n": 0})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Update(s.ctx, "counter", map[string]any{"$inc": map[string]any{"n": 1}})
			s.NoError(err)
		}()
	}
	wg.Wait()

	doc, err := s.store.Get(s.ctx, "counter")
	s.NoError(err)
	s.Equal(50, doc.Get("n"))
	s.Zero(s.store.locks.Len())
}

func (s *StoreTestSuite) TestCanceledUpdate() {
	_, err := s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.locks.LockWithContext(s.ctx, "a"))
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()
	_, err = s.store.Update(ctx, "a", map[string]any{"title": "Dune"})
	s.ErrorIs(err, context.DeadlineExceeded)
	_, err = s.store.Delete(ctx, "a")
	s.ErrorIs(err, context.DeadlineExceeded)
	s.store.locks.Unlock("a")

	deleted, err := s.store.Delete(s.ctx, "a")
	s.NoError(err)
	s.True(deleted)
}

func (s *StoreTestSuite) TestLoad() {
	err := s.store.Load(s.ctx, data.M{"_id": "a", "title": "Dune"}, data.M{"_id": "b"})
	s.NoError(err)
	s.Equal(2, s.store.Len())

	s.ErrorIs(s.store.Load(s.ctx, data.M{"title": "Emma"}), domain.ErrBadQuery)
	s.ErrorIs(s.store.Load(s.ctx, data.M{"_id": "a"}), domain.ErrDuplicateKey)
}

func (s *StoreTestSuite) TestRetire() {
	s.NoError(s.store.Retire("b", "a"))
	s.NoError(s.store.Load(s.ctx, data.M{"_id": "c"}))
	s.Equal([]string{"a", "b"}, s.store.Retired())

	_, err := s.store.Insert(s.ctx, data.M{"_id": "a"})
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.ErrorIs(s.store.Retire("c"), domain.ErrDuplicateKey)

	_, err = s.store.Delete(s.ctx, "c")
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, s.store.Retired())
}

func (s *StoreTestSuite) TestCommitHook() {
	errDisk := errors.New("disk full")
	var changes []Change
	var fail error
	s.store = NewStore(s.indexer, WithCommitHook(func(_ context.Context, c Change) error {
		if fail != nil {
			return fail
		}
		changes = append(changes, c)
		return nil
	})).(*Store)
	_, err := s.store.CreateIndex(s.ctx, domain.IndexDescriptor{
		Fields: []domain.IndexField{{Path: "title", Order: 1}},
		Unique: true,
	})
	s.Require().NoError(err)

	_, err = s.store.Insert(s.ctx, data.M{"_id": "a", "title": "Dune"})
	s.Require().NoError(err)
	_, err = s.store.Update(s.ctx, "a", map[string]any{"$set": map[string]any{"title": "Emma"}})
	s.Require().NoError(err)
	_, err = s.store.Delete(s.ctx, "a")
	s.Require().NoError(err)
	s.Require().Len(changes, 3)
	s.Equal("Dune", changes[0].Docs[0].Get("title"))
	s.Equal("Emma", changes[1].Docs[0].Get("title"))
	s.Equal("a", changes[2].Deleted)

	_, err = s.store.Insert(s.ctx, data.M{"_id": "b", "title": "Dune"})
	s.Require().NoError(err)

	fail = errDisk
	_, err = s.store.Insert(s.ctx, data.M{"_id": "c", "title": "Ulysses"})
	s.ErrorIs(err, errDisk)
	_, err = s.store.Update(s.ctx, "b", map[string]any{"$set": map[string]any{"title": "Ulysses"}})
	s.ErrorIs(err, errDisk)
	deleted, err := s.store.Delete(s.ctx, "b")
	s.ErrorIs(err, errDisk)
	s.False(deleted)

	doc, err := s.store.Get(s.ctx, "b")
	s.Require().NoError(err)
	s.Equal("Dune", doc.Get("title"))
	s.Equal(1, s.store.Len())
	s.Equal([]string{"b"}, s.indexIDs("title_1"))
	s.Equal([]string{"b"}, s.indexIDs(domain.IDIndex))

	// rejected changes leave ids and unique keys free
	fail = nil
	_, err = s.store.Insert(s.ctx, data.M{"_id": "c", "title": "Ulysses"})
	s.NoError(err)
}

func (s *StoreTestSuite) TestLoadSkipsCommitHook() {
	s.store = NewStore(s.indexer, WithCommitHook(func(context.Context, Change) error {
		return errors.New("unexpected commit")
	})).(*Store)
	s.NoError(s.store.Load(s.ctx, data.M{"_id": "a"}))
	s.Equal(1, s.store.Len())
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
