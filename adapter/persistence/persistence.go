// Package persistence contains the default [domain.Persistence] implementation.
//
// The data file holds one JSON object per line: document versions,
// {"_id": x, "$$deleted": true} tombstones, {"$$indexCreated": {...}} and
// {"$$indexRemoved": name} records. Later lines win. Loading compacts the file
// into one line per live document and index.
package persistence

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dolmen-go/contextio"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/deserializer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/storage"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/uncomparable"
)

// Default permissions of created files and directories.
const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

var errMalformedLine = errors.New("malformed data file line")

type docMap = *uncomparable.Map[domain.Document]

// Persistence implements domain.Persistence.
type Persistence struct {
	filename              string
	corruptAlertThreshold float64
	fileMode              os.FileMode
	dirMode               os.FileMode
	serializer            domain.Serializer
	deserializer          domain.Deserializer
	storage               domain.Storage
	decoder               domain.Decoder
	comparer              domain.Comparer
	documentFactory       domain.DocumentFactory
	hasher                domain.Hasher
	log                   *slog.Logger
}

// NewPersistence returns a new implementation of domain.Persistence. Without
// a file name every operation is a no-op.
func NewPersistence(options ...Option) (domain.Persistence, error) {
	p := Persistence{
		comparer:              comparer.NewComparer(),
		corruptAlertThreshold: 0.1,
		fileMode:              DefaultFileMode,
		dirMode:               DefaultDirMode,
		storage:               storage.NewStorage(),
		decoder:               decoder.NewDecoder(),
		documentFactory:       data.NewDocument,
		hasher:                hasher.NewHasher(),
		log:                   slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(&p)
	}
	if p.deserializer == nil {
		p.deserializer = deserializer.NewDeserializer(p.decoder)
	}
	if p.serializer == nil {
		p.serializer = serializer.NewSerializer(p.comparer, p.documentFactory)
	}

	if strings.HasSuffix(p.filename, "~") {
		return nil, domain.ErrDatafileName{Name: p.filename, Reason: "cannot end with '~', reserved for backup files"}
	}

	return &p, nil
}

func (p *Persistence) inMemoryOnly() bool {
	return p.filename == ""
}

// Tombstone returns the line that marks the document with the given id as
// deleted.
func Tombstone(id any) domain.Document {
	return data.M{domain.IDField: id, serializer.DeletedKey: true}
}

// IsTombstone reports whether doc marks a deleted document.
func IsTombstone(doc domain.Document) bool {
	deleted, _ := doc.Get(serializer.DeletedKey).(bool)
	return deleted
}

// PersistNewState implements domain.Persistence.
func (p *Persistence) PersistNewState(ctx context.Context, newDocs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.inMemoryOnly() {
		return nil
	}

	lines := make([]any, len(newDocs))
	for n, doc := range newDocs {
		lines[n] = doc
	}
	return p.append(ctx, lines)
}

// PersistIndexes implements domain.Persistence.
func (p *Persistence) PersistIndexes(ctx context.Context, created []domain.IndexDescriptor, removed []string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.inMemoryOnly() {
		return nil
	}

	lines := make([]any, 0, len(created)+len(removed))
	for _, desc := range created {
		doc, err := p.indexDoc(desc)
		if err != nil {
			return err
		}
		lines = append(lines, doc)
	}
	for _, name := range removed {
		lines = append(lines, data.M{serializer.IndexRemovedKey: name})
	}
	return p.append(ctx, lines)
}

func (p *Persistence) append(ctx context.Context, lines []any) error {
	toPersist := new(bytes.Buffer)
	wr := contextio.NewWriter(ctx, toPersist)
	for _, line := range lines {
		b, err := p.serializer.Serialize(ctx, line)
		if err != nil {
			return err
		}
		if _, err = wr.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	if toPersist.Len() == 0 {
		return nil
	}
	_, err := p.storage.AppendFile(p.filename, p.fileMode, toPersist.Bytes())
	return err
}

func (p *Persistence) indexDoc(desc domain.IndexDescriptor) (domain.Document, error) {
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}
	d, err := p.documentFactory(desc)
	if err != nil {
		return nil, err
	}
	doc, err := p.documentFactory(nil)
	if err != nil {
		return nil, err
	}
	doc.Set(serializer.IndexCreatedKey, d)
	return doc, nil
}

// TreatRawStream reads the lines of a data file and returns the documents, in
// the order they were first written, and index descriptors. A deleted document
// is returned as its tombstone.
func (p *Persistence) TreatRawStream(ctx context.Context, rawStream io.Reader) ([]domain.Document, []domain.IndexDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}
	dataByID := uncomparable.New[domain.Document](p.hasher, p.comparer)
	var indexes []domain.IndexDescriptor

	corruptItems := 0
	dataLength := 0

	lineStream := bufio.NewScanner(contextio.NewReader(ctx, rawStream))
	lineStream.Buffer(nil, 16*1024*1024)
	lineNumber := 0
	for lineStream.Scan() {
		lineNumber++
		line := lineStream.Bytes()
		if len(line) == 0 {
			continue
		}
		dataLength++
		var err error
		m := make(data.M)
		if err = p.deserializer.Deserialize(ctx, line, &m); err == nil {
			if m.Has(domain.IDField) {
				err = p.addOrDeleteDoc(m, dataByID)
			} else {
				indexes, err = p.addOrDeleteIndex(m, indexes)
			}
		}
		if err != nil {
			corruptItems++
			p.log.Warn("skipping corrupt data file line",
				slog.String("file", p.filename),
				slog.Int("line", lineNumber),
				slog.Any("error", err),
			)
		}
	}
	if err := lineStream.Err(); err != nil {
		return nil, nil, err
	}
	if dataLength > 0 {
		corruptionRate := float64(corruptItems) / float64(dataLength)
		if corruptionRate > p.corruptAlertThreshold {
			return nil, nil, domain.ErrCorruptFiles{
				CorruptionRate:        corruptionRate,
				CorruptItems:          corruptItems,
				DataLength:            dataLength,
				CorruptAlertThreshold: p.corruptAlertThreshold,
			}
		}
	}
	return slices.Collect(dataByID.Values()), indexes, nil
}

func (p *Persistence) addOrDeleteIndex(doc domain.Document, indexes []domain.IndexDescriptor) ([]domain.IndexDescriptor, error) {
	if d := doc.D(serializer.IndexCreatedKey); d != nil {
		var desc domain.IndexDescriptor
		if err := p.decoder.Decode(d, &desc); err != nil {
			return indexes, err
		}
		if len(desc.Fields) == 0 {
			return indexes, errMalformedLine
		}
		indexes = slices.DeleteFunc(indexes, func(i domain.IndexDescriptor) bool {
			return i.Handle() == desc.Handle()
		})
		return append(indexes, desc), nil
	}
	if name, ok := doc.Get(serializer.IndexRemovedKey).(string); ok {
		return slices.DeleteFunc(indexes, func(i domain.IndexDescriptor) bool {
			return string(i.Handle()) == name
		}), nil
	}
	return indexes, errMalformedLine
}

func (p *Persistence) addOrDeleteDoc(doc domain.Document, m docMap) error {
	if _, ok := doc.ID().(string); !ok {
		return errMalformedLine
	}
	if doc.Has(serializer.DeletedKey) {
		comp, err := p.comparer.Compare(doc.Get(serializer.DeletedKey), true)
		if err != nil {
			return err
		}
		if comp == 0 {
			return m.Set(doc.ID(), Tombstone(doc.ID()))
		}
		return errMalformedLine
	}
	return m.Set(doc.ID(), doc)
}

// LoadDatabase implements domain.Persistence.
func (p *Persistence) LoadDatabase(ctx context.Context) ([]domain.Document, []domain.IndexDescriptor, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}
	if p.inMemoryOnly() {
		return nil, nil, nil
	}

	if err := p.storage.EnsureParentDirectoryExists(p.filename, p.dirMode); err != nil {
		return nil, nil, err
	}
	if err := p.storage.EnsureDatafileIntegrity(p.filename, p.fileMode); err != nil {
		return nil, nil, err
	}

	fileStream, err := p.storage.ReadFileStream(p.filename, p.fileMode)
	if err != nil {
		return nil, nil, err
	}
	docs, indexes, err := p.TreatRawStream(ctx, fileStream)
	if errClose := fileStream.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		return nil, nil, err
	}

	if err = p.PersistCachedDatabase(ctx, docs, indexes); err != nil {
		return nil, nil, err
	}
	p.log.Info("data file loaded",
		slog.String("file", p.filename),
		slog.Int("documents", len(docs)),
		slog.Int("indexes", len(indexes)),
	)
	return docs, indexes, nil
}

// DropDatabase implements domain.Persistence.
func (p *Persistence) DropDatabase(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.inMemoryOnly() {
		return nil
	}
	exists, err := p.storage.Exists(p.filename)
	if err != nil || !exists {
		return err
	}
	return p.storage.Remove(p.filename)
}

// PersistCachedDatabase implements domain.Persistence.
func (p *Persistence) PersistCachedDatabase(ctx context.Context, allData []domain.Document, indexes []domain.IndexDescriptor) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.inMemoryOnly() {
		return nil
	}

	lines := make([][]byte, 0, len(allData)+len(indexes))
	for _, doc := range allData {
		b, err := p.serializer.Serialize(ctx, doc)
		if err != nil {
			return err
		}
		lines = append(lines, b)
	}
	for _, desc := range indexes {
		if desc.Handle() == domain.IDIndex {
			continue
		}
		doc, err := p.indexDoc(desc)
		if err != nil {
			return err
		}
		b, err := p.serializer.Serialize(ctx, doc)
		if err != nil {
			return err
		}
		lines = append(lines, b)
	}

	return p.storage.CrashSafeWriteFileLines(p.filename, lines, p.dirMode, p.fileMode)
}
