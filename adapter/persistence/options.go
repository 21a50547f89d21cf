package persistence

import (
	"log/slog"
	"os"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Option changes a [Persistence] built by [NewPersistence].
type Option func(*Persistence)

// WithFilename sets the data file. An empty name keeps the database in
// memory only.
func WithFilename(f string) Option {
	return func(p *Persistence) { p.filename = f }
}

// WithCorruptAlertThreshold sets the share of unreadable lines above which
// loading fails with [domain.ErrCorruptFiles].
func WithCorruptAlertThreshold(c float64) Option {
	return func(p *Persistence) { p.corruptAlertThreshold = c }
}

// WithFileMode sets the permissions of a data file created on load.
func WithFileMode(m os.FileMode) Option {
	return func(p *Persistence) { p.fileMode = m }
}

// WithDirMode sets the permissions of missing parent directories.
func WithDirMode(m os.FileMode) Option {
	return func(p *Persistence) { p.dirMode = m }
}

// WithSerializer sets how lines are written.
func WithSerializer(s domain.Serializer) Option {
	return func(p *Persistence) { p.serializer = s }
}

// WithDeserializer sets how lines are read back.
func WithDeserializer(d domain.Deserializer) Option {
	return func(p *Persistence) { p.deserializer = d }
}

// WithStorage replaces the file system access.
func WithStorage(s domain.Storage) Option {
	return func(p *Persistence) { p.storage = s }
}

// WithDecoder sets the decoder of index records.
func WithDecoder(d domain.Decoder) Option {
	return func(p *Persistence) { p.decoder = d }
}

// WithComparer sets how ids are matched while replaying the file.
func WithComparer(c domain.Comparer) Option {
	return func(p *Persistence) { p.comparer = c }
}

// WithHasher sets how ids are bucketed while replaying the file.
func WithHasher(h domain.Hasher) Option {
	return func(p *Persistence) { p.hasher = h }
}

// WithDocFactory sets the factory of loaded documents.
func WithDocFactory(f domain.DocumentFactory) Option {
	return func(p *Persistence) { p.documentFactory = f }
}

// WithLogger sets the logger that reports loads and skipped lines.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persistence) { p.log = l }
}
