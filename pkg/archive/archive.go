// Package archive streams entity documents out of a SEC bulk zip archive
// (submissions.zip, companyfacts.zip) without extracting it to disk.
//
// Members are visited in central-directory order, each decoded on its own, so
// memory use is bounded by the largest single document rather than the archive.
package archive

import (
	"context"
	"io"
	"iter"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/akhil324/sec-edgar-filings/pkg/edgar"
	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

// Reader owns one open archive handle for the duration of a run
type Reader struct {
	path    string
	zr      *zip.ReadCloser
	members []*zip.File
	ignored int
	logger  *zap.Logger

	mu       sync.Mutex
	consumed bool
	closed   bool
}

// Entry is one entity document member
type Entry struct {
	Member string
	CIK    string
	file   *zip.File
}

// Open returns a reader over the entity documents in the archive at path
func (e Entry) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

// Document is a decoded entity document keyed by its zero-padded CIK
type Document[T any] struct {
	Member string
	CIK    string
	Body   T
}

// Open opens the archive. Failure here is fatal to a run.
func Open(path string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeArchive, "failed to open archive").
			WithDetail("path", path)
	}

	r := &Reader{path: path, zr: zr, logger: logger}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !edgar.IsRecordMember(f.Name) {
			r.ignored++
			logger.Debug("ignoring archive member", zap.String("member", f.Name))
			continue
		}
		r.members = append(r.members, f)
	}

	logger.Info("archive opened",
		zap.String("path", path),
		zap.Int("documents", len(r.members)),
		zap.Int("ignored_members", r.ignored))

	return r, nil
}

// Path returns the archive path
func (r *Reader) Path() string { return r.path }

// Len returns the number of entity documents
func (r *Reader) Len() int { return len(r.members) }

// Ignored returns the number of members that are not entity documents
func (r *Reader) Ignored() int { return r.ignored }

// Close releases the archive handle. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.zr.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeArchive, "failed to close archive").
			WithDetail("path", r.path)
	}
	return nil
}

// Entries yields every entity document member once. A second call yields nothing.
func (r *Reader) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		r.mu.Lock()
		if r.consumed || r.closed {
			r.mu.Unlock()
			return
		}
		r.consumed = true
		r.mu.Unlock()

		for _, f := range r.members {
			cik, _ := edgar.CIKFromMember(f.Name)
			if !yield(Entry{Member: f.Name, CIK: cik, file: f}) {
				return
			}
		}
	}
}

// Decode yields every entity document decoded into T. A member that cannot be
// read or decoded yields a decode error alongside its identity and the
// sequence continues; cancellation of ctx yields ctx's error and stops.
func Decode[T any](ctx context.Context, r *Reader) iter.Seq2[Document[T], error] {
	return func(yield func(Document[T], error) bool) {
		for entry := range r.Entries() {
			if err := ctx.Err(); err != nil {
				yield(Document[T]{}, errors.Wrap(err, errors.ErrorTypeArchive, "archive iteration cancelled"))
				return
			}

			doc := Document[T]{Member: entry.Member, CIK: entry.CIK}
			if err := decodeEntry(entry, &doc.Body); err != nil {
				if !yield(doc, err) {
					return
				}
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func decodeEntry[T any](entry Entry, body *T) (err error) {
	rc, err := entry.Open()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDecode, "failed to open archive member").
			WithDetail("member", entry.Member)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeDecode, "failed to close archive member").
				WithDetail("member", entry.Member)
		}
	}()

	// Unmarshal over the whole member keeps raw facts independent of a
	// reused stream buffer
	data, err := io.ReadAll(rc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDecode, "failed to read archive member").
			WithDetail("member", entry.Member)
	}
	if err := gojson.Unmarshal(data, body); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDecode, "malformed JSON document").
			WithDetail("member", entry.Member)
	}
	return nil
}
