package container

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/bodgit/sevenzip"
	"github.com/cavaliergopher/cpio"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/nwaples/rardecode/v2"
	"github.com/peterebden/ar"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	lzw "github.com/sshaman1101/dcompress"
	"github.com/ulikunitz/xz"
)

const (
	DefaultMaxDepth = 8

	// DefaultSpoolThreshold is the amount of member data kept in memory
	// before spooling moves to a temporary file.
	DefaultSpoolThreshold = 512 << 10
)

// VisitFunc is called for every member of a container. Returning an error
// stops the walk and the error is returned unchanged by Walk.
type VisitFunc func(ctx context.Context, m *Member) error

type Walker struct {
	kinds      map[Kind]bool
	maxDepth   int
	fs         afero.Fs
	spoolLimit int64
	logger     *slog.Logger
}

type Option func(*Walker)

// WithKinds selects the container kinds to traverse.
func WithKinds(kinds ...Kind) Option {
	return func(w *Walker) {
		w.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			w.kinds[k] = true
		}
	}
}

func WithMaxDepth(n int) Option {
	return func(w *Walker) {
		w.maxDepth = n
	}
}

// WithSpool sets where stream content is spooled and how much of it stays
// in memory.
func WithSpool(fs afero.Fs, threshold int64) Option {
	return func(w *Walker) {
		w.fs = fs
		w.spoolLimit = threshold
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

func NewWalker(opts ...Option) *Walker {
	w := &Walker{
		maxDepth:   DefaultMaxDepth,
		fs:         afero.NewOsFs(),
		spoolLimit: DefaultSpoolThreshold,
		logger:     slog.Default(),
	}
	WithKinds(DefaultKinds...)(w)

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports whether members of kind k are traversed.
func (w *Walker) Enabled(k Kind) bool {
	return w.kinds[k]
}

func (w *Walker) MaxDepth() int {
	return w.maxDepth
}

// NewObject returns the outermost member of a walk over seekable content.
func (w *Walker) NewObject(name string, ra io.ReaderAt, size int64) *Member {
	return &Member{Name: name, Size: size, ra: ra, fs: w.fs, limit: w.spoolLimit}
}

// NewStream returns the outermost member of a walk over a stream. size is
// -1 when unknown.
func (w *Walker) NewStream(name string, r io.Reader, size int64) *Member {
	return &Member{Name: name, Size: size, r: r, fs: w.fs, limit: w.spoolLimit}
}

func (w *Walker) member(parent *Member, name string, size int64) *Member {
	return &Member{
		Name:  parent.Name + "!" + name,
		Size:  size,
		Depth: parent.Depth + 1,
		fs:    w.fs,
		limit: w.spoolLimit,
	}
}

// Walk visits the members of parent, which holds a container of the given
// kind. Members are named parent!member.
func (w *Walker) Walk(ctx context.Context, kind Kind, parent *Member, visit VisitFunc) error {
	if !w.Enabled(kind) {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if parent.Depth >= w.maxDepth {
		w.logger.Warn("not traversing container", "object", parent.Name, "kind", kind, "depth", parent.Depth, "error", ErrDepthExceeded)
		return ErrDepthExceeded
	}

	var err error
	switch kind {
	case KindZip:
		err = w.walkZip(ctx, parent, visit)
	case Kind7z:
		err = w.walk7z(ctx, parent, visit)
	case KindTar, KindCpio, KindAr, KindRar:
		err = w.walkArchive(ctx, kind, parent, visit)
	case KindGzip, KindZstd, KindBzip2, KindXz, KindLz4, KindBrotli, KindCompress:
		err = w.walkCompressed(ctx, kind, parent, visit)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	var visitErr visitError
	if errors.As(err, &visitErr) {
		return visitErr.err
	}
	if err != nil {
		return &Error{Name: parent.Name, Kind: kind, Err: err}
	}
	return nil
}

// visitError marks errors returned by the visitor so that they are not
// reported as container errors.
type visitError struct {
	err error
}

func (e visitError) Error() string { return e.err.Error() }

func (w *Walker) visit(ctx context.Context, m *Member, visit VisitFunc) error {
	defer m.Close()

	if err := visit(ctx, m); err != nil {
		return visitError{err}
	}
	return nil
}

func (w *Walker) walkZip(ctx context.Context, parent *Member, visit VisitFunc) error {
	ra, size, err := parent.Materialize()
	if err != nil {
		return err
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return visitError{err}
		}
		if f.FileInfo().IsDir() || f.UncompressedSize64 == 0 {
			continue
		}

		m := w.member(parent, decodeName(f.Name, f.NonUTF8), int64(f.UncompressedSize64))
		m.open = f.Open
		if err := w.visit(ctx, m, visit); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walk7z(ctx context.Context, parent *Member, visit VisitFunc) error {
	ra, size, err := parent.Materialize()
	if err != nil {
		return err
	}

	zr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return visitError{err}
		}
		if f.FileInfo().IsDir() || f.UncompressedSize == 0 {
			continue
		}

		m := w.member(parent, decodeName(f.Name, false), int64(f.UncompressedSize))
		m.open = f.Open
		if err := w.visit(ctx, m, visit); err != nil {
			return err
		}
	}
	return nil
}

// entry is one member of a sequential archive.
type entry struct {
	name    string
	size    int64
	regular bool
}

type archiveReader interface {
	io.Reader
	next() (entry, error)
}

type tarArchive struct{ *tar.Reader }

func (a tarArchive) next() (entry, error) {
	h, err := a.Next()
	if err != nil {
		return entry{}, err
	}
	return entry{name: h.Name, size: h.Size, regular: h.FileInfo().Mode().IsRegular()}, nil
}

type cpioArchive struct{ *cpio.Reader }

func (a cpioArchive) next() (entry, error) {
	h, err := a.Next()
	if err != nil {
		return entry{}, err
	}
	return entry{name: h.Name, size: h.Size, regular: h.FileInfo().Mode().IsRegular()}, nil
}

type arArchive struct{ *ar.Reader }

func (a arArchive) next() (entry, error) {
	h, err := a.Next()
	if err != nil {
		return entry{}, err
	}
	name := strings.TrimRight(h.Name, "/")
	return entry{name: name, size: h.Size, regular: name != ""}, nil
}

type rarArchive struct{ *rardecode.Reader }

func (a rarArchive) next() (entry, error) {
	h, err := a.Next()
	if err != nil {
		return entry{}, err
	}

	size := h.UnPackedSize
	if h.UnKnownSize {
		size = -1
	}
	return entry{name: h.Name, size: size, regular: !h.IsDir}, nil
}

func newArchiveReader(kind Kind, r io.Reader) (archiveReader, error) {
	switch kind {
	case KindTar:
		return tarArchive{tar.NewReader(r)}, nil
	case KindCpio:
		return cpioArchive{cpio.NewReader(r)}, nil
	case KindAr:
		return arArchive{ar.NewReader(r)}, nil
	case KindRar:
		rr, err := rardecode.NewReader(r)
		if err != nil {
			return nil, err
		}
		return rarArchive{rr}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

// walkArchive visits the members of an archive read front to back. The
// content of each member is a stream that is spooled as it is read.
func (w *Walker) walkArchive(ctx context.Context, kind Kind, parent *Member, visit VisitFunc) error {
	rc, err := parent.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	archive, err := newArchiveReader(kind, rc)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return visitError{err}
		}

		e, err := archive.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !e.regular || e.size == 0 {
			continue
		}

		m := w.member(parent, decodeName(e.name, false), e.size)
		m.r = archive
		if e.size > 0 {
			m.r = io.LimitReader(archive, e.size)
		}

		if err := w.visit(ctx, m, visit); err != nil {
			return err
		}
	}
}

func decompressor(kind Kind, r io.Reader) (io.Reader, string, func() error, error) {
	nop := func() error { return nil }

	switch kind {
	case KindGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", nil, err
		}
		return zr, zr.Name, zr.Close, nil
	case KindZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, "", nil, err
		}
		return zr, "", func() error { zr.Close(); return nil }, nil
	case KindBzip2:
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, "", nil, err
		}
		return zr, "", zr.Close, nil
	case KindXz:
		zr, err := xz.NewReader(r)
		if err != nil {
			return nil, "", nil, err
		}
		return zr, "", nop, nil
	case KindLz4:
		return lz4.NewReader(r), "", nop, nil
	case KindBrotli:
		return brotli.NewReader(r), "", nop, nil
	case KindCompress:
		zr, err := lzw.NewReader(r)
		if err != nil {
			return nil, "", nil, err
		}
		return zr, "", nop, nil
	}
	return nil, "", nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

// walkCompressed visits the single member of a compressed stream.
func (w *Walker) walkCompressed(ctx context.Context, kind Kind, parent *Member, visit VisitFunc) error {
	rc, err := parent.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	zr, stored, closeFn, err := decompressor(kind, rc)
	if err != nil {
		return err
	}
	defer closeFn()

	m := w.member(parent, compressedMemberName(parent.Name, kind, stored), -1)
	m.r = zr
	return w.visit(ctx, m, visit)
}
