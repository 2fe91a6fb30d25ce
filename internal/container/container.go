// Package container walks the members of archives and compressed streams
// and evaluates PRONOM container signatures.
package container

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/pkg/reader"
	"github.com/spf13/afero"
)

var (
	ErrDepthExceeded   = errors.New("container depth limit exceeded")
	ErrUnsupportedKind = errors.New("unsupported container kind")
)

// Error reports a container that could not be read. Only the members of
// that container are affected.
type Error struct {
	Name string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s container %s: %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Kind string

const (
	KindZip      Kind = "zip"
	KindTar      Kind = "tar"
	KindCpio     Kind = "cpio"
	KindAr       Kind = "ar"
	Kind7z       Kind = "7z"
	KindRar      Kind = "rar"
	KindGzip     Kind = "gzip"
	KindZstd     Kind = "zstd"
	KindBzip2    Kind = "bzip2"
	KindXz       Kind = "xz"
	KindLz4      Kind = "lz4"
	KindBrotli   Kind = "brotli"
	KindCompress Kind = "compress"
	KindOLE2     Kind = "ole2"
)

// DefaultKinds are the kinds traversed when none are configured.
var DefaultKinds = []Kind{KindZip, KindTar}

var walkable = []Kind{
	KindZip, KindTar, KindCpio, KindAr, Kind7z, KindRar,
	KindGzip, KindZstd, KindBzip2, KindXz, KindLz4, KindBrotli, KindCompress,
}

// AllKinds returns every kind the walker can traverse.
func AllKinds() []Kind {
	return append([]Kind(nil), walkable...)
}

var kindAliases = map[string]Kind{
	"ole":   KindOLE2,
	"gz":    KindGzip,
	"tgz":   KindGzip,
	"zst":   KindZstd,
	"bz2":   KindBzip2,
	"7zip":  Kind7z,
	"z":     KindCompress,
	"lzw":   KindCompress,
	"br":    KindBrotli,
	"jar":   KindZip,
	"ustar": KindTar,
}

// ParseKind resolves a kind name or one of its aliases.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}

	k := Kind(s)
	if k == KindOLE2 {
		return k, nil
	}
	for _, w := range walkable {
		if w == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// ParseKinds parses a comma separated list of kinds. The word "all"
// selects every walkable kind.
func ParseKinds(s string) ([]Kind, error) {
	seen := make(map[Kind]bool)

	var kinds []Kind
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.EqualFold(field, "all") {
			return AllKinds(), nil
		}

		k, err := ParseKind(field)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds, nil
}

var puidKinds = map[string]Kind{
	"x-fmt/263": KindZip,
	"x-fmt/265": KindTar,
	"x-fmt/266": KindGzip,
	"fmt/484":   Kind7z,
	"x-fmt/264": KindRar,
	"fmt/411":   KindRar,
	"fmt/111":   KindOLE2,
}

// KindOf returns the container kind of f, or the empty kind when f is not
// a container. The container element of the format wins over the
// built-in PUID table.
func KindOf(f *catalog.Format) Kind {
	if f.Container != "" {
		if k, err := ParseKind(f.Container); err == nil {
			return k
		}
	}
	return puidKinds[f.PUID]
}

// Member is an object read from a container, or the outermost object of
// a walk. Its content is available either at random or as a one-shot
// stream; stream content is copied into a spool while it is read so that
// it can be opened again.
type Member struct {
	Name  string
	Size  int64 // -1 when unknown
	Depth int

	ra   io.ReaderAt
	r    io.Reader
	open func() (io.ReadCloser, error)

	fs    afero.Fs
	limit int64

	spool   *reader.Spool
	tapped  bool
	drained bool
}

// ReaderAt returns random access to the content of m, or nil when m is
// only available as a stream that has not been spooled yet.
func (m *Member) ReaderAt() io.ReaderAt {
	if m.ra != nil {
		return m.ra
	}
	if m.drained {
		return m.spool
	}
	return nil
}

func (m *Member) size() int64 {
	if m.drained {
		return m.spool.Size()
	}
	return m.Size
}

// Open returns the content of m from its first byte.
func (m *Member) Open() (io.ReadCloser, error) {
	if ra := m.ReaderAt(); ra != nil {
		return io.NopCloser(io.NewSectionReader(ra, 0, m.size())), nil
	}
	if m.open != nil {
		return m.open()
	}

	if m.tapped {
		ra, size, err := m.Materialize()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(io.NewSectionReader(ra, 0, size)), nil
	}

	m.tapped = true
	m.spool = reader.NewSpool(m.fs, m.limit)
	return io.NopCloser(io.TeeReader(m.r, m.spool)), nil
}

// Materialize returns random access to the whole content of m, spooling
// whatever part of it has not been read yet.
func (m *Member) Materialize() (io.ReaderAt, int64, error) {
	if ra := m.ReaderAt(); ra != nil {
		return ra, m.size(), nil
	}

	src := m.r
	if m.open != nil {
		rc, err := m.open()
		if err != nil {
			return nil, 0, err
		}
		defer rc.Close()
		src = rc
	}

	if m.spool == nil || m.open != nil {
		if m.spool != nil {
			m.spool.Close()
		}
		m.spool = reader.NewSpool(m.fs, m.limit)
	}
	m.tapped = true

	if _, err := m.spool.ReadFrom(src); err != nil {
		return nil, 0, fmt.Errorf("spool %s: %w", m.Name, err)
	}
	m.drained = true
	return m.spool, m.spool.Size(), nil
}

// Close releases the spool of m, if any.
func (m *Member) Close() error {
	if m.spool == nil {
		return nil
	}
	return m.spool.Close()
}
