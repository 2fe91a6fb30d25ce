package container_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/cavaliergopher/cpio"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/logger"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type file struct {
	name string
	data string
}

func buildZip(t *testing.T, files ...file) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTar(t *testing.T, files ...file) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     0o644,
			Size:     int64(len(f.data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func newWalker(opts ...container.Option) *container.Walker {
	opts = append([]container.Option{
		container.WithLogger(logger.Discard()),
		container.WithSpool(afero.NewMemMapFs(), 16),
	}, opts...)
	return container.NewWalker(opts...)
}

type visited struct {
	names []string
	data  map[string]string
}

func (v *visited) collect(_ context.Context, m *container.Member) error {
	rc, err := m.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	if v.data == nil {
		v.data = make(map[string]string)
	}
	v.names = append(v.names, m.Name)
	v.data[m.Name] = string(data)
	return nil
}

func TestParseKinds(t *testing.T) {
	kinds, err := container.ParseKinds("zip,tar")
	require.NoError(t, err)
	require.Equal(t, []container.Kind{container.KindTar, container.KindZip}, kinds)

	kinds, err = container.ParseKinds(" ZIP, gz ,zip")
	require.NoError(t, err)
	require.Equal(t, []container.Kind{container.KindGzip, container.KindZip}, kinds)

	kinds, err = container.ParseKinds("all")
	require.NoError(t, err)
	require.Equal(t, container.AllKinds(), kinds)
	require.NotContains(t, kinds, container.KindOLE2)

	_, err = container.ParseKinds("zip,iso")
	require.ErrorIs(t, err, container.ErrUnsupportedKind)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, container.KindZip, container.KindOf(&catalog.Format{PUID: "fmt/999", Container: "zip"}))
	require.Equal(t, container.KindOLE2, container.KindOf(&catalog.Format{PUID: "fmt/111"}))
	require.Equal(t, container.KindGzip, container.KindOf(&catalog.Format{PUID: "x-fmt/266"}))
	require.Equal(t, container.KindRar, container.KindOf(&catalog.Format{PUID: "fmt/411"}))
	require.Equal(t, container.KindTar, container.KindOf(&catalog.Format{PUID: "x-fmt/263", Container: "tar"}))
	require.Equal(t, container.Kind(""), container.KindOf(&catalog.Format{PUID: "fmt/1"}))
}

func TestWalkZip(t *testing.T) {
	data := buildZip(t,
		file{"a.txt", "hello"},
		file{"dir/", ""},
		file{"empty.bin", ""},
		file{"dir/b.bin", "\x00\x01\x02"},
	)

	w := newWalker()
	obj := w.NewObject("arc.zip", bytes.NewReader(data), int64(len(data)))

	var v visited
	require.NoError(t, w.Walk(context.Background(), container.KindZip, obj, v.collect))
	require.Equal(t, []string{"arc.zip!a.txt", "arc.zip!dir/b.bin"}, v.names)
	require.Equal(t, "hello", v.data["arc.zip!a.txt"])
	require.Equal(t, "\x00\x01\x02", v.data["arc.zip!dir/b.bin"])
}

func TestWalkTar_NestedZip(t *testing.T) {
	inner := buildZip(t, file{"x.txt", "xyz"})
	outer := buildTar(t,
		file{"note.txt", "plain"},
		file{"inner.zip", string(inner)},
	)

	w := newWalker()
	obj := w.NewObject("outer.tar", bytes.NewReader(outer), int64(len(outer)))

	var nested visited
	var names []string
	err := w.Walk(context.Background(), container.KindTar, obj, func(ctx context.Context, m *container.Member) error {
		names = append(names, m.Name)
		require.Equal(t, 1, m.Depth)

		// Read a prefix only, as a window reader would for a large member.
		rc, err := m.Open()
		require.NoError(t, err)
		_, err = io.ReadFull(rc, make([]byte, 4))
		require.NoError(t, err)
		rc.Close()

		if m.Name == "outer.tar!inner.zip" {
			return w.Walk(ctx, container.KindZip, m, nested.collect)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"outer.tar!note.txt", "outer.tar!inner.zip"}, names)
	require.Equal(t, []string{"outer.tar!inner.zip!x.txt"}, nested.names)
	require.Equal(t, "xyz", nested.data["outer.tar!inner.zip!x.txt"])
}

func TestWalkStream(t *testing.T) {
	data := buildTar(t, file{"a.txt", "hello"})

	w := newWalker()
	obj := w.NewStream("STDIN", bytes.NewReader(data), -1)

	var v visited
	require.NoError(t, w.Walk(context.Background(), container.KindTar, obj, v.collect))
	require.Equal(t, []string{"STDIN!a.txt"}, v.names)

	ra, size, err := obj.Materialize()
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), size)

	got := make([]byte, size)
	_, err = ra.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.NoError(t, obj.Close())
}

func TestWalkCpio(t *testing.T) {
	var buf bytes.Buffer
	cw := cpio.NewWriter(&buf)
	body := []byte("cpio member")
	require.NoError(t, cw.WriteHeader(&cpio.Header{Name: "etc/motd", Mode: 0o644, Size: int64(len(body))}))
	_, err := cw.Write(body)
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	w := newWalker(container.WithKinds(container.AllKinds()...))
	obj := w.NewObject("initrd.cpio", bytes.NewReader(buf.Bytes()), int64(buf.Len()))

	var v visited
	require.NoError(t, w.Walk(context.Background(), container.KindCpio, obj, v.collect))
	require.Equal(t, []string{"initrd.cpio!etc/motd"}, v.names)
	require.Equal(t, "cpio member", v.data["initrd.cpio!etc/motd"])
}

func TestWalkCompressed(t *testing.T) {
	const payload = "hello compressed world"

	compress := func(t *testing.T, newWriter func(io.Writer) (io.WriteCloser, error)) []byte {
		var buf bytes.Buffer
		zw, err := newWriter(&buf)
		require.NoError(t, err)
		_, err = zw.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return buf.Bytes()
	}

	tests := []struct {
		kind      container.Kind
		outer     string
		member    string
		newWriter func(io.Writer) (io.WriteCloser, error)
	}{
		{
			kind: container.KindGzip, outer: "data.gz", member: "data.gz!payload.txt",
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				zw := gzip.NewWriter(w)
				zw.Name = "payload.txt"
				return zw, nil
			},
		},
		{
			kind: container.KindGzip, outer: "backup.TGZ", member: "backup.TGZ!backup.tar",
			newWriter: func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
		},
		{
			kind: container.KindZstd, outer: "log.txt.zst", member: "log.txt.zst!log.txt",
			newWriter: func(w io.Writer) (io.WriteCloser, error) { return zstd.NewWriter(w) },
		},
		{
			kind: container.KindBzip2, outer: "a.zip!doc.bz2", member: "a.zip!doc.bz2!doc",
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestSpeed})
			},
		},
		{
			kind: container.KindXz, outer: "image.raw.xz", member: "image.raw.xz!image.raw",
			newWriter: func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) },
		},
		{
			kind: container.KindLz4, outer: "blob.lz4", member: "blob.lz4!blob",
			newWriter: func(w io.Writer) (io.WriteCloser, error) { return lz4.NewWriter(w), nil },
		},
		{
			kind: container.KindBrotli, outer: "page.html.br", member: "page.html.br!page.html",
			newWriter: func(w io.Writer) (io.WriteCloser, error) { return brotli.NewWriter(w), nil },
		},
	}

	w := newWalker(container.WithKinds(container.AllKinds()...))
	for _, tt := range tests {
		t.Run(tt.outer, func(t *testing.T) {
			data := compress(t, tt.newWriter)
			obj := w.NewObject(tt.outer, bytes.NewReader(data), int64(len(data)))

			var v visited
			require.NoError(t, w.Walk(context.Background(), tt.kind, obj, v.collect))
			require.Equal(t, []string{tt.member}, v.names)
			require.Equal(t, payload, v.data[tt.member])
		})
	}
}

func TestWalk_DepthLimit(t *testing.T) {
	inner := buildZip(t, file{"x.txt", "xyz"})
	outer := buildZip(t, file{"inner.zip", string(inner)})

	w := newWalker(container.WithMaxDepth(1))
	obj := w.NewObject("outer.zip", bytes.NewReader(outer), int64(len(outer)))

	var nestedErr error
	err := w.Walk(context.Background(), container.KindZip, obj, func(ctx context.Context, m *container.Member) error {
		nestedErr = w.Walk(ctx, container.KindZip, m, func(context.Context, *container.Member) error {
			t.Fatal("member beyond the depth limit visited")
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, nestedErr, container.ErrDepthExceeded)
}

func TestWalk_Errors(t *testing.T) {
	w := newWalker()

	obj := w.NewObject("x.cpio", bytes.NewReader(nil), 0)
	err := w.Walk(context.Background(), container.KindCpio, obj, nil)
	require.ErrorIs(t, err, container.ErrUnsupportedKind)

	garbage := []byte("this is not a zip archive at all")
	obj = w.NewObject("bad.zip", bytes.NewReader(garbage), int64(len(garbage)))
	err = w.Walk(context.Background(), container.KindZip, obj, nil)

	var cerr *container.Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "bad.zip", cerr.Name)
	require.Equal(t, container.KindZip, cerr.Kind)

	stop := errors.New("stop")
	data := buildZip(t, file{"a", "1"}, file{"b", "2"})
	obj = w.NewObject("ok.zip", bytes.NewReader(data), int64(len(data)))

	calls := 0
	err = w.Walk(context.Background(), container.KindZip, obj, func(context.Context, *container.Member) error {
		calls++
		return stop
	})
	require.Equal(t, stop, err)
	require.Equal(t, 1, calls)
}

func TestWalk_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := buildZip(t, file{"a", "1"})
	w := newWalker()
	obj := w.NewObject("a.zip", bytes.NewReader(data), int64(len(data)))

	err := w.Walk(ctx, container.KindZip, obj, func(context.Context, *container.Member) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
