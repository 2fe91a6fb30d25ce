package window_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/ostafen/fido/internal/window"
	"github.com/ostafen/fido/pkg/reader"
	"github.com/stretchr/testify/require"
)

func expectedWindows(data []byte, bufsize int) ([]byte, []byte) {
	if len(data) <= bufsize {
		return data, data
	}
	return data[:bufsize], data[len(data)-bufsize:]
}

func TestReadAt_Overlap(t *testing.T) {
	const bufsize = 16

	r := window.NewReader(bufsize)
	data := reader.GenerateRandomBuffer(5 * bufsize)

	for size := 0; size <= len(data); size++ {
		obj := data[:size]

		w, err := r.ReadAt(context.Background(), "obj", bytes.NewReader(obj), int64(size))
		require.NoError(t, err)

		bof, eof := expectedWindows(obj, bufsize)
		require.Equal(t, bof, w.BOF(), "size %d", size)
		require.Equal(t, eof, w.EOF(), "size %d", size)
		require.Equal(t, int64(size), w.Size)
		require.Equal(t, size <= bufsize, w.Whole())
		require.NoError(t, w.Close())
	}
}

func TestReadStream_MatchesSeekable(t *testing.T) {
	const bufsize = 16

	r := window.NewReader(bufsize)
	data := reader.GenerateRandomBuffer(6 * bufsize)

	for size := 0; size <= len(data); size++ {
		obj := data[:size]

		seekable, err := r.ReadAt(context.Background(), "obj", bytes.NewReader(obj), int64(size))
		require.NoError(t, err)

		for _, length := range []int64{-1, int64(size)} {
			// OneByteReader forces short reads inside every chunk.
			stream, err := r.ReadStream(context.Background(), "obj", iotest.OneByteReader(bytes.NewReader(obj)), length)
			require.NoError(t, err)

			require.Equal(t, seekable.BOF(), stream.BOF(), "size %d", size)
			require.Equal(t, seekable.EOF(), stream.EOF(), "size %d", size)
			require.Equal(t, int64(size), stream.Size)
		}
	}
}

func TestReadStream_Error(t *testing.T) {
	r := window.NewReader(8)

	boom := errors.New("boom")
	src := io.MultiReader(bytes.NewReader(make([]byte, 20)), iotest.ErrReader(boom))

	_, err := r.ReadStream(context.Background(), "broken", src, -1)
	require.ErrorIs(t, err, boom)

	var werr *window.Error
	require.True(t, errors.As(err, &werr))
	require.Equal(t, "broken", werr.Name)
	require.Equal(t, "read", werr.Op)
}

func TestReadStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := window.NewReader(8)
	_, err := r.ReadStream(ctx, "obj", bytes.NewReader(make([]byte, 100)), -1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReversedEOF(t *testing.T) {
	w := window.New("obj", []byte{1, 2, 3}, []byte{1, 2, 3}, 3)
	require.Equal(t, []byte{3, 2, 1}, w.ReversedEOF())
	require.Equal(t, []byte{1, 2, 3}, w.EOF())
}

func TestReadFile(t *testing.T) {
	const bufsize = 4096

	dir := t.TempDir()
	for _, size := range []int{0, 100, bufsize, bufsize + 1, 3*bufsize + 17} {
		data := reader.GenerateRandomBuffer(size)
		path := filepath.Join(dir, "obj.bin")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		bof, eof := expectedWindows(data, bufsize)

		for _, r := range []*window.Reader{
			window.NewReader(bufsize),
			window.NewReader(bufsize, window.WithMmap()),
		} {
			f, err := os.Open(path)
			require.NoError(t, err)

			w, err := r.ReadFile(context.Background(), path, f)
			require.NoError(t, err)
			require.Equal(t, int64(size), w.Size)
			require.Equal(t, len(bof), len(w.BOF()))
			require.True(t, bytes.Equal(bof, w.BOF()))
			require.True(t, bytes.Equal(eof, w.EOF()))

			require.NoError(t, w.Close())
			require.NoError(t, f.Close())
		}
	}
}

func TestNewReader_DefaultBufSize(t *testing.T) {
	require.Equal(t, window.DefaultBufSize, window.NewReader(0).BufSize())
	require.Equal(t, 10, window.NewReader(10).BufSize())
}
