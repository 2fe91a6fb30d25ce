// Package window acquires the bounded head and tail byte windows that
// signatures are evaluated against.
package window

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultBufSize is the size of each window when none is configured.
const DefaultBufSize = 128 << 10

// Error reports an I/O failure while acquiring the windows of an object.
type Error struct {
	Name string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Window holds the head and tail of an object. When the object fits in a
// single buffer both windows are the whole object.
type Window struct {
	Name string
	Size int64

	bof []byte
	eof []byte
	rev []byte

	release func() error
}

// New builds a window over data already in memory.
func New(name string, bof, eof []byte, size int64) *Window {
	return &Window{Name: name, Size: size, bof: bof, eof: eof}
}

func (w *Window) BOF() []byte { return w.bof }
func (w *Window) EOF() []byte { return w.eof }

// ReversedEOF returns the tail window in reverse byte order. It is
// computed on first use.
func (w *Window) ReversedEOF() []byte {
	if w.rev == nil {
		w.rev = make([]byte, len(w.eof))
		for i, b := range w.eof {
			w.rev[len(w.eof)-1-i] = b
		}
	}
	return w.rev
}

// Whole reports whether the windows cover the entire object.
func (w *Window) Whole() bool {
	return int64(len(w.bof)) == w.Size
}

// Close releases mapped memory, if any. Windows must not be used after
// Close.
func (w *Window) Close() error {
	if w.release == nil {
		return nil
	}
	err := w.release()
	w.release = nil
	w.bof, w.eof, w.rev = nil, nil, nil
	return err
}

type Reader struct {
	bufsize int
	mmap    bool
}

type Option func(*Reader)

// WithMmap makes ReadFile map the head and tail of regular files instead
// of copying them. It has no effect on platforms without mmap.
func WithMmap() Option {
	return func(r *Reader) {
		r.mmap = true
	}
}

// NewReader returns a Reader producing windows of bufsize bytes.
// A non-positive bufsize selects DefaultBufSize.
func NewReader(bufsize int, opts ...Option) *Reader {
	if bufsize <= 0 {
		bufsize = DefaultBufSize
	}

	r := &Reader{bufsize: bufsize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) BufSize() int {
	return r.bufsize
}

// ReadAt acquires the windows of a seekable object of the given size.
// Short reads shrink the windows and are not errors.
func (r *Reader) ReadAt(ctx context.Context, name string, ra io.ReaderAt, size int64) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &Error{Name: name, Op: "read", Err: fmt.Errorf("negative size %d", size)}
	}

	if size <= int64(r.bufsize) {
		buf, err := readFull(ra, 0, int(size))
		if err != nil {
			return nil, &Error{Name: name, Op: "read", Err: err}
		}
		return New(name, buf, buf, size), nil
	}

	bof, err := readFull(ra, 0, r.bufsize)
	if err != nil {
		return nil, &Error{Name: name, Op: "read", Err: err}
	}

	eof, err := readFull(ra, size-int64(r.bufsize), r.bufsize)
	if err != nil {
		return nil, &Error{Name: name, Op: "read", Err: err}
	}
	return New(name, bof, eof, size), nil
}

func readFull(ra io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := ra.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// ReadFile acquires the windows of an open regular file.
func (r *Reader) ReadFile(ctx context.Context, name string, f *os.File) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, &Error{Name: name, Op: "stat", Err: err}
	}

	if !fi.Mode().IsRegular() {
		return r.ReadStream(ctx, name, f, -1)
	}

	size := fi.Size()
	if r.mmap && size > 0 {
		w, err := r.mapFile(name, f, size)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, errMmapUnsupported) {
			return nil, &Error{Name: name, Op: "mmap", Err: err}
		}
	}
	return r.ReadAt(ctx, name, f, size)
}

// ReadStream acquires the windows of a non-seekable stream by reading it
// to the end. length is a size hint, -1 when unknown. The tail is kept in
// two rolling buffers so that memory stays bounded by twice the buffer
// size beyond the head.
func (r *Reader) ReadStream(ctx context.Context, name string, rd io.Reader, length int64) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := readHead(rd, r.bufsize, length)
	if err != nil {
		return nil, &Error{Name: name, Op: "read", Err: err}
	}
	if len(head) < r.bufsize {
		return New(name, head, head, int64(len(head))), nil
	}

	var (
		prev       = head
		prevShared = true // prev aliases the head window
		cur        = make([]byte, r.bufsize)
		size       = int64(r.bufsize)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := io.ReadFull(rd, cur)
		size += int64(n)

		if err == nil {
			if prevShared {
				prev, cur = cur, make([]byte, r.bufsize)
				prevShared = false
			} else {
				prev, cur = cur, prev
			}
			continue
		}

		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &Error{Name: name, Op: "read", Err: err}
		}

		if n == 0 {
			return New(name, head, prev, size), nil
		}

		// The tail is the last bufsize-n bytes of prev followed by the n
		// bytes just read.
		copy(cur[r.bufsize-n:], cur[:n])
		copy(cur[:r.bufsize-n], prev[n:])
		return New(name, head, cur, size), nil
	}
}

func readHead(rd io.Reader, bufsize int, length int64) ([]byte, error) {
	if length >= 0 && length < int64(bufsize) {
		b := bytes.NewBuffer(make([]byte, 0, length))
		_, err := b.ReadFrom(io.LimitReader(rd, int64(bufsize)))
		return b.Bytes(), err
	}

	head := make([]byte, bufsize)
	n, err := io.ReadFull(rd, head)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return head[:n], err
}
