// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package reader

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

var ErrSpoolClosed = errors.New("spool is closed")

// Spool accumulates written bytes and serves them back through ReadAt.
// Data stays in memory up to limit bytes, then moves to a temporary file
// created on fs.
type Spool struct {
	fs    afero.Fs
	limit int64

	mem    []byte
	file   afero.File
	size   int64
	closed bool
}

func NewSpool(fs afero.Fs, limit int64) *Spool {
	return &Spool{fs: fs, limit: limit}
}

func (s *Spool) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSpoolClosed
	}

	if s.file == nil && s.size+int64(len(p)) <= s.limit {
		s.mem = append(s.mem, p...)
		s.size += int64(len(p))
		return len(p), nil
	}

	if s.file == nil {
		if err := s.overflow(); err != nil {
			return 0, err
		}
	}

	n, err := s.file.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *Spool) overflow() error {
	f, err := afero.TempFile(s.fs, "", "fido-spool-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}

	if _, err := f.Write(s.mem); err != nil {
		f.Close()
		s.fs.Remove(f.Name())
		return fmt.Errorf("write spool file: %w", err)
	}
	s.file = f
	s.mem = nil
	return nil
}

// ReadFrom copies r into the spool until EOF.
func (s *Spool) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{s}, r)
}

func (s *Spool) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, ErrSpoolClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	if s.file != nil {
		return s.file.ReadAt(p, off)
	}

	n := copy(p, s.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the number of bytes written so far.
func (s *Spool) Size() int64 {
	return s.size
}

// OnDisk reports whether the spool has moved to a temporary file.
func (s *Spool) OnDisk() bool {
	return s.file != nil
}

// Close releases the buffered data and removes the temporary file, if any.
func (s *Spool) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mem = nil

	if s.file == nil {
		return nil
	}

	name := s.file.Name()
	err := s.file.Close()
	if rmErr := s.fs.Remove(name); err == nil {
		err = rmErr
	}
	s.file = nil
	return err
}
