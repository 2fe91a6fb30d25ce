//go:build unix

// Package mmap maps read-only regions of open files.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Region is a read-only mapping of part of a file. Data starts at the
// requested offset even though the mapping itself starts on a page
// boundary.
type Region struct {
	Data []byte

	mapped []byte
}

// Map maps length bytes of f starting at offset. The offset does not
// need to be page-aligned.
func Map(f *os.File, offset int64, length int) (*Region, error) {
	if offset < 0 {
		return nil, fmt.Errorf("mmap %s: negative offset %d", f.Name(), offset)
	}
	if length <= 0 {
		return nil, fmt.Errorf("mmap %s: invalid length %d", f.Name(), length)
	}

	pageSize := int64(unix.Getpagesize())
	aligned := offset - offset%pageSize
	delta := int(offset - aligned)

	data, err := unix.Mmap(int(f.Fd()), aligned, length+delta, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at offset %d with length %d: %w", f.Name(), offset, length, err)
	}

	return &Region{
		Data:   data[delta : delta+length],
		mapped: data,
	}, nil
}

// Close unmaps the region. It is safe to call more than once.
func (r *Region) Close() error {
	if r.mapped == nil {
		return nil
	}

	err := unix.Munmap(r.mapped)
	r.mapped, r.Data = nil, nil
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
