//go:build unix

package window

import (
	"errors"
	"os"

	"github.com/ostafen/fido/internal/mmap"
)

var errMmapUnsupported = errors.New("mmap is not supported")

func (r *Reader) mapFile(name string, f *os.File, size int64) (*Window, error) {
	if size <= int64(r.bufsize) {
		region, err := mmap.Map(f, 0, int(size))
		if err != nil {
			return nil, err
		}

		w := New(name, region.Data, region.Data, size)
		w.release = region.Close
		return w, nil
	}

	head, err := mmap.Map(f, 0, r.bufsize)
	if err != nil {
		return nil, err
	}

	tail, err := mmap.Map(f, size-int64(r.bufsize), r.bufsize)
	if err != nil {
		head.Close()
		return nil, err
	}

	w := New(name, head.Data, tail.Data, size)
	w.release = func() error {
		return errors.Join(head.Close(), tail.Close())
	}
	return w, nil
}
