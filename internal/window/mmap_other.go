//go:build !unix

package window

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("mmap is not supported")

func (r *Reader) mapFile(string, *os.File, int64) (*Window, error) {
	return nil, errMmapUnsupported
}
