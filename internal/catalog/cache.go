package catalog

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ostafen/fido/internal/pattern"
)

// DefaultCacheSize is the number of compiled patterns kept by a
// PatternCache when none is configured.
const DefaultCacheSize = 2084

type compiled struct {
	p   *pattern.Pattern
	err error
}

// PatternCache deduplicates the compilation of byte sequences shared by
// several signatures. It is safe for concurrent use.
type PatternCache struct {
	cache *lru.Cache[string, compiled]
	opts  []pattern.Option
}

// NewPatternCache returns a cache holding up to size patterns, each
// compiled with opts.
func NewPatternCache(size int, opts ...pattern.Option) (*PatternCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	c, err := lru.New[string, compiled](size)
	if err != nil {
		return nil, err
	}
	return &PatternCache{cache: c, opts: opts}, nil
}

func (c *PatternCache) Compile(expr string, anchor pattern.Anchor, offset, maxOffset int) (*pattern.Pattern, error) {
	key := fmt.Sprintf("%d:%d:%d:%s", anchor, offset, maxOffset, expr)
	if e, ok := c.cache.Get(key); ok {
		return e.p, e.err
	}

	p, err := pattern.Compile(expr, anchor, offset, maxOffset, c.opts...)
	c.cache.Add(key, compiled{p: p, err: err})
	return p, err
}

func (c *PatternCache) Len() int {
	return c.cache.Len()
}
