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
package identify

import (
	"log/slog"

	"github.com/spf13/afero"

	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/match"
	"github.com/ostafen/fido/internal/sink"
	"github.com/ostafen/fido/internal/window"
)

// StdinName is the display name of objects read from standard input.
const StdinName = "STDIN"

type config struct {
	fs     afero.Fs
	logger *slog.Logger
	sink   sink.Sink

	bufSize  int
	useMmap  bool
	matchOps []match.Option
	tracker  *match.Tracker

	recurse     bool
	traverse    bool
	kinds       []container.Kind
	maxDepth    int
	spoolLimit  int64
	extFallback bool
	contentOnly bool
	csigs       *container.Signatures

	workers int
}

type Option func(*config)

// WithFs sets the filesystem paths are resolved against. Spool files
// for streams and nested containers are created on it too.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithSink sets where results are reported. The sink is wrapped with
// sink.Serialize, so it need not be safe for concurrent use.
func WithSink(s sink.Sink) Option {
	return func(c *config) {
		c.sink = s
	}
}

func WithBufSize(n int) Option {
	return func(c *config) {
		c.bufSize = n
	}
}

// WithMmap maps the windows of regular files instead of reading them.
func WithMmap(enabled bool) Option {
	return func(c *config) {
		c.useMmap = enabled
	}
}

// WithMatchOptions passes opts to the underlying matcher.
func WithMatchOptions(opts ...match.Option) Option {
	return func(c *config) {
		c.matchOps = append(c.matchOps, opts...)
	}
}

func WithTracker(t *match.Tracker) Option {
	return func(c *config) {
		c.tracker = t
	}
}

// WithRecurse makes directories be walked recursively. Otherwise only
// their immediate files are identified.
func WithRecurse(enabled bool) Option {
	return func(c *config) {
		c.recurse = enabled
	}
}

// WithTraverse enables reporting the members of identified containers.
func WithTraverse(enabled bool) Option {
	return func(c *config) {
		c.traverse = enabled
	}
}

func WithContainerKinds(kinds ...container.Kind) Option {
	return func(c *config) {
		c.kinds = kinds
	}
}

func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// WithSpoolThreshold sets how much of a stream is buffered in memory
// before spilling to a temporary file.
func WithSpoolThreshold(n int64) Option {
	return func(c *config) {
		c.spoolLimit = n
	}
}

func WithExtensionFallback(enabled bool) Option {
	return func(c *config) {
		c.extFallback = enabled
	}
}

// WithContentOnly disables container signatures and traversal.
func WithContentOnly(enabled bool) Option {
	return func(c *config) {
		c.contentOnly = enabled
	}
}

// WithContainerSignatures enables identification of zip and OLE2
// objects by their members.
func WithContainerSignatures(s *container.Signatures) Option {
	return func(c *config) {
		c.csigs = s
	}
}

// WithWorkers sets how many objects IdentifyAll processes at once.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

func defaultConfig() config {
	return config{
		fs:          afero.NewOsFs(),
		logger:      slog.Default(),
		sink:        sink.Func(func(sink.Result) error { return nil }),
		bufSize:     window.DefaultBufSize,
		kinds:       container.DefaultKinds,
		maxDepth:    container.DefaultMaxDepth,
		spoolLimit:  container.DefaultSpoolThreshold,
		extFallback: true,
		workers:     1,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tracker == nil {
		cfg.tracker = &match.Tracker{}
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}
