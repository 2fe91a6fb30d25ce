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
package sink

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ostafen/fido/internal/match"
)

// MatchType tells how the formats of a Result were found.
type MatchType string

const (
	MatchSignature MatchType = "signature"
	MatchContainer MatchType = "container"
	MatchExtension MatchType = "extension"
	MatchFail      MatchType = "fail"
)

// Result is the outcome of identifying a single object.
type Result struct {
	// Name is the display name: a path, "outer!inner" for container
	// members, or STDIN.
	Name string
	// Size is the number of bytes seen, -1 when unknown.
	Size    int64
	Depth   int
	Elapsed time.Duration
	Type    MatchType
	Matches []match.Match
	// Err is set when the object could not be read. Matches is empty then.
	Err error
}

type Sink interface {
	Report(r Result) error
}

// Func adapts a function to a Sink.
type Func func(r Result) error

func (f Func) Report(r Result) error { return f(r) }

// Close closes s if it holds any resource.
func Close(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type serialized struct {
	mu sync.Mutex
	s  Sink
}

// Serialize makes s safe for use by several goroutines.
func Serialize(s Sink) Sink {
	return &serialized{s: s}
}

func (s *serialized) Report(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.s.Report(r)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Close(s.s)
}

type tee []Sink

// Tee reports every result to each of sinks, in order. A failing sink
// does not stop the others.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Report(r Result) error {
	var errs []error
	for _, s := range t {
		if err := s.Report(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		if err := Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
