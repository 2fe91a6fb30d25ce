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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"

	"github.com/ostafen/fido/internal/env"
)

// Stats accumulates per-run counters. It is safe for concurrent use.
type Stats struct {
	mu      sync.Mutex
	byType  map[MatchType]int
	objects int
	errors  int
	bytes   int64
	elapsed stats.Float64Data
}

func NewStats() *Stats {
	return &Stats{byType: make(map[MatchType]int)}
}

func (s *Stats) Report(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects++
	if r.Err != nil {
		s.errors++
		return nil
	}

	s.byType[r.Type]++
	if r.Size > 0 {
		s.bytes += r.Size
	}
	s.elapsed = append(s.elapsed, float64(r.Elapsed)/float64(time.Millisecond))
	return nil
}

// Summary is a snapshot of the counters. Elapsed figures are in
// milliseconds and cover the objects that were read successfully.
type Summary struct {
	Objects int
	Errors  int
	ByType  map[MatchType]int
	Bytes   int64

	Mean   float64
	Median float64
	P95    float64
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Objects: s.objects,
		Errors:  s.errors,
		ByType:  make(map[MatchType]int, len(s.byType)),
		Bytes:   s.bytes,
	}
	for k, v := range s.byType {
		sum.ByType[k] = v
	}

	if len(s.elapsed) == 0 {
		return sum
	}
	sum.Mean, _ = stats.Mean(s.elapsed)
	sum.Median, _ = stats.Median(s.elapsed)
	sum.P95, _ = stats.Percentile(s.elapsed, 95)
	return sum
}

// WriteSummary prints the run summary for a run that took wall.
func (s *Stats) WriteSummary(w io.Writer, wall time.Duration) error {
	sum := s.Summary()

	rate := 0
	if wall > 0 {
		rate = int(float64(sum.Objects) / wall.Seconds())
	}

	_, err := fmt.Fprintf(w, "%s: Processed %6d files in %6.2f msec, %2d files/sec\n",
		env.AppName, sum.Objects, float64(wall)/float64(time.Millisecond), rate)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s: %d signature, %d container, %d extension, %d fail, %d errors; %s read; per file mean %.2f ms, median %.2f ms, p95 %.2f ms\n",
		env.AppName,
		sum.ByType[MatchSignature],
		sum.ByType[MatchContainer],
		sum.ByType[MatchExtension],
		sum.ByType[MatchFail],
		sum.Errors,
		humanize.IBytes(uint64(sum.Bytes)),
		sum.Mean, sum.Median, sum.P95,
	)
	return err
}
