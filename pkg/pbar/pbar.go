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
package pbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const MinRefreshRate = time.Millisecond * 500

const barLength = 20

// ProgressBarState tracks a batch of top-level objects. Container members
// are counted separately and do not move the bar.
type ProgressBarState struct {
	mu  sync.Mutex
	out io.Writer

	TotalObjects     int
	ProcessedObjects int
	Members          int
	ProcessedBytes   int64

	StartTime          time.Time
	LastUpdateTime     time.Time
	LastProcessedBytes int64
}

// NewProgressBarState returns a bar writing to out. A zero total renders
// counters only.
func NewProgressBarState(out io.Writer, totalObjects int) *ProgressBarState {
	now := time.Now()
	return &ProgressBarState{
		out:            out,
		TotalObjects:   totalObjects,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Add records an identified object of the given depth and size, then
// renders if the refresh interval elapsed.
func (pbs *ProgressBarState) Add(depth int, size int64) {
	pbs.mu.Lock()
	defer pbs.mu.Unlock()

	if depth == 0 {
		pbs.ProcessedObjects++
	} else {
		pbs.Members++
	}
	if size > 0 {
		pbs.ProcessedBytes += size
	}
	pbs.render(false)
}

// Render prints the progress line. Unless force is set, it is a no-op
// within MinRefreshRate of the previous line.
func (pbs *ProgressBarState) Render(force bool) {
	pbs.mu.Lock()
	defer pbs.mu.Unlock()

	pbs.render(force)
}

func (pbs *ProgressBarState) render(force bool) {
	now := time.Now()
	if !force && now.Sub(pbs.LastUpdateTime) < MinRefreshRate {
		return
	}

	var speed float64
	if dt := now.Sub(pbs.LastUpdateTime).Seconds(); dt > 0 {
		speed = float64(pbs.ProcessedBytes-pbs.LastProcessedBytes) / dt
	}
	pbs.LastUpdateTime = now
	pbs.LastProcessedBytes = pbs.ProcessedBytes

	// Trailing spaces clear leftovers of a longer previous line.
	fmt.Fprintf(pbs.out, "\r%s | Members: %d | %s @ %s/s    ",
		pbs.position(),
		pbs.Members,
		humanize.IBytes(uint64(pbs.ProcessedBytes)),
		humanize.IBytes(uint64(speed)))
}

func (pbs *ProgressBarState) position() string {
	if pbs.TotalObjects <= 0 {
		return fmt.Sprintf("Objects: %d", pbs.ProcessedObjects)
	}

	percentage := float64(pbs.ProcessedObjects) / float64(pbs.TotalObjects) * 100
	filledLen := min(barLength, int(float64(barLength)*percentage/100))

	var bar string
	if filledLen == barLength {
		bar = strings.Repeat("=", barLength)
	} else {
		bar = strings.Repeat("=", filledLen) + ">" + strings.Repeat(" ", barLength-filledLen-1)
	}
	return fmt.Sprintf("[%s] %3.0f%% (%d/%d)", bar, percentage, pbs.ProcessedObjects, pbs.TotalObjects)
}

// Finish renders the final state and ends the line.
func (pbs *ProgressBarState) Finish() {
	pbs.mu.Lock()
	defer pbs.mu.Unlock()

	pbs.render(true)
	fmt.Fprintln(pbs.out)
}
