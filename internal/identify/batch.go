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
	"context"

	"golang.org/x/sync/errgroup"
)

// IdentifyAll identifies every file named by paths, expanding
// directories. Files are dispatched to the configured number of
// workers; with a single worker results follow the order of paths.
func (id *Identifier) IdentifyAll(ctx context.Context, paths []string) error {
	return id.identifyFiles(ctx, id.Collect(paths))
}

func (id *Identifier) identifyFiles(ctx context.Context, files []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(id.cfg.workers)

	for _, path := range files {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			return id.identifyFile(gctx, path)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
