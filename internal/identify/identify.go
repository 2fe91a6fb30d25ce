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
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/match"
	"github.com/ostafen/fido/internal/sink"
	"github.com/ostafen/fido/internal/window"
)

// Identifier identifies files, streams and the members of containers
// against a catalog, reporting one sink.Result per object.
type Identifier struct {
	cfg     config
	matcher *match.Matcher
	reader  *window.Reader
	walker  *container.Walker
	sink    sink.Sink
	logger  *slog.Logger
}

func New(cat *catalog.Catalog, opts ...Option) *Identifier {
	cfg := newConfig(opts)

	matchOpts := append([]match.Option{
		match.WithLogger(cfg.logger),
		match.WithTracker(cfg.tracker),
	}, cfg.matchOps...)

	var readerOpts []window.Option
	if cfg.useMmap {
		readerOpts = append(readerOpts, window.WithMmap())
	}

	return &Identifier{
		cfg:     cfg,
		matcher: match.New(cat, matchOpts...),
		reader:  window.NewReader(cfg.bufSize, readerOpts...),
		walker: container.NewWalker(
			container.WithKinds(cfg.kinds...),
			container.WithMaxDepth(cfg.maxDepth),
			container.WithSpool(cfg.fs, cfg.spoolLimit),
			container.WithLogger(cfg.logger),
		),
		sink:   sink.Serialize(cfg.sink),
		logger: cfg.logger,
	}
}

// Tracker returns the tracker recording the object under evaluation.
func (id *Identifier) Tracker() *match.Tracker {
	return id.cfg.tracker
}

// IdentifyPath identifies a single file. Directories are expanded as by
// IdentifyAll. Read failures are reported to the sink and are not
// returned; only cancellation and sink errors are.
func (id *Identifier) IdentifyPath(ctx context.Context, path string) error {
	fi, err := id.cfg.fs.Stat(path)
	if err == nil && fi.IsDir() {
		return id.IdentifyAll(ctx, []string{path})
	}
	if err != nil {
		return id.report(sink.Result{Name: path, Size: -1, Type: sink.MatchFail, Err: err})
	}
	return id.identifyFile(ctx, path)
}

func (id *Identifier) identifyFile(ctx context.Context, path string) error {
	id.cfg.tracker.SetObject(path)

	f, err := id.cfg.fs.Open(path)
	if err != nil {
		return id.report(sink.Result{Name: path, Size: -1, Type: sink.MatchFail, Err: err})
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return id.report(sink.Result{Name: path, Size: -1, Type: sink.MatchFail, Err: err})
	}

	regular := fi.Mode().IsRegular()

	var m *container.Member
	if regular {
		m = id.walker.NewObject(path, f, fi.Size())
	} else {
		m = id.walker.NewStream(path, f, -1)
	}
	defer m.Close()

	read := func() (*window.Window, error) {
		if osf, ok := f.(*os.File); ok && regular {
			return id.reader.ReadFile(ctx, path, osf)
		}
		return id.memberWindow(ctx, m)
	}
	return id.identify(ctx, m, path, read)
}

// IdentifyStream identifies the content of r, reported as STDIN.
// nameHint, when set, is used by the extension fallback only.
func (id *Identifier) IdentifyStream(ctx context.Context, r io.Reader, nameHint string) error {
	id.cfg.tracker.SetObject(StdinName)

	hint := nameHint
	if hint == "" {
		hint = StdinName
	}

	m := id.walker.NewStream(StdinName, r, -1)
	defer m.Close()

	read := func() (*window.Window, error) {
		if !id.inspectsContent() {
			return id.reader.ReadStream(ctx, StdinName, r, -1)
		}
		return id.memberWindow(ctx, m)
	}
	return id.identify(ctx, m, hint, read)
}

// inspectsContent reports whether an object may be read again after
// its windows, to match container signatures or to walk its members.
func (id *Identifier) inspectsContent() bool {
	return !id.cfg.contentOnly && (id.cfg.traverse || id.cfg.csigs != nil)
}

func (id *Identifier) memberWindow(ctx context.Context, m *container.Member) (*window.Window, error) {
	if ra := m.ReaderAt(); ra != nil {
		return id.reader.ReadAt(ctx, m.Name, ra, m.Size)
	}

	rc, err := m.Open()
	if err != nil {
		return nil, &window.Error{Name: m.Name, Op: "open", Err: err}
	}
	defer rc.Close()

	return id.reader.ReadStream(ctx, m.Name, rc, m.Size)
}

func (id *Identifier) identify(ctx context.Context, m *container.Member, hint string, read func() (*window.Window, error)) error {
	start := time.Now()

	w, err := read()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return id.report(sink.Result{
			Name:    m.Name,
			Size:    m.Size,
			Depth:   m.Depth,
			Elapsed: time.Since(start),
			Type:    sink.MatchFail,
			Err:     err,
		})
	}
	defer w.Close()

	matches, err := id.matcher.Match(ctx, w)
	if err != nil {
		return err
	}
	typ := sink.MatchSignature

	if cm := id.matchContainer(ctx, m, containerKinds(matches)); len(cm) > 0 {
		matches, typ = cm, sink.MatchContainer
	}

	if (len(matches) == 0 || w.Size == 0) && id.cfg.extFallback {
		if em := id.matcher.MatchExtension(hint); len(em) > 0 {
			matches, typ = em, sink.MatchExtension
		}
	}
	if len(matches) == 0 {
		typ = sink.MatchFail
	}

	err = id.report(sink.Result{
		Name:    m.Name,
		Size:    w.Size,
		Depth:   m.Depth,
		Elapsed: time.Since(start),
		Type:    typ,
		Matches: matches,
	})
	if err != nil {
		return err
	}

	if typ == sink.MatchContainer || !id.cfg.traverse || id.cfg.contentOnly {
		return nil
	}
	// Formats found by extension only are walked too.
	return id.traverse(ctx, m, containerKinds(matches))
}

// containerKinds lists the distinct container kinds of the matched
// formats, in match order.
func containerKinds(matches []match.Match) []container.Kind {
	var kinds []container.Kind
	for _, m := range matches {
		k := container.KindOf(m.Format)
		if k == "" {
			continue
		}

		dup := false
		for _, seen := range kinds {
			dup = dup || seen == k
		}
		if !dup {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (id *Identifier) traverse(ctx context.Context, m *container.Member, kinds []container.Kind) error {
	for _, kind := range kinds {
		if id.walker.Enabled(kind) {
			return id.walk(ctx, kind, m)
		}
	}
	return nil
}

// walk reports the members of m. A corrupt container ends its own walk
// only; members reported so far stand.
func (id *Identifier) walk(ctx context.Context, kind container.Kind, m *container.Member) error {
	err := id.walker.Walk(ctx, kind, m, id.identifyMember)

	var cerr *container.Error
	switch {
	case err == nil, errors.Is(err, container.ErrDepthExceeded):
		return nil
	case errors.As(err, &cerr) && ctx.Err() == nil:
		id.logger.Warn("container traversal failed", "object", m.Name, "kind", kind, "error", cerr.Err)
		return nil
	}
	return err
}

func (id *Identifier) identifyMember(ctx context.Context, m *container.Member) error {
	id.cfg.tracker.SetObject(m.Name)

	return id.identify(ctx, m, m.Name, func() (*window.Window, error) {
		return id.memberWindow(ctx, m)
	})
}

// matchContainer runs the container signatures of the first zip or OLE2
// kind among kinds. Failures are logged and yield no matches.
func (id *Identifier) matchContainer(ctx context.Context, m *container.Member, kinds []container.Kind) []match.Match {
	if id.cfg.csigs == nil || id.cfg.contentOnly {
		return nil
	}

	for _, kind := range kinds {
		if kind != container.KindZip && kind != container.KindOLE2 {
			continue
		}

		ra, size, err := m.Materialize()
		if err != nil {
			id.logger.Warn("cannot read container", "object", m.Name, "error", err)
			return nil
		}

		var puids []string
		if kind == container.KindZip {
			puids, err = id.cfg.csigs.MatchZip(ctx, ra, size)
		} else {
			puids, err = id.cfg.csigs.MatchOLE2(ctx, ra)
		}
		if err != nil {
			id.logger.Warn("container signatures failed", "object", m.Name, "kind", kind, "error", err)
			return nil
		}
		return id.containerMatches(puids)
	}
	return nil
}

func (id *Identifier) containerMatches(puids []string) []match.Match {
	cat := id.matcher.Catalog()

	res := make([]match.Match, 0, len(puids))
	for _, puid := range puids {
		f, ok := cat.Lookup(puid)
		if !ok {
			id.logger.Debug("container signature names unknown format", "puid", puid)
			continue
		}
		res = append(res, match.Match{Format: f, Signature: catalog.NewSignature(f.Name, "container signature")})
	}
	return id.matcher.Prune(res)
}

func (id *Identifier) report(r sink.Result) error {
	if r.Err != nil {
		id.logger.Debug("cannot identify object", "object", r.Name, "error", r.Err)
	}
	return id.sink.Report(r)
}

// Collect expands paths into the files to identify. Directories yield
// their regular files, recursively when enabled; other paths are kept
// as given, so that failures to read them are reported.
func (id *Identifier) Collect(paths []string) []string {
	var files []string
	for _, path := range paths {
		fi, err := id.cfg.fs.Stat(path)
		if err != nil || !fi.IsDir() {
			files = append(files, path)
			continue
		}

		if !id.cfg.recurse {
			entries, err := afero.ReadDir(id.cfg.fs, path)
			if err != nil {
				files = append(files, path)
				continue
			}
			for _, e := range entries {
				if e.Mode().IsRegular() {
					files = append(files, filepath.Join(path, e.Name()))
				}
			}
			continue
		}

		_ = afero.Walk(id.cfg.fs, path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				id.logger.Warn("cannot walk directory", "path", p, "error", err)
				return nil
			}
			if info.Mode().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
	}
	return files
}
