// Package match evaluates a catalog against the windows of an object.
package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/pattern"
	"github.com/ostafen/fido/internal/window"
)

// DefaultSlowThreshold is the evaluation time above which a pattern is
// reported as slow.
const DefaultSlowThreshold = 100 * time.Millisecond

// Match pairs a format with the signature that identified it.
type Match struct {
	Format    *catalog.Format
	Signature *catalog.Signature
}

type SuffixMode int

const (
	// SuffixLast uses only the last dot-suffix of a name.
	SuffixLast SuffixMode = iota
	// SuffixAll tries every multi-part suffix, longest first.
	SuffixAll
)

type Matcher struct {
	cat           *catalog.Catalog
	logger        *slog.Logger
	slowThreshold time.Duration
	stepLimit     int
	varScansTail  bool
	suffixMode    SuffixMode
	tracker       *Tracker
}

type Option func(*Matcher)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithSlowThreshold sets the watchdog threshold. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(m *Matcher) {
		m.slowThreshold = d
	}
}

// WithStepLimit overrides the backtracking budget the patterns were
// compiled with.
func WithStepLimit(n int) Option {
	return func(m *Matcher) {
		m.stepLimit = n
	}
}

// WithVarScansTail makes VAR patterns that fail on the head window also
// search the tail window.
func WithVarScansTail(enabled bool) Option {
	return func(m *Matcher) {
		m.varScansTail = enabled
	}
}

func WithSuffixMode(mode SuffixMode) Option {
	return func(m *Matcher) {
		m.suffixMode = mode
	}
}

func WithTracker(t *Tracker) Option {
	return func(m *Matcher) {
		m.tracker = t
	}
}

func New(c *catalog.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		cat:           c,
		logger:        slog.Default(),
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) Catalog() *catalog.Catalog {
	return m.cat
}

// Match returns the formats whose signatures accept the windows of w.
// Formats are visited in priority order; a format dominated by one
// already matched is skipped, and only the first accepting signature of
// each format is reported.
func (m *Matcher) Match(ctx context.Context, w *window.Window) ([]Match, error) {
	cands := m.cat.Prefilter(w.BOF())

	var res []Match
	for f := range m.cat.Iter() {
		if len(f.Signatures) == 0 || m.dominated(res, f) {
			continue
		}

		for _, s := range f.Signatures {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !cands.Allows(s) {
				continue
			}

			if m.matchSignature(w, f, s) {
				res = append(res, Match{Format: f, Signature: s})
				break
			}
		}
	}
	return m.Prune(res), nil
}

func (m *Matcher) dominated(res []Match, f *catalog.Format) bool {
	for _, r := range res {
		if m.cat.HasPriorityOver(r.Format, f) {
			return true
		}
	}
	return false
}

// Prune drops every match dominated by another one.
func (m *Matcher) Prune(res []Match) []Match {
	out := res[:0:0]
	for i, r := range res {
		keep := true
		for j, o := range res {
			if i != j && m.cat.HasPriorityOver(o.Format, r.Format) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func (m *Matcher) matchSignature(w *window.Window, f *catalog.Format, s *catalog.Signature) bool {
	for _, p := range s.Patterns {
		if !m.matchPattern(w, f, s, p) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchPattern(w *window.Window, f *catalog.Format, s *catalog.Signature, p *pattern.Pattern) bool {
	if m.tracker != nil {
		m.tracker.enter(f, s, p)
	}

	start := time.Now()
	ok, err := m.eval(w, p)
	if !ok && err == nil && p.Anchor == pattern.VAR && m.varScansTail && !w.Whole() {
		ok, err = m.eval(tailSource{w}, p)
	}

	if elapsed := time.Since(start); m.slowThreshold > 0 && elapsed > m.slowThreshold {
		m.logger.Info("slow pattern",
			"object", w.Name,
			"puid", f.PUID,
			"signature", s.Name,
			"pattern", p.String(),
			"elapsed", elapsed,
		)
	}

	if err != nil {
		m.logger.Warn("pattern evaluation failed",
			"object", w.Name,
			"puid", f.PUID,
			"signature", s.Name,
			"pattern", p.String(),
			"error", err,
		)
		return false
	}
	return ok
}

func (m *Matcher) eval(src pattern.Source, p *pattern.Pattern) (bool, error) {
	if m.stepLimit != 0 {
		return p.MatchLimit(src, m.stepLimit)
	}
	return p.Match(src)
}

// tailSource presents the tail window of an object as its head.
type tailSource struct {
	w *window.Window
}

func (t tailSource) BOF() []byte         { return t.w.EOF() }
func (t tailSource) EOF() []byte         { return t.w.EOF() }
func (t tailSource) ReversedEOF() []byte { return t.w.ReversedEOF() }
