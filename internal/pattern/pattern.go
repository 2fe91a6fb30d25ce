// Package pattern compiles PRONOM byte sequences into byte programs and
// evaluates them against the head and tail windows of an object.
package pattern

import (
	"fmt"
	"strings"
)

// Anchor tells where a pattern is positioned within an object.
type Anchor uint8

const (
	BOF Anchor = iota // absolute from the beginning of the object
	EOF               // absolute from the end of the object
	VAR               // anywhere within the head window
)

func (a Anchor) String() string {
	switch a {
	case BOF:
		return "BOF"
	case EOF:
		return "EOF"
	case VAR:
		return "VAR"
	}
	return "UNKNOWN"
}

// ParseAnchor accepts both the short position names used by catalogs and
// the PRONOM position types. Indirect positions are searched like VAR.
func ParseAnchor(s string) (Anchor, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BOF", "ABSOLUTE FROM BOF":
		return BOF, nil
	case "EOF", "ABSOLUTE FROM EOF":
		return EOF, nil
	case "VAR", "VARIABLE", "IFB", "INDIRECT FROM BOF":
		return VAR, nil
	}
	return 0, fmt.Errorf("unknown position %q", s)
}

// NoMaxOffset marks a pattern whose padding is exactly Offset bytes.
const NoMaxOffset = -1

// Source provides the windows a Pattern is evaluated against.
type Source interface {
	BOF() []byte
	EOF() []byte
	// ReversedEOF returns the tail window with its bytes in reverse order.
	ReversedEOF() []byte
}

// Pattern is an immutable compiled byte sequence. It is safe for
// concurrent use.
type Pattern struct {
	Anchor    Anchor
	Offset    int
	MaxOffset int
	Expr      string

	body  []node
	prog  *program
	limit int
	ext   externalMatcher
}

type options struct {
	literalZeroMask bool
	stepLimit       int
}

type Option func(*options)

// WithLiteralZeroMask makes ~00 match no byte at all instead of any byte.
func WithLiteralZeroMask() Option {
	return func(o *options) {
		o.literalZeroMask = true
	}
}

// WithStepLimit sets the backtracking budget of each evaluation.
// A non-positive limit disables the budget.
func WithStepLimit(n int) Option {
	return func(o *options) {
		o.stepLimit = n
	}
}

// Compile translates expr into a Pattern positioned by anchor.
//
// For BOF and EOF patterns, offset bytes of padding separate the sequence
// from the anchor. When maxOffset is not NoMaxOffset the padding may be
// anywhere in [offset, maxOffset]. For VAR patterns offset is the lowest
// position at which the sequence may start.
func Compile(expr string, anchor Anchor, offset, maxOffset int, opts ...Option) (*Pattern, error) {
	o := options{stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(&o)
	}

	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrInvalidOffset, offset)
	}
	if maxOffset != NoMaxOffset && maxOffset < offset {
		return nil, fmt.Errorf("%w: max offset %d is lower than offset %d", ErrInvalidOffset, maxOffset, offset)
	}

	body, err := parse(expr, &o)
	if err != nil {
		return nil, err
	}

	p := &Pattern{
		Anchor:    anchor,
		Offset:    offset,
		MaxOffset: maxOffset,
		Expr:      expr,
		body:      body,
		prog:      buildProgram(anchor, offset, maxOffset, body),
		limit:     o.stepLimit,
	}

	// Expressions the external engine rejects, usually because of its size
	// limits on large gaps, stay on the native program.
	if externalEngine != nil {
		if ext, err := externalEngine(p.Regex()); err == nil {
			p.ext = ext
		}
	}
	return p, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// tables of known-good patterns.
func MustCompile(expr string, anchor Anchor, offset, maxOffset int, opts ...Option) *Pattern {
	p, err := Compile(expr, anchor, offset, maxOffset, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Match evaluates the pattern against the window of src selected by its
// anchor. A pattern needing more bytes than the window holds does not match.
func (p *Pattern) Match(src Source) (bool, error) {
	return p.MatchLimit(src, p.limit)
}

// MatchLimit is like Match with an explicit step budget. A non-positive
// limit disables the budget.
func (p *Pattern) MatchLimit(src Source, limit int) (bool, error) {
	if p.ext != nil {
		if p.Anchor == EOF {
			return p.ext.IsMatchBytes(src.EOF()), nil
		}
		return p.ext.IsMatchBytes(src.BOF()), nil
	}

	if p.Anchor == EOF {
		return p.prog.exec(src.ReversedEOF(), limit)
	}
	return p.prog.exec(src.BOF(), limit)
}

// MatchBytes evaluates the pattern against a single buffer, treating it
// as both the head and the tail of the object.
func (p *Pattern) MatchBytes(buf []byte) (bool, error) {
	return p.Match(bytesSource(buf))
}

// MinLength is the fewest bytes an object must have for the pattern to match.
func (p *Pattern) MinLength() int {
	return p.prog.minRest[0]
}

// LiteralHead returns the literal bytes a matching object must start with,
// up to max bytes. It is nil unless the pattern is a BOF pattern with no
// padding that starts with a literal.
func (p *Pattern) LiteralHead(max int) []byte {
	if p.Anchor != BOF || p.Offset != 0 || p.MaxOffset > 0 {
		return nil
	}

	first := p.body[0]
	if first.kind != seqNode {
		return nil
	}

	var head []byte
	for _, s := range first.sets {
		b, ok := s.single()
		if !ok || len(head) == max {
			break
		}
		head = append(head, b)
	}
	return head
}

func (p *Pattern) String() string {
	if p.MaxOffset != NoMaxOffset {
		return fmt.Sprintf("%s[%d-%d] %s", p.Anchor, p.Offset, p.MaxOffset, p.Expr)
	}
	return fmt.Sprintf("%s[%d] %s", p.Anchor, p.Offset, p.Expr)
}

type bytesSource []byte

func (b bytesSource) BOF() []byte { return b }
func (b bytesSource) EOF() []byte { return b }

func (b bytesSource) ReversedEOF() []byte {
	rev := make([]byte, len(b))
	for i, c := range b {
		rev[len(b)-1-i] = c
	}
	return rev
}
