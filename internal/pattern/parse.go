package pattern

import (
	"fmt"
	"strings"
)

type nodeKind uint8

const (
	seqNode nodeKind = iota
	gapNode
	altNode
)

// node is one step of a byte program.
type node struct {
	kind nodeKind

	sets []byteSet // seqNode
	lit  []byte    // seqNode, set when every position holds a single byte

	min int // gapNode
	max int // gapNode, negative when unbounded

	alts [][]byteSet // altNode, fixed-length alternatives
}

// maxRepeat bounds the numbers accepted inside {n-m}.
const maxRepeat = 1 << 30

type parser struct {
	expr  string
	pos   int
	opts  *options
	nodes []node
}

// parse turns a PRONOM byte sequence into a list of nodes.
//
// Besides the PRONOM internal-signature tokens it accepts the extensions used
// by container signatures: quoted ASCII text and bracketed lists of literals
// separated by spaces, '|' or '-'.
func parse(expr string, o *options) ([]node, error) {
	p := &parser{expr: expr, opts: o}
	if err := p.parse(); err != nil {
		return nil, err
	}
	if len(p.nodes) == 0 {
		return nil, p.errorf(0, "empty byte sequence")
	}

	for i := range p.nodes {
		if p.nodes[i].kind == seqNode {
			p.nodes[i].lit = literalOf(p.nodes[i].sets)
		}
	}
	return p.nodes, nil
}

func (p *parser) parse() error {
	for {
		p.skipSpace()
		if p.pos >= len(p.expr) {
			return nil
		}

		start := p.pos
		switch c := p.expr[p.pos]; {
		case isHex(c):
			b, err := p.hexByte()
			if err != nil {
				return err
			}
			p.pushSets(singleSet(b))
		case c == '?':
			if err := p.wildcard(); err != nil {
				return err
			}
			p.pushSets(fullSet())
		case c == '{':
			min, max, err := p.gap()
			if err != nil {
				return err
			}
			p.pushGap(min, max)
		case c == '*':
			p.pos++
			p.pushGap(0, -1)
		case c == '+':
			p.pos++
			p.pushGap(1, -1)
		case c == '(':
			alts, err := p.group()
			if err != nil {
				return err
			}
			p.pushAlts(alts)
		case c == '[':
			alts, err := p.bracket()
			if err != nil {
				return err
			}
			p.pushAlts(alts)
		case c == '~' || c == '&':
			s, err := p.mask()
			if err != nil {
				return err
			}
			p.pushSets(s)
		case c == '\'':
			sets, err := p.quoted()
			if err != nil {
				return err
			}
			p.pushSets(sets...)
		default:
			return p.errorf(start, "unexpected character %q", c)
		}
	}
}

func (p *parser) pushSets(sets ...byteSet) {
	if n := len(p.nodes); n > 0 && p.nodes[n-1].kind == seqNode {
		p.nodes[n-1].sets = append(p.nodes[n-1].sets, sets...)
		return
	}
	p.nodes = append(p.nodes, node{kind: seqNode, sets: append([]byteSet(nil), sets...)})
}

func (p *parser) pushGap(min, max int) {
	if n := len(p.nodes); n > 0 && p.nodes[n-1].kind == gapNode {
		last := &p.nodes[n-1]
		last.min += min
		if last.max < 0 || max < 0 {
			last.max = -1
		} else {
			last.max += max
		}
		return
	}
	p.nodes = append(p.nodes, node{kind: gapNode, min: min, max: max})
}

// pushAlts appends an alternation, collapsing it to a sequence or to a
// single byte class when that preserves its meaning.
func (p *parser) pushAlts(alts [][]byteSet) {
	if len(alts) == 1 {
		p.pushSets(alts[0]...)
		return
	}

	var union byteSet
	for _, alt := range alts {
		if len(alt) != 1 {
			p.nodes = append(p.nodes, node{kind: altNode, alts: alts})
			return
		}
		union.union(alt[0])
	}
	p.pushSets(union)
}

func (p *parser) wildcard() error {
	if !strings.HasPrefix(p.expr[p.pos:], "??") {
		return p.errorf(p.pos, "expected '??'")
	}
	p.pos += 2
	return nil
}

// gap parses {n}, {n-m} and {n-*}.
func (p *parser) gap() (int, int, error) {
	start := p.pos
	p.pos++ // '{'

	min, err := p.number()
	if err != nil {
		return 0, 0, err
	}

	if p.pos >= len(p.expr) {
		return 0, 0, p.errorf(start, "unterminated gap")
	}

	max := min
	if p.expr[p.pos] == '-' {
		p.pos++
		if p.pos < len(p.expr) && p.expr[p.pos] == '*' {
			p.pos++
			max = -1
		} else {
			if max, err = p.number(); err != nil {
				return 0, 0, err
			}
			if max < min {
				return 0, 0, p.errorf(start, "gap lower bound %d exceeds upper bound %d", min, max)
			}
		}
	}

	if p.pos >= len(p.expr) || p.expr[p.pos] != '}' {
		return 0, 0, p.errorf(start, "unterminated gap")
	}
	p.pos++
	return min, max, nil
}

func (p *parser) number() (int, error) {
	start := p.pos
	n := 0
	for p.pos < len(p.expr) && p.expr[p.pos] >= '0' && p.expr[p.pos] <= '9' {
		n = n*10 + int(p.expr[p.pos]-'0')
		if n > maxRepeat {
			return 0, p.errorf(start, "repeat count too large")
		}
		p.pos++
	}
	if p.pos == start {
		return 0, p.errorf(start, "expected a number")
	}
	return n, nil
}

// group parses (A|B|...). Every alternative has a fixed length.
func (p *parser) group() ([][]byteSet, error) {
	start := p.pos
	p.pos++ // '('

	var (
		alts [][]byteSet
		cur  []byteSet
	)
	for {
		p.skipSpace()
		if p.pos >= len(p.expr) {
			return nil, p.errorf(start, "unterminated group")
		}

		switch c := p.expr[p.pos]; {
		case c == ')':
			p.pos++
			alts = append(alts, cur)
			return p.checkGroup(start, alts)
		case c == '|':
			p.pos++
			alts = append(alts, cur)
			cur = nil
		case isHex(c):
			b, err := p.hexByte()
			if err != nil {
				return nil, err
			}
			cur = append(cur, singleSet(b))
		case c == '?':
			if err := p.wildcard(); err != nil {
				return nil, err
			}
			cur = append(cur, fullSet())
		case c == '[':
			pos := p.pos
			inner, err := p.bracket()
			if err != nil {
				return nil, err
			}
			s, ok := unionOfSingles(inner)
			if !ok {
				return nil, p.errorf(pos, "nested alternation is not supported")
			}
			cur = append(cur, s)
		case c == '~' || c == '&':
			s, err := p.mask()
			if err != nil {
				return nil, err
			}
			cur = append(cur, s)
		case c == '\'':
			sets, err := p.quoted()
			if err != nil {
				return nil, err
			}
			cur = append(cur, sets...)
		default:
			return nil, p.errorf(p.pos, "unexpected character %q in group", c)
		}
	}
}

func (p *parser) checkGroup(start int, alts [][]byteSet) ([][]byteSet, error) {
	for _, alt := range alts {
		if len(alt) > 0 {
			return alts, nil
		}
	}
	return nil, p.errorf(start, "empty group")
}

type bracketItem struct {
	sets []byteSet
	lit  []byte
}

// bracket parses a single-byte class or a list of literal alternatives:
// [HH:HH], [!HH...], [!AA|BB], [~MM], [!&MM], ['ab' 'cd'].
func (p *parser) bracket() ([][]byteSet, error) {
	start := p.pos
	p.pos++ // '['

	negate := false
	if p.pos < len(p.expr) && p.expr[p.pos] == '!' {
		negate = true
		p.pos++
	}
	p.skipSpace()

	if p.pos < len(p.expr) && (p.expr[p.pos] == '~' || p.expr[p.pos] == '&') {
		s, err := p.mask()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.expr) || p.expr[p.pos] != ']' {
			return nil, p.errorf(start, "unterminated set")
		}
		p.pos++
		if negate {
			s = s.negate()
		}
		return [][]byteSet{{s}}, nil
	}

	var items []bracketItem
loop:
	for {
		p.skipSpace()
		if p.pos >= len(p.expr) {
			return nil, p.errorf(start, "unterminated set")
		}

		switch c := p.expr[p.pos]; {
		case c == ']':
			p.pos++
			break loop
		case c == '|' || c == '-':
			p.pos++
		case c == ':':
			if err := p.rangeItem(items); err != nil {
				return nil, err
			}
		case isHex(c):
			lit, err := p.hexRun()
			if err != nil {
				return nil, err
			}
			items = append(items, literalItem(lit))
		case c == '\'':
			text, err := p.quotedText()
			if err != nil {
				return nil, err
			}
			items = append(items, literalItem([]byte(text)))
		default:
			return nil, p.errorf(p.pos, "unexpected character %q in set", c)
		}
	}

	if len(items) == 0 {
		return nil, p.errorf(start, "empty set")
	}

	if negate {
		var s byteSet
		for _, it := range items {
			for _, is := range it.sets {
				s.union(is)
			}
		}
		return [][]byteSet{{s.negate()}}, nil
	}

	alts := make([][]byteSet, len(items))
	for i, it := range items {
		alts[i] = it.sets
	}
	return alts, nil
}

// rangeItem turns the last literal item into an inclusive byte range.
func (p *parser) rangeItem(items []bracketItem) error {
	colon := p.pos
	if len(items) == 0 {
		return p.errorf(colon, "range without lower bound")
	}
	last := &items[len(items)-1]
	p.pos++
	p.skipSpace()

	var hi []byte
	switch {
	case p.pos < len(p.expr) && isHex(p.expr[p.pos]):
		run, err := p.hexRun()
		if err != nil {
			return err
		}
		hi = run
	case p.pos < len(p.expr) && p.expr[p.pos] == '\'':
		text, err := p.quotedText()
		if err != nil {
			return err
		}
		hi = []byte(text)
	default:
		return p.errorf(colon, "range without upper bound")
	}

	if len(last.lit) != 1 || len(hi) != 1 {
		return p.errorf(colon, "multi-byte ranges are not supported")
	}
	if last.lit[0] > hi[0] {
		return p.errorf(colon, "empty range %02x:%02x", last.lit[0], hi[0])
	}
	*last = bracketItem{sets: []byteSet{rangeSet(last.lit[0], hi[0])}}
	return nil
}

func literalItem(lit []byte) bracketItem {
	sets := make([]byteSet, len(lit))
	for i, b := range lit {
		sets[i] = singleSet(b)
	}
	return bracketItem{sets: sets, lit: lit}
}

func (p *parser) mask() (byteSet, error) {
	op := p.expr[p.pos]
	p.pos++
	b, err := p.hexByte()
	if err != nil {
		return byteSet{}, err
	}
	if op == '~' {
		return anyMaskSet(b, p.opts.literalZeroMask), nil
	}
	return allMaskSet(b), nil
}

func (p *parser) quotedText() (string, error) {
	start := p.pos
	end := strings.IndexByte(p.expr[start+1:], '\'')
	if end < 0 {
		return "", p.errorf(start, "unterminated quoted text")
	}
	if end == 0 {
		return "", p.errorf(start, "empty quoted text")
	}
	p.pos = start + end + 2
	return p.expr[start+1 : start+1+end], nil
}

func (p *parser) quoted() ([]byteSet, error) {
	text, err := p.quotedText()
	if err != nil {
		return nil, err
	}

	sets := make([]byteSet, len(text))
	for i := 0; i < len(text); i++ {
		sets[i] = singleSet(text[i])
	}
	return sets, nil
}

func (p *parser) hexRun() ([]byte, error) {
	var run []byte
	for p.pos < len(p.expr) && isHex(p.expr[p.pos]) {
		b, err := p.hexByte()
		if err != nil {
			return nil, err
		}
		run = append(run, b)
	}
	return run, nil
}

func (p *parser) hexByte() (byte, error) {
	if p.pos+1 >= len(p.expr) || !isHex(p.expr[p.pos]) || !isHex(p.expr[p.pos+1]) {
		return 0, p.errorf(p.pos, "expected two hex digits")
	}
	b := unhex(p.expr[p.pos])<<4 | unhex(p.expr[p.pos+1])
	p.pos += 2
	return b, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.expr) && isSpace(p.expr[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Expr: p.expr, Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

func unionOfSingles(alts [][]byteSet) (byteSet, bool) {
	var s byteSet
	for _, alt := range alts {
		if len(alt) != 1 {
			return byteSet{}, false
		}
		s.union(alt[0])
	}
	return s, true
}

// literalOf returns the bytes of sets when each one holds a single value.
func literalOf(sets []byteSet) []byte {
	lit := make([]byte, len(sets))
	for i, s := range sets {
		b, ok := s.single()
		if !ok {
			return nil
		}
		lit[i] = b
	}
	return lit
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
