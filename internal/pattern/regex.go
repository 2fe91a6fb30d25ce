package pattern

import (
	"fmt"
	"strings"
)

// externalMatcher is an alternative engine evaluating the Regex form of
// a pattern against a window.
type externalMatcher interface {
	IsMatchBytes(buf []byte) bool
}

// externalEngine is set by builds linking a byte-oriented regex engine.
var externalEngine func(expr string) (externalMatcher, error)

// Regex renders the pattern as a byte-oriented regular expression with
// dot-all semantics, anchored the same way as the compiled program.
func (p *Pattern) Regex() string {
	var sb strings.Builder
	sb.WriteString(`(?s)`)

	switch p.Anchor {
	case BOF:
		sb.WriteString(`\A`)
		writeGap(&sb, p.Offset, p.leadMax())
		writeNodes(&sb, p.body)
	case EOF:
		writeNodes(&sb, p.body)
		writeGap(&sb, p.Offset, p.leadMax())
		sb.WriteString(`\z`)
	case VAR:
		if p.Offset > 0 {
			sb.WriteString(`\A`)
			writeGap(&sb, p.Offset, -1)
		}
		writeNodes(&sb, p.body)
	}
	return sb.String()
}

func (p *Pattern) leadMax() int {
	if p.MaxOffset == NoMaxOffset {
		return p.Offset
	}
	return p.MaxOffset
}

func writeNodes(sb *strings.Builder, nodes []node) {
	for _, n := range nodes {
		switch n.kind {
		case seqNode:
			for _, s := range n.sets {
				writeSet(sb, s)
			}
		case gapNode:
			writeGap(sb, n.min, n.max)
		case altNode:
			sb.WriteString(`(?:`)
			for i, alt := range n.alts {
				if i > 0 {
					sb.WriteByte('|')
				}
				for _, s := range alt {
					writeSet(sb, s)
				}
			}
			sb.WriteByte(')')
		}
	}
}

func writeGap(sb *strings.Builder, min, max int) {
	switch {
	case min == 0 && max == 0:
	case max < 0:
		fmt.Fprintf(sb, `.{%d,}`, min)
	case min == max:
		fmt.Fprintf(sb, `.{%d}`, min)
	default:
		fmt.Fprintf(sb, `.{%d,%d}`, min, max)
	}
}

func writeSet(sb *strings.Builder, s byteSet) {
	switch n := s.count(); {
	case n == 256:
		sb.WriteByte('.')
		return
	case n == 0:
		sb.WriteString(`[^\x00-\xff]`)
		return
	case n == 1:
		b, _ := s.single()
		fmt.Fprintf(sb, `\x%02x`, b)
		return
	case n > 128:
		sb.WriteString(`[^`)
		writeRanges(sb, s.negate())
	default:
		sb.WriteByte('[')
		writeRanges(sb, s)
	}
	sb.WriteByte(']')
}

func writeRanges(sb *strings.Builder, s byteSet) {
	for c := 0; c < 256; c++ {
		if !s.has(byte(c)) {
			continue
		}
		lo := c
		for c+1 < 256 && s.has(byte(c+1)) {
			c++
		}
		if lo == c {
			fmt.Fprintf(sb, `\x%02x`, lo)
		} else {
			fmt.Fprintf(sb, `\x%02x-\x%02x`, lo, c)
		}
	}
}
