package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ostafen/fido/internal/pattern"
)

// gap is one ".{min}" or ".{min,max}" repetition of a fido regex. A max
// of -1 is unbounded.
type gap struct {
	min, max int
}

// regexOffsets recovers the offsets that fido catalogs fold into the
// <regex> of a pattern: the leading gap after \A for BOF patterns and the
// trailing gap before \Z for EOF ones. Gaps that belong to expr itself
// are not counted.
func regexOffsets(regex, expr string, anchor pattern.Anchor) (int, int, error) {
	if anchor == pattern.VAR {
		return 0, pattern.NoMaxOffset, nil
	}

	s := strings.TrimPrefix(strings.TrimSpace(regex), "(?s)")

	var gaps []gap
	var own int
	switch anchor {
	case pattern.BOF:
		rest, ok := strings.CutPrefix(s, `\A`)
		if !ok {
			return 0, 0, fmt.Errorf("%w: regex %q is not anchored at BOF", pattern.ErrInvalidOffset, regex)
		}
		gaps = leadingGaps(rest)
		own = countGaps(expr, true)
	case pattern.EOF:
		rest, ok := strings.CutSuffix(s, `\Z`)
		if !ok {
			rest, ok = strings.CutSuffix(s, `\z`)
		}
		if !ok {
			return 0, 0, fmt.Errorf("%w: regex %q is not anchored at EOF", pattern.ErrInvalidOffset, regex)
		}
		gaps = trailingGaps(rest)
		own = countGaps(expr, false)
	}
	gaps = gaps[:max(len(gaps)-own, 0)]

	offset, maxOffset := 0, 0
	for _, g := range gaps {
		if g.max < 0 {
			return 0, 0, fmt.Errorf("%w: unbounded offset in regex %q", pattern.ErrInvalidOffset, regex)
		}
		offset += g.min
		maxOffset += g.max
	}
	if maxOffset == offset {
		return offset, pattern.NoMaxOffset, nil
	}
	return offset, maxOffset, nil
}

// leadingGaps returns the gaps at the start of s, nearest the anchor first.
func leadingGaps(s string) []gap {
	var gaps []gap
	for strings.HasPrefix(s, ".{") {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			break
		}
		g, ok := parseGap(s[2:end])
		if !ok {
			break
		}
		gaps = append(gaps, g)
		s = s[end+1:]
	}
	return gaps
}

// trailingGaps returns the gaps at the end of s, nearest the anchor first.
func trailingGaps(s string) []gap {
	var gaps []gap
	for strings.HasSuffix(s, "}") {
		start := strings.LastIndexByte(s, '{')
		if start < 1 || s[start-1] != '.' || (start >= 2 && s[start-2] == '\\') {
			break
		}
		g, ok := parseGap(s[start+1 : len(s)-1])
		if !ok {
			break
		}
		gaps = append(gaps, g)
		s = s[:start-1]
	}
	return gaps
}

func parseGap(s string) (gap, bool) {
	lo, hi, ranged := strings.Cut(s, ",")
	n, err := strconv.Atoi(lo)
	if err != nil || n < 0 {
		return gap{}, false
	}
	if !ranged {
		return gap{n, n}, true
	}
	if hi == "" {
		return gap{n, -1}, true
	}
	m, err := strconv.Atoi(hi)
	if err != nil || m < n {
		return gap{}, false
	}
	return gap{n, m}, true
}

// countGaps counts the "{...}" groups that open (head) or close the
// expression.
func countGaps(expr string, head bool) int {
	expr = strings.TrimSpace(expr)
	n := 0
	for expr != "" {
		if head {
			if expr[0] != '{' {
				break
			}
			end := strings.IndexByte(expr, '}')
			if end < 0 {
				break
			}
			expr = strings.TrimSpace(expr[end+1:])
		} else {
			if expr[len(expr)-1] != '}' {
				break
			}
			start := strings.LastIndexByte(expr, '{')
			if start < 0 {
				break
			}
			expr = strings.TrimSpace(expr[:start])
		}
		n++
	}
	return n
}
