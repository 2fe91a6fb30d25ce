package pattern

import "bytes"

// program is a compiled node list evaluated as an anchored match at
// offset zero of its input.
type program struct {
	nodes   []node
	minRest []int // minRest[i] is the fewest bytes nodes[i:] can consume
}

func newProgram(nodes []node) *program {
	minRest := make([]int, len(nodes)+1)
	for i := len(nodes) - 1; i >= 0; i-- {
		minRest[i] = minRest[i+1] + nodes[i].minLen()
	}
	return &program{nodes: nodes, minRest: minRest}
}

// buildProgram positions body according to the anchor. BOF and VAR
// programs run forward over the head window. EOF programs run over the
// reversed tail so that the end anchor becomes a start anchor.
func buildProgram(anchor Anchor, offset, maxOffset int, body []node) *program {
	var lead node
	switch anchor {
	case VAR:
		lead = node{kind: gapNode, min: offset, max: -1}
	default:
		max := offset
		if maxOffset >= 0 {
			max = maxOffset
		}
		lead = node{kind: gapNode, min: offset, max: max}
	}

	if anchor == EOF {
		body = reverseNodes(body)
	}

	nodes := make([]node, 0, len(body)+1)
	if lead.min > 0 || lead.max != 0 {
		nodes = append(nodes, lead)
	}
	for _, n := range body {
		if k := len(nodes); k > 0 && n.kind == gapNode && nodes[k-1].kind == gapNode {
			nodes[k-1] = mergeGaps(nodes[k-1], n)
			continue
		}
		nodes = append(nodes, n)
	}
	return newProgram(nodes)
}

func mergeGaps(a, b node) node {
	g := node{kind: gapNode, min: a.min + b.min, max: a.max + b.max}
	if a.max < 0 || b.max < 0 {
		g.max = -1
	}
	return g
}

func reverseNodes(nodes []node) []node {
	out := make([]node, len(nodes))
	for i, n := range nodes {
		r := n
		switch n.kind {
		case seqNode:
			r.sets = reverseSets(n.sets)
			r.lit = literalOf(r.sets)
		case altNode:
			r.alts = make([][]byteSet, len(n.alts))
			for j, alt := range n.alts {
				r.alts[j] = reverseSets(alt)
			}
		}
		out[len(nodes)-1-i] = r
	}
	return out
}

func reverseSets(sets []byteSet) []byteSet {
	out := make([]byteSet, len(sets))
	for i, s := range sets {
		out[len(sets)-1-i] = s
	}
	return out
}

func (n *node) minLen() int {
	switch n.kind {
	case seqNode:
		return len(n.sets)
	case gapNode:
		return n.min
	}

	min := -1
	for _, alt := range n.alts {
		if min < 0 || len(alt) < min {
			min = len(alt)
		}
	}
	return max(min, 0)
}

func (n *node) matchAt(buf []byte, pos int) bool {
	if n.lit != nil {
		return bytes.HasPrefix(buf[pos:], n.lit)
	}
	return matchSets(n.sets, buf[pos:])
}

func matchSets(sets []byteSet, buf []byte) bool {
	if len(buf) < len(sets) {
		return false
	}
	for i, s := range sets {
		if !s.has(buf[i]) {
			return false
		}
	}
	return true
}
