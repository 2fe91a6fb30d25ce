package pattern

import "bytes"

// DefaultStepLimit bounds the number of backtracking steps a single
// evaluation may take before it is abandoned with ErrBudgetExceeded.
const DefaultStepLimit = 1 << 22

type runner struct {
	prog  *program
	buf   []byte
	steps int
	limit int

	// failed holds (node, position) states already known not to match.
	// It is allocated on the first branch.
	failed map[uint64]struct{}
}

func (p *program) exec(buf []byte, limit int) (bool, error) {
	if len(buf) < p.minRest[0] {
		return false, nil
	}
	r := runner{prog: p, buf: buf, limit: limit}
	return r.run(0, 0)
}

func (r *runner) run(idx, pos int) (bool, error) {
	nodes := r.prog.nodes
	for idx < len(nodes) {
		if len(r.buf)-pos < r.prog.minRest[idx] {
			return false, nil
		}

		n := &nodes[idx]
		switch n.kind {
		case seqNode:
			if !n.matchAt(r.buf, pos) {
				return false, nil
			}
			pos += len(n.sets)
			idx++
		case gapNode:
			return r.gap(idx, pos)
		case altNode:
			return r.alt(idx, pos)
		}
	}
	return true, nil
}

func (r *runner) gap(idx, pos int) (bool, error) {
	n := &r.prog.nodes[idx]
	if idx == len(r.prog.nodes)-1 {
		// A trailing gap only needs its minimum, which run already checked.
		return true, nil
	}

	lo := pos + n.min
	hi := len(r.buf) - r.prog.minRest[idx+1]
	if n.max >= 0 && pos+n.max < hi {
		hi = pos + n.max
	}

	head := r.prog.nodes[idx+1].lit
	for p := lo; p <= hi; p++ {
		if len(head) > 0 {
			i := bytes.Index(r.buf[p:hi+len(head)], head)
			if i < 0 {
				return false, nil
			}
			p += i
		}

		ok, err := r.branch(idx+1, p)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (r *runner) alt(idx, pos int) (bool, error) {
	n := &r.prog.nodes[idx]
	for _, alt := range n.alts {
		if !matchSets(alt, r.buf[pos:]) {
			continue
		}

		ok, err := r.branch(idx+1, pos+len(alt))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// branch explores one alternative continuation, consulting and updating
// the failure memo.
func (r *runner) branch(idx, pos int) (bool, error) {
	r.steps++
	if r.limit > 0 && r.steps > r.limit {
		return false, ErrBudgetExceeded
	}

	key := uint64(idx)<<40 | uint64(pos)
	if _, seen := r.failed[key]; seen {
		return false, nil
	}

	ok, err := r.run(idx, pos)
	if err != nil || ok {
		return ok, err
	}

	if r.failed == nil {
		r.failed = make(map[uint64]struct{})
	}
	r.failed[key] = struct{}{}
	return false, nil
}
