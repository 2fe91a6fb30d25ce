package pattern

import "math/bits"

// byteSet is a 256-bit membership set over byte values.
type byteSet [4]uint64

func singleSet(b byte) byteSet {
	var s byteSet
	s.add(b)
	return s
}

func fullSet() byteSet {
	return byteSet{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
}

func rangeSet(lo, hi byte) byteSet {
	var s byteSet
	for c := int(lo); c <= int(hi); c++ {
		s.add(byte(c))
	}
	return s
}

// anyMaskSet holds the bytes sharing at least one bit with mask.
// A zero mask selects every byte unless literal is set, in which case
// nothing can match.
func anyMaskSet(mask byte, literal bool) byteSet {
	if mask == 0 {
		if literal {
			return byteSet{}
		}
		return fullSet()
	}

	var s byteSet
	for c := 0; c < 256; c++ {
		if byte(c)&mask != 0 {
			s.add(byte(c))
		}
	}
	return s
}

// allMaskSet holds the bytes having every bit of mask set.
func allMaskSet(mask byte) byteSet {
	var s byteSet
	for c := 0; c < 256; c++ {
		if byte(c)&mask == mask {
			s.add(byte(c))
		}
	}
	return s
}

func (s *byteSet) add(b byte) {
	s[b>>6] |= 1 << (b & 63)
}

func (s *byteSet) union(o byteSet) {
	for i := range s {
		s[i] |= o[i]
	}
}

func (s byteSet) has(b byte) bool {
	return s[b>>6]&(1<<(b&63)) != 0
}

func (s byteSet) negate() byteSet {
	return byteSet{^s[0], ^s[1], ^s[2], ^s[3]}
}

func (s byteSet) count() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1]) +
		bits.OnesCount64(s[2]) + bits.OnesCount64(s[3])
}

// single returns the only member of s, if s has exactly one.
func (s byteSet) single() (byte, bool) {
	if s.count() != 1 {
		return 0, false
	}
	for i, w := range s {
		if w != 0 {
			return byte(i*64 + bits.TrailingZeros64(w)), true
		}
	}
	return 0, false
}
