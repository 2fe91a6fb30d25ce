package table

// TableSize is the number of hash slots, one per uint16 value.
const TableSize = 1 << 16

// PrefixTable maps short byte keys to lists of values and answers, for an
// input, which stored keys are prefixes of it.
//
// Every prefix of every key is hashed into a 65536-slot marker array, so a
// walk stops at the first input byte no key continues with. Keys longer
// than 8 bytes collide in the hash but are still resolved exactly through
// the element map.
type PrefixTable[T any] struct {
	table [TableSize]byte
	elems map[string][]T
	n     int
}

const (
	none = iota
	presentMarker
	elemMarker
)

func New[T any]() *PrefixTable[T] {
	return &PrefixTable[T]{
		elems: make(map[string][]T),
	}
}

func hashStep(h uint16, b byte) uint16 {
	return (h << 2) + uint16(b)
}

// Insert associates v with key. Several values may share a key.
// Empty keys are ignored.
func (t *PrefixTable[T]) Insert(key []byte, v T) {
	if len(key) == 0 {
		return
	}

	var h uint16
	for _, b := range key {
		h = hashStep(h, b)
		t.table[h] = max(t.table[h], presentMarker)
	}
	t.table[h] = elemMarker
	t.elems[string(key)] = append(t.elems[string(key)], v)
	t.n++
}

// Get returns the values stored under exactly key.
func (t *PrefixTable[T]) Get(key []byte) []T {
	return t.elems[string(key)]
}

// Walk calls onMatch for every value whose key is a prefix of key, shortest
// keys first. It stops early when onMatch returns true.
func (t *PrefixTable[T]) Walk(key []byte, onMatch func(T) bool) {
	var h uint16
	for i, b := range key {
		h = hashStep(h, b)

		switch t.table[h] {
		case none:
			return
		case elemMarker:
			for _, v := range t.elems[string(key[:i+1])] {
				if onMatch(v) {
					return
				}
			}
		}
	}
}

// Size returns the number of stored values.
func (t *PrefixTable[T]) Size() int {
	return t.n
}

// Keys returns the number of distinct keys.
func (t *PrefixTable[T]) Keys() int {
	return len(t.elems)
}
