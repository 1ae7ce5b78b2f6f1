package listtable

import "math/bits"

// bitset is a fixed-universe bit vector over list flag positions. Kept
// unexported and minimal — the spec's invariants are about Table's
// operations, not about exposing a general-purpose bitset type.
type bitset struct {
	words []uint64
}

func newBitset(bits int) bitset {
	return bitset{words: make([]uint64, (bits+63)/64)}
}

func (b bitset) set(i int)   { b.words[i/64] |= 1 << uint(i%64) }
func (b bitset) clear(i int) { b.words[i/64] &^= 1 << uint(i%64) }
func (b bitset) get(i int) bool {
	if i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

func (b bitset) clone() bitset {
	w := make([]uint64, len(b.words))
	copy(w, b.words)
	return bitset{words: w}
}

func combine(a, b bitset, op func(x, y uint64) uint64) bitset {
	n := len(a.words)
	if len(b.words) > n {
		n = len(b.words)
	}
	w := make([]uint64, n)
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(a.words) {
			x = a.words[i]
		}
		if i < len(b.words) {
			y = b.words[i]
		}
		w[i] = op(x, y)
	}
	return bitset{words: w}
}

func (b bitset) or(o bitset) bitset  { return combine(b, o, func(x, y uint64) uint64 { return x | y }) }
func (b bitset) and(o bitset) bitset { return combine(b, o, func(x, y uint64) uint64 { return x & y }) }
func (b bitset) andNot(o bitset) bitset {
	return combine(b, o, func(x, y uint64) uint64 { return x &^ y })
}

func (b bitset) equal(o bitset) bool {
	n := len(b.words)
	if len(o.words) > n {
		n = len(o.words)
	}
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(b.words) {
			x = b.words[i]
		}
		if i < len(o.words) {
			y = o.words[i]
		}
		if x != y {
			return false
		}
	}
	return true
}

func (b bitset) popcount() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}
