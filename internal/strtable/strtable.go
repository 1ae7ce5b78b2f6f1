// Package strtable is the runtime-constructed string interning allocator
// with mark/sweep GC, ported from inkcpp's string_table (see
// original_source/inkcpp/string_table.cpp). Go's own garbage collector would
// happily keep these strings alive forever, but the runtime needs the exact
// mark/sweep discipline the spec describes — GC runs only at safe points the
// host chooses, strings are addressed by stable handle (not content) so two
// equal-content strings can coexist, and handles are what snapshots persist.
package strtable

import inkerrors "inkvm/internal/errors"

// Handle addresses one interned string. Handles are stable for the string's
// lifetime; equality of two Values holding string handles must dereference
// and compare content, never compare handles (see internal/value).
type Handle int

type entry struct {
	s    string
	used bool
	live bool // false once gc'd; slot is reused via freelist
}

// Table owns all runtime-interned strings for one Globals instance.
type Table struct {
	entries  []entry
	freelist []Handle
	capacity int // 0 means unbounded
}

// New creates a string table. capacity <= 0 means unbounded (bounded only by
// host memory); a positive capacity makes Create/Duplicate return a bounds
// error once exhausted, per §6's construction-time capacity knobs.
func New(capacity int) *Table {
	return &Table{capacity: capacity}
}

// liveCount is used for bounds checking and statistics.
func (t *Table) liveCount() int {
	n := 0
	for _, e := range t.entries {
		if e.live {
			n++
		}
	}
	return n
}

// Create allocates a new interned string (initially used=true, matching the
// "TODO: should it start as used?" in the original — it does).
func (t *Table) Create(s string) (Handle, error) {
	if t.capacity > 0 && t.liveCount() >= t.capacity {
		return 0, inkerrors.WithStack(inkerrors.Bounds("string table is full (capacity %d)", t.capacity))
	}
	if n := len(t.freelist); n > 0 {
		h := t.freelist[n-1]
		t.freelist = t.freelist[:n-1]
		t.entries[h] = entry{s: s, used: true, live: true}
		return h, nil
	}
	t.entries = append(t.entries, entry{s: s, used: true, live: true})
	return Handle(len(t.entries) - 1), nil
}

// Duplicate interns a copy of src as a new handle (distinct identity, equal
// content) — used when the VM needs a fresh owned string from borrowed
// (constant-pool) text, e.g. before attaching it to a long-lived Value.
func (t *Table) Duplicate(src string) (Handle, error) {
	return t.Create(src)
}

// Get dereferences a handle to its current content.
func (t *Table) Get(h Handle) (string, bool) {
	if int(h) < 0 || int(h) >= len(t.entries) || !t.entries[h].live {
		return "", false
	}
	return t.entries[h].s, true
}

// ClearUsage zeroes every entry's used flag. Call before a mark/sweep pass.
func (t *Table) ClearUsage() {
	for i := range t.entries {
		t.entries[i].used = false
	}
}

// MarkUsed flags h as reachable. Between ClearUsage and GC, every handle
// that remains referenced by a live Value must be marked or it will be
// swept.
func (t *Table) MarkUsed(h Handle) {
	if int(h) >= 0 && int(h) < len(t.entries) && t.entries[h].live {
		t.entries[h].used = true
	}
}

// GC frees every live-but-unmarked entry and returns how many were
// collected.
func (t *Table) GC() int {
	freed := 0
	for i := range t.entries {
		if t.entries[i].live && !t.entries[i].used {
			t.entries[i] = entry{}
			t.freelist = append(t.freelist, Handle(i))
			freed++
		}
	}
	return freed
}

// GetID returns the in-order ordinal used by the snapshot format to
// reference a string without embedding the handle's internal slot layout.
// Freed slots do not occupy an ordinal.
func (t *Table) GetID(h Handle) (int, bool) {
	if int(h) < 0 || int(h) >= len(t.entries) || !t.entries[h].live {
		return 0, false
	}
	id := 0
	for i := 0; i < int(h); i++ {
		if t.entries[i].live {
			id++
		}
	}
	return id, true
}

// EmptyStringSentinel is the byte inserted in place of a zero-length string
// in the snapshot's string section, so an empty string can be told apart
// from the double-NUL that ends the section (inkcpp: EMPTY_STRING = "\x03").
const EmptyStringSentinel = byte(0x03)

// SnapshotStrings writes every live, in-order string as the snapshot format
// expects: NUL-terminated, empty strings replaced by the sentinel byte, then
// a trailing empty NUL to end the section.
func (t *Table) SnapshotStrings() []byte {
	var out []byte
	for _, e := range t.entries {
		if !e.live {
			continue
		}
		if e.s == "" {
			out = append(out, EmptyStringSentinel, 0)
		} else {
			out = append(out, e.s...)
			out = append(out, 0)
		}
	}
	out = append(out, 0)
	return out
}

// LoadStrings rebuilds the table from a snapshot's string section, returning
// an ordinal-to-handle map the globals/value decoder uses to rewrite string
// references.
func LoadStrings(data []byte) (*Table, []Handle, error) {
	t := New(0)
	var ordinals []Handle
	i := 0
	for i < len(data) {
		if data[i] == 0 {
			// end of section
			return t, ordinals, nil
		}
		start := i
		for i < len(data) && data[i] != 0 {
			i++
		}
		if i >= len(data) {
			return nil, nil, inkerrors.WithStack(inkerrors.Format("unterminated string in snapshot"))
		}
		raw := data[start:i]
		i++ // consume NUL
		s := string(raw)
		if len(raw) == 1 && raw[0] == EmptyStringSentinel {
			s = ""
		}
		h, err := t.Create(s)
		if err != nil {
			return nil, nil, err
		}
		ordinals = append(ordinals, h)
	}
	return t, ordinals, nil
}
