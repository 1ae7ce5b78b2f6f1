// Package listtable implements Ink list (set-of-named-flags) values as
// bitsets over a global flag universe, ported from inkcpp's list_table /
// list_impl (original_source/inkcpp/list_impl.cpp). Every authored list's
// flags get dense, stable ids at load time; a list value is a bitset over
// the whole universe plus a record of which declaring lists it "belongs to"
// (so LIST_ALL(x) and stringification know which list a bare flag name
// came from).
package listtable

import (
	"sort"
	"strings"

	"inkvm/internal/storyimage"
)

// Handle addresses one list value. Like strtable.Handle, two distinct
// handles may be structurally equal; equality must always dereference and
// compare bitsets, never handles.
type Handle int

type listEntry struct {
	bits   bitset
	origin bitset // which list_ids this value "belongs to" (for LIST_ALL / stringification scoping)
	used   bool
	live   bool
}

// Table owns the flag universe (built once from the story image) and every
// list value created during execution.
type Table struct {
	lists     []storyimage.ListMeta // per list_id
	listEnd   []int                 // exclusive end of the global bit range for list_id
	universe  int                   // total flag count across all lists
	flagNames map[Flag]string
	nameToFlag map[string]Flag // "FlagName" or "ListName.FlagName" -> Flag

	entries  []listEntry
	freelist []Handle
}

// New builds the flag universe from a loaded story's list metadata.
func New(lists []storyimage.ListMeta) *Table {
	t := &Table{
		lists:      lists,
		listEnd:    make([]int, len(lists)),
		flagNames:  map[Flag]string{},
		nameToFlag: map[string]Flag{},
	}
	for lid, lm := range lists {
		end := lm.Begin + len(lm.FlagNames)
		t.listEnd[lid] = end
		if end > t.universe {
			t.universe = end
		}
		for i, fname := range lm.FlagNames {
			f := Flag{ListID: int16(lid), Index: int16(i)}
			t.flagNames[f] = fname
			t.nameToFlag[fname] = f
			t.nameToFlag[lm.Name+"."+fname] = f
		}
	}
	return t
}

func (t *Table) bitPos(f Flag) int {
	return t.lists[f.ListID].Begin + int(f.Index)
}

// ToFlag resolves an authored flag name (bare, or "List.Flag" to
// disambiguate a name shared by two lists) to its dense Flag id.
func (t *Table) ToFlag(name string) (Flag, bool) {
	f, ok := t.nameToFlag[name]
	return f, ok
}

// FlagName returns a flag's authored name.
func (t *Table) FlagName(f Flag) (string, bool) {
	n, ok := t.flagNames[f]
	return n, ok
}

// ListName returns a list's authored name by id.
func (t *Table) ListName(listID int16) string {
	if int(listID) < 0 || int(listID) >= len(t.lists) {
		return ""
	}
	return t.lists[listID].Name
}

func (t *Table) listRange(listID int16) (begin, end int) {
	return t.lists[listID].Begin, t.listEnd[listID]
}

func (t *Table) newEntry(bits, origin bitset) Handle {
	e := listEntry{bits: bits, origin: origin, used: true, live: true}
	if n := len(t.freelist); n > 0 {
		h := t.freelist[n-1]
		t.freelist = t.freelist[:n-1]
		t.entries[h] = e
		return h
	}
	t.entries = append(t.entries, e)
	return Handle(len(t.entries) - 1)
}

func (t *Table) entry(h Handle) (listEntry, bool) {
	if int(h) < 0 || int(h) >= len(t.entries) || !t.entries[h].live {
		return listEntry{}, false
	}
	return t.entries[h], true
}

// Empty creates an empty list value with no declaring list recorded yet.
func (t *Table) Empty() Handle {
	return t.newEntry(newBitset(t.universe), newBitset(len(t.lists)))
}

// EmptyOfList creates an empty list value typed to a specific declaring
// list (e.g. the authored `Ink.List` field default), so LIST_ALL still
// knows its universe even though it has no set flags.
func (t *Table) EmptyOfList(listID int16) Handle {
	origin := newBitset(len(t.lists))
	origin.set(int(listID))
	return t.newEntry(newBitset(t.universe), origin)
}

// Single creates a list value containing exactly one flag.
func (t *Table) Single(f Flag) Handle {
	bits := newBitset(t.universe)
	bits.set(t.bitPos(f))
	origin := newBitset(len(t.lists))
	origin.set(int(f.ListID))
	return t.newEntry(bits, origin)
}

// Has reports flag membership.
func (t *Table) Has(h Handle, f Flag) bool {
	e, ok := t.entry(h)
	if !ok {
		return false
	}
	return e.bits.get(t.bitPos(f))
}

// Add returns a new handle for h ∪ {f}.
func (t *Table) Add(h Handle, f Flag) Handle {
	e, _ := t.entry(h)
	bits := e.bits.clone()
	bits.set(t.bitPos(f))
	origin := e.origin.clone()
	origin.set(int(f.ListID))
	return t.newEntry(bits, origin)
}

// Sub returns a new handle for h \ {f}. Origin lists are unaffected — a list
// keeps remembering which lists it has ever drawn from, matching the
// original's treatment of origin as "the lists this value's type spans".
func (t *Table) Sub(h Handle, f Flag) Handle {
	e, _ := t.entry(h)
	bits := e.bits.clone()
	bits.clear(t.bitPos(f))
	return t.newEntry(bits, e.origin.clone())
}

// Union returns a ∪ b.
func (t *Table) Union(a, b Handle) Handle {
	ea, _ := t.entry(a)
	eb, _ := t.entry(b)
	return t.newEntry(ea.bits.or(eb.bits), ea.origin.or(eb.origin))
}

// Intersect returns a ∩ b.
func (t *Table) Intersect(a, b Handle) Handle {
	ea, _ := t.entry(a)
	eb, _ := t.entry(b)
	return t.newEntry(ea.bits.and(eb.bits), ea.origin.or(eb.origin))
}

// Difference returns a \ b.
func (t *Table) Difference(a, b Handle) Handle {
	ea, _ := t.entry(a)
	eb, _ := t.entry(b)
	return t.newEntry(ea.bits.andNot(eb.bits), ea.origin.clone())
}

// Equal is structural bitset identity — two handles denote equal lists iff
// their bit patterns match, independent of allocation order.
func (t *Table) Equal(a, b Handle) bool {
	ea, _ := t.entry(a)
	eb, _ := t.entry(b)
	return ea.bits.equal(eb.bits)
}

// Count returns the number of set flags.
func (t *Table) Count(h Handle) int {
	e, _ := t.entry(h)
	return e.bits.popcount()
}

// flags returns the set flags in ascending (list_id, flag_index) order.
func (t *Table) flags(h Handle) []Flag {
	e, ok := t.entry(h)
	if !ok {
		return nil
	}
	var out []Flag
	for lid := range t.lists {
		begin, end := t.listRange(int16(lid))
		for pos := begin; pos < end; pos++ {
			if e.bits.get(pos) {
				out = append(out, Flag{ListID: int16(lid), Index: int16(pos - begin)})
			}
		}
	}
	return out
}

// Min returns the lowest (list_id, flag_index)-ordered member.
func (t *Table) Min(h Handle) (Flag, bool) {
	fs := t.flags(h)
	if len(fs) == 0 {
		return Flag{}, false
	}
	return fs[0], true
}

// Max returns the highest (list_id, flag_index)-ordered member.
func (t *Table) Max(h Handle) (Flag, bool) {
	fs := t.flags(h)
	if len(fs) == 0 {
		return Flag{}, false
	}
	return fs[len(fs)-1], true
}

// Less implements the lexicographic-by-min-element ordering named in §4.4.
func (t *Table) Less(a, b Handle) bool {
	fa, aok := t.Min(a)
	fb, bok := t.Min(b)
	if !aok && !bok {
		return false
	}
	if !aok {
		return true
	}
	if !bok {
		return false
	}
	if fa.ListID != fb.ListID {
		return fa.ListID < fb.ListID
	}
	return fa.Index < fb.Index
}

// Invert returns the complement of h within every list it has drawn flags
// from (its origin set), not the entire universe.
func (t *Table) Invert(h Handle) Handle {
	e, _ := t.entry(h)
	bits := newBitset(t.universe)
	for lid := range t.lists {
		if !e.origin.get(lid) {
			continue
		}
		begin, end := t.listRange(int16(lid))
		for pos := begin; pos < end; pos++ {
			if !e.bits.get(pos) {
				bits.set(pos)
			}
		}
	}
	return t.newEntry(bits, e.origin.clone())
}

// All returns every flag of every list h has drawn from — LIST_ALL(x).
func (t *Table) All(h Handle) Handle {
	e, _ := t.entry(h)
	bits := newBitset(t.universe)
	for lid := range t.lists {
		if !e.origin.get(lid) {
			continue
		}
		begin, end := t.listRange(int16(lid))
		for pos := begin; pos < end; pos++ {
			bits.set(pos)
		}
	}
	return t.newEntry(bits, e.origin.clone())
}

// Range returns the contiguous subrange [min,max] of h by flag_index,
// restricted to lists h belongs to.
func (t *Table) Range(h Handle, min, max int) Handle {
	e, _ := t.entry(h)
	bits := newBitset(t.universe)
	for lid := range t.lists {
		begin, end := t.listRange(int16(lid))
		for pos := begin; pos < end; pos++ {
			idx := pos - begin
			if idx >= min && idx <= max && e.bits.get(pos) {
				bits.set(pos)
			}
		}
	}
	return t.newEntry(bits, e.origin.clone())
}

// String stringifies h ascending by (list_id, flag_index), comma-joined —
// the representation used whenever a list is concatenated into text.
func (t *Table) String(h Handle) string {
	fs := t.flags(h)
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		if n, ok := t.flagNames[f]; ok {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// ClearUsage/MarkUsed/GC mirror strtable's mark/sweep discipline exactly.
func (t *Table) ClearUsage() {
	for i := range t.entries {
		t.entries[i].used = false
	}
}

func (t *Table) MarkUsed(h Handle) {
	if int(h) >= 0 && int(h) < len(t.entries) && t.entries[h].live {
		t.entries[h].used = true
	}
}

func (t *Table) GC() int {
	freed := 0
	for i := range t.entries {
		if t.entries[i].live && !t.entries[i].used {
			t.entries[i] = listEntry{}
			t.freelist = append(t.freelist, Handle(i))
			freed++
		}
	}
	return freed
}

// GetID returns h's in-order ordinal among live entries, for the snapshot
// format to reference a list value without embedding internal slot layout
// (mirrors strtable.Table.GetID).
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

// EntrySnapshot is one live list value's raw bit pattern, for serialization.
type EntrySnapshot struct {
	Bits   []uint64
	Origin []uint64
}

// Snapshot returns every live entry in ordinal order.
func (t *Table) Snapshot() []EntrySnapshot {
	var out []EntrySnapshot
	for _, e := range t.entries {
		if !e.live {
			continue
		}
		out = append(out, EntrySnapshot{Bits: append([]uint64(nil), e.bits.words...), Origin: append([]uint64(nil), e.origin.words...)})
	}
	return out
}

// RestoreEntry re-creates a list value from a snapshot's raw bit pattern,
// returning the handle the caller should remember at this ordinal.
func (t *Table) RestoreEntry(bits, origin []uint64) Handle {
	return t.newEntry(bitset{words: append([]uint64(nil), bits...)}, bitset{words: append([]uint64(nil), origin...)})
}

// sortedListIDs returns every declared list id in ascending order.
func (t *Table) sortedListIDs() []int16 {
	ids := make([]int16, len(t.lists))
	for i := range t.lists {
		ids[i] = int16(i)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
