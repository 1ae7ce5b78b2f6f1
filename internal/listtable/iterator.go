package listtable

// Iterator walks the (list_id, flag_index) members of a list value in
// ascending order, ported from list_impl::next (original_source/inkcpp/
// list_impl.cpp): one_list_only restricts the walk to a single declaring
// list, and running off the end yields the -1 sentinel (ok=false here).
type Iterator struct {
	flags       []Flag
	oneListOnly bool
	firstList   int16
	pos         int
}

// NewIterator starts an iterator over h's set flags.
func (t *Table) NewIterator(h Handle, oneListOnly bool) *Iterator {
	fs := t.flags(h)
	it := &Iterator{flags: fs, oneListOnly: oneListOnly, pos: -1}
	if len(fs) > 0 {
		it.firstList = fs[0].ListID
	}
	return it
}

// Next advances the iterator, returning (Flag{}, false) at the sentinel end.
func (it *Iterator) Next() (Flag, bool) {
	it.pos++
	if it.pos >= len(it.flags) {
		return Flag{}, false
	}
	f := it.flags[it.pos]
	if it.oneListOnly && f.ListID != it.firstList {
		return Flag{}, false
	}
	return f, true
}

// DeclaredFlags enumerates every flag a named list declares, independent of
// any particular value — the source list_impl::begin walks exactly this
// sequence when a host iterates "all possible values of list type X".
func (t *Table) DeclaredFlags(listID int16) []Flag {
	if int(listID) < 0 || int(listID) >= len(t.lists) {
		return nil
	}
	n := len(t.lists[listID].FlagNames)
	out := make([]Flag, n)
	for i := 0; i < n; i++ {
		out[i] = Flag{ListID: listID, Index: int16(i)}
	}
	return out
}

// ListIDByName resolves a declared list's id by its authored name.
func (t *Table) ListIDByName(name string) (int16, bool) {
	for i, lm := range t.lists {
		if lm.Name == name {
			return int16(i), true
		}
	}
	return -1, false
}
