package listtable

import (
	"testing"

	"inkvm/internal/storyimage"
)

func newTestTable() *Table {
	return New([]storyimage.ListMeta{
		{Name: "colors", Begin: 0, FlagNames: []string{"red", "green", "blue"}},
		{Name: "sizes", Begin: 3, FlagNames: []string{"small", "large"}},
	})
}

func mustFlag(t *testing.T, tbl *Table, name string) Flag {
	t.Helper()
	f, ok := tbl.ToFlag(name)
	if !ok {
		t.Fatalf("flag %q not found", name)
	}
	return f
}

func TestAddSubMembership(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")
	green := mustFlag(t, tbl, "green")

	h := tbl.Single(red)
	if !tbl.Has(h, red) {
		t.Fatal("expected red to be a member")
	}
	if tbl.Has(h, green) {
		t.Fatal("expected green to not be a member")
	}

	h2 := tbl.Add(h, green)
	if !tbl.Has(h2, red) || !tbl.Has(h2, green) {
		t.Fatal("expected h2 to contain red and green")
	}
	if tbl.Has(h, green) {
		t.Fatal("Add must not mutate the original entry")
	}

	h3 := tbl.Sub(h2, red)
	if tbl.Has(h3, red) {
		t.Fatal("expected red removed")
	}
	if !tbl.Has(h3, green) {
		t.Fatal("expected green to remain")
	}
}

func TestUnionIntersectDifference(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")
	green := mustFlag(t, tbl, "green")
	blue := mustFlag(t, tbl, "blue")

	a := tbl.Add(tbl.Single(red), green)
	b := tbl.Add(tbl.Single(green), blue)

	u := tbl.Union(a, b)
	if !tbl.Has(u, red) || !tbl.Has(u, green) || !tbl.Has(u, blue) {
		t.Fatal("union should contain red, green, blue")
	}

	i := tbl.Intersect(a, b)
	if tbl.Count(i) != 1 || !tbl.Has(i, green) {
		t.Fatal("intersection should contain only green")
	}

	d := tbl.Difference(a, b)
	if tbl.Count(d) != 1 || !tbl.Has(d, red) {
		t.Fatal("difference a\\b should contain only red")
	}
}

func TestEqualIsStructuralNotHandleIdentity(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")

	a := tbl.Single(red)
	b := tbl.Single(red)
	if a == b {
		t.Fatal("expected distinct handles for two separate allocations")
	}
	if !tbl.Equal(a, b) {
		t.Fatal("expected structurally identical bitsets to compare equal")
	}
}

func TestLessOrdersByMinFlag(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")
	blue := mustFlag(t, tbl, "blue")

	lo := tbl.Single(red)
	hi := tbl.Single(blue)
	if !tbl.Less(lo, hi) {
		t.Fatal("expected red-only list to sort before blue-only list")
	}
	if tbl.Less(hi, lo) {
		t.Fatal("Less should not be symmetric here")
	}
}

func TestInvertRestrictsToOrigin(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")

	h := tbl.Single(red)
	inv := tbl.Invert(h)
	if tbl.Has(inv, red) {
		t.Fatal("inverted list should not contain red")
	}
	green := mustFlag(t, tbl, "green")
	blue := mustFlag(t, tbl, "blue")
	if !tbl.Has(inv, green) || !tbl.Has(inv, blue) {
		t.Fatal("inverted list should contain the rest of colors")
	}
	small := mustFlag(t, tbl, "small")
	if tbl.Has(inv, small) {
		t.Fatal("invert must not reach into a list the value never drew from")
	}
}

func TestAllExpandsToEntireOriginList(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")

	h := tbl.Single(red)
	all := tbl.All(h)
	if tbl.Count(all) != 3 {
		t.Fatalf("Count(all) = %d, want 3", tbl.Count(all))
	}
}

func TestStringJoinsNamesInOrder(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")
	blue := mustFlag(t, tbl, "blue")

	h := tbl.Add(tbl.Single(blue), red)
	if got, want := tbl.String(h), "red, blue"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestGCFreesUnmarkedEntries(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")

	keep := tbl.Single(red)
	_ = tbl.Single(red) // unreferenced after GC

	tbl.ClearUsage()
	tbl.MarkUsed(keep)
	freed := tbl.GC()
	if freed != 1 {
		t.Errorf("GC freed = %d, want 1", freed)
	}
	if !tbl.Has(keep, red) {
		t.Error("kept handle should still resolve after GC")
	}
}

func TestGetIDReturnsLiveOrdinals(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")

	a := tbl.Single(red)
	b := tbl.Single(red)

	idA, ok := tbl.GetID(a)
	if !ok || idA != 0 {
		t.Fatalf("GetID(a) = (%d, %v), want (0, true)", idA, ok)
	}
	idB, ok := tbl.GetID(b)
	if !ok || idB != 1 {
		t.Fatalf("GetID(b) = (%d, %v), want (1, true)", idB, ok)
	}
}

func TestSnapshotRestoreEntryRoundTrip(t *testing.T) {
	tbl := newTestTable()
	red := mustFlag(t, tbl, "red")
	green := mustFlag(t, tbl, "green")
	h := tbl.Add(tbl.Single(red), green)

	// The Single(red) operand is still a live entry, so it is snapshotted too.
	snaps := tbl.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("Snapshot returned %d entries, want 2", len(snaps))
	}
	id, ok := tbl.GetID(h)
	if !ok {
		t.Fatal("GetID(h) should resolve a live handle")
	}
	snap := snaps[id]

	fresh := newTestTable()
	restored := fresh.RestoreEntry(snap.Bits, snap.Origin)
	if !tbl.Equal(tbl.RestoreEntry(snap.Bits, snap.Origin), h) {
		t.Error("restored entry should be structurally equal to the original, via the original's own table")
	}
	if !fresh.Has(restored, red) || !fresh.Has(restored, green) {
		t.Error("restored entry should retain red and green membership")
	}
}
