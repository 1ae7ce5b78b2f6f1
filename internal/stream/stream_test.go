package stream

import (
	"testing"

	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
	"inkvm/internal/value"
)

func newTestTables() (*strtable.Table, *listtable.Table) {
	return strtable.New(16), listtable.New(nil)
}

func TestAppendSuppressesLeadingNewline(t *testing.T) {
	s := New(8)
	if err := s.Append(value.Newline); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 0 {
		t.Errorf("Size = %d, want 0 (leading newline dropped)", s.Size())
	}
}

func TestAppendSuppressesNewlineAfterGlue(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("hello"))
	s.Append(value.Glue)
	if err := s.Append(value.Newline); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 2 {
		t.Errorf("Size = %d, want 2 (newline after glue suppressed)", s.Size())
	}
}

func TestAppendSuppressesNewlineAfterGlueThroughEmptyString(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("hello"))
	s.Append(value.Glue)
	s.Append(value.StaticString(""))
	if err := s.Append(value.Newline); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 3 {
		t.Errorf("Size = %d, want 3 (newline after glue, through empty string, suppressed)", s.Size())
	}
}

func TestAppendSuppressesRepeatedNewline(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("hello"))
	s.Append(value.Newline)
	if err := s.Append(value.Newline); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 2 {
		t.Errorf("Size = %d, want 2 (second newline suppressed)", s.Size())
	}
}

func TestAppendGlueTrimsTrailingWhitespace(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("hello"))
	s.Append(value.StaticString(" "))
	s.Append(value.Glue)

	entries := s.Entries()
	if entries[1].Kind != value.KindNone {
		t.Errorf("whitespace entry before glue should be zeroed, got kind %v", entries[1].Kind)
	}
}

func TestAppendOverflow(t *testing.T) {
	s := New(1)
	if err := s.Append(value.StaticString("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(value.StaticString("b")); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestSaveRestoreForget(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("a"))
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err == nil {
		t.Fatal("expected error saving twice")
	}
	s.Append(value.StaticString("b"))
	if !s.TextPastSave() {
		t.Error("expected text past save point")
	}
	if err := s.Restore(); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 1 {
		t.Errorf("Size after restore = %d, want 1", s.Size())
	}

	s.Save()
	s.Forget()
	if err := s.Restore(); err == nil {
		t.Fatal("expected error restoring with no save point")
	}
}

func TestTextPastSaveFalseForWhitespaceOnly(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("a"))
	s.Save()
	s.Append(value.StaticString("  "))
	if s.TextPastSave() {
		t.Error("whitespace-only content past save should not count as text")
	}
}

func TestGetLineBasic(t *testing.T) {
	strs, lists := newTestTables()
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString("Hello"))
	s.Append(value.StaticString(" "))
	s.Append(value.StaticString("world"))

	line, err := s.GetLine(strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if line != "Hello world" {
		t.Errorf("GetLine = %q, want %q", line, "Hello world")
	}
	if s.Size() != 0 {
		t.Errorf("Size after GetLine = %d, want 0", s.Size())
	}
}

func TestGetLineCollapsesRepeatedSpaces(t *testing.T) {
	strs, lists := newTestTables()
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString("a"))
	s.Append(value.StaticString("   "))
	s.Append(value.StaticString("b"))

	line, err := s.GetLine(strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if line != "a b" {
		t.Errorf("GetLine = %q, want %q", line, "a b")
	}
}

func TestGetLineStripsLeadingWhitespace(t *testing.T) {
	strs, lists := newTestTables()
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString(" "))
	s.Append(value.StaticString("hi"))

	line, err := s.GetLine(strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if line != "hi" {
		t.Errorf("GetLine = %q, want %q", line, "hi")
	}
}

func TestGetLineEmptyBeforeSavePointErrors(t *testing.T) {
	strs, lists := newTestTables()
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString("a"))
	s.Save()
	s.Discard(2)
	if _, err := s.GetLine(strs, lists); err == nil {
		t.Fatal("expected error reading past save point")
	}
}

func TestTakeStringInternsResult(t *testing.T) {
	strs, lists := newTestTables()
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString("hi"))

	v, err := s.TakeString(strs, lists, true)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != value.KindString || !v.Str.Allocated {
		t.Fatalf("TakeString returned %+v, want an allocated string", v)
	}
	got, err := value.Stringify(v, strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi" {
		t.Errorf("interned string = %q, want %q", got, "hi")
	}
}

func TestFindFirstAndLastOf(t *testing.T) {
	s := New(8)
	s.Append(value.Marker)
	s.Append(value.StaticString("a"))
	s.Append(value.Marker)

	if idx, ok := s.FindFirstOf(value.KindMarker, 0); !ok || idx != 0 {
		t.Errorf("FindFirstOf = (%d, %v), want (0, true)", idx, ok)
	}
	if idx, ok := s.FindLastOf(value.KindMarker, 0); !ok || idx != 2 {
		t.Errorf("FindLastOf = (%d, %v), want (2, true)", idx, ok)
	}
}

func TestEndsWith(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("a"))
	s.Append(value.Glue)
	if !s.EndsWith(value.KindGlue, -1) {
		t.Error("expected stream to end with glue")
	}
}

func TestSetStateRoundTrip(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("a"))
	s.Append(value.StaticString("b"))
	s.Save()

	entries := append([]value.Value(nil), s.Entries()...)
	save := s.SaveMark()
	last := s.LastChar()

	restored := New(8)
	if err := restored.SetState(entries, save, last); err != nil {
		t.Fatal(err)
	}
	if restored.Size() != s.Size() || restored.SaveMark() != s.SaveMark() {
		t.Errorf("SetState round trip mismatch: got size=%d save=%d, want size=%d save=%d",
			restored.Size(), restored.SaveMark(), s.Size(), s.SaveMark())
	}
}

func TestSetStateRejectsOversizedEntries(t *testing.T) {
	small := New(1)
	entries := []value.Value{value.StaticString("a"), value.StaticString("b")}
	if err := small.SetState(entries, npos, 0); err == nil {
		t.Fatal("expected error restoring more entries than capacity")
	}
}

func TestClear(t *testing.T) {
	s := New(8)
	s.Append(value.StaticString("a"))
	s.Save()
	s.Clear()
	if s.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", s.Size())
	}
	if s.saved() {
		t.Error("Clear should drop the save point")
	}
}
