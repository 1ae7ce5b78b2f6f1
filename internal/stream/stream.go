// Package stream implements the runtime's output stream: the append/trim
// algorithm that turns a sequence of printed values, glue, and newlines into
// clean user-facing text, ported from inkcpp's basic_stream
// (original_source/inkcpp/output.cpp).
package stream

import (
	"strings"
	"unicode"

	inkerrors "inkvm/internal/errors"
	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
	"inkvm/internal/value"
)

// npos marks "no save point" / "not found", mirroring inkcpp's npos sentinel.
const npos = -1

// Stream is a fixed-capacity append-only buffer of value.Value with the
// glue/newline/whitespace trimming rules baked into append. Capacity is
// fixed at construction (the Open Question of fixed-vs-growable capacity is
// resolved in favor of fixed, matching the original's overflow()-is-fatal
// behavior — see SPEC_FULL.md/DESIGN.md).
type Stream struct {
	data     []value.Value
	max      int
	size     int
	save     int
	lastChar byte
}

// New allocates a Stream with room for up to capacity values.
func New(capacity int) *Stream {
	return &Stream{data: make([]value.Value, capacity), max: capacity, save: npos}
}

func (s *Stream) saved() bool { return s.save != npos }

// Append adds v, applying newline suppression after glue/newline and
// trailing-whitespace trimming before glue/func_end, exactly as
// basic_stream::append does.
func (s *Stream) Append(in value.Value) error {
	if in.Kind == value.KindNewline && s.size > 1 {
		if s.data[s.size-1].Kind == value.KindFuncStart {
			return nil
		}
		i := s.size - 1
	scan:
		for {
			d := s.data[i]
			switch {
			case d.Kind == value.KindNewline || d.Kind == value.KindGlue:
				return nil
			case d.Kind == value.KindString && isWhitespaceValue(d):
				// keep scanning
			case d.Kind == value.KindFuncStart || d.Kind == value.KindFuncEnd:
				// keep scanning
			default:
				break scan
			}
			if i == 0 {
				return nil
			}
			i--
		}
	}

	if in.Kind == value.KindNewline && s.size == 0 {
		return nil
	}

	if s.size >= s.max {
		return inkerrors.Bounds("output stream overflow (capacity %d)", s.max)
	}
	s.data[s.size] = in
	s.size++

	if (in.Kind == value.KindGlue || in.Kind == value.KindFuncEnd) && s.size > 1 {
		i := s.size - 2
		funcEndCount := 0
	trim:
		for {
			d := s.data[i]
			switch {
			case d.Kind == value.KindNewline:
				s.data[i] = value.Value{}
			case d.Kind == value.KindString && isWhitespaceValue(d):
				s.data[i] = value.Value{}
			case d.Kind == value.KindFuncEnd:
				funcEndCount++
			case d.Kind == value.KindFuncStart && funcEndCount > 0:
				funcEndCount--
			default:
				break trim
			}
			if i == 0 {
				break
			}
			i--
		}
	}

	return nil
}

func isWhitespaceValue(v value.Value) bool {
	s := v.Str.Static
	if v.Str.Allocated {
		// Static-string glue checks only cover constant-pool whitespace
		// literals, matching the original's reliance on compile-time glue
		// insertion; allocated (runtime-concatenated) strings are never glue.
		return false
	}
	return isWhitespace(s)
}

func isWhitespace(s string) bool {
	if s == "" {
		// I095: an empty string never breaks glue or blocks newline-trimming,
		// matching is_whitespace's immediate true on the '\0' case.
		return true
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Save records a checkpoint to roll back to (used for choice preview).
func (s *Stream) Save() error {
	if s.saved() {
		return inkerrors.Misuse("cannot save over an existing output stream save point")
	}
	s.save = s.size
	return nil
}

// Restore rewinds to the last save point.
func (s *Stream) Restore() error {
	if !s.saved() {
		return inkerrors.Misuse("no output stream save point to restore")
	}
	s.size = s.save
	s.save = npos
	return nil
}

// Forget drops the save point without rewinding.
func (s *Stream) Forget() {
	s.save = npos
}

// TextPastSave reports whether any printable, non-whitespace content has
// been appended since the save point.
func (s *Stream) TextPastSave() bool {
	for i := s.save; i < s.size; i++ {
		d := s.data[i]
		if d.Kind == value.KindString {
			if d.Str.Allocated {
				// Runtime-concatenated strings never come from pure whitespace
				// glue literals; treat them as text without needing table access.
				return true
			}
			if !isWhitespace(d.Str.Static) {
				return true
			}
		} else if d.Kind == value.KindNull {
			return true
		} else if d.Printable() {
			return true
		}
	}
	return false
}

// Queued reports how many entries are pending since the last marker.
func (s *Stream) Queued() (int, error) {
	start, err := s.findStart()
	if err != nil {
		return 0, err
	}
	return s.size - start, nil
}

// Peek returns the most recently appended value without removing it.
func (s *Stream) Peek() (value.Value, error) {
	if s.size == 0 {
		return value.None, inkerrors.Bounds("attempting to peek empty output stream")
	}
	return s.data[s.size-1], nil
}

// Discard drops the last n entries, clamped to the current size.
func (s *Stream) Discard(n int) {
	if n > s.size {
		n = s.size
	}
	s.size -= n
}

func (s *Stream) findStart() (int, error) {
	start := s.size
	for start > 0 {
		start--
		if s.data[start].Kind == value.KindMarker {
			break
		}
	}
	if s.saved() && start < s.save {
		return 0, inkerrors.Misuse("attempting to read output stream prior to save point")
	}
	return start, nil
}

// shouldSkip implements the two-flag state machine that collapses repeated
// newlines and glue-adjacent whitespace while walking the stream forward.
func shouldSkip(d value.Value, hasGlue, lastNewline *bool) bool {
	if d.Printable() && d.Kind != value.KindNewline && d.Kind != value.KindString {
		*lastNewline = false
		*hasGlue = false
		return false
	}
	switch d.Kind {
	case value.KindNewline:
		if *lastNewline || *hasGlue {
			return true
		}
		*lastNewline = true
	case value.KindGlue:
		*hasGlue = true
	case value.KindString:
		*lastNewline = false
		if !isWhitespaceValue(d) {
			*hasGlue = false
		}
	}
	return false
}

// GetLine drains everything queued since the last marker into a single
// trimmed string and resets the stream back to that marker, per
// basic_stream::get.
func (s *Stream) GetLine(strs *strtable.Table, lists *listtable.Table) (string, error) {
	start, err := s.findStart()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	hasGlue, lastNewline := false, false
	for i := start; i < s.size; i++ {
		if shouldSkip(s.data[i], &hasGlue, &lastNewline) {
			continue
		}
		if s.data[i].Printable() {
			text, err := value.Stringify(s.data[i], strs, lists)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		}
	}
	s.size = start

	result := cleanString(b.String())
	if result == "" {
		s.lastChar = 0
		return "", nil
	}
	s.lastChar = result[len(result)-1]
	if s.lastChar == ' ' {
		result = result[:len(result)-1]
	}
	return result, nil
}

// TakeString behaves like GetLine but interns the result into strs and
// returns a Value wrapping the new handle, for contexts that need the
// printed text as a first-class string value (e.g. assigning a knot's
// printed output to a variable). removeTail mirrors get_alloc<RemoveTail>.
func (s *Stream) TakeString(strs *strtable.Table, lists *listtable.Table, removeTail bool) (value.Value, error) {
	start, err := s.findStart()
	if err != nil {
		return value.None, err
	}

	var b strings.Builder
	hasGlue, lastNewline := false, false
	for i := start; i < s.size; i++ {
		if shouldSkip(s.data[i], &hasGlue, &lastNewline) {
			continue
		}
		if s.data[i].Printable() {
			text, err := value.Stringify(s.data[i], strs, lists)
			if err != nil {
				return value.None, err
			}
			b.WriteString(text)
		}
	}
	s.size = start

	result := cleanString(b.String())
	if result != "" {
		s.lastChar = result[len(result)-1]
		if removeTail && s.lastChar == ' ' {
			result = result[:len(result)-1]
		}
	} else {
		s.lastChar = 'e'
	}

	h, err := strs.Create(result)
	if err != nil {
		return value.None, inkerrors.WithStack(err)
	}
	return value.AllocatedString(h), nil
}

// cleanString collapses runs of plain spaces into a single space and strips
// leading whitespace, matching clean_string's contract (spec.md §4.2):
// "collapse internal runs of spaces to one; strip leading whitespace;
// optionally strip single trailing space" — the trailing-space decision is
// left to the caller (GetLine always strips it, TakeString via removeTail).
func cleanString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	atStart := true
	for _, r := range s {
		if atStart && unicode.IsSpace(r) {
			continue
		}
		atStart = false
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FindFirstOf returns the index of the first value of kind k at or after
// offset, or (0, false) if none.
func (s *Stream) FindFirstOf(k value.Kind, offset int) (int, bool) {
	if s.size == 0 {
		return 0, false
	}
	for i := offset; i < s.size; i++ {
		if s.data[i].Kind == k {
			return i, true
		}
	}
	return 0, false
}

// FindLastOf returns the index of the last value of kind k strictly after
// offset, scanning backward; a one-entry stream with offset 0 checks index 0
// as well.
func (s *Stream) FindLastOf(k value.Kind, offset int) (int, bool) {
	if s.size == 0 {
		return 0, false
	}
	if s.size == 1 && offset == 0 {
		if s.data[0].Kind == k {
			return 0, true
		}
		return 0, false
	}
	for i := s.size - 1; i > offset; i-- {
		if s.data[i].Kind == k {
			return i, true
		}
	}
	return 0, false
}

// EndsWith reports whether the entry just before offset (or the stream end,
// if offset is negative) has kind k.
func (s *Stream) EndsWith(k value.Kind, offset int) bool {
	if s.size == 0 {
		return false
	}
	index := s.size - 1
	if offset >= 0 {
		index = offset - 1
	}
	if index < 0 || index >= s.size {
		return false
	}
	return s.data[index].Kind == k
}

// Clear empties the stream and drops any save point.
func (s *Stream) Clear() {
	s.save = npos
	s.size = 0
}

// MarkUsed marks every allocated string and list value currently buffered as
// reachable, ahead of a GC pass on strs/lists.
func (s *Stream) MarkUsed(strs *strtable.Table, lists *listtable.Table) {
	for i := 0; i < s.size; i++ {
		switch s.data[i].Kind {
		case value.KindString:
			if s.data[i].Str.Allocated {
				strs.MarkUsed(s.data[i].Str.Handle)
			}
		case value.KindList:
			lists.MarkUsed(s.data[i].List)
		}
	}
}

// Size, LastChar, SaveMark and SetState expose the fields the snapshot
// serializer needs without reaching into the struct directly.
func (s *Stream) Size() int      { return s.size }
func (s *Stream) LastChar() byte { return s.lastChar }
func (s *Stream) SaveMark() int  { return s.save }

func (s *Stream) Entries() []value.Value { return s.data[:s.size] }

// SetState restores a previously captured size/save/lastChar/entries triple,
// used by the snapshot loader.
func (s *Stream) SetState(entries []value.Value, save int, lastChar byte) error {
	if len(entries) > s.max {
		return inkerrors.Bounds("output stream snapshot too large for capacity %d", s.max)
	}
	copy(s.data, entries)
	s.size = len(entries)
	s.save = save
	s.lastChar = lastChar
	return nil
}
