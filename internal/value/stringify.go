package value

import (
	"strconv"

	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
)

// Stringify renders v the way string concatenation and line output do:
// ints decimal, floats shortest round-trip with trailing zeros trimmed,
// lists comma-joined by member name, bools "true"/"false", strings
// dereferenced through strs.
//
// Open question resolved here (see DESIGN.md): the
// original inkcpp stream code stringifies a list_flag by reading the list
// payload of what it itself tags list_flag — almost certainly meant as "a
// bare flag stringifies as the singleton list containing it", since that is
// the only reading that produces a sensible flag name. We implement that
// intent directly rather than reproduce the type confusion, which a tagged
// Go union has no way to express anyway.
func Stringify(v Value, strs *strtable.Table, lists *listtable.Table) (string, error) {
	switch v.Kind {
	case KindNone, KindNull:
		return "", nil
	case KindBool:
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	case KindInt32:
		return strconv.FormatInt(int64(v.Int), 10), nil
	case KindUint32:
		return strconv.FormatUint(uint64(v.Uint), 10), nil
	case KindFloat32:
		return formatFloat(v.Float), nil
	case KindString:
		if v.Str.Allocated {
			s, ok := strs.Get(v.Str.Handle)
			if !ok {
				return "", nil
			}
			return s, nil
		}
		return v.Str.Static, nil
	case KindList:
		return lists.String(v.List), nil
	case KindListFlag:
		h := lists.Single(v.Flag)
		return lists.String(h), nil
	case KindNewline:
		return "\n", nil
	default:
		return "", nil
	}
}

// formatFloat mirrors the "shortest round-trip, trimmed trailing zeros"
// rule: strconv's 'f' format with shortest precision produces the fewest
// decimal digits that round-trip to the same float32, in plain decimal
// (never exponent form) and without a trailing ".0" for whole numbers.
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	return s
}
