package value

import (
	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
)

// IsEqual answers the "are these the same value" question used outside
// binary-operator evaluation (choice conditions, visit gating, switch-style
// divert comparisons). It is intentionally just a thin wrapper over Arith's
// OpEq promotion ladder so there is exactly one equality rule in the package:
// numeric kinds compare by mathematical value regardless of int/uint/float
// tag, strings compare by content regardless of allocated/static storage (so
// two different concatenation paths landing on the same text are equal), and
// lists compare structurally.
func IsEqual(a, b Value, strs *strtable.Table, lists *listtable.Table) (bool, error) {
	if a.Kind == KindNone || b.Kind == KindNone {
		return a.Kind == b.Kind, nil
	}
	r, err := Arith(OpEq, a, b, strs, lists)
	if err != nil {
		return false, err
	}
	return r.Bool, nil
}
