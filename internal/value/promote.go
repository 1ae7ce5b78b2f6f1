package value

import (
	"golang.org/x/exp/constraints"

	inkerrors "inkvm/internal/errors"
	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
)

// ArithOp names an opcode-level arithmetic or comparison operator. The
// executioner maps bytecode.Command to these; keeping the set here instead of
// importing bytecode avoids a dependency cycle (bytecode has no business
// knowing about value's promotion rules).
type ArithOp uint8

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNotEq
	OpGt
	OpGtEq
	OpLt
	OpLtEq
	OpAnd
	OpOr
)

// numeric is the constraint shared by every payload type Arith promotes
// across: int32, uint32, float32.
type numeric interface {
	constraints.Integer | constraints.Float
}

func arithNumeric[T numeric](op ArithOp, a, b T) (result T, isBool bool, boolResult bool) {
	switch op {
	case OpAdd:
		return a + b, false, false
	case OpSub:
		return a - b, false, false
	case OpMul:
		return a * b, false, false
	case OpDiv:
		return a / b, false, false
	case OpMod:
		return T(int64(a) % int64(b)), false, false
	case OpEq:
		return 0, true, a == b
	case OpNotEq:
		return 0, true, a != b
	case OpGt:
		return 0, true, a > b
	case OpGtEq:
		return 0, true, a >= b
	case OpLt:
		return 0, true, a < b
	case OpLtEq:
		return 0, true, a <= b
	default:
		return 0, true, false
	}
}

// Arith evaluates a binary operator over two Values, applying §3's promotion
// ladder: int and uint promote to float when mixed with a float operand;
// int/uint/float concatenate into a freshly interned string when either side
// is already a string and op is OpAdd; list/flag operands delegate to lists.
// strs is used to read allocated string operands and to allocate the result
// of a string concatenation.
func Arith(op ArithOp, a, b Value, strs *strtable.Table, lists *listtable.Table) (Value, error) {
	switch {
	case a.Kind == KindString || b.Kind == KindString:
		return arithString(op, a, b, strs, lists)
	case a.Kind == KindList || a.Kind == KindListFlag || b.Kind == KindList || b.Kind == KindListFlag:
		return arithList(op, a, b, lists)
	case a.Kind == KindFloat32 || b.Kind == KindFloat32:
		return arithFloat(op, a, b)
	case a.Kind == KindUint32 && b.Kind == KindUint32:
		r, isBool, br := arithNumeric(op, a.Uint, b.Uint)
		if isBool {
			return Bool(br), nil
		}
		return Uint(r), nil
	case a.Kind == KindInt32 && b.Kind == KindInt32:
		r, isBool, br := arithNumeric(op, a.Int, b.Int)
		if isBool {
			return Bool(br), nil
		}
		return Int(r), nil
	case a.Kind == KindInt32 && b.Kind == KindUint32:
		return arithFloat(op, a, b)
	case a.Kind == KindUint32 && b.Kind == KindInt32:
		return arithFloat(op, a, b)
	case a.Kind == KindBool && b.Kind == KindBool:
		return arithBool(op, a.Bool, b.Bool)
	default:
		return None, inkerrors.Type("cannot apply operator to %s and %s", a.Kind, b.Kind)
	}
}

func asFloat(v Value) float32 {
	switch v.Kind {
	case KindFloat32:
		return v.Float
	case KindInt32:
		return float32(v.Int)
	case KindUint32:
		return float32(v.Uint)
	default:
		return 0
	}
}

func arithFloat(op ArithOp, a, b Value) (Value, error) {
	r, isBool, br := arithNumeric(op, asFloat(a), asFloat(b))
	if isBool {
		return Bool(br), nil
	}
	return Float(r), nil
}

func arithBool(op ArithOp, a, b bool) (Value, error) {
	switch op {
	case OpAnd:
		return Bool(a && b), nil
	case OpOr:
		return Bool(a || b), nil
	case OpEq:
		return Bool(a == b), nil
	case OpNotEq:
		return Bool(a != b), nil
	default:
		return None, inkerrors.Type("operator not defined over bool")
	}
}

func arithString(op ArithOp, a, b Value, strs *strtable.Table, lists *listtable.Table) (Value, error) {
	switch op {
	case OpAdd:
		sa, err := Stringify(a, strs, lists)
		if err != nil {
			return None, err
		}
		sb, err := Stringify(b, strs, lists)
		if err != nil {
			return None, err
		}
		h, err := strs.Create(sa + sb)
		if err != nil {
			return None, inkerrors.WithStack(err)
		}
		return AllocatedString(h), nil
	case OpEq, OpNotEq:
		eq, err := stringEqual(a, b, strs, lists)
		if err != nil {
			return None, err
		}
		if op == OpNotEq {
			eq = !eq
		}
		return Bool(eq), nil
	default:
		return None, inkerrors.Type("operator not defined over string")
	}
}

func stringEqual(a, b Value, strs *strtable.Table, lists *listtable.Table) (bool, error) {
	sa, err := Stringify(a, strs, lists)
	if err != nil {
		return false, err
	}
	sb, err := Stringify(b, strs, lists)
	if err != nil {
		return false, err
	}
	return sa == sb, nil
}

func arithList(op ArithOp, a, b Value, lists *listtable.Table) (Value, error) {
	ha, needA := toListHandle(a, lists)
	hb, needB := toListHandle(b, lists)
	_ = needA
	_ = needB
	switch op {
	case OpAdd:
		if b.Kind == KindListFlag {
			return List(lists.Add(ha, b.Flag)), nil
		}
		if a.Kind == KindListFlag {
			return List(lists.Add(hb, a.Flag)), nil
		}
		return List(lists.Union(ha, hb)), nil
	case OpSub:
		if b.Kind == KindListFlag {
			return List(lists.Sub(ha, b.Flag)), nil
		}
		return List(lists.Difference(ha, hb)), nil
	case OpEq:
		return Bool(lists.Equal(ha, hb)), nil
	case OpNotEq:
		return Bool(!lists.Equal(ha, hb)), nil
	case OpGt:
		return Bool(lists.Less(hb, ha)), nil
	case OpLt:
		return Bool(lists.Less(ha, hb)), nil
	case OpGtEq:
		return Bool(!lists.Less(ha, hb)), nil
	case OpLtEq:
		return Bool(!lists.Less(hb, ha)), nil
	case OpAnd:
		i := lists.Intersect(ha, hb)
		return Bool(lists.Count(i) > 0), nil
	default:
		return None, inkerrors.Type("operator not defined over list")
	}
}

func toListHandle(v Value, lists *listtable.Table) (listtable.Handle, bool) {
	switch v.Kind {
	case KindList:
		return v.List, true
	case KindListFlag:
		return lists.Single(v.Flag), true
	default:
		return lists.Empty(), false
	}
}
