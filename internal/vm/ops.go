package vm

import (
	"inkvm/internal/bytecode"
	inkerrors "inkvm/internal/errors"
	"inkvm/internal/listtable"
	"inkvm/internal/value"
)

var arithOps = map[bytecode.Command]value.ArithOp{
	bytecode.CmdAdd:            value.OpAdd,
	bytecode.CmdSubtract:       value.OpSub,
	bytecode.CmdMultiply:       value.OpMul,
	bytecode.CmdDivide:         value.OpDiv,
	bytecode.CmdMod:            value.OpMod,
	bytecode.CmdIsEqual:        value.OpEq,
	bytecode.CmdNotEqual:       value.OpNotEq,
	bytecode.CmdGreater:        value.OpGt,
	bytecode.CmdLess:           value.OpLt,
	bytecode.CmdGreaterOrEqual: value.OpGtEq,
	bytecode.CmdLessOrEqual:    value.OpLtEq,
	bytecode.CmdAnd:            value.OpAnd,
	bytecode.CmdOr:             value.OpOr,
}

// binaryOp pops the right then left operand (pushed in left-to-right
// evaluation order) and pushes the promoted result.
func (e *Executioner) binaryOp(cmd bytecode.Command) error {
	op, ok := arithOps[cmd]
	if !ok {
		return inkerrors.Format("opcode %d is not a binary operator", cmd)
	}
	b, err := e.Eval.Pop()
	if err != nil {
		return err
	}
	a, err := e.Eval.Pop()
	if err != nil {
		return err
	}
	result, err := value.Arith(op, a, b, e.Globals.Strings, e.Globals.Lists)
	if err != nil {
		return err
	}
	return e.Eval.Push(result)
}

func (e *Executioner) listOp(cmd bytecode.Command) error {
	lists := e.Globals.Lists
	switch cmd {
	case bytecode.CmdListCount:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		return e.Eval.Push(value.Int(int32(lists.Count(h))))

	case bytecode.CmdListMin:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		f, ok := lists.Min(h)
		if !ok {
			return e.Eval.Push(value.None)
		}
		return e.Eval.Push(value.ListFlag(f))

	case bytecode.CmdListMax:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		f, ok := lists.Max(h)
		if !ok {
			return e.Eval.Push(value.None)
		}
		return e.Eval.Push(value.ListFlag(f))

	case bytecode.CmdListInvert:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		return e.Eval.Push(value.List(lists.Invert(h)))

	case bytecode.CmdListAll:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		return e.Eval.Push(value.List(lists.All(h)))

	case bytecode.CmdListRange:
		maxV, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		minV, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		listV, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(listV)
		if err != nil {
			return err
		}
		return e.Eval.Push(value.List(lists.Range(h, int(minV.Int), int(maxV.Int))))

	case bytecode.CmdListRandom:
		v, err := e.Eval.Pop()
		if err != nil {
			return err
		}
		h, err := e.asListHandle(v)
		if err != nil {
			return err
		}
		it := lists.NewIterator(h, false)
		var flags []value.Value
		for {
			f, ok := it.Next()
			if !ok {
				break
			}
			flags = append(flags, value.ListFlag(f))
		}
		if len(flags) == 0 {
			return e.Eval.Push(value.None)
		}
		return e.Eval.Push(flags[e.RNG.Intn(len(flags))])

	default:
		return inkerrors.Format("opcode %d is not a list operator", cmd)
	}
}

func (e *Executioner) asListHandle(v value.Value) (listtable.Handle, error) {
	switch v.Kind {
	case value.KindList:
		return v.List, nil
	case value.KindListFlag:
		return e.Globals.Lists.Single(v.Flag), nil
	default:
		return 0, inkerrors.Type("expected a list or list flag value, got %s", v.Kind)
	}
}
