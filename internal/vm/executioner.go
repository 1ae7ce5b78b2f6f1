// Package vm implements the executioner: the bytecode dispatch loop that
// drives a loaded story forward one instruction at a time, threading the
// evaluation stack, output stream, callstack, and globals store together.
// The architecture — a flat fetch/decode/switch loop, a debug hook called
// before every instruction, and an instruction counter for runaway
// detection — follows the teacher's EnhancedVM shape; the opcode semantics
// themselves implement Ink's execution model instead.
package vm

import (
	"inkvm/internal/bytecode"
	"inkvm/internal/callstack"
	inkerrors "inkvm/internal/errors"
	"inkvm/internal/evalstack"
	"inkvm/internal/globals"
	"inkvm/internal/random"
	"inkvm/internal/storyimage"
	"inkvm/internal/stream"
	"inkvm/internal/value"
)

// DebugHook lets a host observe (and, via OnInstruction's return value, halt
// on) execution — container-id/instruction-offset breakpoints instead of
// file/line ones, since a compiled story has no source positions.
type DebugHook interface {
	// OnInstruction is called before every instruction; returning false
	// pauses execution at that offset.
	OnInstruction(ip int, cmd bytecode.Command) bool
	OnCall(container bytecode.ContainerID, kind callstack.Kind)
	OnReturn(kind callstack.Kind)
	OnError(err error)
}

// ExternalFunc is a host-bound function reachable from story content via
// CmdCallExternal. lookaheadSafe mirrors bind_delegate's flag: functions
// that aren't safe to call during choice-preview lookahead are skipped
// (returning value.None) rather than invoked twice.
type ExternalFunc struct {
	Fn            func(args []value.Value) (value.Value, error)
	LookaheadSafe bool
}

// Choice is one recorded, eligible choice point: the text gathered between
// the choice's marker and its content start, and where choosing it diverts
// execution to.
type Choice struct {
	Text        string
	Target      bytecode.ContainerID
	ThreadID    bytecode.ThreadID
	OnceOnly    bool
	SourceIP    int
	Tags        []string
}

// Yield describes why Run returned control to the caller.
type Yield uint8

const (
	YieldLine Yield = iota
	YieldChoices
	YieldEnd
	YieldBreakpoint
)

// Executioner owns every piece of mutable interpreter state for one running
// thread of a story: the instruction cursor, eval stack, output stream,
// callstack, and a reference to the globals store it shares with sibling
// runners.
type Executioner struct {
	img *storyimage.Image

	Eval    *evalstack.Stack
	Out     *stream.Stream
	Calls   *callstack.Stack
	Globals *globals.Store
	RNG     *random.Source

	code      []byte
	ip        int
	inLookahead bool
	currentContainer bytecode.ContainerID
	haveContainer    bool

	debugHook DebugHook
	externals map[bytecode.Hash]ExternalFunc

	sequenceCalls map[int]int // keyed by the sequence id operand
	pendingChoices []Choice
	currentTags    []string

	instrCount uint64
	maxSteps   uint64

	ended bool
}

// New builds an Executioner positioned at img's root container.
func New(img *storyimage.Image, glob *globals.Store, seed uint64) *Executioner {
	root, _ := img.Container(img.RootContainer)
	e := &Executioner{
		img:           img,
		Eval:          evalstack.New(evalstack.DefaultCapacity),
		Out:           stream.New(4096),
		Calls:         callstack.New(256, img.RootContainer),
		Globals:       glob,
		RNG:           random.NewSource(seed),
		code:          img.Instructions,
		ip:            int(root.EntryOffset),
		externals:     map[bytecode.Hash]ExternalFunc{},
		sequenceCalls: map[int]int{},
		maxSteps:      10_000_000,
	}
	return e
}

// SetDebugHook installs (or clears, with nil) a debug hook.
func (e *Executioner) SetDebugHook(h DebugHook) { e.debugHook = h }

// IP returns the current instruction offset, for the snapshot serializer.
func (e *Executioner) IP() int { return e.ip }

// SetIP restores a previously captured instruction offset.
func (e *Executioner) SetIP(ip int) { e.ip = ip }

// SequenceCalls exposes the per-sequence call counters for snapshotting, so
// a restored story doesn't repeat or skip sequence/shuffle/once selections.
func (e *Executioner) SequenceCalls() map[int]int { return e.sequenceCalls }

// SetSequenceCalls restores previously captured per-sequence call counters.
func (e *Executioner) SetSequenceCalls(m map[int]int) { e.sequenceCalls = m }

// SetLookahead marks whether execution is currently speculative
// choice-preview lookahead, so CmdCallExternal can skip functions that
// aren't declared lookahead-safe instead of invoking them twice.
func (e *Executioner) SetLookahead(on bool) { e.inLookahead = on }

// BindExternal registers a host function under name.
func (e *Executioner) BindExternal(name bytecode.Hash, fn ExternalFunc) {
	e.externals[name] = fn
}

// MoveTo resets the instruction pointer to the start of container and clears
// any pending choices; the callstack is left as it is. Used by runner.MoveTo
// and by Choose.
func (e *Executioner) MoveTo(container bytecode.ContainerID) error {
	c, ok := e.img.Container(container)
	if !ok {
		return inkerrors.Lookup(true, "unknown container id %d", container)
	}
	e.ip = int(c.EntryOffset)
	e.pendingChoices = nil
	return nil
}

// CanContinue reports whether there is more content to execute before the
// next yield.
func (e *Executioner) CanContinue() bool {
	return !e.ended && e.ip < len(e.code)
}

// HasChoices reports whether choices are waiting to be chosen.
func (e *Executioner) HasChoices() bool { return len(e.pendingChoices) > 0 }

// CurrentContainer reports the container execution most recently diverted
// or called into.
func (e *Executioner) CurrentContainer() (bytecode.ContainerID, bool) {
	return e.currentContainer, e.haveContainer
}

// Choices returns the currently pending choices.
func (e *Executioner) Choices() []Choice { return e.pendingChoices }

// Choose commits to pendingChoices[index], clearing the set and diverting.
func (e *Executioner) Choose(index int) error {
	if index < 0 || index >= len(e.pendingChoices) {
		return inkerrors.Bounds("choice index %d out of range [0,%d)", index, len(e.pendingChoices))
	}
	c := e.pendingChoices[index]
	e.pendingChoices = nil
	e.Globals.AdvanceTurn()
	return e.MoveTo(c.Target)
}

// Run drives execution forward until a Yield condition is reached.
func (e *Executioner) Run() (Yield, error) {
	e.currentTags = nil
	for e.CanContinue() {
		e.instrCount++
		if e.instrCount > e.maxSteps {
			return YieldEnd, inkerrors.Bounds("instruction budget exceeded (%d steps)", e.maxSteps)
		}

		c := cursor{code: e.code, ip: e.ip}
		cmd, err := c.readByte()
		if err != nil {
			return YieldEnd, err
		}

		if e.debugHook != nil && !e.debugHook.OnInstruction(e.ip, bytecode.Command(cmd)) {
			return YieldBreakpoint, nil
		}

		yield, stop, err := e.exec(bytecode.Command(cmd), &c)
		e.ip = c.ip
		if err != nil {
			if e.debugHook != nil {
				e.debugHook.OnError(err)
			}
			return YieldEnd, err
		}
		if stop {
			return yield, nil
		}
	}
	e.ended = true
	return YieldEnd, nil
}

// exec decodes and executes one instruction's operands and effect,
// returning (yield, shouldStop, error).
func (e *Executioner) exec(cmd bytecode.Command, c *cursor) (Yield, bool, error) {
	switch cmd {
	case bytecode.CmdNone:
		return 0, false, nil

	case bytecode.CmdLoadConstant:
		idx, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		v, err := e.constantToValue(idx)
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(v)

	case bytecode.CmdLoadTrue:
		return 0, false, e.Eval.Push(value.Bool(true))
	case bytecode.CmdLoadFalse:
		return 0, false, e.Eval.Push(value.Bool(false))
	case bytecode.CmdLoadVoid:
		return 0, false, e.Eval.Push(value.None)

	case bytecode.CmdAdd, bytecode.CmdSubtract, bytecode.CmdMultiply, bytecode.CmdDivide,
		bytecode.CmdMod, bytecode.CmdIsEqual, bytecode.CmdNotEqual, bytecode.CmdGreater,
		bytecode.CmdLess, bytecode.CmdGreaterOrEqual, bytecode.CmdLessOrEqual,
		bytecode.CmdAnd, bytecode.CmdOr:
		return 0, false, e.binaryOp(cmd)

	case bytecode.CmdNegate:
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		neg, err := value.Arith(value.OpSub, value.Int(0), v, e.Globals.Strings, e.Globals.Lists)
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(neg)

	case bytecode.CmdNot:
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(value.Bool(!truthy(v)))

	case bytecode.CmdListCount, bytecode.CmdListMin, bytecode.CmdListMax,
		bytecode.CmdListInvert, bytecode.CmdListAll, bytecode.CmdListRange, bytecode.CmdListRandom:
		return 0, false, e.listOp(cmd)

	case bytecode.CmdPushNewline:
		if err := e.Out.Append(value.Newline); err != nil {
			return 0, false, err
		}
		return YieldLine, true, nil
	case bytecode.CmdPushGlue:
		return 0, false, e.Out.Append(value.Glue)
	case bytecode.CmdPushFuncStart:
		return 0, false, e.Out.Append(value.FuncStart)
	case bytecode.CmdPushFuncEnd:
		return 0, false, e.Out.Append(value.FuncEnd)
	case bytecode.CmdPushMarker:
		return 0, false, e.Out.Append(value.Marker)

	case bytecode.CmdDivert:
		target, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.divert(bytecode.ContainerID(target))

	case bytecode.CmdDivertIfFalse:
		target, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		cond, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		if !truthy(cond) {
			return 0, false, e.divert(bytecode.ContainerID(target))
		}
		return 0, false, nil

	case bytecode.CmdFunctionCall:
		target, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.call(callstack.KindFunction, bytecode.ContainerID(target), c.ip)

	case bytecode.CmdTunnelCall:
		target, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.call(callstack.KindTunnel, bytecode.ContainerID(target), c.ip)

	case bytecode.CmdThreadFork:
		target, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		if _, err := e.Calls.Fork(); err != nil {
			return 0, false, err
		}
		return 0, false, e.divert(bytecode.ContainerID(target))

	case bytecode.CmdReturn:
		frame, err := e.Calls.Pop()
		if err != nil {
			return 0, false, err
		}
		if e.debugHook != nil {
			e.debugHook.OnReturn(frame.Kind)
		}
		e.ip = frame.ReturnIP
		c.ip = e.ip
		return 0, false, nil

	case bytecode.CmdEnd:
		e.ended = true
		return YieldEnd, true, nil

	case bytecode.CmdChoicePoint:
		return e.choicePoint(c)

	case bytecode.CmdSequence:
		return 0, false, e.selectSequence(c, selectKindSequence)
	case bytecode.CmdShuffle:
		return 0, false, e.selectSequence(c, selectKindShuffle)
	case bytecode.CmdOnce:
		return 0, false, e.selectSequence(c, selectKindOnce)

	case bytecode.CmdBindVariable:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		e.Calls.SetLocal(bytecode.Hash(name), v)
		return 0, false, nil

	case bytecode.CmdUnbindVariable:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		delete(e.Calls.Current().Locals, bytecode.Hash(name))
		return 0, false, nil

	case bytecode.CmdSetGlobal:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		e.Globals.Set(bytecode.Hash(name), v)
		return 0, false, nil

	case bytecode.CmdGetGlobal:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(e.Globals.Get(bytecode.Hash(name)))

	case bytecode.CmdSetLocal:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		e.Calls.SetLocal(bytecode.Hash(name), v)
		return 0, false, nil

	case bytecode.CmdGetLocal:
		name, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		v, ok := e.Calls.GetLocal(bytecode.Hash(name))
		if !ok {
			v = e.Globals.Get(bytecode.Hash(name))
		}
		return 0, false, e.Eval.Push(v)

	case bytecode.CmdAssignVarPtr:
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		if v.Kind != value.KindVariablePointer {
			return 0, false, inkerrors.Type("CmdAssignVarPtr expects a variable_pointer value, got %s", v.Kind)
		}
		var resolved value.Value
		if v.VarPtr.IsGlobal {
			resolved = e.Globals.Get(v.VarPtr.Name)
		} else {
			resolved, _ = e.Calls.GetLocal(v.VarPtr.Name)
		}
		return 0, false, e.Eval.Push(resolved)

	case bytecode.CmdVisitCount:
		container, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(value.Uint(e.Globals.VisitCount(bytecode.ContainerID(container))))

	case bytecode.CmdTurnsSinceVisit:
		container, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		turns, ok := e.Globals.TurnsSince(bytecode.ContainerID(container))
		if !ok {
			return 0, false, e.Eval.Push(value.Int(-1))
		}
		return 0, false, e.Eval.Push(value.Int(int32(turns)))

	case bytecode.CmdPop:
		_, err := e.Eval.Pop()
		return 0, false, err

	case bytecode.CmdDuplicate:
		v, err := e.Eval.Peek()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Eval.Push(v)

	case bytecode.CmdOutput:
		v, err := e.Eval.Pop()
		if err != nil {
			return 0, false, err
		}
		return 0, false, e.Out.Append(v)

	case bytecode.CmdCallExternal:
		return 0, false, e.callExternal(c)

	case bytecode.CmdTag:
		idx, err := c.readUint32()
		if err != nil {
			return 0, false, err
		}
		ct, ok := e.img.Constant(idx)
		if !ok || ct.Kind != storyimage.ConstString {
			return 0, false, inkerrors.Format("tag constant %d is not a string", idx)
		}
		e.currentTags = append(e.currentTags, ct.Str)
		return 0, false, nil

	default:
		return 0, false, inkerrors.Format("unknown opcode %d at offset %d", cmd, c.ip-1)
	}
}

// CurrentTags returns the tags attached while composing the line just
// drained, cleared at the start of every Run call.
func (e *Executioner) CurrentTags() []string { return e.currentTags }

func truthy(v value.Value) bool {
	switch v.Kind {
	case value.KindBool:
		return v.Bool
	case value.KindInt32:
		return v.Int != 0
	case value.KindUint32:
		return v.Uint != 0
	case value.KindFloat32:
		return v.Float != 0
	case value.KindNone:
		return false
	default:
		return true
	}
}

func (e *Executioner) constantToValue(idx uint32) (value.Value, error) {
	ct, ok := e.img.Constant(idx)
	if !ok {
		return value.None, inkerrors.Bounds("constant index %d out of range", idx)
	}
	switch ct.Kind {
	case storyimage.ConstInt:
		return value.Int(ct.Int), nil
	case storyimage.ConstUint:
		return value.Uint(ct.Uint), nil
	case storyimage.ConstFloat:
		return value.Float(ct.Float), nil
	case storyimage.ConstString:
		return value.StaticString(ct.Str), nil
	case storyimage.ConstDivert:
		return value.Divert(ct.Divert), nil
	default:
		return value.None, inkerrors.Format("unknown constant kind %d", ct.Kind)
	}
}

func (e *Executioner) divert(target bytecode.ContainerID) error {
	c, ok := e.img.Container(target)
	if !ok {
		return inkerrors.Lookup(true, "divert to unknown container %d", target)
	}
	if c.VisitTracked {
		e.Globals.RecordVisit(target)
	}
	if c.TurnTracked {
		e.Globals.RecordTurnVisit(target)
	}
	e.ip = int(c.EntryOffset)
	e.currentContainer, e.haveContainer = target, true
	return nil
}

func (e *Executioner) call(kind callstack.Kind, target bytecode.ContainerID, returnIP int) error {
	c, ok := e.img.Container(target)
	if !ok {
		return inkerrors.Lookup(true, "call to unknown container %d", target)
	}
	if err := e.Calls.Push(kind, target, returnIP, e.Eval.Len(), e.Out.Size()); err != nil {
		return err
	}
	if e.debugHook != nil {
		e.debugHook.OnCall(target, kind)
	}
	if c.VisitTracked {
		e.Globals.RecordVisit(target)
	}
	if c.TurnTracked {
		e.Globals.RecordTurnVisit(target)
	}
	e.ip = int(c.EntryOffset)
	e.currentContainer, e.haveContainer = target, true
	return nil
}

func (e *Executioner) callExternal(c *cursor) error {
	nameHash, err := c.readUint32()
	if err != nil {
		return err
	}
	argc, err := c.readByte()
	if err != nil {
		return err
	}
	fn, ok := e.externals[bytecode.Hash(nameHash)]
	if !ok {
		return inkerrors.Lookup(true, "unknown external function (hash %d)", nameHash)
	}
	if e.inLookahead && !fn.LookaheadSafe {
		for i := byte(0); i < argc; i++ {
			if _, err := e.Eval.Pop(); err != nil {
				return err
			}
		}
		return e.Eval.Push(value.None)
	}
	args, err := e.Eval.PopN(int(argc))
	if err != nil {
		return err
	}
	result, err := fn.Fn(args)
	if err != nil {
		return inkerrors.External(true, "external function failed: %v", err)
	}
	return e.Eval.Push(result)
}
