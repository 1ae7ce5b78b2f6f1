// Package value defines the runtime's tagged scalar Value union — the sum
// type the executioner, output stream, eval stack, and callstack all move
// around. Per §9's design note, this is deliberately a plain struct with an
// exhaustive-switch discipline rather than an interface{}/virtual-dispatch
// hierarchy: a Value's payload fields are only meaningful for its Kind, and
// every consumer is expected to switch over Kind, never type-assert.
package value

import (
	"inkvm/internal/bytecode"
	"inkvm/internal/listtable"
	"inkvm/internal/strtable"
)

// Kind discriminates a Value's active payload.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt32
	KindUint32
	KindFloat32
	KindDivert
	KindString
	KindList
	KindListFlag
	KindVariablePointer
	KindNewline
	KindGlue
	KindFuncStart
	KindFuncEnd
	KindTunnelFrame
	KindMarker
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindFloat32:
		return "float32"
	case KindDivert:
		return "divert"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindListFlag:
		return "list_flag"
	case KindVariablePointer:
		return "variable_pointer"
	case KindNewline:
		return "newline"
	case KindGlue:
		return "glue"
	case KindFuncStart:
		return "func_start"
	case KindFuncEnd:
		return "func_end"
	case KindTunnelFrame:
		return "tunnel_frame"
	case KindMarker:
		return "marker"
	case KindNull:
		return "null"
	default:
		return "?"
	}
}

// StringRef is a Value's string payload: either borrowed (static, owned by
// the story's constant pool) or allocated (interned in the runtime's
// strtable.Table and subject to mark/sweep GC).
type StringRef struct {
	Allocated bool
	Handle    strtable.Handle // valid iff Allocated
	Static    string          // valid iff !Allocated
}

// VarPointer references a named variable, either in Globals or in the
// lexical scope of the callstack frame active when the pointer was taken.
type VarPointer struct {
	Name     bytecode.Hash
	IsGlobal bool
}

// Value is the tagged union described in §3. Only the field(s) matching Kind
// are meaningful; zero-valuing the rest costs nothing a Go struct doesn't
// already pay.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int32
	Uint    uint32
	Float   float32
	Divert  bytecode.ContainerID
	Str     StringRef
	List    listtable.Handle
	Flag    listtable.Flag
	VarPtr  VarPointer
}

// None is the canonical absent value: unset variables, failed recoverable
// lookups, and the result of an unresolved divert target all collapse to
// this. It compares equal only to itself (§7: "unset is none, equal only to
// none").
var None = Value{Kind: KindNone}

// Null is the stream-control "something happened but nothing printable"
// marker distinct from None; inkcpp's text_past_save treats Null specially.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value              { return Value{Kind: KindBool, Bool: b} }
func Int(i int32) Value              { return Value{Kind: KindInt32, Int: i} }
func Uint(u uint32) Value            { return Value{Kind: KindUint32, Uint: u} }
func Float(f float32) Value          { return Value{Kind: KindFloat32, Float: f} }
func Divert(c bytecode.ContainerID) Value { return Value{Kind: KindDivert, Divert: c} }
func StaticString(s string) Value    { return Value{Kind: KindString, Str: StringRef{Static: s}} }
func AllocatedString(h strtable.Handle) Value {
	return Value{Kind: KindString, Str: StringRef{Allocated: true, Handle: h}}
}
func List(h listtable.Handle) Value           { return Value{Kind: KindList, List: h} }
func ListFlag(f listtable.Flag) Value         { return Value{Kind: KindListFlag, Flag: f} }
func Variable(v VarPointer) Value             { return Value{Kind: KindVariablePointer, VarPtr: v} }

var (
	Newline    = Value{Kind: KindNewline}
	Glue       = Value{Kind: KindGlue}
	FuncStart  = Value{Kind: KindFuncStart}
	FuncEnd    = Value{Kind: KindFuncEnd}
	Marker     = Value{Kind: KindMarker}
	TunnelFrame = Value{Kind: KindTunnelFrame}
)

// Printable reports whether a value occupies visible output space (used by
// the output stream's shouldSkip/GetLine logic). Stream-control markers
// other than newline are not printable themselves; see shouldSkip in
// internal/stream for how newline/glue interact with that.
func (v Value) Printable() bool {
	switch v.Kind {
	case KindNone, KindNull, KindGlue, KindFuncStart, KindFuncEnd, KindMarker, KindTunnelFrame:
		return false
	default:
		return true
	}
}

// IsNumeric reports whether v is one of the three numeric kinds.
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindInt32, KindUint32, KindFloat32:
		return true
	default:
		return false
	}
}
