// Package storyimage reads the compiled, read-only binary story produced by
// the (out-of-scope) offline Ink compiler: the container table, constant
// pool, list metadata section, and instruction stream the VM interprets.
// The runtime never mutates an Image; it is safe to share across runners.
package storyimage

import "inkvm/internal/bytecode"

// Magic identifies an inkvm story image.
var Magic = [4]byte{'I', 'N', 'K', 'B'}

// CurrentVersion is the only format version this runtime reads.
const CurrentVersion uint32 = 1

// ContainerEntry is one row of the container table: a named knot/stitch or
// anonymous weave gather, its entry point, and its bookkeeping flags.
type ContainerEntry struct {
	ID           bytecode.ContainerID
	EntryOffset  uint32 // byte offset into Image.Instructions
	VisitTracked bool   // counts entries in Globals.Visits
	TurnTracked  bool   // records Globals.TurnCounter at last visit
	NameHash     bytecode.Hash
}

// ConstantKind discriminates the constant pool's value variants.
type ConstantKind byte

const (
	ConstInt ConstantKind = iota
	ConstUint
	ConstFloat
	ConstString
	ConstDivert
)

// Constant is one constant-pool entry. Only the field matching Kind is
// meaningful, mirroring the Value tagged-union discipline used everywhere
// else in the runtime.
type Constant struct {
	Kind   ConstantKind
	Int    int32
	Uint   uint32
	Float  float32
	Str    string
	Divert bytecode.ContainerID
}

// ListMeta describes one authored list's declared flags. Flag ids are dense
// and stable: (ListIndex, i) for i in [0, len(FlagNames)) is flag i's id,
// and Begin is the first globally-dense flag_index assigned to this list
// (see internal/listtable for how the global flag universe is built from
// this).
type ListMeta struct {
	Name      string
	Begin     int
	FlagNames []string
}

// Image is the fully loaded, read-only story. Dependency order: everything
// downstream (strtable, listtable, value, ...) is built once an Image is
// available.
type Image struct {
	Version       uint32
	Containers    []ContainerEntry
	ContainersByH map[bytecode.Hash]bytecode.ContainerID
	Constants     []Constant
	Lists         []ListMeta
	Instructions  []byte
	RootContainer bytecode.ContainerID
}

// Container looks up a container's table entry by id.
func (img *Image) Container(id bytecode.ContainerID) (ContainerEntry, bool) {
	if int(id) < 0 || int(id) >= len(img.Containers) {
		return ContainerEntry{}, false
	}
	return img.Containers[id], true
}

// ContainerByName resolves a named knot/stitch by its compiler-assigned
// name hash, used by Runner.MoveTo and by host "move to path" calls.
func (img *Image) ContainerByName(h bytecode.Hash) (bytecode.ContainerID, bool) {
	id, ok := img.ContainersByH[h]
	return id, ok
}

// Constant fetches a pooled constant, erroring via the bounds check at the
// call site rather than panicking — the instruction stream is untrusted
// input from the runtime's point of view.
func (img *Image) Constant(idx uint32) (Constant, bool) {
	if int(idx) >= len(img.Constants) {
		return Constant{}, false
	}
	return img.Constants[idx], true
}
