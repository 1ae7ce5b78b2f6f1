// Package snapshot implements byte-exact save/restore of a story's full
// runtime state — shared globals plus every attached runner's callstack,
// eval stack, output stream, and instruction pointer — per §4.8. The format
// borrows storyimage's magic+version+uvarint conventions and strtable's
// 0x03 empty-string sentinel so a snapshot round-trips through the same
// toolbelt a story image does.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"inkvm/internal/bytecode"
	"inkvm/internal/callstack"
	inkerrors "inkvm/internal/errors"
	"inkvm/internal/globals"
	"inkvm/internal/listtable"
	"inkvm/internal/runner"
	"inkvm/internal/storyimage"
	"inkvm/internal/strtable"
	"inkvm/internal/value"
)

// Magic identifies a snapshot blob, distinct from a story image's.
var Magic = [4]byte{'I', 'N', 'K', 'S'}

// CurrentVersion is the only snapshot format version this runtime writes
// and reads.
const CurrentVersion uint32 = 1

type writer struct {
	buf bytes.Buffer
}

func (w *writer) byte(b byte)     { w.buf.WriteByte(b) }
func (w *writer) bytes(b []byte)  { w.buf.Write(b) }
func (w *writer) uvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}
func (w *writer) uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}
func (w *writer) cstring(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, inkerrors.Format("snapshot truncated at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, inkerrors.Format("snapshot truncated at offset %d", r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, inkerrors.Format("malformed snapshot varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) cstring() (string, error) {
	start := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != 0 {
		r.pos++
	}
	if r.pos >= len(r.data) {
		return "", inkerrors.Format("unterminated string in snapshot at offset %d", start)
	}
	s := string(r.data[start:r.pos])
	r.pos++
	return s, nil
}

// Save serializes store plus every runner in runners into a single blob.
func Save(store *globals.Store, runners []*runner.Runner) ([]byte, error) {
	w := &writer{}
	w.bytes(Magic[:])
	w.uint32(CurrentVersion)

	w.bytes(store.Strings.SnapshotStrings())

	listSnaps := store.Lists.Snapshot()
	w.uvarint(uint64(len(listSnaps)))
	for _, ls := range listSnaps {
		w.uvarint(uint64(len(ls.Bits)))
		for _, word := range ls.Bits {
			w.uint32(uint32(word))
			w.uint32(uint32(word >> 32))
		}
		w.uvarint(uint64(len(ls.Origin)))
		for _, word := range ls.Origin {
			w.uint32(uint32(word))
			w.uint32(uint32(word >> 32))
		}
	}

	vars := store.Vars()
	w.uvarint(uint64(len(vars)))
	for name, v := range vars {
		w.uint32(uint32(name))
		if err := writeValue(w, v, store.Strings, store.Lists); err != nil {
			return nil, err
		}
	}

	visits := store.Visits()
	w.uvarint(uint64(len(visits)))
	for id, n := range visits {
		w.uint32(uint32(id))
		w.uint32(n)
	}
	turns := store.Turns()
	w.uvarint(uint64(len(turns)))
	for id, n := range turns {
		w.uint32(uint32(id))
		w.uint32(n)
	}
	w.uint32(store.TurnCount())

	w.uvarint(uint64(len(runners)))
	for _, r := range runners {
		id, err := r.ID.MarshalBinary()
		if err != nil {
			return nil, inkerrors.WithStack(err)
		}
		w.bytes(id)
		w.byte(byte(r.State()))

		exec := r.Executioner()
		w.uvarint(uint64(exec.IP()))

		calls := exec.SequenceCalls()
		w.uvarint(uint64(len(calls)))
		for seqID, count := range calls {
			w.uvarint(uint64(seqID))
			w.uvarint(uint64(count))
		}

		evalItems := exec.Eval.Save()
		w.uvarint(uint64(len(evalItems)))
		for _, v := range evalItems {
			if err := writeValue(w, v, store.Strings, store.Lists); err != nil {
				return nil, err
			}
		}

		entries := exec.Out.Entries()
		w.uvarint(uint64(len(entries)))
		for _, v := range entries {
			if err := writeValue(w, v, store.Strings, store.Lists); err != nil {
				return nil, err
			}
		}
		w.uint32(uint32(exec.Out.Size()))
		w.uvarint(uint64(int64(exec.Out.SaveMark()) + 1)) // shift npos(-1) to 0
		w.byte(exec.Out.LastChar())

		frames := exec.Calls.Frames()
		w.uvarint(uint64(len(frames)))
		w.uint32(uint32(exec.Calls.NextThreadID()))
		for _, f := range frames {
			w.byte(byte(f.Kind))
			w.uint32(uint32(f.Container))
			w.uvarint(uint64(f.ReturnIP))
			w.uvarint(uint64(f.EvalBaseline))
			w.uvarint(uint64(f.StreamBaseline))
			w.uint32(uint32(f.ThreadID))
			w.uvarint(uint64(len(f.Locals)))
			for name, v := range f.Locals {
				w.uint32(uint32(name))
				if err := writeValue(w, v, store.Strings, store.Lists); err != nil {
					return nil, err
				}
			}
		}
	}

	return w.buf.Bytes(), nil
}

func writeValue(w *writer, v value.Value, strs *strtable.Table, lists *listtable.Table) error {
	w.byte(byte(v.Kind))
	switch v.Kind {
	case value.KindBool:
		if v.Bool {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case value.KindInt32:
		w.uint32(uint32(v.Int))
	case value.KindUint32:
		w.uint32(v.Uint)
	case value.KindFloat32:
		w.uint32(math.Float32bits(v.Float))
	case value.KindDivert:
		w.uint32(uint32(v.Divert))
	case value.KindString:
		if v.Str.Allocated {
			id, ok := strs.GetID(v.Str.Handle)
			if !ok {
				return inkerrors.Format("value references a freed string handle")
			}
			w.byte(1)
			w.uvarint(uint64(id))
		} else {
			w.byte(0)
			w.cstring(v.Str.Static)
		}
	case value.KindList:
		id, ok := lists.GetID(v.List)
		if !ok {
			return inkerrors.Format("value references a freed list handle")
		}
		w.uvarint(uint64(id))
	case value.KindListFlag:
		w.uint32(uint32(uint16(v.Flag.ListID)))
		w.uint32(uint32(uint16(v.Flag.Index)))
	case value.KindVariablePointer:
		w.uint32(uint32(v.VarPtr.Name))
		if v.VarPtr.IsGlobal {
			w.byte(1)
		} else {
			w.byte(0)
		}
	}
	return nil
}

func readValue(r *reader, ordinals []strtable.Handle, listOrdinals []listtable.Handle) (value.Value, error) {
	kindByte, err := r.byte()
	if err != nil {
		return value.None, err
	}
	kind := value.Kind(kindByte)
	switch kind {
	case value.KindBool:
		b, err := r.byte()
		if err != nil {
			return value.None, err
		}
		return value.Bool(b != 0), nil
	case value.KindInt32:
		u, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		return value.Int(int32(u)), nil
	case value.KindUint32:
		u, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		return value.Uint(u), nil
	case value.KindFloat32:
		u, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		return value.Float(math.Float32frombits(u)), nil
	case value.KindDivert:
		u, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		return value.Divert(bytecode.ContainerID(u)), nil
	case value.KindString:
		allocated, err := r.byte()
		if err != nil {
			return value.None, err
		}
		if allocated != 0 {
			id, err := r.uvarint()
			if err != nil {
				return value.None, err
			}
			if int(id) >= len(ordinals) {
				return value.None, inkerrors.Format("string ordinal %d out of range", id)
			}
			return value.AllocatedString(ordinals[id]), nil
		}
		s, err := r.cstring()
		if err != nil {
			return value.None, err
		}
		return value.StaticString(s), nil
	case value.KindList:
		id, err := r.uvarint()
		if err != nil {
			return value.None, err
		}
		if int(id) >= len(listOrdinals) {
			return value.None, inkerrors.Format("list ordinal %d out of range", id)
		}
		return value.List(listOrdinals[id]), nil
	case value.KindListFlag:
		listID, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		idx, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		return value.ListFlag(listtable.Flag{ListID: int16(listID), Index: int16(idx)}), nil
	case value.KindVariablePointer:
		name, err := r.uint32()
		if err != nil {
			return value.None, err
		}
		isGlobal, err := r.byte()
		if err != nil {
			return value.None, err
		}
		return value.Variable(value.VarPointer{Name: bytecode.Hash(name), IsGlobal: isGlobal != 0}), nil
	default:
		return value.Value{Kind: kind}, nil
	}
}

// Load reconstructs a globals.Store and every runner it contained from a
// snapshot blob. img must be the same story image the snapshot was taken
// against — the format carries no self-describing schema to check that
// beyond matching container/constant indices validating during replay.
func Load(data []byte, img *storyimage.Image) (*globals.Store, []*runner.Runner, error) {
	r := &reader{data: data}
	magic, err := r.bytes(4)
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	if !bytes.Equal(magic, Magic[:]) {
		return nil, nil, inkerrors.WithStack(inkerrors.Format("bad snapshot magic %q", magic))
	}
	version, err := r.uint32()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	if version != CurrentVersion {
		return nil, nil, inkerrors.WithStack(inkerrors.Format("unsupported snapshot version %d", version))
	}

	stringsStart := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != 0 {
		for r.pos < len(r.data) && r.data[r.pos] != 0 {
			r.pos++
		}
		r.pos++
	}
	if r.pos >= len(r.data) {
		return nil, nil, inkerrors.WithStack(inkerrors.Format("unterminated string section"))
	}
	r.pos++ // consume section terminator
	strs, strOrdinals, err := strtable.LoadStrings(r.data[stringsStart:r.pos])
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}

	lists := listtable.New(img.Lists)
	nLists, err := r.uvarint()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	listOrdinals := make([]listtable.Handle, 0, nLists)
	for i := uint64(0); i < nLists; i++ {
		nBits, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		bits := make([]uint64, nBits)
		for j := range bits {
			lo, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			hi, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			bits[j] = uint64(lo) | uint64(hi)<<32
		}
		nOrigin, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		origin := make([]uint64, nOrigin)
		for j := range origin {
			lo, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			hi, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			origin[j] = uint64(lo) | uint64(hi)<<32
		}
		listOrdinals = append(listOrdinals, lists.RestoreEntry(bits, origin))
	}

	store := globals.New(img, 0)
	store.Strings = strs
	store.Lists = lists

	nVars, err := r.uvarint()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	vars := make(map[bytecode.Hash]value.Value, nVars)
	for i := uint64(0); i < nVars; i++ {
		name, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		v, err := readValue(r, strOrdinals, listOrdinals)
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		vars[bytecode.Hash(name)] = v
	}
	store.RestoreVars(vars)

	nVisits, err := r.uvarint()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	visits := make(map[bytecode.ContainerID]uint32, nVisits)
	for i := uint64(0); i < nVisits; i++ {
		id, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		n, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		visits[bytecode.ContainerID(id)] = n
	}
	nTurns, err := r.uvarint()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	turns := make(map[bytecode.ContainerID]uint32, nTurns)
	for i := uint64(0); i < nTurns; i++ {
		id, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		n, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		turns[bytecode.ContainerID(id)] = n
	}
	turnCounter, err := r.uint32()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	store.RestoreBookkeeping(visits, turns, turnCounter)

	nRunners, err := r.uvarint()
	if err != nil {
		return nil, nil, inkerrors.WithStack(err)
	}
	runners := make([]*runner.Runner, 0, nRunners)
	for i := uint64(0); i < nRunners; i++ {
		idBytes, err := r.bytes(16)
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		var id uuid.UUID
		copy(id[:], idBytes)

		stateByte, err := r.byte()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}

		ip, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}

		nSeq, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		seqCalls := make(map[int]int, nSeq)
		for j := uint64(0); j < nSeq; j++ {
			seqID, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			count, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			seqCalls[int(seqID)] = int(count)
		}

		nEval, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		evalItems := make([]value.Value, nEval)
		for j := range evalItems {
			v, err := readValue(r, strOrdinals, listOrdinals)
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			evalItems[j] = v
		}

		nOut, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		outEntries := make([]value.Value, nOut)
		for j := range outEntries {
			v, err := readValue(r, strOrdinals, listOrdinals)
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			outEntries[j] = v
		}
		if _, err := r.uint32(); err != nil { // redundant size field, already == nOut
			return nil, nil, inkerrors.WithStack(err)
		}
		saveMarkShifted, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		lastChar, err := r.byte()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}

		nFrames, err := r.uvarint()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		nextThread, err := r.uint32()
		if err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		frames := make([]callstack.Frame, nFrames)
		for j := range frames {
			kindByte, err := r.byte()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			container, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			returnIP, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			evalBaseline, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			streamBaseline, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			threadID, err := r.uint32()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			nLocals, err := r.uvarint()
			if err != nil {
				return nil, nil, inkerrors.WithStack(err)
			}
			locals := make(map[bytecode.Hash]value.Value, nLocals)
			for k := uint64(0); k < nLocals; k++ {
				name, err := r.uint32()
				if err != nil {
					return nil, nil, inkerrors.WithStack(err)
				}
				v, err := readValue(r, strOrdinals, listOrdinals)
				if err != nil {
					return nil, nil, inkerrors.WithStack(err)
				}
				locals[bytecode.Hash(name)] = v
			}
			frames[j] = callstack.Frame{
				Kind:           callstack.Kind(kindByte),
				Container:      bytecode.ContainerID(container),
				ReturnIP:       int(returnIP),
				EvalBaseline:   int(evalBaseline),
				StreamBaseline: int(streamBaseline),
				ThreadID:       bytecode.ThreadID(threadID),
				Locals:         locals,
			}
		}

		rn := runner.NewWithID(id, img, store, 0)
		rn.SetState(runner.State(stateByte))
		exec := rn.Executioner()
		exec.SetIP(int(ip))
		exec.SetSequenceCalls(seqCalls)
		exec.Eval.Restore(evalItems)
		if err := exec.Out.SetState(outEntries, int(saveMarkShifted)-1, lastChar); err != nil {
			return nil, nil, inkerrors.WithStack(err)
		}
		exec.Calls.RestoreFrames(frames, bytecode.ThreadID(nextThread))

		runners = append(runners, rn)
	}

	return store, runners, nil
}
