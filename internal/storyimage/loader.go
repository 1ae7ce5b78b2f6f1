package storyimage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"

	"inkvm/internal/bytecode"
	inkerrors "inkvm/internal/errors"
)

// Stats summarizes a loaded image for host-side logging, the same ambient
// "report what we just loaded" texture the teacher applies to database
// connections and network scans.
type Stats struct {
	Containers    int
	Constants     int
	Lists         int
	InstrBytes    int
	HumanizedSize string
}

// Load reads a binary story image per §6: magic, version, container table,
// constant pool, list metadata, instruction stream. Malformed input is
// always a fatal KindFormat error — there is no partial/recoverable load.
func Load(r io.Reader) (*Image, Stats, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated image header: %v", err))
	}
	if magic != Magic {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("bad magic %q, want %q", magic, Magic))
	}

	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated version: %v", err))
	}
	if version != CurrentVersion {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("unsupported story version %d", version))
	}

	img := &Image{Version: version, ContainersByH: map[bytecode.Hash]bytecode.ContainerID{}}
	total := 4 + 4

	var rootID uint32
	if err := binary.Read(br, binary.LittleEndian, &rootID); err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated root container: %v", err))
	}
	img.RootContainer = bytecode.ContainerID(rootID)
	total += 4

	nContainers, n, err := readUvarint(br)
	if err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated container count: %v", err))
	}
	total += n
	img.Containers = make([]ContainerEntry, nContainers)
	for i := range img.Containers {
		var ce ContainerEntry
		var buf [13]byte // id(4) + entryOffset(4) + flags(1) + nameHash(4)
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated container %d: %v", i, err))
		}
		ce.ID = bytecode.ContainerID(binary.LittleEndian.Uint32(buf[0:4]))
		ce.EntryOffset = binary.LittleEndian.Uint32(buf[4:8])
		ce.VisitTracked = buf[8]&0x1 != 0
		ce.TurnTracked = buf[8]&0x2 != 0
		ce.NameHash = bytecode.Hash(binary.LittleEndian.Uint32(buf[9:13]))
		img.Containers[i] = ce
		img.ContainersByH[ce.NameHash] = ce.ID
		total += len(buf)
	}

	nConsts, n, err := readUvarint(br)
	if err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated constant count: %v", err))
	}
	total += n
	img.Constants = make([]Constant, nConsts)
	for i := range img.Constants {
		c, read, err := readConstant(br)
		if err != nil {
			return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated constant %d: %v", i, err))
		}
		img.Constants[i] = c
		total += read
	}

	nLists, n, err := readUvarint(br)
	if err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated list count: %v", err))
	}
	total += n
	img.Lists = make([]ListMeta, nLists)
	for i := range img.Lists {
		name, read, err := readCString(br)
		if err != nil {
			return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated list %d name: %v", i, err))
		}
		total += read
		begin, n, err := readUvarint(br)
		if err != nil {
			return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated list %d begin: %v", i, err))
		}
		total += n
		nFlags, n, err := readUvarint(br)
		if err != nil {
			return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated list %d flag count: %v", i, err))
		}
		total += n
		flags := make([]string, nFlags)
		for f := range flags {
			fname, read, err := readCString(br)
			if err != nil {
				return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated list %d flag %d: %v", i, f, err))
			}
			flags[f] = fname
			total += read
		}
		img.Lists[i] = ListMeta{Name: name, Begin: int(begin), FlagNames: flags}
	}

	instrLen, n, err := readUvarint(br)
	if err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated instruction length: %v", err))
	}
	total += n
	img.Instructions = make([]byte, instrLen)
	if _, err := io.ReadFull(br, img.Instructions); err != nil {
		return nil, Stats{}, inkerrors.WithStack(inkerrors.Format("truncated instruction stream: %v", err))
	}
	total += int(instrLen)

	stats := Stats{
		Containers:    len(img.Containers),
		Constants:     len(img.Constants),
		Lists:         len(img.Lists),
		InstrBytes:    len(img.Instructions),
		HumanizedSize: humanize.Bytes(uint64(total)),
	}
	return img, stats, nil
}

func readConstant(r *bufio.Reader) (Constant, int, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Constant{}, 0, err
	}
	switch ConstantKind(kindByte) {
	case ConstInt:
		var v int32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Constant{}, 0, err
		}
		return Constant{Kind: ConstInt, Int: v}, 5, nil
	case ConstUint:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Constant{}, 0, err
		}
		return Constant{Kind: ConstUint, Uint: v}, 5, nil
	case ConstFloat:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Constant{}, 0, err
		}
		return Constant{Kind: ConstFloat, Float: math.Float32frombits(v)}, 5, nil
	case ConstString:
		s, n, err := readCString(r)
		if err != nil {
			return Constant{}, 0, err
		}
		return Constant{Kind: ConstString, Str: s}, n + 1, nil
	case ConstDivert:
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return Constant{}, 0, err
		}
		return Constant{Kind: ConstDivert, Divert: bytecode.ContainerID(v)}, 5, nil
	default:
		return Constant{}, 0, fmt.Errorf("unknown constant kind %d", kindByte)
	}
}

func readCString(r *bufio.Reader) (string, int, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", 0, err
	}
	return s[:len(s)-1], len(s), nil
}

// readUvarint reads a LEB128-style unsigned varint, returning the value and
// the number of bytes consumed.
func readUvarint(r *bufio.Reader) (uint64, int, error) {
	var x uint64
	var s uint
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, i, err
		}
		if b < 0x80 {
			return x | uint64(b)<<s, i + 1, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
}
