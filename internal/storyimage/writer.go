package storyimage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Save writes img in the format Load reads. The real compiler is out of
// scope for this runtime, but tests need a way to build fixture images
// without one, so the encoder lives here too.
func Save(img *Image, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, img.Version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(img.RootContainer)); err != nil {
		return err
	}
	writeUvarint(bw, uint64(len(img.Containers)))
	for _, ce := range img.Containers {
		var buf [13]byte
		binary.LittleEndian.PutUint32(buf[0:4], uint32(ce.ID))
		binary.LittleEndian.PutUint32(buf[4:8], ce.EntryOffset)
		var flags byte
		if ce.VisitTracked {
			flags |= 0x1
		}
		if ce.TurnTracked {
			flags |= 0x2
		}
		buf[8] = flags
		binary.LittleEndian.PutUint32(buf[9:13], uint32(ce.NameHash))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}

	writeUvarint(bw, uint64(len(img.Constants)))
	for _, c := range img.Constants {
		if err := writeConstant(bw, c); err != nil {
			return err
		}
	}

	writeUvarint(bw, uint64(len(img.Lists)))
	for _, l := range img.Lists {
		writeCString(bw, l.Name)
		writeUvarint(bw, uint64(l.Begin))
		writeUvarint(bw, uint64(len(l.FlagNames)))
		for _, f := range l.FlagNames {
			writeCString(bw, f)
		}
	}

	writeUvarint(bw, uint64(len(img.Instructions)))
	if _, err := bw.Write(img.Instructions); err != nil {
		return err
	}

	return bw.Flush()
}

func writeConstant(bw *bufio.Writer, c Constant) error {
	if err := bw.WriteByte(byte(c.Kind)); err != nil {
		return err
	}
	switch c.Kind {
	case ConstInt:
		return binary.Write(bw, binary.LittleEndian, c.Int)
	case ConstUint:
		return binary.Write(bw, binary.LittleEndian, c.Uint)
	case ConstFloat:
		return binary.Write(bw, binary.LittleEndian, math.Float32bits(c.Float))
	case ConstString:
		writeCString(bw, c.Str)
		return nil
	case ConstDivert:
		return binary.Write(bw, binary.LittleEndian, uint32(c.Divert))
	default:
		return fmt.Errorf("unknown constant kind %d", c.Kind)
	}
}

func writeCString(bw *bufio.Writer, s string) {
	bw.WriteString(s)
	bw.WriteByte(0)
}

func writeUvarint(bw *bufio.Writer, x uint64) {
	for x >= 0x80 {
		bw.WriteByte(byte(x) | 0x80)
		x >>= 7
	}
	bw.WriteByte(byte(x))
}
