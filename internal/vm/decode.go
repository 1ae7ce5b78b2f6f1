package vm

import (
	"encoding/binary"

	inkerrors "inkvm/internal/errors"
)

// cursor walks a story's instruction stream, decoding one opcode and its
// operands at a time. Operands are LEB128 uvarints, the same encoding
// storyimage uses for its own variable-length fields.
type cursor struct {
	code []byte
	ip   int
}

func (c *cursor) atEnd() bool { return c.ip >= len(c.code) }

func (c *cursor) readByte() (byte, error) {
	if c.ip >= len(c.code) {
		return 0, inkerrors.Format("instruction stream truncated at offset %d", c.ip)
	}
	b := c.code[c.ip]
	c.ip++
	return b, nil
}

func (c *cursor) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(c.code[c.ip:])
	if n <= 0 {
		return 0, inkerrors.Format("malformed operand at offset %d", c.ip)
	}
	c.ip += n
	return v, nil
}

func (c *cursor) readUint32() (uint32, error) {
	v, err := c.readUvarint()
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
