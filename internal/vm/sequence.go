package vm

import (
	"inkvm/internal/bytecode"
	"inkvm/internal/random"
)

type selectKind uint8

const (
	selectKindSequence selectKind = iota
	selectKindShuffle
	selectKindOnce
)

// selectSequence implements CmdSequence/CmdShuffle/CmdOnce: each carries a
// sequence id (so repeated visits to the same content remember how many
// times it's fired), a branch count, and that many container targets to
// divert among.
func (e *Executioner) selectSequence(c *cursor, kind selectKind) error {
	seqID, err := c.readUint32()
	if err != nil {
		return err
	}
	n, err := c.readUint32()
	if err != nil {
		return err
	}
	targets := make([]bytecode.ContainerID, n)
	for i := range targets {
		t, err := c.readUint32()
		if err != nil {
			return err
		}
		targets[i] = bytecode.ContainerID(t)
	}

	count := e.sequenceCalls[int(seqID)]
	e.sequenceCalls[int(seqID)] = count + 1

	var index int
	switch kind {
	case selectKindSequence:
		index = random.SequenceIndex(count, int(n))
	case selectKindShuffle:
		index = random.ShuffleIndex(e.RNG, count, int(n))
	case selectKindOnce:
		idx, ok := random.OnceIndex(count, int(n))
		if !ok {
			return nil
		}
		index = idx
	}

	if index < 0 || index >= len(targets) {
		return nil
	}
	return e.divert(targets[index])
}
