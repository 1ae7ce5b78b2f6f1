package vm

import (
	"inkvm/internal/bytecode"
)

const (
	choiceFlagInvisibleDefault byte = 1 << 0
	choiceFlagOnceOnly         byte = 1 << 1
)

// choicePoint implements CmdChoicePoint: pop the guard condition, and if
// true, drain the output stream text accumulated since the nearest marker
// into a Choice entry diverting to target. Choice points are meant to be
// pushed back to back by the compiler (one per weave/gather alternative),
// each preceded by its own CmdPushMarker, so consecutive choice points never
// see each other's text.
func (e *Executioner) choicePoint(c *cursor) (Yield, bool, error) {
	flags, err := c.readByte()
	if err != nil {
		return 0, false, err
	}
	target, err := c.readUint32()
	if err != nil {
		return 0, false, err
	}
	cond, err := e.Eval.Pop()
	if err != nil {
		return 0, false, err
	}
	if !truthy(cond) {
		return 0, false, nil
	}

	onceOnly := flags&choiceFlagOnceOnly != 0
	invisible := flags&choiceFlagInvisibleDefault != 0

	text, err := e.Out.GetLine(e.Globals.Strings, e.Globals.Lists)
	if err != nil {
		return 0, false, err
	}

	threadID := e.Calls.Current().ThreadID
	choice := Choice{
		Text:     text,
		Target:   bytecode.ContainerID(target),
		ThreadID: threadID,
		OnceOnly: onceOnly,
		SourceIP: c.ip,
		Tags:     append([]string(nil), e.currentTags...),
	}
	e.currentTags = nil

	if invisible {
		// An invisible/fallback choice is taken at once only when no visible
		// choice has been recorded before it in the current set; otherwise it
		// is dropped and the visible choices are offered as usual.
		if len(e.pendingChoices) == 0 {
			return 0, false, e.divert(choice.Target)
		}
		if c.ip < len(e.code) && bytecode.Command(e.code[c.ip]) == bytecode.CmdChoicePoint {
			return 0, false, nil
		}
		return YieldChoices, true, nil
	}

	e.pendingChoices = append(e.pendingChoices, choice)

	// Stop only once we've accumulated at least one real choice and the
	// next byte in the stream isn't another choice point — i.e. this is the
	// last alternative in the current weave/gather.
	if c.ip < len(e.code) && bytecode.Command(e.code[c.ip]) == bytecode.CmdChoicePoint {
		return 0, false, nil
	}
	return YieldChoices, true, nil
}
