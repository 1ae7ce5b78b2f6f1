// Package runner implements the host-facing state machine described in
// §4.1: Ready/Running/AtChoice/AtEnd/Errored, wrapping an executioner with
// the public operations a host actually calls (GetLine, Choose, tags,
// external function binding). It runs no choice-preview lookahead: choice
// text is gathered in the one real pass, and the executioner's lookahead
// flag is never set.
package runner

import (
	"github.com/google/uuid"

	"inkvm/internal/bytecode"
	inkerrors "inkvm/internal/errors"
	"inkvm/internal/globals"
	"inkvm/internal/storyimage"
	"inkvm/internal/vm"
)

// State mirrors §4.1's state table.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateAtChoice
	StateAtEnd
	StateErrored
)

// Choice is the host-visible projection of vm.Choice: text plus an opaque
// index to pass back to Choose.
type Choice struct {
	Index int
	Text  string
	Tags  []string
}

// Runner drives one logical thread of story execution against a shared
// globals.Store. Multiple Runners may share a Store (inkcpp's multi-runner
// model); each owns its own Executioner and so its own callstack/eval
// stack/output stream.
type Runner struct {
	ID      uuid.UUID
	img     *storyimage.Image
	exec    *vm.Executioner
	glob    *globals.Store
	state   State
	lastErr error

	currentKnot   bytecode.ContainerID
	haveCurrentKnot bool
}

// New creates a Runner positioned at img's root container, sharing glob.
func New(img *storyimage.Image, glob *globals.Store, seed uint64) *Runner {
	return &Runner{
		ID:   uuid.New(),
		img:  img,
		exec: vm.New(img, glob, seed),
		glob: glob,
	}
}

// NewWithID creates a Runner with a caller-supplied identity, used by the
// snapshot loader to restore a runner under its original id rather than
// minting a fresh one.
func NewWithID(id uuid.UUID, img *storyimage.Image, glob *globals.Store, seed uint64) *Runner {
	r := New(img, glob, seed)
	r.ID = id
	return r
}

// SetDebugHook installs a debug hook on the underlying executioner.
func (r *Runner) SetDebugHook(h vm.DebugHook) { r.exec.SetDebugHook(h) }

// Executioner exposes the underlying executioner for the snapshot package,
// which needs to read and restore its eval stack, output stream, callstack,
// and instruction pointer directly.
func (r *Runner) Executioner() *vm.Executioner { return r.exec }

// SetState restores a runner's host-visible state machine position after a
// snapshot load.
func (r *Runner) SetState(st State) { r.state = st }

// BindExternalFunction registers a host function callable from story
// content under name.
func (r *Runner) BindExternalFunction(name string, lookaheadSafe bool, fn func(args []interface{}) (interface{}, error)) {
	r.exec.BindExternal(bytecode.HashString(name), adaptExternal(fn, lookaheadSafe, r.glob))
}

// State returns the runner's current state machine position.
func (r *Runner) State() State { return r.state }

// LastError returns the error that moved the runner into StateErrored, if
// any.
func (r *Runner) LastError() error { return r.lastErr }

// CanContinue reports whether GetLine would produce more text right now.
func (r *Runner) CanContinue() bool {
	return r.state != StateErrored && r.state != StateAtChoice && r.exec.CanContinue()
}

// MoveTo diverts execution to a named knot/stitch, per §4.1's "host can
// redirect execution" operation.
func (r *Runner) MoveTo(name string) error {
	id, ok := r.img.ContainerByName(bytecode.HashString(name))
	if !ok {
		return inkerrors.Lookup(true, "unknown knot/stitch %q", name)
	}
	if err := r.exec.MoveTo(id); err != nil {
		r.fail(err)
		return err
	}
	r.state = StateReady
	return nil
}

func (r *Runner) fail(err error) {
	r.state = StateErrored
	r.lastErr = err
}

// GetLine advances execution and returns the next line of composed text.
func (r *Runner) GetLine() (string, error) {
	if r.state == StateErrored {
		return "", r.lastErr
	}
	r.state = StateRunning
	yield, err := r.exec.Run()
	if err != nil {
		r.fail(err)
		return "", err
	}
	switch yield {
	case vm.YieldEnd:
		r.state = StateAtEnd
	case vm.YieldChoices:
		r.state = StateAtChoice
	default:
		r.state = StateReady
	}
	line, err := r.exec.Out.GetLine(r.glob.Strings, r.glob.Lists)
	if err != nil {
		r.fail(err)
		return "", err
	}
	if current, ok := r.exec.CurrentContainer(); ok {
		if !r.haveCurrentKnot || current != r.currentKnot {
			r.currentKnot = current
			r.haveCurrentKnot = true
		}
	}
	return line, nil
}

// NumChoices reports how many choices are currently pending.
func (r *Runner) NumChoices() int { return len(r.exec.Choices()) }

// GetChoice returns the i'th pending choice's host-visible projection.
func (r *Runner) GetChoice(i int) (Choice, error) {
	choices := r.exec.Choices()
	if i < 0 || i >= len(choices) {
		return Choice{}, inkerrors.Bounds("choice index %d out of range [0,%d)", i, len(choices))
	}
	return Choice{Index: i, Text: choices[i].Text, Tags: choices[i].Tags}, nil
}

// Choose commits to choice i and returns the runner to StateReady.
func (r *Runner) Choose(i int) error {
	if err := r.exec.Choose(i); err != nil {
		r.fail(err)
		return err
	}
	r.state = StateReady
	return nil
}

// NumTags returns the tag count attached to the line most recently drained.
func (r *Runner) NumTags() int { return len(r.exec.CurrentTags()) }

// GetTag returns the i'th tag attached to the line most recently drained.
func (r *Runner) GetTag(i int) (string, error) {
	tags := r.exec.CurrentTags()
	if i < 0 || i >= len(tags) {
		return "", inkerrors.Bounds("tag index %d out of range [0,%d)", i, len(tags))
	}
	return tags[i], nil
}

// GetCurrentKnot reports the container the story is currently executing
// inside, for hosts that want to react to knot transitions (grounded on
// UInkThread::GetKnotTags' get_current_knot usage).
func (r *Runner) GetCurrentKnot() (bytecode.ContainerID, bool) {
	return r.currentKnot, r.haveCurrentKnot
}
