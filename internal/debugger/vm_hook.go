package debugger

import (
	"fmt"

	"inkvm/internal/bytecode"
	"inkvm/internal/callstack"
)

// Hook adapts a Debugger to vm.DebugHook, translating OnInstruction/OnCall/
// OnReturn/OnError callbacks into breakpoint checks and call-stack tracking.
type Hook struct {
	debugger *Debugger
}

// NewHook wires d to receive callbacks from an executioner.
func NewHook(d *Debugger) *Hook {
	return &Hook{debugger: d}
}

// OnInstruction implements vm.DebugHook.
func (h *Hook) OnInstruction(ip int, cmd bytecode.Command) bool {
	var container bytecode.ContainerID
	if len(h.debugger.callStack) > 0 {
		container = h.debugger.callStack[len(h.debugger.callStack)-1].Container
	}
	if len(h.debugger.callStack) > 0 {
		h.debugger.callStack[len(h.debugger.callStack)-1].IP = ip
	}

	if h.debugger.State() == Terminated {
		return true
	}

	if h.debugger.hit(container, ip) {
		h.debugger.ShowLocation(container, ip, cmd)
		h.debugger.Run()
		return h.debugger.State() != Paused
	}

	switch h.debugger.State() {
	case StepInto:
		h.debugger.ShowLocation(container, ip, cmd)
		h.debugger.state = Paused
		h.debugger.Run()
		return h.debugger.State() != Paused
	case Paused:
		return false
	default:
		return true
	}
}

// OnCall implements vm.DebugHook.
func (h *Hook) OnCall(container bytecode.ContainerID, kind callstack.Kind) {
	h.debugger.callStack = append(h.debugger.callStack, Frame{Kind: kind, Container: container})
}

// OnReturn implements vm.DebugHook.
func (h *Hook) OnReturn(kind callstack.Kind) {
	if n := len(h.debugger.callStack); n > 0 {
		h.debugger.callStack = h.debugger.callStack[:n-1]
	}
}

// OnError implements vm.DebugHook.
func (h *Hook) OnError(err error) {
	fmt.Printf("error: %v\n", err)
}
