package bytecode

// DebugInfo locates a single instruction for diagnostics and breakpoints.
// Unlike a source-level debugger, the runtime never sees the authored Ink
// text (the compiler that produced the story image is out of scope), so
// locations are expressed in terms of the compiled container and the byte
// offset of the instruction within it.
type DebugInfo struct {
	Container ContainerID
	Offset    int
}
