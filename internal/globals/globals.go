// Package globals implements the store shared across every runner attached
// to the same loaded story: global variable values, visit/turn counts, and
// variable observers, ported from inkcpp's globals_interface
// (original_source/inkcpp/include/globals.h) plus its internal_observe
// first-call semantics.
package globals

import (
	"inkvm/internal/bytecode"
	"inkvm/internal/listtable"
	"inkvm/internal/storyimage"
	"inkvm/internal/strtable"
	"inkvm/internal/value"
)

// Observer is called whenever its variable changes. hadOld is false on the
// very first call made right after Observe registers it — the "fires
// immediately with no old value" rule from globals_interface::observe.
type Observer func(name bytecode.Hash, current value.Value, old value.Value, hadOld bool)

// Store owns every global variable, the shared String and List tables, and
// the per-container visit/turn bookkeeping every runner reads through.
type Store struct {
	vars      map[bytecode.Hash]value.Value
	observers map[bytecode.Hash][]Observer

	visits map[bytecode.ContainerID]uint32
	turns  map[bytecode.ContainerID]uint32
	turnCounter uint32

	Strings *strtable.Table
	Lists   *listtable.Table
}

// New creates an empty Store sized from a loaded story image's metadata.
func New(img *storyimage.Image, stringCapacity int) *Store {
	return &Store{
		vars:      map[bytecode.Hash]value.Value{},
		observers: map[bytecode.Hash][]Observer{},
		visits:    map[bytecode.ContainerID]uint32{},
		turns:     map[bytecode.ContainerID]uint32{},
		Strings:   strtable.New(stringCapacity),
		Lists:     listtable.New(img.Lists),
	}
}

// Get returns the current value bound to name, or value.None if unset.
func (s *Store) Get(name bytecode.Hash) value.Value {
	if v, ok := s.vars[name]; ok {
		return v
	}
	return value.None
}

// Set rebinds name to v, firing every registered observer in registration
// order with the previous value.
func (s *Store) Set(name bytecode.Hash, v value.Value) {
	old, hadOld := s.vars[name]
	s.vars[name] = v
	for _, obs := range s.observers[name] {
		obs(name, v, old, hadOld)
	}
}

// Observe registers cb against name and immediately invokes it once with the
// current value and no old value, matching globals_interface::observe's
// documented "will also be called with the current value when the observe is
// bind" behavior.
func (s *Store) Observe(name bytecode.Hash, cb Observer) {
	s.observers[name] = append(s.observers[name], cb)
	cb(name, s.Get(name), value.None, false)
}

// VisitCount returns how many times container has been entered.
func (s *Store) VisitCount(container bytecode.ContainerID) uint32 {
	return s.visits[container]
}

// RecordVisit increments container's visit count.
func (s *Store) RecordVisit(container bytecode.ContainerID) {
	s.visits[container]++
}

// TurnsSince returns how many turns have elapsed since container was last
// visited, or -1 (represented here as a negative turn count is impossible,
// so ok=false) if it has never been visited.
func (s *Store) TurnsSince(container bytecode.ContainerID) (uint32, bool) {
	t, ok := s.turns[container]
	if !ok {
		return 0, false
	}
	return s.turnCounter - t, true
}

// RecordTurnVisit timestamps container with the current turn counter.
func (s *Store) RecordTurnVisit(container bytecode.ContainerID) {
	s.turns[container] = s.turnCounter
}

// AdvanceTurn bumps the global turn counter, called once per player choice.
func (s *Store) AdvanceTurn() {
	s.turnCounter++
}

// TurnCount returns the number of turns taken so far.
func (s *Store) TurnCount() uint32 {
	return s.turnCounter
}

// Vars returns a copy of every bound global variable, for snapshotting.
func (s *Store) Vars() map[bytecode.Hash]value.Value {
	cp := make(map[bytecode.Hash]value.Value, len(s.vars))
	for k, v := range s.vars {
		cp[k] = v
	}
	return cp
}

// RestoreVars replaces every global variable binding wholesale. Observers
// are not fired — a snapshot load is not a player-visible mutation.
func (s *Store) RestoreVars(vars map[bytecode.Hash]value.Value) {
	s.vars = vars
}

// Visits and Turns expose the raw bookkeeping maps for snapshotting.
func (s *Store) Visits() map[bytecode.ContainerID]uint32 { return s.visits }
func (s *Store) Turns() map[bytecode.ContainerID]uint32  { return s.turns }

// RestoreBookkeeping replaces the visit/turn maps and turn counter wholesale.
func (s *Store) RestoreBookkeeping(visits, turns map[bytecode.ContainerID]uint32, turnCounter uint32) {
	s.visits = visits
	s.turns = turns
	s.turnCounter = turnCounter
}

// GC runs a combined mark/sweep pass over the shared string and list tables.
// mark is called by the caller (typically the runner, which knows about
// every live callstack/eval-stack/output-stream root) before GC sweeps.
func (s *Store) GC(mark func(strings *strtable.Table, lists *listtable.Table)) (int, int) {
	s.Strings.ClearUsage()
	s.Lists.ClearUsage()
	for _, v := range s.vars {
		switch v.Kind {
		case value.KindString:
			if v.Str.Allocated {
				s.Strings.MarkUsed(v.Str.Handle)
			}
		case value.KindList:
			s.Lists.MarkUsed(v.List)
		}
	}
	mark(s.Strings, s.Lists)
	return s.Strings.GC(), s.Lists.GC()
}
