// Package adminstate holds the Supervisor's AdminState machine
// (spec.md §3, §4.7): a small monotonic state shared, read-mostly,
// across the registration handler, the shutdown driver, and the
// startup driver.
package adminstate

import "sync/atomic"

// State is one of the four AdminState values.
type State int32

const (
	Unregistered State = iota
	Registered
	ShuttingDown
	ShutDown
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "Unregistered"
	case Registered:
		return "Registered"
	case ShuttingDown:
		return "ShuttingDown"
	case ShutDown:
		return "ShutDown"
	default:
		return "Unknown"
	}
}

// Machine is an atomically-updated AdminState. Transitions are
// monotonic: CAS only ever succeeds moving to a numerically greater
// state, per the ordering Unregistered < Registered < ShuttingDown <
// ShutDown spec.md §3 defines.
type Machine struct {
	v atomic.Int32
}

// New returns a Machine starting at Unregistered.
func New() *Machine {
	return &Machine{}
}

// Get returns the current state.
func (m *Machine) Get() State { return State(m.v.Load()) }

// CAS attempts to move from `from` to `to`, succeeding only if the
// current state is exactly `from` and `to` is a later state. This is
// the primitive spec.md §5 refers to as the AdminState CAS deciding
// the race between a concurrent registerDevice and a shutdown.
func (m *Machine) CAS(from, to State) bool {
	if to <= from {
		return false
	}
	return m.v.CompareAndSwap(int32(from), int32(to))
}

// ForceTo unconditionally sets the state, used only by abort() to
// jump straight to ShutDown (spec.md §4.7).
func (m *Machine) ForceTo(to State) { m.v.Store(int32(to)) }

// IsAtLeast reports whether the current state is s or later.
func (m *Machine) IsAtLeast(s State) bool { return m.Get() >= s }

// IsShuttingDownOrDown reports whether inbound registration calls
// should be ignored per spec.md §4.4 step 1.
func (m *Machine) IsShuttingDownOrDown() bool {
	s := m.Get()
	return s == ShuttingDown || s == ShutDown
}
