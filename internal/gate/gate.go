// Package gate provides the switch that enables or disables change
// propagation. Components take a Gate explicitly and consult it at the
// entry of every operation.
package gate

import "sync/atomic"

// Gate reports whether propagation is enabled.
type Gate interface {
	Enabled() bool
}

// Static is a Gate fixed at construction.
type Static bool

// Enabled implements Gate.
func (s Static) Enabled() bool { return bool(s) }

// Switch is a Gate that can be toggled at runtime. Safe for concurrent use.
// The zero value is disabled.
type Switch struct {
	on atomic.Bool
}

// NewSwitch returns a Switch in the given state.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.on.Store(enabled)
	return s
}

// Enabled implements Gate.
func (s *Switch) Enabled() bool { return s.on.Load() }

// Enable turns propagation on.
func (s *Switch) Enable() { s.on.Store(true) }

// Disable turns propagation off.
func (s *Switch) Disable() { s.on.Store(false) }

// Set sets the state and returns the previous one.
func (s *Switch) Set(enabled bool) bool { return s.on.Swap(enabled) }
