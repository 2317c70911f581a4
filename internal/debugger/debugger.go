// Package debugger maintains the breakpoint table checked after every
// retired instruction.
package debugger

import "github.com/tinunadno/stm32-emulator/internal/status"

// MaxBreakpoints bounds the breakpoint table.
const MaxBreakpoints = 64

// Debugger holds breakpoint addresses as an unordered list without
// duplicates.
type Debugger struct {
	breakpoints []uint32
}

// New returns an empty debugger.
func New() *Debugger {
	return &Debugger{
		breakpoints: make([]uint32, 0, MaxBreakpoints),
	}
}

// Add sets a breakpoint. Adding an existing address is a no-op; a full
// table returns Error.
func (d *Debugger) Add(addr uint32) status.Status {
	for _, bp := range d.breakpoints {
		if bp == addr {
			return status.OK
		}
	}
	if len(d.breakpoints) >= MaxBreakpoints {
		return status.Error
	}
	d.breakpoints = append(d.breakpoints, addr)
	return status.OK
}

// Remove deletes a breakpoint, compacting the list. Returns Error when the
// address is not set.
func (d *Debugger) Remove(addr uint32) status.Status {
	for i, bp := range d.breakpoints {
		if bp == addr {
			d.breakpoints = append(d.breakpoints[:i], d.breakpoints[i+1:]...)
			return status.OK
		}
	}
	return status.Error
}

// Check reports whether pc matches a breakpoint.
func (d *Debugger) Check(pc uint32) bool {
	for _, bp := range d.breakpoints {
		if bp == pc {
			return true
		}
	}
	return false
}

// List returns the current breakpoint addresses. No ordering is guaranteed
// across Remove calls.
func (d *Debugger) List() []uint32 {
	out := make([]uint32, len(d.breakpoints))
	copy(out, d.breakpoints)
	return out
}
