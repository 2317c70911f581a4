// Package status defines the unified result kind returned by every fallible
// operation of the emulator.
package status

// Status is returned by all emulator operations that can fail.
// There is no out-of-band failure signaling inside the machine.
type Status int

const (
	OK Status = iota
	Error
	InvalidAddress
	InvalidInstruction
	BreakpointHit
	Halted
)

var names = map[Status]string{
	OK:                 "ok",
	Error:              "error",
	InvalidAddress:     "invalid address",
	InvalidInstruction: "invalid instruction",
	BreakpointHit:      "breakpoint hit",
	Halted:             "halted",
}

func (s Status) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return "unknown"
}
