// Package peripheral defines the capability record that connects devices to
// the bus and the simulator tick loop.
package peripheral

import "github.com/tinunadno/stm32-emulator/internal/bus"

// Peripheral bundles the optional capabilities of a device. Any field may be
// nil: a device without time behavior leaves Tick unset, a device that is
// not memory-mapped leaves Read and Write unset.
//
// To add a new peripheral to the simulator:
//  1. implement the subset of capabilities your device has
//  2. fill a Peripheral value with the method values
//  3. register it with Simulator.AddPeripheral
type Peripheral struct {
	// Read handles a register load at an offset relative to the device base.
	Read bus.ReadFunc

	// Write handles a register store at an offset relative to the device base.
	Write bus.WriteFunc

	// Tick is called once per simulator step.
	Tick func()

	// Reset restores the device to its initial state.
	Reset func()
}
