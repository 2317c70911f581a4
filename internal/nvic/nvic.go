// Package nvic implements the Nested Vectored Interrupt Controller with 43
// IRQ lines and 8-bit priorities (lower value = higher urgency).
package nvic

// NumIRQ is the number of external interrupt lines on the STM32F103C8T6.
const NumIRQ = 43

// noActivePriority is the current priority when no IRQ is active.
const noActivePriority = 0xFF

// NVIC tracks pending/active/enabled state and priority per IRQ line and
// selects the next interrupt to take by priority.
type NVIC struct {
	pending  [NumIRQ]bool
	active   [NumIRQ]bool
	enabled  [NumIRQ]bool
	priority [NumIRQ]uint8

	// currentPriority is the minimum priority across active IRQs,
	// or 0xFF when none is active.
	currentPriority uint8
}

// New returns a reset NVIC.
func New() *NVIC {
	n := &NVIC{}
	n.Reset()
	return n
}

// Reset clears all interrupt state and priorities.
func (n *NVIC) Reset() {
	n.pending = [NumIRQ]bool{}
	n.active = [NumIRQ]bool{}
	n.enabled = [NumIRQ]bool{}
	n.priority = [NumIRQ]uint8{}
	n.currentPriority = noActivePriority
}

// SetPending marks an IRQ line as pending.
func (n *NVIC) SetPending(irq uint32) {
	if irq < NumIRQ {
		n.pending[irq] = true
	}
}

// ClearPending clears the pending flag of an IRQ line.
func (n *NVIC) ClearPending(irq uint32) {
	if irq < NumIRQ {
		n.pending[irq] = false
	}
}

// EnableIRQ enables an IRQ line.
func (n *NVIC) EnableIRQ(irq uint32) {
	if irq < NumIRQ {
		n.enabled[irq] = true
	}
}

// DisableIRQ disables an IRQ line.
func (n *NVIC) DisableIRQ(irq uint32) {
	if irq < NumIRQ {
		n.enabled[irq] = false
	}
}

// SetPriority sets the priority of an IRQ line. Lower values preempt higher.
func (n *NVIC) SetPriority(irq uint32, prio uint8) {
	if irq < NumIRQ {
		n.priority[irq] = prio
	}
}

// Pending reports whether an IRQ line is pending.
func (n *NVIC) Pending(irq uint32) bool {
	return irq < NumIRQ && n.pending[irq]
}

// Active reports whether an IRQ line is active.
func (n *NVIC) Active(irq uint32) bool {
	return irq < NumIRQ && n.active[irq]
}

// PendingIRQ selects the pending enabled IRQ with the lowest priority value
// that can preempt the current execution priority. Ties resolve to the
// lowest IRQ index. The second result is false when nothing can preempt.
func (n *NVIC) PendingIRQ() (uint32, bool) {
	bestPrio := n.currentPriority
	bestIRQ := uint32(0)
	found := false

	for i := uint32(0); i < NumIRQ; i++ {
		if n.pending[i] && n.enabled[i] && n.priority[i] < bestPrio {
			bestPrio = n.priority[i]
			bestIRQ = i
			found = true
		}
	}
	return bestIRQ, found
}

// Acknowledge marks an IRQ as taken: pending clears, active sets, and the
// execution priority drops to the IRQ's priority.
func (n *NVIC) Acknowledge(irq uint32) {
	if irq >= NumIRQ {
		return
	}
	n.pending[irq] = false
	n.active[irq] = true
	n.currentPriority = n.priority[irq]
}

// Complete marks an IRQ handler as finished and recomputes the execution
// priority from the remaining active IRQs.
func (n *NVIC) Complete(irq uint32) {
	if irq < NumIRQ {
		n.active[irq] = false
	}

	n.currentPriority = noActivePriority
	for i := uint32(0); i < NumIRQ; i++ {
		if n.active[i] && n.priority[i] < n.currentPriority {
			n.currentPriority = n.priority[i]
		}
	}
}
