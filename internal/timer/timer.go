// Package timer models the TIM2 general-purpose timer: a prescaled
// auto-reload counter whose overflow raises the update interrupt.
package timer

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/nvic"
	"github.com/tinunadno/stm32-emulator/internal/peripheral"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

// Register offsets from the peripheral base.
const (
	CR1Offset  = 0x00
	DIEROffset = 0x0C
	SROffset   = 0x10
	CNTOffset  = 0x24
	PSCOffset  = 0x28
	ARROffset  = 0x2C
)

// Register bits.
const (
	CR1CEN  = 1 << 0 // counter enable
	SRUIF   = 1 << 0 // update interrupt flag
	DIERUIE = 1 << 0 // update interrupt enable
)

const defaultARR = 0xFFFFFFFF

// Timer is the TIM2 model. The NVIC reference is non-owning.
type Timer struct {
	cr1  uint32
	dier uint32
	sr   uint32
	cnt  uint32
	psc  uint32
	arr  uint32

	prescalerCounter uint32

	nvic   *nvic.NVIC
	irq    uint32
	logger *log.Logger
}

// New returns a timer wired to the given NVIC line.
func New(n *nvic.NVIC, irq uint32, logger *log.Logger) *Timer {
	return &Timer{
		arr:    defaultARR,
		nvic:   n,
		irq:    irq,
		logger: logger,
	}
}

// AsPeripheral exposes the timer's bus and lifecycle capabilities.
func (t *Timer) AsPeripheral() peripheral.Peripheral {
	return peripheral.Peripheral{
		Read:  t.Read,
		Write: t.Write,
		Tick:  t.Tick,
		Reset: t.Reset,
	}
}

// Reset restores the register file, keeping the NVIC wiring.
func (t *Timer) Reset() {
	t.cr1 = 0
	t.dier = 0
	t.sr = 0
	t.cnt = 0
	t.psc = 0
	t.arr = defaultARR
	t.prescalerCounter = 0
}

// Read returns the register at the given offset.
func (t *Timer) Read(offset uint32, _ uint8) uint32 {
	switch offset {
	case CR1Offset:
		return t.cr1
	case DIEROffset:
		return t.dier
	case SROffset:
		return t.sr
	case CNTOffset:
		return t.cnt
	case PSCOffset:
		return t.psc
	case ARROffset:
		return t.arr
	default:
		t.logger.Warn("Timer: read from unknown offset",
			log.String("offset", fmt.Sprintf("0x%02X", offset)))
		return 0
	}
}

// Write stores to the register at the given offset. SR follows the STM32
// write-zero-to-clear convention.
func (t *Timer) Write(offset uint32, value uint32, _ uint8) status.Status {
	switch offset {
	case CR1Offset:
		t.cr1 = value
	case DIEROffset:
		t.dier = value
	case SROffset:
		t.sr &= value
	case CNTOffset:
		t.cnt = value
	case PSCOffset:
		t.psc = value
	case ARROffset:
		t.arr = value
	default:
		t.logger.Warn("Timer: write to unknown offset",
			log.String("offset", fmt.Sprintf("0x%02X", offset)))
		return status.Error
	}
	return status.OK
}

// Tick advances the timer by one input clock. While CR1.CEN is clear this
// is a no-op. Every PSC+1 ticks the counter increments; reaching ARR resets
// the counter, sets SR.UIF, and pends the IRQ when DIER.UIE is set.
func (t *Timer) Tick() {
	if t.cr1&CR1CEN == 0 {
		return
	}

	t.prescalerCounter++
	if t.prescalerCounter <= t.psc {
		return
	}
	t.prescalerCounter = 0

	t.cnt++

	if t.cnt >= t.arr && t.arr > 0 {
		t.cnt = 0
		t.sr |= SRUIF

		if t.dier&DIERUIE != 0 {
			t.nvic.SetPending(t.irq)
		}
	}
}
