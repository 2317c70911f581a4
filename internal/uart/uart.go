// Package uart models USART1: callback-driven transmit and a fixed-size
// receive FIFO, with TXE/RXNE interrupt generation.
package uart

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/nvic"
	"github.com/tinunadno/stm32-emulator/internal/peripheral"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

// Register offsets from the peripheral base.
const (
	SROffset  = 0x00
	DROffset  = 0x04
	BRROffset = 0x08
	CR1Offset = 0x0C
)

// SR bits.
const (
	SRTXE  = 1 << 7 // transmit data register empty
	SRTC   = 1 << 6 // transmission complete
	SRRXNE = 1 << 5 // read data register not empty
)

// CR1 bits.
const (
	CR1UE     = 1 << 13 // USART enable
	CR1TXEIE  = 1 << 7  // TXE interrupt enable
	CR1TCIE   = 1 << 6  // TC interrupt enable
	CR1RXNEIE = 1 << 5  // RXNE interrupt enable
	CR1TE     = 1 << 3  // transmitter enable
	CR1RE     = 1 << 2  // receiver enable
)

// RXBufferSize is the capacity of the receive FIFO.
const RXBufferSize = 16

// OutputFunc receives each transmitted byte. It must not reenter the
// simulator step loop.
type OutputFunc func(c byte)

// UART is the USART1 model. The NVIC reference is non-owning.
type UART struct {
	sr  uint32
	dr  uint32
	brr uint32
	cr1 uint32

	txPending bool
	txChar    byte

	rxBuffer [RXBufferSize]byte
	rxHead   int
	rxTail   int
	rxCount  int

	output OutputFunc

	nvic   *nvic.NVIC
	irq    uint32
	logger *log.Logger
}

// New returns a UART wired to the given NVIC line. The transmitter reports
// ready from reset.
func New(n *nvic.NVIC, irq uint32, logger *log.Logger) *UART {
	return &UART{
		sr:     SRTXE | SRTC,
		nvic:   n,
		irq:    irq,
		logger: logger,
	}
}

// SetOutput replaces the transmit sink.
func (u *UART) SetOutput(fn OutputFunc) {
	u.output = fn
}

// AsPeripheral exposes the UART's bus and lifecycle capabilities.
func (u *UART) AsPeripheral() peripheral.Peripheral {
	return peripheral.Peripheral{
		Read:  u.Read,
		Write: u.Write,
		Tick:  u.Tick,
		Reset: u.Reset,
	}
}

// Reset restores the register file and drains the FIFO, keeping the NVIC
// wiring and output sink.
func (u *UART) Reset() {
	u.sr = SRTXE | SRTC
	u.dr = 0
	u.brr = 0
	u.cr1 = 0
	u.txPending = false
	u.txChar = 0
	u.rxBuffer = [RXBufferSize]byte{}
	u.rxHead = 0
	u.rxTail = 0
	u.rxCount = 0
}

// Read returns the register at the given offset. Reading DR dequeues one
// byte from the receive FIFO and clears RXNE once the FIFO drains.
func (u *UART) Read(offset uint32, _ uint8) uint32 {
	switch offset {
	case SROffset:
		return u.sr

	case DROffset:
		var data byte
		if u.rxCount > 0 {
			data = u.rxBuffer[u.rxTail]
			u.rxTail = (u.rxTail + 1) % RXBufferSize
			u.rxCount--
			if u.rxCount == 0 {
				u.sr &^= SRRXNE
			}
		}
		return uint32(data)

	case BRROffset:
		return u.brr

	case CR1Offset:
		return u.cr1

	default:
		u.logger.Warn("UART: read from unknown offset",
			log.String("offset", fmt.Sprintf("0x%02X", offset)))
		return 0
	}
}

// Write stores to the register at the given offset. SR follows
// write-zero-to-clear; a DR write latches the transmit byte when the
// USART is enabled.
func (u *UART) Write(offset uint32, value uint32, _ uint8) status.Status {
	switch offset {
	case SROffset:
		u.sr &= value

	case DROffset:
		if u.cr1&CR1UE != 0 {
			u.txChar = byte(value)
			u.txPending = true
			u.sr &^= SRTXE | SRTC
		}

	case BRROffset:
		u.brr = value

	case CR1Offset:
		u.cr1 = value

	default:
		u.logger.Warn("UART: write to unknown offset",
			log.String("offset", fmt.Sprintf("0x%02X", offset)))
		return status.Error
	}
	return status.OK
}

// IncomingChar enqueues one received byte. On FIFO overflow the byte is
// dropped with a warning.
func (u *UART) IncomingChar(c byte) {
	if u.rxCount >= RXBufferSize {
		u.logger.Warn("UART: RX buffer overflow, character dropped")
		return
	}

	u.rxBuffer[u.rxHead] = c
	u.rxHead = (u.rxHead + 1) % RXBufferSize
	u.rxCount++
	u.sr |= SRRXNE

	if u.cr1&CR1RXNEIE != 0 && u.cr1&CR1UE != 0 {
		u.nvic.SetPending(u.irq)
	}
}

// Tick completes a pending transmission: the latched byte goes to the
// output sink and the transmitter reports ready again.
func (u *UART) Tick() {
	if !u.txPending {
		return
	}
	u.txPending = false

	if u.output != nil {
		u.output(u.txChar)
	}

	u.sr |= SRTXE | SRTC

	if u.cr1&CR1TXEIE != 0 && u.cr1&CR1UE != 0 {
		u.nvic.SetPending(u.irq)
	}
}
