// Package core implements the Cortex-M3 execution engine: Thumb/Thumb-2
// fetch-decode-execute, flag computation, and exception entry/exit.
package core

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/bus"
	"github.com/tinunadno/stm32-emulator/internal/nvic"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

// Register indices.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// xPSR flag bits.
const (
	FlagN = 1 << 31
	FlagZ = 1 << 30
	FlagC = 1 << 29
	FlagV = 1 << 28
	FlagT = 1 << 24 // Thumb bit, always set on Cortex-M3
)

// EXC_RETURN magic: any PC value with the top 28 bits set triggers an
// exception return.
const (
	excReturnMask      = 0xFFFFFFF0
	excReturnThreadMSP = 0xFFFFFFF9
)

func isExcReturn(value uint32) bool {
	return value&excReturnMask == excReturnMask
}

// State is the architectural register state of the core.
type State struct {
	R    [16]uint32 // r0..r12, SP, LR, PC
	XPSR uint32

	ThumbMode     bool
	Interruptible bool

	// CurrentIRQ is irq+1 while an IRQ handler executes, 0 in thread mode.
	CurrentIRQ uint32

	Cycles uint64
}

// Core borrows the bus and the NVIC; the simulator owns both.
type Core struct {
	State State

	bus    *bus.Bus
	nvic   *nvic.NVIC
	logger *log.Logger

	// pcWritten is set by handlers that update PC themselves, suppressing
	// the automatic advance for the current step.
	pcWritten bool
}

// New returns a core wired to the given bus and NVIC.
func New(b *bus.Bus, n *nvic.NVIC, logger *log.Logger) *Core {
	return &Core{
		State: State{
			ThumbMode:     true,
			Interruptible: true,
			XPSR:          FlagT,
		},
		bus:    b,
		nvic:   n,
		logger: logger,
	}
}

// Reset clears the register state and loads the initial SP and PC from the
// vector table at the Flash alias.
func (c *Core) Reset() {
	c.State = State{
		ThumbMode:     true,
		Interruptible: true,
		XPSR:          FlagT,
	}
	c.State.R[RegSP] = c.bus.Read(0x00000000, 4)
	c.State.R[RegPC] = c.bus.Read(0x00000004, 4) &^ 1
}

// Step fetches, decodes, and executes one instruction, then takes a pending
// exception if one can preempt. The PC of the next instruction is the PC
// observable after return.
func (c *Core) Step() status.Status {
	pc := c.State.R[RegPC]

	instr := uint16(c.bus.Read(pc, 2))
	c.pcWritten = false

	// Halfwords with the top five bits 11101/11110/11111 start a 32-bit
	// encoding.
	if instr&0xE000 == 0xE000 && instr&0x1800 != 0 {
		hw2 := uint16(c.bus.Read(pc+2, 2))
		if s := c.execute32(instr, hw2); s != status.OK {
			return s
		}
		if !c.pcWritten {
			c.State.R[RegPC] += 4
		}
	} else {
		handled := false
		for i := range instrTable {
			e := &instrTable[i]
			if instr&e.mask == e.pattern {
				if s := e.handler(c, instr); s != status.OK {
					return s
				}
				handled = true
				break
			}
		}
		if !handled {
			c.logger.Error("Unknown instruction",
				log.String("instr", fmt.Sprintf("0x%04X", instr)),
				log.String("pc", fmt.Sprintf("0x%08X", pc)))
			return status.InvalidInstruction
		}
		if !c.pcWritten {
			c.State.R[RegPC] += 2
		}
	}

	c.State.Cycles++

	if c.State.Interruptible {
		if irq, ok := c.nvic.PendingIRQ(); ok {
			c.enterException(irq)
		}
	}

	return status.OK
}

// enterException stacks the exception frame and vectors to the handler.
// Frame layout from low to high address: R0, R1, R2, R3, R12, LR, PC, xPSR.
func (c *Core) enterException(irq uint32) {
	c.State.R[RegSP] -= 32
	frame := c.State.R[RegSP]
	c.bus.Write(frame+0, c.State.R[0], 4)
	c.bus.Write(frame+4, c.State.R[1], 4)
	c.bus.Write(frame+8, c.State.R[2], 4)
	c.bus.Write(frame+12, c.State.R[3], 4)
	c.bus.Write(frame+16, c.State.R[12], 4)
	c.bus.Write(frame+20, c.State.R[RegLR], 4)
	c.bus.Write(frame+24, c.State.R[RegPC], 4)
	c.bus.Write(frame+28, c.State.XPSR, 4)

	c.State.R[RegLR] = excReturnThreadMSP

	// IRQ n vectors through table entry 16+n.
	handler := c.bus.Read((16+irq)*4, 4)
	c.State.R[RegPC] = handler &^ 1

	c.nvic.Acknowledge(irq)
	c.State.CurrentIRQ = irq + 1
}

// exitException unstacks the exception frame and completes the IRQ.
func (c *Core) exitException() {
	frame := c.State.R[RegSP]
	c.State.R[0] = c.bus.Read(frame+0, 4)
	c.State.R[1] = c.bus.Read(frame+4, 4)
	c.State.R[2] = c.bus.Read(frame+8, 4)
	c.State.R[3] = c.bus.Read(frame+12, 4)
	c.State.R[12] = c.bus.Read(frame+16, 4)
	c.State.R[RegLR] = c.bus.Read(frame+20, 4)
	c.State.R[RegPC] = c.bus.Read(frame+24, 4)
	c.State.XPSR = c.bus.Read(frame+28, 4)
	c.State.R[RegSP] += 32

	if c.State.CurrentIRQ > 0 {
		c.nvic.Complete(c.State.CurrentIRQ - 1)
	}
	c.State.CurrentIRQ = 0
}

// Flag helpers.

func (c *Core) updateNZ(result uint32) {
	c.State.XPSR &^= FlagN | FlagZ
	if result == 0 {
		c.State.XPSR |= FlagZ
	}
	if result&0x80000000 != 0 {
		c.State.XPSR |= FlagN
	}
}

func (c *Core) setFlag(flag uint32, cond bool) {
	if cond {
		c.State.XPSR |= flag
	} else {
		c.State.XPSR &^= flag
	}
}

func (c *Core) updateFlagsAdd(a, b, result uint32) {
	c.updateNZ(result)
	c.setFlag(FlagC, uint64(a)+uint64(b) > 0xFFFFFFFF)
	c.setFlag(FlagV, (^(a^b)&(a^result))>>31 != 0)
}

func (c *Core) updateFlagsSub(a, b, result uint32) {
	c.updateNZ(result)
	c.setFlag(FlagC, a >= b) // no borrow
	c.setFlag(FlagV, ((a^b)&(a^result))>>31 != 0)
}

func (c *Core) carry() uint32 {
	if c.State.XPSR&FlagC != 0 {
		return 1
	}
	return 0
}

// conditionPassed evaluates the 4-bit condition field against N/Z/C/V.
func (c *Core) conditionPassed(cond uint8) bool {
	n := c.State.XPSR&FlagN != 0
	z := c.State.XPSR&FlagZ != 0
	cf := c.State.XPSR&FlagC != 0
	v := c.State.XPSR&FlagV != 0

	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS/HS
		return cf
	case 0x3: // CC/LO
		return !cf
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return cf && !z
	case 0x9: // LS
		return !cf || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	default: // NV
		return false
	}
}

func signExtend(value uint32, bits int) int32 {
	mask := uint32(1) << (bits - 1)
	return int32((value ^ mask) - mask)
}
