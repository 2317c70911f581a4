package core

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/bus"
	"github.com/tinunadno/stm32-emulator/internal/memory"
	"github.com/tinunadno/stm32-emulator/internal/nvic"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

// testMachine wires a core to real memory and a real NVIC, as the
// simulator does.
type testMachine struct {
	mem  *memory.Memory
	nvic *nvic.NVIC
	bus  *bus.Bus
	core *Core
}

func newTestMachine(t *testing.T) *testMachine {
	t.Helper()
	logger := log.NewTestLogger(t)

	m := &testMachine{
		mem:  memory.New(logger),
		nvic: nvic.New(),
		bus:  bus.New(logger),
	}
	m.bus.Register(0x00000000, memory.FlashSize, m.mem.FlashRead, m.mem.FlashWrite)
	m.bus.Register(memory.FlashBase, memory.FlashSize, m.mem.FlashRead, m.mem.FlashWrite)
	m.bus.Register(memory.SRAMBase, memory.SRAMSize, m.mem.SRAMRead, m.mem.SRAMWrite)

	m.core = New(m.bus, m.nvic, logger)
	return m
}

func (m *testMachine) flashWrite16(offset uint32, v uint16) {
	m.mem.WriteFlash(offset, []byte{byte(v), byte(v >> 8)})
}

func (m *testMachine) flashWrite32(offset uint32, v uint32) {
	m.mem.WriteFlash(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// loadCode writes a minimal vector table and the given instructions at the
// code offset, then resets the core.
func (m *testMachine) loadCode(codeOffset uint32, instrs ...uint16) {
	m.flashWrite32(0, 0x20005000)
	m.flashWrite32(4, memory.FlashBase+codeOffset+1)

	for i, instr := range instrs {
		m.flashWrite16(codeOffset+uint32(i)*2, instr)
	}

	m.core.Reset()
}

func (m *testMachine) steps(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		assert.Equal(t, status.OK, m.core.Step())
	}
}

func TestResetLoadsVectorTable(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80, 0xE7FE)

	assert.Equal(t, uint32(0x20005000), m.core.State.R[RegSP])
	assert.Equal(t, uint32(0x08000080), m.core.State.R[RegPC])
	assert.True(t, m.core.State.ThumbMode)
	assert.True(t, m.core.State.Interruptible)
}

func TestMovImm(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0x2042, // MOV R0, #0x42
		0x21FF, // MOV R1, #0xFF
		0xE7FE, // B .
	)

	m.steps(t, 1)
	assert.Equal(t, uint32(0x42), m.core.State.R[0])

	m.steps(t, 1)
	assert.Equal(t, uint32(0xFF), m.core.State.R[1])
}

func TestAddSubFlags(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0x2064, // MOV R0, #100
		0x2132, // MOV R1, #50
		0x1842, // ADD R2, R0, R1
		0x1A83, // SUB R3, R0, R2 -> 100-150
		0xE7FE, // B .
	)

	m.steps(t, 3)
	assert.Equal(t, uint32(150), m.core.State.R[2])

	m.steps(t, 1)
	assert.Equal(t, uint32(0xFFFFFFCE), m.core.State.R[3]) // -50
	assert.True(t, m.core.State.XPSR&FlagN != 0)
	assert.True(t, m.core.State.XPSR&FlagC == 0) // borrow occurred
}

func TestCmpBeqTaken(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0x200A, // MOV R0, #10
		0x210A, // MOV R1, #10
		0x4288, // CMP R0, R1
		0xD000, // BEQ +0 (skip next instruction)
		0x22FF, // MOV R2, #0xFF (skipped)
		0x2301, // MOV R3, #1
		0xE7FE, // B .
	)

	m.steps(t, 3)
	assert.True(t, m.core.State.XPSR&FlagZ != 0)

	m.steps(t, 2) // BEQ (taken) + MOV R3
	assert.Equal(t, uint32(1), m.core.State.R[3])
	assert.Equal(t, uint32(0), m.core.State.R[2])
}

func TestCmpBneNotTaken(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0x200A, // MOV R0, #10
		0x210A, // MOV R1, #10
		0x4288, // CMP R0, R1
		0xD101, // BNE +2 (not taken: Z=1)
		0x22AA, // MOV R2, #0xAA (executes)
		0xE7FE, // B .
	)

	m.steps(t, 5)
	assert.Equal(t, uint32(0xAA), m.core.State.R[2])
}

func TestPushPop(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0x2001, // MOV R0, #1
		0x2102, // MOV R1, #2
		0x2203, // MOV R2, #3
		0xB407, // PUSH {R0,R1,R2}
		0x2000, // MOV R0, #0
		0x2100, // MOV R1, #0
		0x2200, // MOV R2, #0
		0xBC07, // POP {R0,R1,R2}
		0xE7FE, // B .
	)

	m.steps(t, 3)
	spBefore := m.core.State.R[RegSP]

	m.steps(t, 1) // PUSH
	assert.Equal(t, spBefore-12, m.core.State.R[RegSP])

	m.steps(t, 3) // clear
	assert.Equal(t, uint32(0), m.core.State.R[0])

	m.steps(t, 1) // POP
	assert.Equal(t, uint32(1), m.core.State.R[0])
	assert.Equal(t, uint32(2), m.core.State.R[1])
	assert.Equal(t, uint32(3), m.core.State.R[2])
	assert.Equal(t, spBefore, m.core.State.R[RegSP])
}

func TestBLThenBXLR(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0xF000, // BL +8 (hw1)
		0xF804, // BL +8 (hw2)
		0x22BB, // MOV R2, #0xBB (return point, 0x84)
		0xE7FE, // B . (0x86)
	)
	// subroutine at 0x8C
	m.flashWrite16(0x8C, 0x20AA) // MOV R0, #0xAA
	m.flashWrite16(0x8E, 0x4770) // BX LR

	m.steps(t, 1) // BL
	assert.Equal(t, uint32(0x0800008C), m.core.State.R[RegPC])
	assert.Equal(t, uint32(0x08000085), m.core.State.R[RegLR])

	m.steps(t, 1) // MOV R0, #0xAA
	assert.Equal(t, uint32(0xAA), m.core.State.R[0])

	m.steps(t, 1) // BX LR
	assert.Equal(t, uint32(0x08000084), m.core.State.R[RegPC])

	m.steps(t, 1) // MOV R2, #0xBB
	assert.Equal(t, uint32(0xBB), m.core.State.R[2])
}

func TestBW(t *testing.T) {
	m := newTestMachine(t)
	// B.W +8: same offset fields as BL with bit 14 of the second
	// halfword clear
	m.loadCode(0x80,
		0xF000, // B.W hw1
		0xB804, // B.W hw2 (J1=1, J2=1, imm11=4)
		0xE7FE, // (skipped)
	)
	m.flashWrite16(0x8C, 0x2001) // MOV R0, #1

	lrBefore := m.core.State.R[RegLR]
	m.steps(t, 1)
	assert.Equal(t, uint32(0x0800008C), m.core.State.R[RegPC])
	assert.Equal(t, lrBefore, m.core.State.R[RegLR]) // no link

	m.steps(t, 1)
	assert.Equal(t, uint32(1), m.core.State.R[0])
}

func TestSvcIsNoOp(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0xDF2A, // SVC #42
		0x2001, // MOV R0, #1
		0xE7FE, // B .
	)

	m.steps(t, 2)
	assert.Equal(t, uint32(1), m.core.State.R[0])
	assert.Equal(t, uint32(0x08000084), m.core.State.R[RegPC])
}

func TestUnknown32BitEncoding(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0xF3BF, // DSB-style barrier encoding, not implemented
		0x8F4F,
	)

	assert.Equal(t, status.InvalidInstruction, m.core.Step())
}

func TestUdfWideIsNoOp(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0xF7F0, // UDF.W #0 (hw1)
		0xA000, // UDF.W #0 (hw2)
		0x2001, // MOV R0, #1
		0xE7FE, // B .
	)

	m.steps(t, 1)
	assert.Equal(t, uint32(0x08000084), m.core.State.R[RegPC])

	m.steps(t, 1)
	assert.Equal(t, uint32(1), m.core.State.R[0])
}

func TestCycleCounter(t *testing.T) {
	m := newTestMachine(t)
	m.loadCode(0x80,
		0xBF00, // NOP
		0xBF00, // NOP
		0xBF00, // NOP
		0xE7FE, // B .
	)

	assert.Equal(t, uint64(0), m.core.State.Cycles)
	for i := uint64(1); i <= 3; i++ {
		m.steps(t, 1)
		assert.Equal(t, i, m.core.State.Cycles)
	}
}

func TestExceptionEntryExitRoundtrip(t *testing.T) {
	m := newTestMachine(t)

	const irq = 5
	m.loadCode(0x80,
		0x2400, // MOV R4, #0
		0xE7FE, // B .
	)
	// handler at 0xC0: MOV R4, #1; BX LR
	m.flashWrite32((16+irq)*4, 0x080000C1)
	m.flashWrite16(0xC0, 0x2401)
	m.flashWrite16(0xC2, 0x4770)

	m.nvic.EnableIRQ(irq)

	m.steps(t, 1) // MOV R4, #0
	savedRegs := m.core.State.R
	savedXPSR := m.core.State.XPSR

	m.nvic.SetPending(irq)
	m.steps(t, 1) // B . retires, then the exception is entered

	assert.Equal(t, uint32(0x080000C0), m.core.State.R[RegPC])
	assert.Equal(t, savedRegs[RegSP]-32, m.core.State.R[RegSP])
	assert.Equal(t, uint32(irq+1), m.core.State.CurrentIRQ)
	assert.Equal(t, uint32(0xFFFFFFF9), m.core.State.R[RegLR])

	// the stacked frame holds R0-R3, R12, LR, next PC, xPSR
	frame := m.core.State.R[RegSP]
	assert.Equal(t, savedRegs[0], m.bus.Read(frame, 4))
	assert.Equal(t, savedRegs[1], m.bus.Read(frame+4, 4))
	assert.Equal(t, savedRegs[2], m.bus.Read(frame+8, 4))
	assert.Equal(t, savedRegs[3], m.bus.Read(frame+12, 4))
	assert.Equal(t, savedRegs[12], m.bus.Read(frame+16, 4))
	assert.Equal(t, savedRegs[RegLR], m.bus.Read(frame+20, 4))
	assert.Equal(t, uint32(0x08000082), m.bus.Read(frame+24, 4))
	assert.Equal(t, savedXPSR, m.bus.Read(frame+28, 4))

	m.steps(t, 1) // MOV R4, #1
	assert.Equal(t, uint32(1), m.core.State.R[4])

	m.steps(t, 1) // BX LR (EXC_RETURN)
	assert.Equal(t, uint32(0x08000082), m.core.State.R[RegPC])
	assert.Equal(t, savedRegs[RegSP], m.core.State.R[RegSP])
	assert.Equal(t, savedRegs[RegLR], m.core.State.R[RegLR])
	assert.Equal(t, uint32(0), m.core.State.CurrentIRQ)
	assert.False(t, m.nvic.Active(irq))
}

func TestExceptionExitViaPop(t *testing.T) {
	m := newTestMachine(t)

	const irq = 3
	m.loadCode(0x80,
		0xBF00, // NOP
		0xE7FE, // B .
	)
	// handler: PUSH {LR}; MOV R4, #1; POP {PC}
	m.flashWrite32((16+irq)*4, 0x080000C1)
	m.flashWrite16(0xC0, 0xB500) // PUSH {LR}
	m.flashWrite16(0xC2, 0x2401) // MOV R4, #1
	m.flashWrite16(0xC4, 0xBD00) // POP {PC}

	m.nvic.EnableIRQ(irq)
	m.nvic.SetPending(irq)

	m.steps(t, 1) // NOP retires, exception entered
	assert.Equal(t, uint32(0x080000C0), m.core.State.R[RegPC])

	m.steps(t, 3) // PUSH, MOV, POP {PC} -> exception return
	assert.Equal(t, uint32(1), m.core.State.R[4])
	assert.Equal(t, uint32(0x08000082), m.core.State.R[RegPC])
	assert.Equal(t, uint32(0), m.core.State.CurrentIRQ)
}

func TestHigherPriorityPreempts(t *testing.T) {
	m := newTestMachine(t)

	m.loadCode(0x80,
		0xBF00, // NOP
		0xE7FE, // B .
	)
	// low-priority handler at 0xC0 loops forever
	m.flashWrite32((16+10)*4, 0x080000C1)
	m.flashWrite16(0xC0, 0xE7FE)
	// high-priority handler at 0xD0
	m.flashWrite32((16+2)*4, 0x080000D1)
	m.flashWrite16(0xD0, 0x2501) // MOV R5, #1
	m.flashWrite16(0xD2, 0x4770) // BX LR

	m.nvic.EnableIRQ(10)
	m.nvic.SetPriority(10, 8)
	m.nvic.EnableIRQ(2)
	m.nvic.SetPriority(2, 1)

	m.nvic.SetPending(10)
	m.steps(t, 1)
	assert.Equal(t, uint32(0x080000C0), m.core.State.R[RegPC])
	assert.Equal(t, uint32(11), m.core.State.CurrentIRQ)

	// a higher-priority request preempts the running handler
	m.nvic.SetPending(2)
	m.steps(t, 1)
	assert.Equal(t, uint32(0x080000D0), m.core.State.R[RegPC])
	assert.Equal(t, uint32(3), m.core.State.CurrentIRQ)

	m.steps(t, 2) // MOV R5, BX LR back into the low-priority handler
	assert.Equal(t, uint32(1), m.core.State.R[5])
	assert.Equal(t, uint32(0x080000C0), m.core.State.R[RegPC])
	// the low-priority handler is still active in the NVIC
	assert.True(t, m.nvic.Active(10))
	assert.False(t, m.nvic.Active(2))
}

func TestUnknownInstruction(t *testing.T) {
	m := newTestMachine(t)
	// 0xB800 is in the miscellaneous space without an assigned handler
	m.loadCode(0x80, 0xB800)

	assert.Equal(t, status.InvalidInstruction, m.core.Step())
}
