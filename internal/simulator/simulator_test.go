package simulator

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/core"
	"github.com/tinunadno/stm32-emulator/internal/peripheral"
	"github.com/tinunadno/stm32-emulator/internal/status"
	"github.com/tinunadno/stm32-emulator/internal/timer"
	"github.com/tinunadno/stm32-emulator/internal/uart"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	return New(log.NewTestLogger(t))
}

func flashWrite16(sim *Simulator, offset uint32, v uint16) {
	sim.Memory.WriteFlash(offset, []byte{byte(v), byte(v >> 8)})
}

func flashWrite32(sim *Simulator, offset uint32, v uint32) {
	sim.Memory.WriteFlash(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// loadVectors installs SP, the reset handler, and code at flash offset 0x80.
func loadVectors(sim *Simulator, code ...uint16) {
	flashWrite32(sim, 0x00, 0x20004FF0)
	flashWrite32(sim, 0x04, 0x08000081)
	for i, instr := range code {
		flashWrite16(sim, 0x80+uint32(i)*2, instr)
	}
	sim.Reset()
}

func TestTimerIRQHandlerIntegration(t *testing.T) {
	sim := newTestSimulator(t)

	loadVectors(sim,
		0x2400, // MOV R4, #0
		0xE7FE, // B .
	)
	// TIM2 handler at 0xC0, vector entry 16+28
	flashWrite32(sim, (16+TIM2IRQ)*4, 0x080000C1)
	flashWrite16(sim, 0xC0, 0x2401) // MOV R4, #1
	flashWrite16(sim, 0xC2, 0x4770) // BX LR
	sim.Reset()

	assert.Equal(t, uint32(0x20004FF0), sim.Core.State.R[core.RegSP])
	assert.Equal(t, uint32(0x08000080), sim.Core.State.R[core.RegPC])

	// firmware-style setup through the bus
	sim.Bus.Write(TIM2Base+timer.ARROffset, 5, 4)
	sim.Bus.Write(TIM2Base+timer.PSCOffset, 0, 4)
	sim.Bus.Write(TIM2Base+timer.DIEROffset, 1, 4)
	sim.Bus.Write(TIM2Base+timer.CR1Offset, 1, 4)
	sim.NVIC.EnableIRQ(TIM2IRQ)

	// steps 1..4: MOV R4 then spinning, timer still counting
	for i := 0; i < 4; i++ {
		assert.Equal(t, status.OK, sim.Step())
	}
	assert.Equal(t, uint32(0), sim.Core.State.R[4])

	// step 5: the timer overflows before the core retires, so the step
	// ends inside the exception entry
	assert.Equal(t, status.OK, sim.Step())
	assert.Equal(t, uint32(0x080000C0), sim.Core.State.R[core.RegPC])
	assert.True(t, sim.Core.State.CurrentIRQ > 0)
	assert.Equal(t, uint32(0), sim.Core.State.R[4])

	// step 6: handler body
	assert.Equal(t, status.OK, sim.Step())
	assert.Equal(t, uint32(1), sim.Core.State.R[4])

	// step 7: BX LR returns to the spin loop
	assert.Equal(t, status.OK, sim.Step())
	assert.Equal(t, uint32(0x08000082), sim.Core.State.R[core.RegPC])
	assert.Equal(t, uint32(0), sim.Core.State.CurrentIRQ)
	assert.Equal(t, uint32(1), sim.Core.State.R[4])

	// UIF stays set until the firmware clears it
	assert.Equal(t, uint32(timer.SRUIF), sim.Timer.Read(timer.SROffset, 4)&timer.SRUIF)
	assert.True(t, sim.Core.State.Cycles >= 7)
}

func TestBreakpointHaltsRun(t *testing.T) {
	sim := newTestSimulator(t)

	loadVectors(sim,
		0x2000, // MOV R0, #0
		0x3001, // ADD R0, #1
		0x3001, // ADD R0, #1
		0x3001, // ADD R0, #1
		0xE7FE, // B .
	)

	assert.Equal(t, status.OK, sim.Debugger.Add(0x08000086))
	sim.Run()

	assert.Equal(t, uint32(0x08000086), sim.Core.State.R[core.RegPC])
	assert.Equal(t, uint32(2), sim.Core.State.R[0])
	assert.True(t, sim.Halted())
}

func TestUARTOutputDuringStep(t *testing.T) {
	sim := newTestSimulator(t)

	var sent []byte
	sim.SetUARTOutput(func(c byte) {
		sent = append(sent, c)
	})

	loadVectors(sim, 0xE7FE) // B .

	sim.Bus.Write(USART1Base+uart.CR1Offset, uart.CR1UE|uart.CR1TE, 4)
	sim.Bus.Write(USART1Base+uart.DROffset, 'Q', 4)

	assert.Equal(t, status.OK, sim.Step())

	assert.Equal(t, []byte{'Q'}, sent)
}

func TestCmpBeqScenario(t *testing.T) {
	sim := newTestSimulator(t)

	loadVectors(sim,
		0x200A, // MOV R0, #10
		0x210A, // MOV R1, #10
		0x4288, // CMP R0, R1
		0xD000, // BEQ (skip MOV R2)
		0x22FF, // MOV R2, #0xFF
		0x2301, // MOV R3, #1
		0xE7FE, // B .
	)

	for i := 0; i < 5; i++ {
		assert.Equal(t, status.OK, sim.Step())
	}
	assert.Equal(t, uint32(0), sim.Core.State.R[2])
	assert.Equal(t, uint32(1), sim.Core.State.R[3])
	assert.True(t, sim.Core.State.XPSR&core.FlagZ != 0)
}

func TestStepWhileHalted(t *testing.T) {
	sim := newTestSimulator(t)
	loadVectors(sim, 0xE7FE)

	sim.Halt()
	assert.Equal(t, status.Halted, sim.Step())
}

func TestInvalidInstructionHalts(t *testing.T) {
	sim := newTestSimulator(t)
	loadVectors(sim, 0xB800) // unassigned encoding

	assert.Equal(t, status.InvalidInstruction, sim.Step())
	assert.True(t, sim.Halted())
	assert.Equal(t, status.Halted, sim.Step())
}

func TestResetClearsHaltAndState(t *testing.T) {
	sim := newTestSimulator(t)
	loadVectors(sim,
		0x2001, // MOV R0, #1
		0xE7FE,
	)

	assert.Equal(t, status.OK, sim.Step())
	assert.Equal(t, uint32(1), sim.Core.State.R[0])
	sim.Halt()

	sim.Reset()
	assert.False(t, sim.Halted())
	assert.Equal(t, uint32(0), sim.Core.State.R[0])
	assert.Equal(t, uint32(0x08000080), sim.Core.State.R[core.RegPC])
}

// runTrace executes the machine deterministically and returns the final
// core state plus the UART output.
func runTrace(t *testing.T, steps int, incoming map[int]byte) (core.State, []byte) {
	t.Helper()
	sim := newTestSimulator(t)

	var sent []byte
	sim.SetUARTOutput(func(c byte) {
		sent = append(sent, c)
	})

	// echo firmware: poll SR.RXNE, read DR, write it back to DR
	loadVectors(sim,
		0x4904, // LDR R1, [PC, #16]  -> USART1 base
		0x680A, // LDR R2, [R1, #0]   -> SR
		0x2420, // MOV R4, #0x20      -> RXNE mask
		0x4022, // AND R2, R4
		0xD0FB, // BEQ poll loop
		0x684B, // LDR R3, [R1, #4]   -> DR read
		0x604B, // STR R3, [R1, #4]   -> DR write (echo)
		0xE7F8, // B poll loop
	)
	flashWrite32(sim, 0x94, USART1Base)
	sim.Reset()

	sim.Bus.Write(USART1Base+uart.CR1Offset, uart.CR1UE|uart.CR1TE|uart.CR1RE, 4)

	for i := 0; i < steps; i++ {
		if c, ok := incoming[i]; ok {
			sim.UART.IncomingChar(c)
		}
		if sim.Step() != status.OK {
			break
		}
	}

	return sim.Core.State, sent
}

func TestDeterministicExecution(t *testing.T) {
	incoming := map[int]byte{10: 'a', 50: 'b', 90: 'c'}

	state1, out1 := runTrace(t, 400, incoming)
	state2, out2 := runTrace(t, 400, incoming)

	assert.Equal(t, state1, state2)
	assert.Equal(t, out1, out2)
	assert.Equal(t, []byte{'a', 'b', 'c'}, out1)
}

func tickOnly() peripheral.Peripheral {
	return peripheral.Peripheral{Tick: func() {}}
}

func recordingPeripheral(order *[]int, id int) peripheral.Peripheral {
	return peripheral.Peripheral{Tick: func() {
		*order = append(*order, id)
	}}
}

func TestAddPeripheralLimit(t *testing.T) {
	sim := newTestSimulator(t)

	// TIM2 and USART1 occupy two slots already
	for i := len(sim.peripherals); i < MaxPeripherals; i++ {
		assert.Equal(t, status.OK, sim.AddPeripheral(tickOnly(), 0, 0))
	}
	assert.Equal(t, status.Error, sim.AddPeripheral(tickOnly(), 0, 0))
}

func TestTickOrderFollowsRegistration(t *testing.T) {
	sim := newTestSimulator(t)
	loadVectors(sim, 0xE7FE)

	var order []int
	sim.AddPeripheral(recordingPeripheral(&order, 1), 0, 0)
	sim.AddPeripheral(recordingPeripheral(&order, 2), 0, 0)

	assert.Equal(t, status.OK, sim.Step())
	assert.Equal(t, []int{1, 2}, order)
}
