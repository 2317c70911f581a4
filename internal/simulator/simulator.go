// Package simulator owns every subsystem of the emulated machine and
// drives the tick-step-breakpoint cycle.
package simulator

import (
	"fmt"
	"os"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/bus"
	"github.com/tinunadno/stm32-emulator/internal/core"
	"github.com/tinunadno/stm32-emulator/internal/debugger"
	"github.com/tinunadno/stm32-emulator/internal/memory"
	"github.com/tinunadno/stm32-emulator/internal/nvic"
	"github.com/tinunadno/stm32-emulator/internal/peripheral"
	"github.com/tinunadno/stm32-emulator/internal/status"
	"github.com/tinunadno/stm32-emulator/internal/timer"
	"github.com/tinunadno/stm32-emulator/internal/uart"
)

// Peripheral placement on the STM32F103C8T6.
const (
	TIM2Base   = 0x40000000
	TIM2Size   = 0x400
	TIM2IRQ    = 28
	USART1Base = 0x40013800
	USART1Size = 0x400
	USART1IRQ  = 37
)

// MaxPeripherals bounds the tickable peripheral list.
const MaxPeripherals = 16

// Simulator is the orchestrator. Ownership is tree-shaped: the simulator
// owns every subsystem; Core→Bus/NVIC and Timer/UART→NVIC are non-owning
// back-references handed out at construction.
type Simulator struct {
	Memory   *memory.Memory
	NVIC     *nvic.NVIC
	Bus      *bus.Bus
	Core     *core.Core
	Debugger *debugger.Debugger
	Timer    *timer.Timer
	UART     *uart.UART

	peripherals []peripheral.Peripheral

	halted  bool
	running bool

	logger *log.Logger
}

// New constructs the machine: subsystems in dependency order, Flash mapped
// at its alias and canonical base, SRAM, TIM2, and USART1 on the bus, UART
// output to stdout.
func New(logger *log.Logger) *Simulator {
	sim := &Simulator{
		Memory: memory.New(logger),
		NVIC:   nvic.New(),
		Bus:    bus.New(logger),
		logger: logger,
	}

	sim.Bus.Register(0x00000000, memory.FlashSize, sim.Memory.FlashRead, sim.Memory.FlashWrite)
	sim.Bus.Register(memory.FlashBase, memory.FlashSize, sim.Memory.FlashRead, sim.Memory.FlashWrite)
	sim.Bus.Register(memory.SRAMBase, memory.SRAMSize, sim.Memory.SRAMRead, sim.Memory.SRAMWrite)

	sim.Timer = timer.New(sim.NVIC, TIM2IRQ, logger)
	sim.UART = uart.New(sim.NVIC, USART1IRQ, logger)
	sim.UART.SetOutput(func(c byte) {
		fmt.Fprintf(os.Stdout, "%c", c)
	})

	sim.AddPeripheral(sim.Timer.AsPeripheral(), TIM2Base, TIM2Size)
	sim.AddPeripheral(sim.UART.AsPeripheral(), USART1Base, USART1Size)

	sim.Core = core.New(sim.Bus, sim.NVIC, logger)
	sim.Debugger = debugger.New()

	return sim
}

// SetUARTOutput replaces the UART transmit sink. The sink must not reenter
// Step.
func (s *Simulator) SetUARTOutput(fn uart.OutputFunc) {
	s.UART.SetOutput(fn)
}

// AddPeripheral registers a device: on the bus when size is non-zero, and
// on the tick list always.
func (s *Simulator) AddPeripheral(p peripheral.Peripheral, base, size uint32) status.Status {
	if len(s.peripherals) >= MaxPeripherals {
		s.logger.Error("Peripheral limit reached")
		return status.Error
	}

	if size != 0 {
		if st := s.Bus.Register(base, size, p.Read, p.Write); st != status.OK {
			return st
		}
	}

	s.peripherals = append(s.peripherals, p)
	return status.OK
}

// Load reads a firmware image into Flash and resets the machine.
func (s *Simulator) Load(path string) status.Status {
	st := s.Memory.LoadBinary(path)
	if st == status.OK {
		s.Reset()
	}
	return st
}

// Reset resets every peripheral, the NVIC, the memory (Flash preserved),
// and the core, and clears the halt state.
func (s *Simulator) Reset() {
	for _, p := range s.peripherals {
		if p.Reset != nil {
			p.Reset()
		}
	}

	s.NVIC.Reset()
	s.Memory.Reset()
	s.Core.Reset()

	s.halted = false
	s.running = false

	s.logger.Info("Simulator reset")
}

// Step runs one cycle: tick every peripheral, retire one instruction, then
// check breakpoints. A non-OK core status halts the machine.
func (s *Simulator) Step() status.Status {
	if s.halted {
		return status.Halted
	}

	for _, p := range s.peripherals {
		if p.Tick != nil {
			p.Tick()
		}
	}

	if st := s.Core.Step(); st != status.OK {
		s.halted = true
		return st
	}

	if s.Debugger.Check(s.Core.State.R[core.RegPC]) {
		s.halted = true
		s.logger.Info("Breakpoint hit",
			log.String("pc", fmt.Sprintf("0x%08X", s.Core.State.R[core.RegPC])))
		return status.BreakpointHit
	}

	return status.OK
}

// Run loops Step until the machine halts, a breakpoint hits, or an error
// propagates.
func (s *Simulator) Run() {
	s.running = true
	s.halted = false

	for s.running && !s.halted {
		st := s.Step()
		if st == status.BreakpointHit {
			break
		}
		if st != status.OK {
			s.logger.Error("Simulation error",
				log.Stringer("status", st),
				log.String("pc", fmt.Sprintf("0x%08X", s.Core.State.R[core.RegPC])))
			break
		}
	}

	s.running = false
}

// Halt stops execution. The halt is sticky until Reset or an external
// driver clears it.
func (s *Simulator) Halt() {
	s.running = false
	s.halted = true
}

// Halted reports whether the machine is halted.
func (s *Simulator) Halted() bool {
	return s.halted
}

// ClearHalt resumes a halted machine without resetting it, as the GDB stub
// does before continue and single-step.
func (s *Simulator) ClearHalt() {
	s.halted = false
}

// SetRunning toggles the running flag for external drivers.
func (s *Simulator) SetRunning(running bool) {
	s.running = running
}
