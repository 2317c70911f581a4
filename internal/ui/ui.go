// Package ui implements the interactive line-oriented debugger prompt.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tinunadno/stm32-emulator/internal/core"
	"github.com/tinunadno/stm32-emulator/internal/simulator"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

const (
	prompt         = "stm32> "
	defaultMemDump = 64
	maxMemDump     = 1024
)

// UI drives a simulator from a line-oriented command stream.
type UI struct {
	sim  *simulator.Simulator
	in   io.Reader
	out  io.Writer
	errW io.Writer

	quit bool
}

type command struct {
	name    string
	help    string
	handler func(u *UI, args string)
}

// The command table: adding a command is adding a row.
var commands []command

func init() {
	commands = []command{
		{"help", "Show this help message", (*UI).cmdHelp},
		{"load", "Load binary: load <path>", (*UI).cmdLoad},
		{"run", "Run until breakpoint or error", (*UI).cmdRun},
		{"stop", "Stop execution", (*UI).cmdStop},
		{"step", "Step N instructions: step [N]", (*UI).cmdStep},
		{"reset", "Reset the simulator", (*UI).cmdReset},
		{"reg", "Display registers", (*UI).cmdReg},
		{"mem", "Read memory: mem <addr> [count]", (*UI).cmdMem},
		{"break", "Set breakpoint: break [addr] (no arg lists)", (*UI).cmdBreak},
		{"delete", "Delete breakpoint: delete <addr>", (*UI).cmdDelete},
		{"uart", "Send char to UART: uart <char>", (*UI).cmdUART},
		{"quit", "Exit the simulator", (*UI).cmdQuit},
	}
}

// New returns a UI reading commands from in and printing to out/errW.
func New(sim *simulator.Simulator, in io.Reader, out, errW io.Writer) *UI {
	return &UI{
		sim:  sim,
		in:   in,
		out:  out,
		errW: errW,
	}
}

// Run reads and executes commands until quit or EOF.
func (u *UI) Run() {
	fmt.Fprintf(u.out, "STM32F103C8T6 Simulator\n")
	fmt.Fprintf(u.out, "Type 'help' for available commands\n\n")

	scanner := bufio.NewScanner(u.in)
	for !u.quit {
		fmt.Fprint(u.out, prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, args, _ := strings.Cut(line, " ")
		args = strings.TrimSpace(args)

		found := false
		for i := range commands {
			if commands[i].name == name {
				commands[i].handler(u, args)
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(u.out, "Unknown command: '%s'. Type 'help' for list.\n", name)
		}
	}

	fmt.Fprintln(u.out, "Goodbye.")
}

// parseUint32 accepts decimal or 0x-prefixed hex.
func parseUint32(s string) (uint32, error) {
	val, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(val), nil
}

func (u *UI) cmdHelp(string) {
	fmt.Fprintln(u.out, "Available commands:")
	for _, c := range commands {
		fmt.Fprintf(u.out, "  %-10s %s\n", c.name, c.help)
	}
}

func (u *UI) cmdLoad(args string) {
	if args == "" {
		fmt.Fprintln(u.out, "Usage: load <path>")
		return
	}
	if u.sim.Load(args) != status.OK {
		fmt.Fprintf(u.errW, "Failed to load '%s'\n", args)
	}
}

func (u *UI) cmdRun(string) {
	fmt.Fprintln(u.out, "Running...")
	u.sim.Run()
	state := &u.sim.Core.State
	fmt.Fprintf(u.out, "Stopped at PC=0x%08X (cycles=%d)\n",
		state.R[core.RegPC], state.Cycles)
}

func (u *UI) cmdStop(string) {
	u.sim.Halt()
	fmt.Fprintln(u.out, "Halted")
}

func (u *UI) cmdStep(args string) {
	count := uint32(1)
	if args != "" {
		if n, err := parseUint32(args); err == nil {
			count = n
		}
	}

	for i := uint32(0); i < count; i++ {
		st := u.sim.Step()
		if st != status.OK {
			if st == status.BreakpointHit {
				fmt.Fprintf(u.out, "Breakpoint at step %d\n", i+1)
			} else {
				fmt.Fprintf(u.errW, "Error at step %d: %s (PC=0x%08X)\n",
					i+1, st, u.sim.Core.State.R[core.RegPC])
			}
			break
		}
	}

	state := &u.sim.Core.State
	fmt.Fprintf(u.out, "PC=0x%08X  cycles=%d\n", state.R[core.RegPC], state.Cycles)
}

func (u *UI) cmdReset(string) {
	u.sim.Reset()
}

var regNames = [16]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "SP", "LR", "PC",
}

func (u *UI) cmdReg(string) {
	state := &u.sim.Core.State

	for i := 0; i < 16; i++ {
		fmt.Fprintf(u.out, "%-4s= 0x%08X", regNames[i], state.R[i])
		if i&3 == 3 {
			fmt.Fprintln(u.out)
		} else {
			fmt.Fprint(u.out, "  ")
		}
	}

	flag := func(mask uint32, c byte) byte {
		if state.XPSR&mask != 0 {
			return c
		}
		return '-'
	}
	fmt.Fprintf(u.out, "xPSR= 0x%08X  [%c%c%c%c]  cycles=%d\n",
		state.XPSR,
		flag(core.FlagN, 'N'), flag(core.FlagZ, 'Z'),
		flag(core.FlagC, 'C'), flag(core.FlagV, 'V'),
		state.Cycles)
}

func (u *UI) cmdMem(args string) {
	if args == "" {
		fmt.Fprintln(u.out, "Usage: mem <addr> [count]")
		return
	}

	fields := strings.Fields(args)
	addr, err := parseUint32(fields[0])
	if err != nil {
		fmt.Fprintln(u.out, "Invalid address")
		return
	}

	count := uint32(defaultMemDump)
	if len(fields) > 1 {
		if n, err := parseUint32(fields[1]); err == nil {
			count = n
		}
	}
	if count > maxMemDump {
		count = maxMemDump
	}

	for i := uint32(0); i < count; i += 16 {
		fmt.Fprintf(u.out, "0x%08X: ", addr+i)
		for j := uint32(0); j < 16 && i+j < count; j++ {
			fmt.Fprintf(u.out, "%02X ", u.sim.Bus.Read(addr+i+j, 1))
		}
		fmt.Fprint(u.out, " |")
		for j := uint32(0); j < 16 && i+j < count; j++ {
			c := byte(u.sim.Bus.Read(addr+i+j, 1))
			if c < 0x20 || c >= 0x7F {
				c = '.'
			}
			fmt.Fprintf(u.out, "%c", c)
		}
		fmt.Fprintln(u.out, "|")
	}
}

func (u *UI) cmdBreak(args string) {
	if args == "" {
		bps := u.sim.Debugger.List()
		if len(bps) == 0 {
			fmt.Fprintln(u.out, "No breakpoints set")
			return
		}
		fmt.Fprintln(u.out, "Breakpoints:")
		for i, bp := range bps {
			fmt.Fprintf(u.out, "  [%d] 0x%08X\n", i, bp)
		}
		return
	}

	addr, err := parseUint32(args)
	if err != nil {
		fmt.Fprintln(u.out, "Invalid address")
		return
	}
	if u.sim.Debugger.Add(addr) == status.OK {
		fmt.Fprintf(u.out, "Breakpoint set at 0x%08X\n", addr)
	} else {
		fmt.Fprintln(u.errW, "Breakpoint limit reached")
	}
}

func (u *UI) cmdDelete(args string) {
	if args == "" {
		fmt.Fprintln(u.out, "Usage: delete <addr>")
		return
	}

	addr, err := parseUint32(args)
	if err != nil {
		fmt.Fprintln(u.out, "Invalid address")
		return
	}
	if u.sim.Debugger.Remove(addr) == status.OK {
		fmt.Fprintf(u.out, "Breakpoint removed at 0x%08X\n", addr)
	} else {
		fmt.Fprintf(u.out, "No breakpoint at 0x%08X\n", addr)
	}
}

func (u *UI) cmdUART(args string) {
	if args == "" {
		fmt.Fprintln(u.out, "Usage: uart <char>")
		return
	}
	u.sim.UART.IncomingChar(args[0])
	fmt.Fprintf(u.out, "Sent '%c' to UART\n", args[0])
}

func (u *UI) cmdQuit(string) {
	u.quit = true
}
