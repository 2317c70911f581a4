// Package main implements the main entry point for the STM32F103C8T6
// emulator.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/cli"
	"github.com/tinunadno/stm32-emulator/internal/config"
	"github.com/tinunadno/stm32-emulator/internal/gdb"
	"github.com/tinunadno/stm32-emulator/internal/simulator"
	"github.com/tinunadno/stm32-emulator/internal/status"
	"github.com/tinunadno/stm32-emulator/internal/ui"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	opts, err := cli.ParseFlags()
	if err != nil {
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			printBanner(opts.Quiet)
			usageErr.ShowUsage()
			if usageErr.ExitOK() {
				return
			}
		} else {
			logger := config.CreateLogger(opts.Debug, opts.Quiet)
			logger.Error(err.Error())
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	if !opts.Quiet {
		printBanner(opts.Quiet)
	}

	sim := simulator.New(logger)

	if opts.Firmware != "" {
		if sim.Load(opts.Firmware) != status.OK {
			logger.Error("Failed to load firmware", log.String("path", opts.Firmware))
			os.Exit(1)
		}
	}

	if opts.GDB {
		stub := gdb.New(sim, opts.GDBPort, logger)
		if err := stub.Run(); err != nil {
			logger.Fatal(err.Error())
		}
		return
	}

	ui.New(sim, os.Stdin, os.Stdout, os.Stderr).Run()
}

func printBanner(quiet bool) {
	if quiet {
		return
	}
	fmt.Println("[----------------------------------------]")
	fmt.Println("[ stm32sim - STM32F103C8T6 emulator      ]")
	fmt.Printf("[----------------------------------------]\n\n")
	fmt.Printf("version: %s\n\n", buildinfo.Version(version, commit, date))
}
