// Package cli handles command line interface logic.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tinunadno/stm32-emulator/internal/options"
)

// ParseFlags parses command line flags and the optional firmware path.
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	var opts options.Program
	readOptionFlags(flags, &opts)

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, &UsageError{flags: flags, exitOK: true}
		}
		return opts, &UsageError{flags: flags, msg: err.Error()}
	}

	args := flags.Args()

	// "-gdb 4444" style invocations pass the port as a bare argument
	if opts.GDB && len(args) > 0 {
		if port, err := strconv.Atoi(args[0]); err == nil {
			opts.GDBPort = port
			args = args[1:]
		}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}
	if len(args) > 0 {
		opts.Firmware = args[0]
	}

	if opts.GDBPort <= 0 || opts.GDBPort > 65535 {
		return opts, &UsageError{
			flags: flags,
			msg:   fmt.Sprintf("invalid GDB port %d", opts.GDBPort),
		}
	}

	return opts, nil
}

// UsageError represents an error that should show usage information.
type UsageError struct {
	flags  *flag.FlagSet
	msg    string
	exitOK bool
}

func (e *UsageError) Error() string {
	return e.msg
}

// ExitOK reports whether the error came from an explicit help request.
func (e *UsageError) ExitOK() bool {
	return e.exitOK
}

// ShowUsage prints the usage banner and flag defaults.
func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: stm32sim [options] [firmware.bin]\n\n")
	e.flags.SetOutput(os.Stdout)
	e.flags.PrintDefaults()
	fmt.Println()
}

// validateArgs checks that flags do not trail the firmware path.
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("potential argument %s found after the firmware image, please pass the firmware image as last argument", arg),
			}
		}
	}
	if len(args) > 1 {
		return &UsageError{
			msg: "at most one firmware image can be given",
		}
	}
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.BoolVar(&opts.GDB, "gdb", false, "serve the GDB remote protocol instead of the interactive prompt")
	flags.IntVar(&opts.GDBPort, "port", options.DefaultGDBPort, "TCP port for the GDB server")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
