// Command emculator runs a Thumb/Thumb-2 firmware image against the
// emulated microcontroller, wiring its UART peripheral to the controlling
// terminal.
package main

import (
	"fmt"
	"os"

	"github.com/pborman/getopt/v2"

	"github.com/aykevl/emculator/hardware/machine"
	"github.com/aykevl/emculator/internal/terminal"
	"github.com/aykevl/emculator/logger"
)

const (
	defaultImageSize = 256 * 1024
	defaultPageSize  = 1024
	defaultRAMSize   = 32 * 1024
)

func main() {
	verbosity := getopt.CounterLong("verbose", 'v', "increase log verbosity, may be repeated")
	getopt.SetParameters("image")
	getopt.Parse()

	args := getopt.Args()
	if len(args) != 1 {
		getopt.Usage()
		os.Exit(2)
	}

	if err := run(args[0], *verbosity); err != nil {
		fmt.Fprintln(os.Stderr, "emculator:", err)
		os.Exit(1)
	}
}

func run(path string, verbosity int) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	term, err := terminal.New(os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("preparing terminal: %w", err)
	}
	if err := term.Enable(); err != nil {
		return fmt.Errorf("enabling raw mode: %w", err)
	}
	defer term.CleanUp()

	m, err := machine.Create(machine.Config{
		Image:     image,
		ImageSize: defaultImageSize,
		PageSize:  defaultPageSize,
		RAMSize:   defaultRAMSize,
		Variant:   machine.CortexM4,
		Console:   term,
		LogLevel:  logLevelFromVerbosity(verbosity),
	})
	if err != nil {
		return fmt.Errorf("creating machine: %w", err)
	}
	defer m.Free()

	if err := m.Reset(); err != nil {
		return fmt.Errorf("resetting machine: %w", err)
	}

	status := m.Run()
	term.CleanUp()

	w := os.Stderr
	logger.Write(w)

	if status != machine.StatusExit {
		return fmt.Errorf("machine stopped: %s", status)
	}
	return nil
}

func logLevelFromVerbosity(v int) machine.LogLevel {
	switch {
	case v >= 4:
		return machine.LogInstrs
	case v == 3:
		return machine.LogCallsSP
	case v == 2:
		return machine.LogCalls
	case v == 1:
		return machine.LogWarn
	default:
		return machine.LogError
	}
}
