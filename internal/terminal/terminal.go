// Package terminal puts the controlling POSIX terminal into raw mode for
// the duration of a run, and restores it on CleanUp. It is the console the
// emulated UART peripheral reads and writes through.
//
// Adapted from the colorterm/easyterm wrapper around
// "github.com/pkg/term/termios".
package terminal

import (
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/term/termios"
)

// ctrlX is the byte value (Ctrl-X) that Quit reports as a termination
// request. GetChar passes it through like any other byte, and nothing in this
// package stops reading input or terminates on it.
const ctrlX = 24

// Terminal wraps the input/output files used by the emulated UART and
// switches them into raw (unbuffered, unechoed) mode.
type Terminal struct {
	input  *os.File
	output *os.File

	canAttr syscall.Termios
	rawAttr syscall.Termios

	enabled bool

	// pending holds bytes GetChar returns ahead of any new read. The '\r'
	// translation returns '\n' directly and does not fill it.
	pending []byte
}

// New creates a Terminal reading from in and writing to out. The terminal
// is left in canonical mode until Enable is called.
func New(in, out *os.File) (*Terminal, error) {
	if in == nil {
		return nil, fmt.Errorf("terminal requires an input file")
	}
	if out == nil {
		return nil, fmt.Errorf("terminal requires an output file")
	}

	t := &Terminal{input: in, output: out}

	if err := termios.Tcgetattr(t.input.Fd(), &t.canAttr); err != nil {
		return nil, fmt.Errorf("terminal: %w", err)
	}
	t.rawAttr = t.canAttr
	termios.Cfmakeraw(&t.rawAttr)

	return t, nil
}

// Enable switches the terminal into raw mode.
func (t *Terminal) Enable() error {
	if err := termios.Tcsetattr(t.input.Fd(), termios.TCIFLUSH, &t.rawAttr); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	t.enabled = true
	return nil
}

// CleanUp restores the terminal's original, canonical mode. It is safe to
// call even if Enable was never called.
func (t *Terminal) CleanUp() {
	if !t.enabled {
		return
	}
	termios.Tcsetattr(t.input.Fd(), termios.TCIFLUSH, &t.canAttr)
	t.enabled = false
}

// GetChar reads a single byte, translating a raw '\r' to '\n' the way a
// canonical terminal would. ok is false on EOF or read error.
func (t *Terminal) GetChar() (b byte, ok bool) {
	if len(t.pending) > 0 {
		b = t.pending[0]
		t.pending = t.pending[1:]
		return b, true
	}

	var buf [1]byte
	n, err := t.input.Read(buf[:])
	if n == 0 || err != nil {
		return 0, false
	}

	if buf[0] == '\r' {
		return '\n', true
	}
	return buf[0], true
}

// Quit reports whether b is the byte that requests termination.
func Quit(b byte) bool {
	return b == ctrlX
}

// PutChar writes a single byte to the terminal's output.
func (t *Terminal) PutChar(b byte) {
	t.output.Write([]byte{b})
}
