// Package machine emulates an ARM Cortex-M-class microcontroller running
// Thumb/Thumb-2 firmware: register file and flags, a unified memory map
// with NOR-flash and peripheral-stub semantics, instruction decode and
// dispatch, and a small control surface (Create/Load/Reset/Run/Step/Halt).
package machine

import (
	"fmt"
	"sync/atomic"

	"github.com/aykevl/emculator/logger"
)

// RunStatus is returned by Step and Run to report why execution stopped.
type RunStatus int

const (
	// StatusOK indicates the step completed normally.
	StatusOK RunStatus = iota
	// StatusExit indicates firmware requested termination.
	StatusExit
	// StatusHalt indicates Halt was called from another goroutine.
	StatusHalt
	// StatusBreak indicates a hardware breakpoint was hit.
	StatusBreak
	// StatusMem indicates a memory fault (invalid address, misalignment,
	// or a write to a read-only location).
	StatusMem
	// StatusPC indicates the program counter left the code region.
	StatusPC
	// StatusDivZero indicates an SDIV/UDIV by zero.
	StatusDivZero
	// StatusUndefined indicates an undecodable or UNPREDICTABLE encoding.
	StatusUndefined
)

func (s RunStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExit:
		return "exit"
	case StatusHalt:
		return "halt"
	case StatusBreak:
		return "break"
	case StatusMem:
		return "memory fault"
	case StatusPC:
		return "invalid program counter"
	case StatusDivZero:
		return "division by zero"
	case StatusUndefined:
		return "undefined instruction"
	default:
		return "unknown"
	}
}

const numHardwareBreakpoints = 4

// Config carries the parameters Create needs: the firmware image, the
// amount of SRAM to provide, the flash page size used for erase
// operations, the instruction set variant, the console to wire the UART
// stub to, and the logging verbosity.
type Config struct {
	Image     []byte
	ImageSize uint32
	PageSize  uint32
	RAMSize   uint32
	Variant   Variant
	Console   Console
	LogLevel  LogLevel
}

// LogLevel gates how much diagnostic detail Log calls record, implementing
// logger.Permission so the same gate can be passed straight to the central
// logger.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogCalls
	LogCallsSP
	LogInstrs
)

// AllowLogging implements logger.Permission.
func (l LogLevel) AllowLogging() bool {
	return l >= LogWarn
}

// Machine is the emulated microcontroller. The zero value is not usable;
// construct with Create.
type Machine struct {
	regs   Registers
	status Status

	variant Variant

	image         []byte
	imageWritable bool
	pageSize      uint32

	ram []byte

	uicr uicrRegs
	nvmc nvmc
	rng  rng
	nvic nvicRegs
	scb  scbRegs

	console Console
	logLevel LogLevel

	backtrace backtrace

	hwbreak  [numHardwareBreakpoints]uint32
	halted   atomic.Bool
	breakHit atomic.Bool

	// curInstrAddr is the fetch address of the instruction currently
	// executing, used only to compute PCOperand.
	curInstrAddr uint32

	decodeCache map[uint32]decodedInstruction
}

// PCOperand returns the value an instruction sees when it reads R15 as an
// operand: the address of the current instruction plus 4, per the Thumb
// execution model. PC-relative loads and address generation word-align it
// themselves.
func (m *Machine) PCOperand() uint32 {
	return m.curInstrAddr + 4
}

// log records detail under the "machine" tag, provided perm allows logging.
func (m *Machine) log(perm logger.Permission, detail interface{}) {
	logger.Log(perm, "machine", detail)
}

// Create allocates a Machine from cfg. The image is copied in as flash
// contents padded to ImageSize with 0xff, matching real NOR flash's erased
// state.
func Create(cfg Config) (*Machine, error) {
	if cfg.ImageSize == 0 {
		return nil, fmt.Errorf("machine: image size must be greater than zero")
	}
	if cfg.PageSize == 0 {
		return nil, fmt.Errorf("machine: page size must be greater than zero")
	}
	if len(cfg.Image) > int(cfg.ImageSize) {
		return nil, fmt.Errorf("machine: image larger than image size")
	}

	m := &Machine{
		variant:     cfg.Variant,
		image:       make([]byte, cfg.ImageSize),
		pageSize:    cfg.PageSize,
		ram:         make([]byte, cfg.RAMSize),
		console:     cfg.Console,
		logLevel:    cfg.LogLevel,
		decodeCache: make(map[uint32]decodedInstruction),
	}
	if m.console == nil {
		m.console = nullConsole{}
	}

	for i := range m.image {
		m.image[i] = 0xff
	}
	copy(m.image, cfg.Image)

	return m, nil
}

// Load replaces the flash image's contents without otherwise resetting the
// machine. It is equivalent to programming a new firmware image onto
// already-provisioned hardware.
func (m *Machine) Load(image []byte) error {
	if len(image) > len(m.image) {
		return fmt.Errorf("machine: image larger than flash size")
	}
	for i := range m.image {
		m.image[i] = 0xff
	}
	copy(m.image, image)
	m.invalidateAllCache()
	return nil
}

// Reset restores the register file, flags, backtrace and breakpoint state
// to their power-on values and reloads the reset vector. The flash and RAM
// contents are left untouched, matching a real reset pin.
func (m *Machine) Reset() error {
	m.regs.reset()
	m.status.reset()
	m.backtrace.reset()
	m.backtrace.call(0, 0xffffffff)
	m.halted.Store(false)
	m.breakHit.Store(false)

	sp := readWidth(m.image, 0, width32)
	entry := readWidth(m.image, 4, width32)

	m.regs.SetSP(sp)
	m.regs.SetLR(deadbeefSentinel)
	m.regs.SetPC(entry &^ 1)
	m.status.thumb = true

	return nil
}

// Free releases resources held by the Machine. Present for symmetry with
// Create; the current implementation holds nothing that outlives garbage
// collection.
func (m *Machine) Free() {
	m.decodeCache = nil
}

// Halt requests the run loop stop at the next instruction boundary. It is
// safe to call from another goroutine while Run is executing.
func (m *Machine) Halt() {
	m.halted.Store(true)
}

// SetBreakpoint installs addr into hardware breakpoint slot, one of the
// numHardwareBreakpoints available. An address of zero disables that slot.
func (m *Machine) SetBreakpoint(slot int, addr uint32) error {
	if slot < 0 || slot >= numHardwareBreakpoints {
		return fmt.Errorf("machine: breakpoint slot out of range")
	}
	atomic.StoreUint32(&m.hwbreak[slot], addr)
	return nil
}

func (m *Machine) checkBreakpoints(pc uint32) bool {
	for i := range m.hwbreak {
		if b := atomic.LoadUint32(&m.hwbreak[i]); b != 0 && b == pc {
			return true
		}
	}
	return false
}

// ReadReg returns the value of register i (0-15).
func (m *Machine) ReadReg(i int) (uint32, error) {
	if i < 0 || i >= numRegisters {
		return 0, fmt.Errorf("machine: register index out of range")
	}
	return m.regs.Read(i), nil
}

// ReadRegs returns every register's value, R0 first.
func (m *Machine) ReadRegs() [numRegisters]uint32 {
	return m.regs.r
}

// ReadMem reads n bytes starting at addr. Unlike transfer this does not
// require alignment; it reads word-at-a-time where addr and n allow it and
// falls back to bytewise reads otherwise, mirroring a debugger's memory
// view rather than an instruction fetch.
func (m *Machine) ReadMem(addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; {
		remaining := n - i
		if addr&0x3 == 0 && remaining >= 4 {
			v, f := m.transfer(addr+uint32(i), width32, transferLoad, 0)
			if f != FaultNone {
				return nil, f
			}
			out[i] = byte(v)
			out[i+1] = byte(v >> 8)
			out[i+2] = byte(v >> 16)
			out[i+3] = byte(v >> 24)
			i += 4
			continue
		}
		v, f := m.transfer(addr+uint32(i), width8, transferLoad, 0)
		if f != FaultNone {
			return nil, f
		}
		out[i] = byte(v)
		i++
	}
	return out, nil
}

// Backtrace returns the currently live call frames, outermost first.
func (m *Machine) Backtrace() []Frame {
	return m.backtrace.Frames()
}
