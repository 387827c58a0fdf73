package machine

import (
	"fmt"
	"math/rand"

	"github.com/aykevl/emculator/logger"
)

// Console is the UART peripheral's external collaborator: whatever
// terminal or pipe firmware's getchar/putchar calls end up talking to.
type Console interface {
	GetChar() (b byte, ok bool)
	PutChar(b byte)
}

// nullConsole discards writes and never has input ready; used when a
// Machine is created without an explicit Console.
type nullConsole struct{}

func (nullConsole) GetChar() (byte, bool) { return 0, false }
func (nullConsole) PutChar(byte)          {}

type nvmc struct {
	configWriteEnabled bool
}

type rng struct {
	started bool
}

type nvicRegs struct {
	iser uint32
	ipr  uint32
}

type scbRegs struct {
	cpacr uint32
}

type uicrRegs struct {
	pselReset [2]uint32
}

func (m *Machine) transferPeripheral(addr uint32, w width, kind transferKind, value uint32) (uint32, Fault) {
	switch addr {
	case addrUARTStartRX, addrUARTStopRX, addrUARTStartTX, addrUARTStopTX:
		// tasks: writing any value triggers them, nothing to model.
		return 0, FaultNone
	case addrUARTRXDRdy, addrUARTTXDRdy:
		if kind == transferLoad {
			return 1, FaultNone
		}
		return 0, FaultNone
	case addrUARTError, addrUARTRXTo:
		return 0, FaultNone
	case addrUARTRXD:
		if kind == transferStore {
			return 0, FaultReadOnly
		}
		b, ok := m.console.GetChar()
		if !ok {
			return 0, FaultNone
		}
		return uint32(b), FaultNone
	case addrUARTTXD:
		if kind == transferLoad {
			return 0, FaultNone
		}
		m.console.PutChar(byte(value))
		return 0, FaultNone

	case addrRNGStart:
		if kind == transferStore {
			m.rng.started = true
		}
		return 0, FaultNone
	case addrRNGStop:
		if kind == transferStore {
			m.rng.started = false
		}
		return 0, FaultNone
	case addrRNGValRdy:
		if kind == transferLoad {
			if m.rng.started {
				return 1, FaultNone
			}
			return 0, FaultNone
		}
		return 0, FaultNone
	case addrRNGValue:
		if kind == transferLoad {
			return uint32(rand.Intn(256)), FaultNone
		}
		return 0, FaultReadOnly

	case addrNVMCReady:
		if kind == transferLoad {
			return 1, FaultNone
		}
		return 0, FaultReadOnly
	case addrNVMCConfig:
		if kind == transferLoad {
			if m.nvmc.configWriteEnabled {
				return 1, FaultNone
			}
			return 0, FaultNone
		}
		m.nvmc.configWriteEnabled = value&0x3 == 1
		m.imageWritable = m.nvmc.configWriteEnabled
		return 0, FaultNone
	case addrNVMCErasePage:
		if kind == transferStore {
			if !m.nvmc.configWriteEnabled {
				return 0, FaultReadOnly
			}
			if f := m.ErasePage(value); f != FaultNone {
				return 0, f
			}
		}
		return 0, FaultNone

	default:
		m.log(logger.Allow, fmt.Sprintf("access to unknown peripheral 0x%08x", addr))
		return 0, FaultNone
	}
}
