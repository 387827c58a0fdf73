package machine

import (
	"fmt"

	"github.com/aykevl/emculator/logger"
)

// Fault classifies why a memory transfer could not be completed, in place
// of a single untyped "bad address" error.
type Fault int

const (
	// FaultNone indicates the transfer completed.
	FaultNone Fault = iota
	// FaultInvalidAddress indicates the address did not route to any
	// known region or peripheral.
	FaultInvalidAddress
	// FaultUnaligned indicates a halfword/word access was not aligned to
	// its natural boundary.
	FaultUnaligned
	// FaultReadOnly indicates a write to flash outside of a programming
	// operation, or to a read-only peripheral register.
	FaultReadOnly
)

func (f Fault) Error() string {
	switch f {
	case FaultInvalidAddress:
		return "invalid address"
	case FaultUnaligned:
		return "unaligned access"
	case FaultReadOnly:
		return "write to read-only location"
	default:
		return "no fault"
	}
}

// width identifies the size of a memory transfer.
type width int

const (
	width8 width = iota
	width16
	width32
)

// transferKind identifies the direction of a memory transfer.
type transferKind int

const (
	transferLoad transferKind = iota
	transferStore
)

// Memory-mapped region boundaries, selected by the top three bits of the
// address, the same coarse routing the vendor memory map uses.
const (
	regionCode       = 0x0 // 0x00000000-0x1fffffff: flash, FICR, UICR
	regionSRAM       = 0x1 // 0x20000000-0x3fffffff
	regionPeripheral = 0x2 // 0x40000000-0x5fffffff
	regionPPB        = 0x7 // 0xe0000000-0xffffffff: NVIC, SCB
)

func region(addr uint32) uint32 {
	return addr >> 29
}

// Fixed single-word peripheral cells, read-only firmware identification and
// configuration data that doesn't warrant a dedicated struct.
const (
	addrFICR           = 0x10000130
	addrUICRPselReset0 = 0x10001200
	addrUICRPselReset1 = 0x10001204
	addrUICRPselReset2 = 0x10001208 // unmapped; loads return zero, stores are discarded, every access is logged

	addrUARTBase    = 0x40002000
	addrUARTStartRX = addrUARTBase + 0x000
	addrUARTStopRX  = addrUARTBase + 0x004
	addrUARTStartTX = addrUARTBase + 0x008
	addrUARTStopTX  = addrUARTBase + 0x00c
	addrUARTRXDRdy  = addrUARTBase + 0x108
	addrUARTTXDRdy  = addrUARTBase + 0x11c
	addrUARTError   = addrUARTBase + 0x124
	addrUARTRXTo    = addrUARTBase + 0x144
	addrUARTRXD     = addrUARTBase + 0x518
	addrUARTTXD     = addrUARTBase + 0x51c

	addrRNGBase    = 0x4000d000
	addrRNGStart   = addrRNGBase + 0x000
	addrRNGStop    = addrRNGBase + 0x004
	addrRNGValRdy  = addrRNGBase + 0x100
	addrRNGValue   = addrRNGBase + 0x508

	addrNVMCBase       = 0x4001e000
	addrNVMCReady      = addrNVMCBase + 0x400
	addrNVMCConfig     = addrNVMCBase + 0x504
	addrNVMCErasePage  = addrNVMCBase + 0x508

	addrNVICISER = 0xe000e100
	addrNVICICER = 0xe000e180
	addrNVICIPR  = 0xe000e400

	addrSCBCPACR = 0xe000ed88
)

// transfer is the single chokepoint every load and store passes through: it
// routes the address to flash, SRAM, a peripheral stub, or a fault.
func (m *Machine) transfer(addr uint32, w width, kind transferKind, value uint32) (uint32, Fault) {
	if err := checkAlign(addr, w); err != FaultNone {
		m.log(logger.Allow, fmt.Sprintf("unaligned %s at 0x%08x", widthName(w), addr))
		return 0, err
	}

	switch region(addr) {
	case regionCode:
		return m.transferCode(addr, w, kind, value)
	case regionSRAM:
		return m.transferSRAM(addr, w, kind, value)
	case regionPeripheral:
		return m.transferPeripheral(addr, w, kind, value)
	case regionPPB:
		return m.transferPPB(addr, w, kind, value)
	default:
		m.log(logger.Allow, fmt.Sprintf("access to unmapped address 0x%08x", addr))
		return 0, FaultInvalidAddress
	}
}

func checkAlign(addr uint32, w width) Fault {
	switch w {
	case width16:
		if addr&0x1 != 0 {
			return FaultUnaligned
		}
	case width32:
		if addr&0x3 != 0 {
			return FaultUnaligned
		}
	}
	return FaultNone
}

func widthName(w width) string {
	switch w {
	case width8:
		return "byte"
	case width16:
		return "halfword"
	default:
		return "word"
	}
}

func (m *Machine) transferCode(addr uint32, w width, kind transferKind, value uint32) (uint32, Fault) {
	if addr == addrFICR {
		if kind == transferStore {
			return 0, FaultReadOnly
		}
		return 0, FaultNone
	}
	if addr == addrUICRPselReset0 {
		if kind == transferLoad {
			return m.uicr.pselReset[0], FaultNone
		}
		m.uicr.pselReset[0] = value
		return 0, FaultNone
	}
	if addr == addrUICRPselReset1 {
		if kind == transferLoad {
			return m.uicr.pselReset[1], FaultNone
		}
		m.uicr.pselReset[1] = value
		return 0, FaultNone
	}
	if addr == addrUICRPselReset2 {
		m.log(logger.Allow, fmt.Sprintf("read of unmapped UICR cell 0x%08x", addr))
		return 0, FaultNone
	}

	off := addr - addrCodeBase
	if int(off) >= len(m.image) {
		return 0, FaultInvalidAddress
	}

	if kind == transferLoad {
		return readWidth(m.image, off, w), FaultNone
	}

	// NOR flash semantics: a write clears bits, it never sets them. An
	// erase (not modelled here as a distinct transfer) is the only way to
	// bring a bit back to 1.
	if !m.imageWritable {
		return 0, FaultReadOnly
	}
	cur := readWidth(m.image, off, w)
	writeWidth(m.image, off, w, cur&value)
	m.invalidateCache(off)
	if w == width32 {
		m.invalidateCache(off + 2)
	}
	return 0, FaultNone
}

func (m *Machine) transferSRAM(addr uint32, w width, kind transferKind, value uint32) (uint32, Fault) {
	off := addr - addrSRAMBase
	if int(off) >= len(m.ram) {
		return 0, FaultInvalidAddress
	}
	if kind == transferLoad {
		return readWidth(m.ram, off, w), FaultNone
	}
	writeWidth(m.ram, off, w, value)
	return 0, FaultNone
}

func (m *Machine) transferPPB(addr uint32, w width, kind transferKind, value uint32) (uint32, Fault) {
	switch addr {
	case addrNVICISER:
		if kind == transferLoad {
			return m.nvic.iser, FaultNone
		}
		m.nvic.iser |= value
		return 0, FaultNone
	case addrNVICICER:
		if kind == transferLoad {
			return m.nvic.iser, FaultNone
		}
		m.nvic.iser &^= value
		return 0, FaultNone
	case addrNVICIPR:
		if kind == transferLoad {
			return m.nvic.ipr, FaultNone
		}
		m.nvic.ipr = value
		return 0, FaultNone
	case addrSCBCPACR:
		if kind == transferLoad {
			return m.scb.cpacr, FaultNone
		}
		m.scb.cpacr = value
		return 0, FaultNone
	default:
		m.log(logger.Allow, fmt.Sprintf("access to unimplemented PPB register 0x%08x", addr))
		return 0, FaultNone
	}
}

const (
	addrCodeBase = 0x00000000
	addrSRAMBase = 0x20000000
)

func readWidth(buf []byte, off uint32, w width) uint32 {
	switch w {
	case width8:
		return uint32(buf[off])
	case width16:
		return uint32(buf[off]) | uint32(buf[off+1])<<8
	default:
		return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	}
}

func writeWidth(buf []byte, off uint32, w width, v uint32) {
	switch w {
	case width8:
		buf[off] = byte(v)
	case width16:
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	default:
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
}

// ErasePage fills one page of flash with 0xff, the NOR-flash erase
// operation. addr is the flash address firmware wrote to NVMC.ERASEPAGE; it
// is invoked by the NVMC peripheral stub rather than through transfer, since
// erase is not a regular load/store.
func (m *Machine) ErasePage(addr uint32) Fault {
	off := addr - addrCodeBase
	if off&(m.pageSize-1) != 0 {
		return FaultUnaligned
	}
	if int(off+m.pageSize) > len(m.image) {
		return FaultInvalidAddress
	}
	for i := uint32(0); i < m.pageSize; i++ {
		m.image[off+i] = 0xff
	}
	m.invalidateAllCache()
	return FaultNone
}
