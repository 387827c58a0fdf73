package machine

// decodedInstruction is a cached decode: an executable closure plus the
// instruction's length in bytes (2 for Thumb, 4 for Thumb-2), so the
// fetch/decode/dispatch loop pays the decode cost once per static
// instruction rather than once per execution.
type decodedInstruction struct {
	exec func(m *Machine) RunStatus
	size uint32
}

// invalidateCache drops any cached decode covering byte offset off,
// correctness-critical whenever flash bytes at that offset change underfoot
// (a NOR-flash write or a page erase).
func (m *Machine) invalidateCache(off uint32) {
	delete(m.decodeCache, off&^1)
	delete(m.decodeCache, (off&^1)-2)
}

func (m *Machine) invalidateAllCache() {
	m.decodeCache = make(map[uint32]decodedInstruction)
}

// fetch16 reads the halfword at offset off within flash.
func (m *Machine) fetch16(off uint32) uint16 {
	return uint16(readWidth(m.image, off, width16))
}

// decode produces (and caches) the executable closure for the instruction
// at flash offset off.
func (m *Machine) decode(off uint32) decodedInstruction {
	if d, ok := m.decodeCache[off]; ok {
		return d
	}

	opcode := m.fetch16(off)

	var d decodedInstruction
	if m.variant.hasThumb2() && isThumb2FirstHalfword(opcode) {
		opcode2 := m.fetch16(off + 2)
		if opcode>>11 == 0b11110 && opcode2&0xd000 == 0xd000 {
			// BL: both halves execute as one 32-bit instruction
			hi, lo := decodeBLHigh(opcode), decodeBLLow(opcode2)
			d = decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
				hi.exec(m)
				return lo.exec(m)
			}}
		} else {
			d = decodeThumb2(opcode, opcode2)
		}
	} else if !m.variant.hasThumb2() && (opcode&0xf500 == 0xb100 || opcode&0xff00 == 0xbf00) {
		d = decodeUndefined() // CBZ/CBNZ and IT are Cortex-M4 only
	} else {
		d = decodeThumb(opcode)
	}

	m.decodeCache[off] = d
	return d
}

// deadbeefSentinel is the LR value Reset seeds so a top-level `bx lr`
// returns here; Step treats it as a request to exit cleanly.
const deadbeefSentinel = 0xdeadbeef

// Step executes exactly one instruction.
func (m *Machine) Step() RunStatus {
	if m.halted.Load() {
		m.halted.Store(false)
		return StatusHalt
	}

	pc := m.regs.PC()
	if pc == deadbeefSentinel {
		return StatusExit
	}

	off := pc - addrCodeBase
	if int(off) >= len(m.image) {
		return StatusPC
	}

	if m.checkBreakpoints(pc) {
		m.breakHit.Store(true)
		return StatusBreak
	}

	d := m.decode(off)

	cond := m.status.currentCond()
	inIT := m.status.InIT()

	m.curInstrAddr = pc
	m.regs.SetPC(pc + d.size)

	var result RunStatus
	if cond == 0b1110 || m.status.condition(cond) {
		result = d.exec(m)
	} else {
		result = StatusOK
	}

	if inIT {
		m.status.advanceIT()
	}

	return result
}
