package machine

// isThumb2FirstHalfword reports whether opcode's top five bits mark it as
// the first halfword of a 32-bit Thumb-2 instruction (0b11101, 0b11110 or
// 0b11111), per "A5.1 Thumb instruction set encoding".
func isThumb2FirstHalfword(opcode uint16) bool {
	top5 := opcode >> 11
	return top5 == 0b11101 || top5 == 0b11110 || top5 == 0b11111
}

// isClassicBL reports whether opcode carries one of the two prefixes used by
// the halves of a BL/BLX (0b11110 or 0b11111). Other Thumb-2 instructions
// share these prefixes, so on Cortex-M4 decode identifies a BL from both
// halfwords and runs it as one 32-bit instruction; both variants share the
// decodeBLHigh/decodeBLLow implementation in thumb.go.
func isClassicBL(opcode uint16) bool {
	top5 := opcode >> 11
	return top5 == 0b11110 || top5 == 0b11111
}

// decodeThumb2 dispatches the 32-bit instruction formed by hw1:hw2 to its
// family decoder. Only the instruction classes this firmware profile is
// expected to use are implemented; anything else decodes as undefined.
func decodeThumb2(hw1, hw2 uint16) decodedInstruction {
	switch hw1 >> 11 {
	case 0b11101:
		return decodeThumb2LoadStoreMultipleOrDual(hw1, hw2)
	case 0b11110:
		if hw2&0x8000 != 0 {
			return decodeThumb2BranchMisc(hw1, hw2)
		}
		return decodeThumb2DataProcessing(hw1, hw2)
	case 0b11111:
		return decodeThumb2LoadStoreOrRegisterData(hw1, hw2)
	}
	return decodeUndefined32()
}

func decodeUndefined32() decodedInstruction {
	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		return StatusUndefined
	}}
}

// --- 11101: load/store multiple and dual/exclusive -----------------------

func decodeThumb2LoadStoreMultipleOrDual(hw1, hw2 uint16) decodedInstruction {
	op1 := (hw1 >> 7) & 0x3

	if hw1&0xfff0 == 0xe8d0 && hw2&0xfff0 == 0xf000 { // TBB
		return decodeTableBranch(hw1, hw2, false)
	}
	if hw1&0xfff0 == 0xe8d0 && hw2&0xfff0 == 0xf010 { // TBH
		return decodeTableBranch(hw1, hw2, true)
	}

	switch {
	case hw1&0x0640 == 0x0000 && (op1 == 0b01 || op1 == 0b10): // STM/LDM.W, STMDB/LDMDB
		return decodeThumb2MultipleRegister(hw1, hw2)
	case hw1&0x0640 == 0x0040 && hw1&0x0120 != 0: // LDRD/STRD immediate (offset, pre- or post-indexed)
		return decodeThumb2DoubleWord(hw1, hw2)
	}
	return decodeUndefined32()
}

func decodeThumb2MultipleRegister(hw1, hw2 uint16) decodedInstruction {
	load := hw1&0x0010 != 0
	decrementBefore := hw1&0x0080 == 0
	writeback := hw1&0x0020 != 0
	rn := int(hw1 & 0xf)
	rlist := hw2

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		count := 0
		for i := 0; i < 16; i++ {
			if rlist&(1<<uint(i)) != 0 {
				count++
			}
		}

		base := m.regs.Read(rn)
		addr := base
		if decrementBefore {
			addr = base - uint32(count)*4
		}
		cursor := addr

		for i := 0; i < 16; i++ {
			if rlist&(1<<uint(i)) == 0 {
				continue
			}
			if load {
				v, f := m.transfer(cursor, width32, transferLoad, 0)
				if f != FaultNone {
					return StatusMem
				}
				if i == rPC {
					m.regs.SetPC(v &^ 1)
				} else {
					m.regs.Write(i, v)
				}
			} else {
				_, f := m.transfer(cursor, width32, transferStore, m.regs.Read(i))
				if f != FaultNone {
					return StatusMem
				}
			}
			cursor += 4
		}

		if writeback {
			if decrementBefore {
				m.regs.Write(rn, base-uint32(count)*4)
			} else {
				m.regs.Write(rn, base+uint32(count)*4)
			}
		}
		return StatusOK
	}}
}

func decodeThumb2DoubleWord(hw1, hw2 uint16) decodedInstruction {
	load := hw1&0x0010 != 0
	add := hw1&0x0080 != 0
	writeback := hw1&0x0020 != 0
	index := hw1&0x0100 != 0
	rn := int(hw1 & 0xf)
	rt := int((hw2 >> 12) & 0xf)
	rt2 := int((hw2 >> 8) & 0xf)
	imm8 := uint32(hw2&0xff) << 2

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		base := m.regs.Read(rn)
		var offsetAddr uint32
		if add {
			offsetAddr = base + imm8
		} else {
			offsetAddr = base - imm8
		}

		addr := base
		if index {
			addr = offsetAddr
		}

		if load {
			v1, f := m.transfer(addr, width32, transferLoad, 0)
			if f != FaultNone {
				return StatusMem
			}
			v2, f := m.transfer(addr+4, width32, transferLoad, 0)
			if f != FaultNone {
				return StatusMem
			}
			m.regs.Write(rt, v1)
			m.regs.Write(rt2, v2)
		} else {
			_, f := m.transfer(addr, width32, transferStore, m.regs.Read(rt))
			if f != FaultNone {
				return StatusMem
			}
			_, f = m.transfer(addr+4, width32, transferStore, m.regs.Read(rt2))
			if f != FaultNone {
				return StatusMem
			}
		}

		if writeback {
			m.regs.Write(rn, offsetAddr)
		}
		return StatusOK
	}}
}

// --- 11110 with hw2 bit15==0: data processing ------------------------------

func decodeThumb2DataProcessing(hw1, hw2 uint16) decodedInstruction {
	modifiedImm := hw1&0x0200 == 0
	rn := int(hw1 & 0xf)
	rd := int((hw2 >> 8) & 0xf)
	setFlags := hw1&0x0010 != 0
	op := (hw1 >> 4) & 0x1f

	if !modifiedImm && op == 0b00100 {
		return decodeThumb2MOVWMOVT(hw1, hw2)
	}
	if !modifiedImm && op == 0b01100 {
		return decodeThumb2MOVWMOVT(hw1, hw2)
	}
	if !modifiedImm && (op == 0b10100 || op == 0b10110 || op == 0b11100) {
		return decodeThumb2Bitfield(hw1, hw2)
	}
	if !modifiedImm {
		return decodeUndefined32()
	}
	// modified-immediate encodings carry the S bit in hw1[4], below the opcode
	op >>= 1

	i := uint32((hw1 >> 10) & 0x1)
	imm3 := uint32((hw2 >> 12) & 0x7)
	imm8 := uint32(hw2 & 0xff)
	imm12 := (i << 11) | (imm3 << 8) | imm8

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		a := m.operand(rn)
		if rn == rPC && (op == 0b00010 || op == 0b00011) {
			a = 0
		}
		imm, carry := thumbExpandImmC(imm12, m.status.carry)

		var result uint32
		ovf := m.status.overflow

		switch op {
		case 0b00000: // AND
			result = a & imm
		case 0b00001: // BIC
			result = a &^ imm
		case 0b00010: // ORR (MOV when rn is the PC)
			result = a | imm
		case 0b00011: // ORN (MVN when rn is the PC)
			result = a | ^imm
		case 0b00100: // EOR
			result = a ^ imm
		case 0b01000: // ADD
			var c bool
			result, c, ovf = addWithCarry(a, imm, 0)
			carry = c
		case 0b01010: // ADC
			var c bool
			result, c, ovf = addWithCarry(a, imm, boolToCarry(m.status.carry))
			carry = c
		case 0b01011: // SBC
			var c bool
			result, c, ovf = addWithCarry(a, ^imm, boolToCarry(m.status.carry))
			carry = c
		case 0b01101: // SUB
			var c bool
			result, c, ovf = addWithCarry(a, ^imm, 1)
			carry = c
		case 0b01110: // RSB
			var c bool
			result, c, ovf = addWithCarry(^a, imm, 1)
			carry = c
		default:
			return StatusUndefined
		}

		if rd != rPC { // rd==PC: TST/TEQ/CMN/CMP, flags only
			m.regs.Write(rd, result)
		}
		if setFlags {
			m.status.setNZ(result)
			m.status.carry = carry
			m.status.overflow = ovf
		}
		return StatusOK
	}}
}

func decodeThumb2MOVWMOVT(hw1, hw2 uint16) decodedInstruction {
	top := hw1&0x0080 != 0 // MOVT when true
	rd := int((hw2 >> 8) & 0xf)
	i := uint32((hw1 >> 10) & 0x1)
	imm4 := uint32(hw1 & 0xf)
	imm3 := uint32((hw2 >> 12) & 0x7)
	imm8 := uint32(hw2 & 0xff)
	imm16 := (imm4 << 12) | (i << 11) | (imm3 << 8) | imm8

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		if top {
			cur := m.regs.Read(rd)
			m.regs.Write(rd, (cur&0xffff)|(imm16<<16))
		} else {
			m.regs.Write(rd, imm16)
		}
		return StatusOK
	}}
}

func decodeThumb2Bitfield(hw1, hw2 uint16) decodedInstruction {
	op := (hw1 >> 4) & 0x1f
	rn := int(hw1 & 0xf)
	rd := int((hw2 >> 8) & 0xf)
	imm3 := uint32((hw2 >> 12) & 0x7)
	imm2 := uint32((hw2 >> 6) & 0x3)
	lsbit := (imm3 << 2) | imm2
	msbit := uint32(hw2 & 0x1f)

	signed := op == 0b10100
	unsignedX := op == 0b11100
	bfi := op == 0b10110
	bfc := op == 0b10110 && rn == 0b1111

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		switch {
		case bfc:
			width := msbit - lsbit + 1
			mask := uint32((uint64(1)<<width)-1) << lsbit
			m.regs.Write(rd, m.regs.Read(rd)&^mask)
		case bfi:
			width := msbit - lsbit + 1
			mask := uint32((uint64(1)<<width)-1) << lsbit
			src := (m.regs.Read(rn) << lsbit) & mask
			m.regs.Write(rd, (m.regs.Read(rd)&^mask)|src)
		case signed || unsignedX:
			width := msbit + 1
			v := (m.regs.Read(rn) >> lsbit) & uint32((uint64(1)<<width)-1)
			if signed {
				v = signExtend(v, uint(width))
			}
			m.regs.Write(rd, v)
		default:
			return StatusUndefined
		}
		return StatusOK
	}}
}

// --- 11110 with hw2 bit15==1: branches and misc control --------------------

func decodeThumb2BranchMisc(hw1, hw2 uint16) decodedInstruction {
	op := (hw1 >> 4) & 0x7f

	if hw2&0x5000 == 0 && op&0b0111000 != 0b0111000 { // conditional B.W
		cond := uint8((hw1 >> 6) & 0xf)
		s := uint32((hw1 >> 10) & 0x1)
		j1 := uint32((hw2 >> 13) & 0x1)
		j2 := uint32((hw2 >> 11) & 0x1)
		imm6 := uint32(hw1 & 0x3f)
		imm11 := uint32(hw2 & 0x7ff)
		offset := (s << 20) | (j1 << 19) | (j2 << 18) | (imm6 << 12) | (imm11 << 1)
		offset = signExtend(offset, 21)

		return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
			if m.status.condition(cond) {
				m.regs.SetPC(m.PCOperand() + offset)
			}
			return StatusOK
		}}
	}

	if hw2&0x5000 == 0 && op == 0b0111000 { // MSR
		return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
			return StatusOK
		}}
	}
	if hw2&0x5000 == 0 && op == 0b0111110 { // MRS
		rd := int((hw2 >> 8) & 0xf)
		return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
			m.regs.Write(rd, m.xpsr())
			return StatusOK
		}}
	}

	if hw2&0x1000 == 0 {
		return decodeUndefined32()
	}

	// unconditional B.W
	s := uint32((hw1 >> 10) & 0x1)
	imm10 := uint32(hw1 & 0x3ff)
	j1 := uint32((hw2 >> 13) & 0x1)
	j2 := uint32((hw2 >> 11) & 0x1)
	imm11 := uint32(hw2 & 0x7ff)
	i1 := (j1 ^ s ^ 1) & 0x1
	i2 := (j2 ^ s ^ 1) & 0x1
	offset := (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
	offset = signExtend(offset, 25)

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		m.regs.SetPC(m.PCOperand() + offset)
		return StatusOK
	}}
}

func (m *Machine) xpsr() uint32 {
	var v uint32
	if m.status.negative {
		v |= 1 << 31
	}
	if m.status.zero {
		v |= 1 << 30
	}
	if m.status.carry {
		v |= 1 << 29
	}
	if m.status.overflow {
		v |= 1 << 28
	}
	return v
}

// --- 11111: load/store single data item, and register data-processing -----

func decodeThumb2LoadStoreOrRegisterData(hw1, hw2 uint16) decodedInstruction {
	if hw1&0xfff0 == 0xfb00 { // MUL/MLA/MLS
		return decodeThumb2MultiplyFamily(hw1, hw2)
	}
	if hw1&0xffd0 == 0xfb80 { // SMULL/UMULL
		return decodeThumb2LongMultiply(hw1, hw2)
	}
	if hw1&0xffd0 == 0xfb90 { // SDIV/UDIV
		return decodeThumb2Divide(hw1, hw2)
	}
	if hw1&0xffc0 == 0xfa80 && hw2&0xf0f0 == 0xf080 { // CLZ
		return decodeThumb2CLZ(hw1, hw2)
	}
	if hw1&0xfe00 != 0xf800 { // other register data-processing: not decoded
		return decodeUndefined32()
	}

	return decodeThumb2LoadStoreSingle(hw1, hw2)
}

func decodeTableBranch(hw1, hw2 uint16, halfword bool) decodedInstruction {
	rn := int(hw1 & 0xf)
	rm := int(hw2 & 0xf)

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		base := m.operand(rn)
		idx := m.regs.Read(rm)

		var offset uint32
		var f Fault
		if halfword {
			var v uint32
			v, f = m.transfer(base+idx*2, width16, transferLoad, 0)
			offset = v * 2
		} else {
			var v uint32
			v, f = m.transfer(base+idx, width8, transferLoad, 0)
			offset = v * 2
		}
		if f != FaultNone {
			return StatusMem
		}
		m.regs.SetPC(m.PCOperand() + offset)
		return StatusOK
	}}
}

func decodeThumb2MultiplyFamily(hw1, hw2 uint16) decodedInstruction {
	op2 := (hw2 >> 4) & 0xf
	rn := int(hw1 & 0xf)
	ra := int((hw2 >> 12) & 0xf)
	rd := int((hw2 >> 8) & 0xf)
	rm := int(hw2 & 0xf)
	subtract := op2 == 0b0001

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		product := m.regs.Read(rn) * m.regs.Read(rm)
		if ra == 0b1111 {
			m.regs.Write(rd, product)
			return StatusOK
		}
		if subtract {
			m.regs.Write(rd, m.regs.Read(ra)-product)
		} else {
			m.regs.Write(rd, m.regs.Read(ra)+product)
		}
		return StatusOK
	}}
}

func decodeThumb2LongMultiply(hw1, hw2 uint16) decodedInstruction {
	signedOp := hw1&0x0020 == 0
	rn := int(hw1 & 0xf)
	rdLo := int((hw2 >> 12) & 0xf)
	rdHi := int((hw2 >> 8) & 0xf)
	rm := int(hw2 & 0xf)

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		a := m.regs.Read(rn)
		b := m.regs.Read(rm)
		var product uint64
		if signedOp {
			product = uint64(int64(int32(a)) * int64(int32(b)))
		} else {
			product = uint64(a) * uint64(b)
		}
		m.regs.Write(rdLo, uint32(product))
		m.regs.Write(rdHi, uint32(product>>32))
		return StatusOK
	}}
}

func decodeThumb2Divide(hw1, hw2 uint16) decodedInstruction {
	signedOp := hw1&0x0020 == 0
	rn := int(hw1 & 0xf)
	rd := int((hw2 >> 8) & 0xf)
	rm := int(hw2 & 0xf)

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		divisor := m.regs.Read(rm)
		if divisor == 0 {
			return StatusDivZero
		}
		dividend := m.regs.Read(rn)
		if signedOp {
			m.regs.Write(rd, uint32(int32(dividend)/int32(divisor)))
		} else {
			m.regs.Write(rd, dividend/divisor)
		}
		return StatusOK
	}}
}

func decodeThumb2CLZ(hw1, hw2 uint16) decodedInstruction {
	rm := int(hw2 & 0xf)
	rd := int((hw2 >> 8) & 0xf)

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		v := m.regs.Read(rm)
		n := uint32(0)
		for i := 31; i >= 0; i-- {
			if v&(1<<uint(i)) != 0 {
				break
			}
			n++
		}
		m.regs.Write(rd, n)
		return StatusOK
	}}
}

func decodeThumb2LoadStoreSingle(hw1, hw2 uint16) decodedInstruction {
	op1 := (hw1 >> 5) & 0x3
	rn := int(hw1 & 0xf)
	rt := int((hw2 >> 12) & 0xf)

	w := width32
	switch op1 {
	case 0b00:
		w = width8
	case 0b01:
		w = width16
	}
	load := hw1&0x0010 != 0
	signedLoad := hw1&0x0100 != 0

	immediate := hw2&0x0800 != 0 || hw1&0x0080 != 0
	imm12 := uint32(hw2 & 0xfff)
	imm8 := uint32(hw2 & 0xff)
	add := hw2&0x0200 != 0 || hw1&0x0080 != 0
	index := hw2&0x0400 != 0
	writeback := hw2&0x0100 != 0
	rm := int(hw2 & 0xf)
	shift := (hw2 >> 4) & 0x3

	return decodedInstruction{size: 4, exec: func(m *Machine) RunStatus {
		base := m.operand(rn)
		if rn == rPC {
			base &^= 3 // literal loads use the word-aligned PC
		}

		var addr, offsetAddr uint32
		if hw1&0x0080 != 0 { // T3: positive 12-bit immediate, no writeback
			addr = base + imm12
			offsetAddr = addr
		} else if immediate {
			if add {
				offsetAddr = base + imm8
			} else {
				offsetAddr = base - imm8
			}
			addr = base
			if index {
				addr = offsetAddr
			}
		} else {
			shifted := m.regs.Read(rm) << shift
			offsetAddr = base + shifted
			addr = offsetAddr
		}

		if load {
			v, f := m.transfer(addr, w, transferLoad, 0)
			if f != FaultNone {
				return StatusMem
			}
			if signedLoad && w != width32 {
				v = signExtend(v, uint(8<<w))
			}
			if rt == rPC {
				m.regs.SetPC(v &^ 1)
			} else {
				m.regs.Write(rt, v)
			}
		} else {
			_, f := m.transfer(addr, w, transferStore, m.regs.Read(rt))
			if f != FaultNone {
				return StatusMem
			}
		}

		if writeback && hw1&0x0080 == 0 {
			m.regs.Write(rn, offsetAddr)
		}
		return StatusOK
	}}
}
