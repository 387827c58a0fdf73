package machine

import (
	"testing"

	"github.com/aykevl/emculator/test"
)

// ADDS Rd, #imm overflowing from the largest positive signed value sets V
// without faulting.
func TestExecuteAddImmediateOverflow(t *testing.T) {
	m := newTestMachine(t)
	m.regs.Write(0, 0x7fffffff)

	d := decodeThumb(0x3001) // ADDS R0, #1
	status := d.exec(m)

	test.ExpectEquality(t, status, StatusOK)
	test.ExpectEquality(t, m.regs.Read(0), uint32(0x80000000))
	test.ExpectEquality(t, m.status.overflow, true)
	test.ExpectEquality(t, m.status.negative, true)
}

// A conditional branch only updates PC when its condition holds.
func TestExecuteConditionalBranch(t *testing.T) {
	m := newTestMachine(t)
	d := decodeThumb(0xd002) // BEQ +4

	m.curInstrAddr = 0x1000
	m.regs.SetPC(0x2000)
	m.status.zero = false
	d.exec(m)
	test.ExpectEquality(t, m.regs.PC(), uint32(0x2000)) // not taken

	m.status.zero = true
	d.exec(m)
	test.ExpectEquality(t, m.regs.PC(), uint32(0x1008)) // PCOperand(0x1000)+4 + offset(4)
}

// PUSH followed by POP of the same register list restores the stack
// pointer to its original value.
func TestExecutePushPopBalance(t *testing.T) {
	m := newTestMachine(t)
	start := uint32(addrSRAMBase + 0x100)
	m.regs.SetSP(start)
	m.regs.Write(0, 0x11)
	m.regs.Write(1, 0x22)
	m.regs.SetLR(0x33)

	push := decodeThumb(0xb503) // PUSH {r0, r1, lr}
	status := push.exec(m)
	test.ExpectEquality(t, status, StatusOK)
	test.ExpectEquality(t, m.regs.SP(), start-12)

	m.regs.Write(0, 0)
	m.regs.Write(1, 0)

	pop := decodeThumb(0xbd03) // POP {r0, r1, pc}
	status = pop.exec(m)
	test.ExpectEquality(t, status, StatusOK)
	test.ExpectEquality(t, m.regs.SP(), start)
	test.ExpectEquality(t, m.regs.Read(0), uint32(0x11))
	test.ExpectEquality(t, m.regs.Read(1), uint32(0x22))
	test.ExpectEquality(t, m.regs.PC(), uint32(0x32))
}

// Reset seeds lr=0xdeadbeef; a top-level "bx lr" lands pc on that sentinel
// and Run reports StatusExit without ever faulting on the fetch.
func TestRunBootToExit(t *testing.T) {
	m := newTestMachine(t)

	writeWord(m.image, 0, addrSRAMBase+0x200) // initial SP
	writeWord(m.image, 4, addrCodeBase+8)     // entry point
	writeHalf(m.image, 8, 0x4770)             // BX LR

	test.ExpectSuccess(t, m.Reset())
	status := m.Run()
	test.ExpectEquality(t, status, StatusExit)
	test.ExpectEquality(t, m.regs.PC(), uint32(deadbeefSentinel))
	test.ExpectEquality(t, m.regs.SP(), uint32(addrSRAMBase+0x200))
}

// A branch-and-link records a backtrace frame; returning through it prunes
// the frame again.
func TestBacktraceCallAndReturn(t *testing.T) {
	m := newTestMachine(t)
	m.backtrace.reset()
	m.backtrace.call(0, 0xffffffff)

	m.backtrace.call(0x100, 0x2000ff00)
	test.ExpectEquality(t, m.backtrace.Depth(), 2)

	m.backtrace.prune(0x2000ff04)
	test.ExpectEquality(t, m.backtrace.Depth(), 1)
}

func writeWord(buf []byte, off uint32, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func writeHalf(buf []byte, off uint32, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}
