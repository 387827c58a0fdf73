package machine

import (
	"testing"

	"github.com/aykevl/emculator/test"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := Create(Config{
		ImageSize: 4096,
		PageSize:  1024,
		RAMSize:   1024,
		Variant:   CortexM4,
	})
	test.ExpectSuccess(t, err)
	return m
}

func TestNORWriteIsAND(t *testing.T) {
	m := newTestMachine(t)
	m.imageWritable = true

	m.image[0] = 0xff
	_, f := m.transfer(addrCodeBase, width8, transferStore, 0x0f)
	test.ExpectEquality(t, f, FaultNone)
	test.ExpectEquality(t, m.image[0], byte(0x0f))

	// writing 0xf0 can only clear further bits, it cannot set the ones
	// already cleared back to 1
	_, f = m.transfer(addrCodeBase, width8, transferStore, 0xf0)
	test.ExpectEquality(t, f, FaultNone)
	test.ExpectEquality(t, m.image[0], byte(0x00))
}

func TestNORWriteWhenNotWritable(t *testing.T) {
	m := newTestMachine(t)
	m.imageWritable = false

	_, f := m.transfer(addrCodeBase, width8, transferStore, 0x00)
	test.ExpectEquality(t, f, FaultReadOnly)
}

func TestErasePageFillsWithFF(t *testing.T) {
	m := newTestMachine(t)
	m.imageWritable = true

	for i := range m.image[:m.pageSize] {
		m.image[i] = 0x00
	}

	f := m.ErasePage(0)
	test.ExpectEquality(t, f, FaultNone)
	for i := uint32(0); i < m.pageSize; i++ {
		test.ExpectEquality(t, m.image[i], byte(0xff))
	}
}

func TestSRAMRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	_, f := m.transfer(addrSRAMBase, width32, transferStore, 0x12345678)
	test.ExpectEquality(t, f, FaultNone)
	v, f := m.transfer(addrSRAMBase, width32, transferLoad, 0)
	test.ExpectEquality(t, f, FaultNone)
	test.ExpectEquality(t, v, uint32(0x12345678))
}

func TestUnalignedWordAccessFaults(t *testing.T) {
	m := newTestMachine(t)
	_, f := m.transfer(addrSRAMBase+1, width32, transferLoad, 0)
	test.ExpectEquality(t, f, FaultUnaligned)
}

func TestInvalidAddressFaults(t *testing.T) {
	m := newTestMachine(t)
	_, f := m.transfer(0x90000000, width32, transferLoad, 0)
	test.ExpectEquality(t, f, FaultInvalidAddress)
}

type fakeConsole struct {
	in  []byte
	out []byte
}

func (c *fakeConsole) GetChar() (byte, bool) {
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

func (c *fakeConsole) PutChar(b byte) {
	c.out = append(c.out, b)
}

func TestUARTRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	console := &fakeConsole{in: []byte("A")}
	m.console = console

	v, f := m.transfer(addrUARTRXD, width32, transferLoad, 0)
	test.ExpectEquality(t, f, FaultNone)
	test.ExpectEquality(t, v, uint32('A'))

	_, f = m.transfer(addrUARTTXD, width32, transferStore, uint32('B'))
	test.ExpectEquality(t, f, FaultNone)
	test.ExpectEquality(t, string(console.out), "B")
}
