package machine

import (
	"testing"

	"github.com/aykevl/emculator/test"
)

func TestAddWithCarry(t *testing.T) {
	r, c, v := addWithCarry(0x7fffffff, 1, 0)
	test.ExpectEquality(t, r, uint32(0x80000000))
	test.ExpectEquality(t, c, false)
	test.ExpectEquality(t, v, true) // signed overflow: positive + positive = negative

	r, c, v = addWithCarry(0xffffffff, 1, 0)
	test.ExpectEquality(t, r, uint32(0))
	test.ExpectEquality(t, c, true)
	test.ExpectEquality(t, v, false)
}

func TestShiftWithCarryLSL(t *testing.T) {
	r, c := shiftWithCarry(0x1, shiftLSL, 31, false)
	test.ExpectEquality(t, r, uint32(0x80000000))
	test.ExpectEquality(t, c, false)

	r, c = shiftWithCarry(0x2, shiftLSL, 31, false)
	test.ExpectEquality(t, r, uint32(0))
	test.ExpectEquality(t, c, true)
}

func TestShiftWithCarryASR(t *testing.T) {
	r, c := shiftWithCarry(0x80000000, shiftASR, 4, false)
	test.ExpectEquality(t, r, uint32(0xf8000000))
	test.ExpectEquality(t, c, false)
}

func TestThumbExpandImmC(t *testing.T) {
	v, _ := thumbExpandImmC(0x0ff, false)
	test.ExpectEquality(t, v, uint32(0xff))

	v, _ = thumbExpandImmC(0x1ff, false)
	test.ExpectEquality(t, v, uint32(0x00ff00ff))
}

func TestSignExtend(t *testing.T) {
	test.ExpectEquality(t, signExtend(0x7f, 8), uint32(0x7f))
	test.ExpectEquality(t, signExtend(0xff, 8), uint32(0xffffffff))
}
