package machine

import (
	"testing"

	"github.com/aykevl/emculator/test"
)

func TestConditionBLE(t *testing.T) {
	var sr Status

	// Z==1 satisfies LE regardless of N/V
	sr.zero = true
	sr.negative = false
	sr.overflow = false
	test.ExpectEquality(t, sr.condition(0b1101), true)

	// Z==0, N!=V also satisfies LE
	sr.zero = false
	sr.negative = true
	sr.overflow = false
	test.ExpectEquality(t, sr.condition(0b1101), true)

	// Z==0, N==V does not satisfy LE
	sr.negative = false
	sr.overflow = false
	test.ExpectEquality(t, sr.condition(0b1101), false)
}

func TestConditionReservedIsFalse(t *testing.T) {
	var sr Status
	test.ExpectEquality(t, sr.condition(0b1111), false)
}

func TestConditionAlwaysTrue(t *testing.T) {
	var sr Status
	test.ExpectEquality(t, sr.condition(0b1110), true)
}

func TestAdvanceIT(t *testing.T) {
	var sr Status
	test.ExpectEquality(t, sr.InIT(), false)

	sr.itCond = 0b0000
	sr.itMask = 0b0100
	test.ExpectEquality(t, sr.InIT(), true)
	sr.advanceIT()
	test.ExpectEquality(t, sr.itMask, uint8(0b1000))
	sr.advanceIT()
	test.ExpectEquality(t, sr.InIT(), false)
}
