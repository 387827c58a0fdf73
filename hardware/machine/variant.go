package machine

// Variant selects which instruction set extensions a Machine decodes,
// mirroring how real silicon in this family differs: an ARM7TDMI core only
// ever fetches 16-bit Thumb, while a Cortex-M4 adds the 32-bit Thumb-2
// encodings, IT blocks and the compare-and-branch shorthands.
type Variant int

const (
	// ARM7TDMI decodes Thumb (formats 1-19) only.
	ARM7TDMI Variant = iota

	// CortexM4 decodes Thumb and Thumb-2.
	CortexM4
)

func (v Variant) hasThumb2() bool {
	return v == CortexM4
}
