package machine

// Register indices, named the way the architecture reference manual names
// them from R13 up; R0-R12 are referred to by number only.
const (
	rSP = 13
	rLR = 14
	rPC = 15

	numRegisters = 16
)

// Registers is the general-purpose register file. Using index-based access
// rather than named struct fields avoids ambiguity between firmware's use
// of a register as SP/LR/PC and its use as a plain scratch register under
// Thumb's "any low register" encodings.
type Registers struct {
	r [numRegisters]uint32
}

// Read returns the value of register i.
func (r *Registers) Read(i int) uint32 {
	return r.r[i]
}

// Write stores v into register i.
func (r *Registers) Write(i int, v uint32) {
	r.r[i] = v
}

// SP returns the stack pointer (R13).
func (r *Registers) SP() uint32 { return r.r[rSP] }

// SetSP sets the stack pointer (R13).
func (r *Registers) SetSP(v uint32) { r.r[rSP] = v }

// LR returns the link register (R14).
func (r *Registers) LR() uint32 { return r.r[rLR] }

// SetLR sets the link register (R14).
func (r *Registers) SetLR(v uint32) { r.r[rLR] = v }

// PC returns the program counter (R15): the address of the next
// instruction to fetch. Instructions that read R15 as an operand must use
// Machine.PCOperand instead, which applies the Thumb "address of the
// current instruction plus 4" convention.
func (r *Registers) PC() uint32 { return r.r[rPC] }

// SetPC sets the program counter (R15).
func (r *Registers) SetPC(v uint32) { r.r[rPC] = v }

// reset zeroes every register.
func (r *Registers) reset() {
	r.r = [numRegisters]uint32{}
}
