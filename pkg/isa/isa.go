package isa

import "strings"

// Instruction word layout (16 bits):
//
//	[opcode][15:14] - 2 bits
//	[    rs][13:11] - 3 bits
//	[    rt][10: 8] - 3 bits
//	[    rd][ 7: 5] - 3 bits
//	[  func][ 4: 0] - 5 bits
const (
	OpcodeBits   = 2
	RegisterBits = 3
	FuncBits     = 5

	OpcodeShift = 14
	RSShift     = 11
	RTShift     = 8
	RDShift     = 5
	FuncShift   = 0

	OpcodeMask   uint16 = 1<<OpcodeBits - 1
	RegisterMask uint16 = 1<<RegisterBits - 1
	FuncMask     uint16 = 1<<FuncBits - 1
)

const (
	OpNOP uint16 = 0
	OpR   uint16 = 1
	OpLWI uint16 = 2
	OpHLT uint16 = 3
)

const (
	FuncADD  uint16 = 0
	FuncSUB  uint16 = 1
	FuncAND  uint16 = 2
	FuncORR  uint16 = 3
	FuncNOT  uint16 = 4
	FuncTCP  uint16 = 5
	FuncSHL  uint16 = 6
	FuncSHR  uint16 = 7
	FuncLWD  uint16 = 8
	FuncSWD  uint16 = 9
	FuncJPR  uint16 = 14
	FuncJRL  uint16 = 15
	FuncMOV  uint16 = 16
	FuncMVH  uint16 = 17
	FuncMVL  uint16 = 18
	FuncJNE  uint16 = 19
	FuncJEQ  uint16 = 20
	FuncJGZ  uint16 = 21
	FuncJLZ  uint16 = 22
	FuncJEZ  uint16 = 23
	FuncJNZ  uint16 = 24
	FuncJIR  uint16 = 25
	FuncNone uint16 = 31
)

const (
	R0 uint16 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
)

// NumRegisters is the size of the register file.
const NumRegisters = 8

// Role describes how the operands of an instruction map onto word fields.
type Role int

const (
	RoleNone     Role = iota // no operands
	RoleJump                 // rs = op1
	RoleImmLoad              // rd = op1, next word = immediate
	RoleDestSrc              // rd = op1, rs = op2
	RoleStore                // rt = op1, rs = op2
	RoleCondJump             // rs = op1 (condition), rt = op2 (target)
	RoleThreeReg             // rd = op1, rs = op2, rt = op3
)

// Meta is the encoding metadata of one mnemonic.
type Meta struct {
	Mnemonic string
	Args     int
	Opcode   uint16
	Func     uint16
	Role     Role
}

// Words returns how many instruction words the mnemonic occupies.
func (m Meta) Words() int {
	if m.Role == RoleImmLoad {
		return 2
	}
	return 1
}

var instructions = map[string]Meta{
	"NOP": {"NOP", 0, OpNOP, FuncNone, RoleNone},
	"HLT": {"HLT", 0, OpHLT, FuncNone, RoleNone},
	"LWI": {"LWI", 2, OpLWI, FuncNone, RoleImmLoad},

	"ADD": {"ADD", 3, OpR, FuncADD, RoleThreeReg},
	"SUB": {"SUB", 3, OpR, FuncSUB, RoleThreeReg},
	"AND": {"AND", 3, OpR, FuncAND, RoleThreeReg},
	"ORR": {"ORR", 3, OpR, FuncORR, RoleThreeReg},

	"TCP": {"TCP", 2, OpR, FuncTCP, RoleDestSrc},
	"NOT": {"NOT", 2, OpR, FuncNOT, RoleDestSrc},
	"SHL": {"SHL", 2, OpR, FuncSHL, RoleDestSrc},
	"SHR": {"SHR", 2, OpR, FuncSHR, RoleDestSrc},
	"LWD": {"LWD", 2, OpR, FuncLWD, RoleDestSrc},
	"MOV": {"MOV", 2, OpR, FuncMOV, RoleDestSrc},
	"MVH": {"MVH", 2, OpR, FuncMVH, RoleDestSrc},
	"MVL": {"MVL", 2, OpR, FuncMVL, RoleDestSrc},
	"JRL": {"JRL", 2, OpR, FuncJRL, RoleDestSrc},

	"SWD": {"SWD", 2, OpR, FuncSWD, RoleStore},

	"JNE": {"JNE", 2, OpR, FuncJNE, RoleCondJump},
	"JEQ": {"JEQ", 2, OpR, FuncJEQ, RoleCondJump},
	"JGZ": {"JGZ", 2, OpR, FuncJGZ, RoleCondJump},
	"JLZ": {"JLZ", 2, OpR, FuncJLZ, RoleCondJump},
	"JEZ": {"JEZ", 2, OpR, FuncJEZ, RoleCondJump},
	"JNZ": {"JNZ", 2, OpR, FuncJNZ, RoleCondJump},

	"JPR": {"JPR", 1, OpR, FuncJPR, RoleJump},
	"JIR": {"JIR", 1, OpR, FuncJIR, RoleJump},
}

// Lookup returns the metadata for a mnemonic. Mnemonics are case-insensitive.
func Lookup(mnemonic string) (Meta, bool) {
	m, ok := instructions[strings.ToUpper(mnemonic)]
	return m, ok
}

// Mnemonics returns every known mnemonic, unordered.
func Mnemonics() []string {
	out := make([]string, 0, len(instructions))
	for k := range instructions {
		out = append(out, k)
	}
	return out
}

// Register parses R0..R7 (case-insensitive).
func Register(token string) (uint16, bool) {
	if len(token) != 2 || (token[0] != 'R' && token[0] != 'r') {
		return 0, false
	}
	if token[1] < '0' || token[1] > '7' {
		return 0, false
	}
	return uint16(token[1] - '0'), true
}

// Encode packs the fields of one instruction word. Every field is masked to
// its width, so out-of-range values are truncated rather than rejected;
// the assembler validates operands before they get here.
func Encode(opcode, fn, rd, rs, rt uint16) uint16 {
	return (opcode&OpcodeMask)<<OpcodeShift |
		(rs&RegisterMask)<<RSShift |
		(rt&RegisterMask)<<RTShift |
		(rd&RegisterMask)<<RDShift |
		(fn&FuncMask)<<FuncShift
}

// Fields is an unpacked instruction word.
type Fields struct {
	Opcode uint16
	Func   uint16
	RD     uint16
	RS     uint16
	RT     uint16
}

// Decode splits a word back into its fields.
func Decode(word uint16) Fields {
	return Fields{
		Opcode: word >> OpcodeShift & OpcodeMask,
		RS:     word >> RSShift & RegisterMask,
		RT:     word >> RTShift & RegisterMask,
		RD:     word >> RDShift & RegisterMask,
		Func:   word >> FuncShift & FuncMask,
	}
}

// WordString renders a word as 16 binary digits, most significant first.
func WordString(word uint16) string {
	var b [16]byte
	for i := 0; i < 16; i++ {
		if word&(1<<(15-i)) != 0 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b[:])
}
