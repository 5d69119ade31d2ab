// Package inst defines the reversible instruction set: opcode numbers,
// mnemonics, operand modes and the bit layout of an encoded instruction
// word.
package inst

// An encoded instruction word packs a 16-bit opcode into the high bits
// and a 16-bit operand into the low bits.
const (
	OpcodeWidth  = 16
	OperandWidth = 32 - OpcodeWidth
)

func setNBits(n int32) int32 {
	var result int32
	for i := int32(0); i < n; i++ {
		result = 1 | (result << 1)
	}
	return result
}

var (
	OperandWidthMask         = setNBits(OperandWidth)
	SignlessOperandWidthMask = setNBits(OperandWidth - 1)
	OpcodeWidthMask          = setNBits(OpcodeWidth)
	OperandSign       int32  = 1 << (OperandWidth - 1)
	SignExtendMask           = ^OpcodeWidthMask
)

// DirectionBit distinguishes the forward and backward variant of an
// instruction pair within its opcode.
const DirectionBit int32 = 1 << (OpcodeWidth - 1)

// Inverse returns the backward variant of a forward opcode, and vice versa.
func Inverse(opcode int32) int32 {
	return opcode ^ DirectionBit
}

// OperandLowValue extracts the lower OperandWidth bits of a word as a
// signed operand.
func OperandLowValue(operand int32) int32 {
	return (operand & SignlessOperandWidthMask) | (OperandSign & (operand >> OpcodeWidth))
}

// OperandHighValue extracts the upper OperandWidth bits of a word as an
// operand suitable for xorhc, undoing the sign extension that
// OperandLowValue would have applied to the lower half.
func OperandHighValue(operand int32) int32 {
	higherBits := OperandWidthMask & (operand >> (OperandWidth - 1))
	if operand < 0 {
		higherBits = OpcodeWidthMask & ^higherBits
	}
	return higherBits
}

// SignExtend widens an OperandWidth-bit operand to a full word, preserving sign.
func SignExtend(operand int32) int32 {
	if operand&OperandSign != 0 {
		return SignExtendMask | operand
	}
	return operand
}

// OperandMode determines how an instruction's operand is produced during
// translation and interpreted during encoding.
type OperandMode int

const (
	NoOperand OperandMode = iota
	Absolute
	Relative
	Upper
)

// Data describes one forward/backward instruction pair.
type Data struct {
	FwMnemonic  string
	BwMnemonic  string
	OperandMode OperandMode
	Opcode      int32
}

// KnownInstructions is the full reversible instruction set, indexed by
// opcode. Opcode i's backward variant is encoded as Inverse(i).
var KnownInstructions = []Data{
	{"start", "stop", NoOperand, 0},
	{"nop", "nop", NoOperand, 1},

	{"pushc", "popc", Absolute, 2},

	{"dup", "undup", NoOperand, 3},
	{"swap", "swap", NoOperand, 4},
	{"bury", "dig", NoOperand, 5},

	{"allocpar", "releasepar", Absolute, 6},

	{"asf", "rsf", Absolute, 7},
	{"pushl", "popl", Absolute, 8},

	{"call", "call", NoOperand, 9},
	{"uncall", "uncall", NoOperand, 10},
	{"branch", "branch", Relative, 11},
	{"brt", "brt", Relative, 12},
	{"brf", "brf", Relative, 13},

	{"pushtrue", "poptrue", NoOperand, 14},
	{"pushfalse", "popfalse", NoOperand, 15},

	{"cmpusheq", "cmpopeq", NoOperand, 16},
	{"cmpushne", "cmpopne", NoOperand, 17},
	{"cmpushlt", "cmpoplt", NoOperand, 18},
	{"cmpushle", "cmpople", NoOperand, 19},

	{"inc", "dec", Absolute, 20},
	{"neg", "neg", NoOperand, 21},

	{"add", "sub", NoOperand, 22},
	{"xor", "xor", NoOperand, 23},
	{"shl", "shr", NoOperand, 24},

	{"arpushadd", "arpopadd", NoOperand, 25},
	{"arpushsub", "arpopsub", NoOperand, 26},
	{"arpushmul", "arpopmul", NoOperand, 27},
	{"arpushdiv", "arpopdiv", NoOperand, 28},
	{"arpushmod", "arpopmod", NoOperand, 29},
	{"arpushand", "arpopand", NoOperand, 30},
	{"arpushor", "arpopor", NoOperand, 31},

	{"pushm", "popm", Absolute, 32},
	{"load", "store", Absolute, 33},
	{"memswap", "memswap", NoOperand, 34},

	{"xorhc", "xorhc", Upper, 35},
}

var (
	byMnemonic map[string]mnemonicLookup
)

type mnemonicLookup struct {
	data      *Data
	isForward bool
}

func init() {
	byMnemonic = make(map[string]mnemonicLookup, len(KnownInstructions)*2)
	for i := range KnownInstructions {
		d := &KnownInstructions[i]
		byMnemonic[d.FwMnemonic] = mnemonicLookup{d, true}
		byMnemonic[d.BwMnemonic] = mnemonicLookup{d, false}
	}
}

// Lookup resolves a mnemonic (forward or backward) to its instruction data
// and the opcode that should be encoded for that mnemonic.
func Lookup(mnemonic string) (data *Data, opcode int32, ok bool) {
	m, ok := byMnemonic[mnemonic]
	if !ok {
		return nil, 0, false
	}
	if m.isForward {
		return m.data, m.data.Opcode, true
	}
	return m.data, Inverse(m.data.Opcode), true
}

// At returns the instruction data for a raw opcode, stripping the
// direction bit first, along with whether the opcode names the forward
// or backward variant.
func At(opcode int32) (data *Data, isForward bool, ok bool) {
	base := opcode &^ DirectionBit
	if base < 0 || int(base) >= len(KnownInstructions) {
		return nil, false, false
	}
	d := &KnownInstructions[base]
	return d, opcode&DirectionBit == 0, true
}

// Mnemonic returns the textual mnemonic for a raw opcode.
func Mnemonic(opcode int32) (string, bool) {
	data, isForward, ok := At(opcode)
	if !ok {
		return "", false
	}
	if isForward {
		return data.FwMnemonic, true
	}
	return data.BwMnemonic, true
}
