// Package ast defines the parsed representation of a reversible-machine
// assembly program: sections of lines, each either an instruction, a
// reserved-words directive, a words directive, or a fixed-address set
// directive, together with the depth-2 operand expression grammar.
package ast

import "rvm/internal/errs"

// Variant tags a PrimitiveOperand or Operand node.
type Variant int

const (
	NoOperand Variant = iota
	Symbol
	Constant
	Relative
	Add
	Sub
)

// Primitive is a leaf operand: a symbol reference, an integer constant,
// or a position-relative offset (the assembler's "$" token).
type Primitive struct {
	Variant  Variant
	Name     string // set when Variant == Symbol
	IntValue int32  // set when Variant == Constant or Variant == Relative
}

func Sym(name string) Primitive       { return Primitive{Variant: Symbol, Name: name} }
func Const(v int32) Primitive         { return Primitive{Variant: Constant, IntValue: v} }
func Rel(v int32) Primitive           { return Primitive{Variant: Relative, IntValue: v} }

// Operand is either a bare Primitive or the sum/difference of two
// Primitives — the grammar never nests deeper than this.
type Operand struct {
	Variant Variant
	Prim    Primitive // valid when Variant is NoOperand/Symbol/Constant/Relative
	Lhs     Primitive // valid when Variant is Add/Sub
	Rhs     Primitive
}

func None() Operand                  { return Operand{Variant: NoOperand} }
func Leaf(p Primitive) Operand        { return Operand{Variant: p.Variant, Prim: p} }
func AddOp(lhs, rhs Primitive) Operand { return Operand{Variant: Add, Lhs: lhs, Rhs: rhs} }
func SubOp(lhs, rhs Primitive) Operand { return Operand{Variant: Sub, Lhs: lhs, Rhs: rhs} }

// LineKind discriminates the four directive shapes a Line can hold.
// Section masks below match the original bit-flag layout so layout
// code can combine them with a bitwise OR when restricting which kinds
// of line a section may contain.
type LineKind int32

const (
	Instruction LineKind = 1
	Reserved    LineKind = 2
	Words       LineKind = 4
	Set         LineKind = 8
)

// Instr holds an instruction line's mnemonic resolution and operand.
type Instr struct {
	Mnemonic  string // the mnemonic as written, forward or backward
	IsForward bool
	Opcode    int32
	OperandMode int
	Operand   Operand
}

// SetValue holds a `.set` directive's target (symbol name or fixed
// address) and the value assigned to it.
type SetValue struct {
	IsFixedAddress bool // true when the target is a literal/constant address
	Symbol         string
	Address        Operand // valid when IsFixedAddress
	Value          Operand
}

// Line is one source line: zero or more labels, plus exactly one of the
// directive payloads selected by Kind.
type Line struct {
	Labels      []string
	LineNumber  int32
	BaseAddress int32

	Kind LineKind

	Instr      Instr    // Kind == Instruction
	ReserveLen Operand  // Kind == Reserved
	WordsData  []Operand // Kind == Words
	Set        SetValue // Kind == Set
}

// Program is a fully parsed source file split into its three sections.
type Program struct {
	Code []Line
	Data []Line
	Bss  []Line
}

// IterateSection calls fn for each line in section, attributing any
// error fn returns with that line's source line number — mirroring
// Syntax.cpp's iterate_section catch-and-annotate behavior, but using a
// returned error instead of an exception.
func IterateSection(section []Line, fn func(*Line) error) error {
	for i := range section {
		if err := fn(&section[i]); err != nil {
			return errs.WithLine(err, section[i].LineNumber)
		}
	}
	return nil
}
