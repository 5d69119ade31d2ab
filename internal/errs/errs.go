// Package errs defines the error taxonomy shared by the assembler and
// the virtual machine. Every error optionally carries the source line
// number it was raised for, attached once via WithLine and never
// overwritten afterwards.
package errs

import "fmt"

// Kind identifies which class of error occurred, so callers can branch
// on failure mode without string-matching messages.
type Kind int

const (
	ParseError Kind = iota
	SymbolRedefinition
	SetAddressClash
	InvalidOperand
	IllegalSectionContent
	StartStopPresence
	OutOfMemory
	IllegalInstruction
	StackUnderflow
	StackOverflow
	DomainError
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case SymbolRedefinition:
		return "SymbolRedefinition"
	case SetAddressClash:
		return "SetAddressClash"
	case InvalidOperand:
		return "InvalidOperand"
	case IllegalSectionContent:
		return "IllegalSectionContent"
	case StartStopPresence:
		return "StartStopPresence"
	case OutOfMemory:
		return "OutOfMemory"
	case IllegalInstruction:
		return "IllegalInstruction"
	case StackUnderflow:
		return "StackUnderflow"
	case StackOverflow:
		return "StackOverflow"
	case DomainError:
		return "DomainError"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type raised throughout the assembler and
// machine packages.
type Error struct {
	Kind    Kind
	Line    int32 // -1 if not attributed to a source line
	message string
}

func (e *Error) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("Line %d: %s", e.Line, e.message)
	}
	return e.message
}

// WithLine attaches a source line number to err if it is an *Error that
// does not already have one, returning err unchanged otherwise. This
// mirrors error_message::setLineNumber's "first attribution wins" rule.
func WithLine(err error, line int32) error {
	e, ok := err.(*Error)
	if !ok || e.Line >= 0 {
		return err
	}
	return &Error{Kind: e.Kind, Line: line, message: e.message}
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: -1, message: fmt.Sprintf(format, args...)}
}

func NewParseError(count int) error {
	return newErr(ParseError, "Detected %d syntax error(s).", count)
}

func NewSymbolRedefinition(symbol string) error {
	return newErr(SymbolRedefinition, "Redefinition of '%s' is not allowed!", symbol)
}

func NewSetAddressClash(address int32) error {
	return newErr(SetAddressClash, "Directive .set clashes on address %d", address)
}

func NewInvalidOperand(message string) error {
	return newErr(InvalidOperand, "Operand cannot be evaluated: %s", message)
}

func NewIllegalSectionContent() error {
	return newErr(IllegalSectionContent, "Section contains illegal content.")
}

func NewStartStopPresence(mnemonic string) error {
	return newErr(StartStopPresence, "Programs must define exactly 1 %s instruction.", mnemonic)
}

func NewOutOfMemory(minRequired, maxRequired int) error {
	return newErr(OutOfMemory,
		"Insufficient memory allocated for program execution. Program expects at least %d words of memory.",
		maxRequired-minRequired)
}

func NewIllegalInstruction(instruction, opcode int32) error {
	return newErr(IllegalInstruction, "Cannot execute illegal instruction %x with opcode %x.", instruction, opcode)
}

func NewStackUnderflow() error {
	return newErr(StackUnderflow, "Stack underflow. Not enough elements on the stack.")
}

func NewStackOverflow() error {
	return newErr(StackOverflow, "Stack overflow. Capacity exceeded.")
}

func NewDomainError(expected, actual int32) error {
	return newErr(DomainError, "Value is supposed to be %d but actual value is %d", expected, actual)
}

func NewInvalidArgument(format string, args ...any) error {
	return newErr(InvalidArgument, format, args...)
}
