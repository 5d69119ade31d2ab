// Package source turns reversible-machine assembly text into an
// ast.Program. It is a thin, line-oriented front end: one source line
// produces at most one ast.Line, carrying any number of label
// declarations collected from preceding label-only lines plus an
// optional label written at the start of the line itself.
package source

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"rvm/internal/ast"
	"rvm/internal/errs"
	"rvm/internal/inst"
)

// Allows comments and surrounding whitespace to be stripped before any
// further tokenizing happens.
var comments = regexp.MustCompile(`//.*`)

var labelRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*:$`)
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type section int

const (
	sectionNone section = iota
	sectionCode
	sectionData
	sectionBss
)

// Parse reads a complete .rvm source file from r and returns its parsed
// Program.
func Parse(r io.Reader) (*ast.Program, error) {
	program := &ast.Program{}
	scanner := bufio.NewScanner(r)

	cur := sectionNone
	var pendingLabels []string
	lineNumber := int32(0)
	errorCount := 0

	for scanner.Scan() {
		lineNumber++
		raw := comments.ReplaceAllString(scanner.Text(), "")
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, ".") {
			switch strings.ToLower(text) {
			case ".code":
				cur = sectionCode
				continue
			case ".data":
				cur = sectionData
				continue
			case ".bss":
				cur = sectionBss
				continue
			}
		}

		if labelRe.MatchString(text) {
			pendingLabels = append(pendingLabels, strings.TrimSuffix(text, ":"))
			continue
		}
		if idx := strings.Index(text, ":"); idx > 0 && identRe.MatchString(text[:idx]) {
			pendingLabels = append(pendingLabels, text[:idx])
			text = strings.TrimSpace(text[idx+1:])
		}

		line, err := parseLine(text, lineNumber, pendingLabels)
		pendingLabels = nil
		if err != nil {
			errorCount++
			continue
		}

		switch cur {
		case sectionCode:
			program.Code = append(program.Code, *line)
		case sectionData:
			program.Data = append(program.Data, *line)
		case sectionBss:
			program.Bss = append(program.Bss, *line)
		default:
			errorCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if errorCount > 0 {
		return nil, errs.NewParseError(errorCount)
	}

	return program, nil
}

func parseLine(text string, lineNumber int32, labels []string) (*ast.Line, error) {
	line := &ast.Line{Labels: labels, LineNumber: lineNumber}

	switch {
	case strings.HasPrefix(text, ".reserve"):
		rest := strings.TrimSpace(strings.TrimPrefix(text, ".reserve"))
		operand, err := parseOperand(rest)
		if err != nil {
			return nil, err
		}
		line.Kind = ast.Reserved
		line.ReserveLen = operand
		return line, nil

	case strings.HasPrefix(text, ".word"):
		rest := strings.TrimSpace(strings.TrimPrefix(text, ".word"))
		parts := splitTopLevel(rest, ',')
		data := make([]ast.Operand, 0, len(parts))
		for _, p := range parts {
			operand, err := parseOperand(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			data = append(data, operand)
		}
		line.Kind = ast.Words
		line.WordsData = data
		return line, nil

	case strings.HasPrefix(text, ".set"):
		rest := strings.TrimSpace(strings.TrimPrefix(text, ".set"))
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return nil, errs.NewParseError(1)
		}
		target := strings.TrimSpace(rest[:eq])
		valueStr := strings.TrimSpace(rest[eq+1:])
		value, err := parseOperand(valueStr)
		if err != nil {
			return nil, err
		}
		line.Kind = ast.Set
		if identRe.MatchString(target) {
			line.Set.IsFixedAddress = false
			line.Set.Symbol = target
			line.Set.Value = value
		} else {
			addr, err := parseOperand(target)
			if err != nil {
				return nil, err
			}
			line.Set.IsFixedAddress = true
			line.Set.Address = addr
			line.Set.Value = value
		}
		return line, nil
	}

	// Otherwise: an instruction line, `mnemonic [operand]`.
	fields := strings.SplitN(text, " ", 2)
	mnemonic := fields[0]
	data, opcode, ok := inst.Lookup(mnemonic)
	if !ok {
		return nil, errs.NewInvalidOperand(fmt.Sprintf("Unknown instruction mnemonic '%s'.", mnemonic))
	}

	operand := ast.None()
	if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
		var err error
		operand, err = parseOperand(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, err
		}
	}

	// A relative-mode operand written as a bare integer literal names a
	// jump distance, not an absolute address — e.g. `brt +2` means "two
	// instructions from here", not "branch to instruction 2". Translation
	// always subtracts the line's own address back out of a relative-mode
	// operand, so a literal distance has to enter evaluation already
	// offset by the current position to survive that subtraction;
	// symbols and `$`-expressions need no such adjustment, since they
	// already evaluate to an absolute target address.
	if data.OperandMode == inst.Relative && operand.Variant == ast.Constant {
		operand = ast.Leaf(ast.Rel(operand.Prim.IntValue))
	}

	line.Kind = ast.Instruction
	line.Instr = ast.Instr{
		Mnemonic:    mnemonic,
		IsForward:   opcode == data.Opcode,
		Opcode:      opcode,
		OperandMode: int(data.OperandMode),
		Operand:     operand,
	}
	return line, nil
}

// splitTopLevel splits s on sep, ignoring separators inside single
// quotes (so `.word 'a', ','` treats the comma literal correctly).
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseOperand parses one operand expression: an integer literal
// (decimal, 0x-hex, or a quoted character), an identifier, the current
// position marker `$`, or `a + b` / `a - b` of two such primitives.
func parseOperand(s string) (ast.Operand, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ast.None(), nil
	}

	if idx := findTopLevelOp(s, '+'); idx >= 0 {
		lhs, err := parsePrimitive(strings.TrimSpace(s[:idx]))
		if err != nil {
			return ast.Operand{}, err
		}
		rhs, err := parsePrimitive(strings.TrimSpace(s[idx+1:]))
		if err != nil {
			return ast.Operand{}, err
		}
		return ast.AddOp(lhs, rhs), nil
	}
	if idx := findTopLevelOp(s, '-'); idx > 0 {
		lhs, err := parsePrimitive(strings.TrimSpace(s[:idx]))
		if err != nil {
			return ast.Operand{}, err
		}
		rhs, err := parsePrimitive(strings.TrimSpace(s[idx+1:]))
		if err != nil {
			return ast.Operand{}, err
		}
		return ast.SubOp(lhs, rhs), nil
	}

	p, err := parsePrimitive(s)
	if err != nil {
		return ast.Operand{}, err
	}
	return ast.Leaf(p), nil
}

// findTopLevelOp finds the index of op outside of quotes, skipping a
// leading position (so a leading `-` is treated as part of a negative
// literal, not a subtraction).
func findTopLevelOp(s string, op byte) int {
	inQuote := false
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case op:
			if !inQuote && s[i-1] == ' ' {
				return i
			}
		}
	}
	return -1
}

func parsePrimitive(s string) (ast.Primitive, error) {
	switch {
	case s == "$":
		return ast.Rel(0), nil

	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 3:
		r := []rune(s[1 : len(s)-1])
		if len(r) != 1 {
			return ast.Primitive{}, errs.NewInvalidOperand("Invalid character literal.")
		}
		return ast.Const(int32(r[0])), nil

	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		n, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return ast.Primitive{}, errs.NewInvalidOperand(fmt.Sprintf("Invalid hex literal '%s'.", s))
		}
		return ast.Const(int32(n)), nil

	case identRe.MatchString(s):
		return ast.Sym(s), nil

	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ast.Primitive{}, errs.NewInvalidOperand(fmt.Sprintf("Invalid operand '%s'.", s))
		}
		return ast.Const(int32(n)), nil
	}
}
