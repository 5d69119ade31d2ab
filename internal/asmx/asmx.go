// Package asmx builds the initial memory image from a laid-out program
// and translates its code section into encoded instruction words,
// orchestrating the full assemble pipeline.
package asmx

import (
	"fmt"
	"os"

	"rvm/internal/ast"
	"rvm/internal/errs"
	"rvm/internal/eval"
	"rvm/internal/inst"
	"rvm/internal/layout"
)

func buildMemorySection(section []ast.Line, symbols eval.SymbolTable, memory layout.MemoryLayout) error {
	return ast.IterateSection(section, func(line *ast.Line) error {
		switch line.Kind {
		case ast.Words:
			for offset, operand := range line.WordsData {
				address := line.BaseAddress + int32(offset)
				v, err := eval.Eval(operand, address, symbols)
				if err != nil {
					return err
				}
				memory[address] = v
			}

		case ast.Set:
			if line.Set.IsFixedAddress {
				v, err := eval.Eval(line.Set.Value, line.BaseAddress, symbols)
				if err != nil {
					return err
				}
				memory[line.BaseAddress] = v
			}
		}
		return nil
	})
}

// BuildMemory fills in the initial values of every data/bss memory cell
// that layout.ResolveSymbols already allocated an address for.
func BuildMemory(program *ast.Program, symbols eval.SymbolTable, memory layout.MemoryLayout) error {
	if err := buildMemorySection(program.Data, symbols, memory); err != nil {
		return err
	}
	return buildMemorySection(program.Bss, symbols, memory)
}

// Translate encodes every code-section line into its final 32-bit
// instruction word, and returns the program plus the entry address
// recorded by the sole `start` instruction. Exactly one `start` and one
// `stop` line are required.
func Translate(program *ast.Program, symbols eval.SymbolTable) ([]int32, int32, error) {
	var result []int32
	containsStart, containsStop := false, false
	entryAddress := int32(-1)

	err := ast.IterateSection(program.Code, func(line *ast.Line) error {
		instr := line.Instr

		switch instr.Mnemonic {
		case "start":
			if containsStart {
				return errs.NewStartStopPresence("start")
			}
			containsStart = true
			entryAddress = line.BaseAddress
		case "stop":
			if containsStop {
				return errs.NewStartStopPresence("stop")
			}
			containsStop = true
		}

		data, opcode, ok := inst.Lookup(instr.Mnemonic)
		if !ok {
			return errs.NewInvalidOperand("Unknown instruction mnemonic!")
		}

		word := opcode << inst.OperandWidth
		operand, err := eval.Eval(instr.Operand, line.BaseAddress, symbols)
		if err != nil {
			return err
		}

		switch data.OperandMode {
		case inst.Relative:
			operand = inst.OperandLowValue(operand - line.BaseAddress)
		case inst.Upper:
			operand = inst.OperandHighValue(operand)
		case inst.NoOperand:
			if operand != 0 {
				fmt.Fprintf(os.Stderr,
					"[WARNING] Line %d: Operand is discarded. Instruction %s does not accept an operand, but %d is provided.\n",
					line.LineNumber, instr.Mnemonic, operand)
				operand = 0
			}
		default:
			operand = inst.OperandLowValue(operand)
		}

		result = append(result, word|operand)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if !containsStart {
		return nil, 0, errs.NewStartStopPresence("start")
	}
	if !containsStop {
		return nil, 0, errs.NewStartStopPresence("stop")
	}

	return result, entryAddress, nil
}

// Assemble runs the full pipeline: resolve symbols and lay out memory,
// fill in initial memory contents, then translate code into encoded
// instruction words. The returned entry address is always the address
// of the program's `start` instruction (see the Open Question decision
// in SPEC_FULL.md — no named-entry-point override is supported).
func Assemble(program *ast.Program) (layout.MemoryLayout, []int32, int32, error) {
	memory := make(layout.MemoryLayout)

	symbols, err := layout.ResolveSymbols(program, memory, 0)
	if err != nil {
		return nil, nil, 0, err
	}

	if err := BuildMemory(program, symbols, memory); err != nil {
		return nil, nil, 0, err
	}

	code, entry, err := Translate(program, symbols)
	if err != nil {
		return nil, nil, 0, err
	}

	return memory, code, entry, nil
}
