// Package layout implements symbol resolution and memory layout: the
// three-pass walk that assigns every label and directive a concrete
// address before translation can run.
package layout

import (
	"rvm/internal/ast"
	"rvm/internal/errs"
	"rvm/internal/eval"
)

// MemoryLayout maps a resolved address to the word stored there. It
// also doubles as the allocator's collision table: an address present
// in the map (regardless of value) is considered taken.
type MemoryLayout map[int32]int32

const defaultMemoryValue int32 = 0

// AllocateRange reserves size consecutive addresses starting at
// *baseAddress, skipping over any addresses already present in layout
// and retrying just past the highest collision found — mirroring the
// original allocator's scan-from-the-top-down-then-retry recursion.
// On success it advances *baseAddress past the allocated range and
// returns the range's start address.
func AllocateRange(layout MemoryLayout, baseAddress *int32, size int32) (int32, error) {
	if size < 0 || *baseAddress+size < 0 {
		return 0, errs.NewInvalidArgument("Requested memory cannot be allocated with current layout.")
	}

	for address := *baseAddress + size - 1; address >= *baseAddress; address-- {
		if _, taken := layout[address]; taken {
			*baseAddress = address + 1
			return AllocateRange(layout, baseAddress, size)
		}
	}

	for address := *baseAddress; address < *baseAddress+size; address++ {
		layout[address] = defaultMemoryValue
	}

	result := *baseAddress
	*baseAddress += size
	return result, nil
}

func enterSymbol(symbols eval.SymbolTable, name string, value int32) error {
	if _, exists := symbols[name]; exists {
		return errs.NewSymbolRedefinition(name)
	}
	symbols[name] = value
	return nil
}

func enterSymbols(symbols eval.SymbolTable, line *ast.Line, address int32) error {
	line.BaseAddress = address
	for _, label := range line.Labels {
		if err := enterSymbol(symbols, label, address); err != nil {
			return err
		}
	}
	return nil
}

// layoutFixed assigns addresses to `.set addr = value` directives
// (fixed memory cells) and their labels, and assigns a value to `.set
// symbol = value` directives (pure symbol definitions, no memory
// backing). Must run before the flowing passes so fixed cells can be
// excluded from later allocation.
func layoutFixed(memory MemoryLayout, symbols eval.SymbolTable, section []ast.Line) error {
	return ast.IterateSection(section, func(line *ast.Line) error {
		if line.Kind != ast.Set {
			return nil
		}
		if line.Set.IsFixedAddress {
			address, err := eval.RestrictEval(line.Set.Address)
			if err != nil {
				return err
			}
			if _, taken := memory[address]; taken {
				return errs.NewSetAddressClash(address)
			}
			memory[address] = defaultMemoryValue
			return enterSymbols(symbols, line, address)
		}

		value, err := eval.RestrictEval(line.Set.Value)
		if err != nil {
			return err
		}
		if err := enterSymbol(symbols, line.Set.Symbol, value); err != nil {
			return err
		}
		return enterSymbols(symbols, line, value)
	})
}

// layoutSection walks section assigning flowing addresses starting at
// *baseAddress, advancing it as it goes. allowedMask restricts which
// line kinds are legal in this section.
func layoutSection(memory MemoryLayout, symbols eval.SymbolTable, section []ast.Line, baseAddress *int32, allowedMask ast.LineKind) error {
	return ast.IterateSection(section, func(line *ast.Line) error {
		if line.Kind&allowedMask != line.Kind {
			return errs.NewIllegalSectionContent()
		}

		switch line.Kind {
		case ast.Instruction:
			if err := enterSymbols(symbols, line, *baseAddress); err != nil {
				return err
			}
			*baseAddress++

		case ast.Reserved:
			size, err := eval.RestrictEval(line.ReserveLen)
			if err != nil {
				return err
			}
			addr, err := AllocateRange(memory, baseAddress, size)
			if err != nil {
				return err
			}
			return enterSymbols(symbols, line, addr)

		case ast.Words:
			size := int32(len(line.WordsData))
			addr, err := AllocateRange(memory, baseAddress, size)
			if err != nil {
				return err
			}
			return enterSymbols(symbols, line, addr)

		case ast.Set:
			// Already handled by layoutFixed.
		}
		return nil
	})
}

// ResolveSymbols runs the full three-pass layout: fixed `.set`
// addresses in data, then flowing data (`.word`/`.set` symbols), then
// flowing bss (`.reserve`), then flowing code (one address per
// instruction, 0-based). It returns the resolved symbol table.
func ResolveSymbols(program *ast.Program, memory MemoryLayout, baseAddress int32) (eval.SymbolTable, error) {
	symbols := make(eval.SymbolTable)

	if err := layoutFixed(memory, symbols, program.Data); err != nil {
		return nil, err
	}
	if err := layoutSection(memory, symbols, program.Data, &baseAddress, ast.Words|ast.Set); err != nil {
		return nil, err
	}
	if err := layoutSection(memory, symbols, program.Bss, &baseAddress, ast.Reserved); err != nil {
		return nil, err
	}

	instructionCount := int32(0)
	if err := layoutSection(memory, symbols, program.Code, &instructionCount, ast.Instruction); err != nil {
		return nil, err
	}

	return symbols, nil
}
