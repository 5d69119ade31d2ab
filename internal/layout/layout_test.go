package layout

import (
	"fmt"
	"testing"

	"rvm/internal/ast"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestAllocateRangeSkipsCollisions(t *testing.T) {
	memory := MemoryLayout{5: 0, 6: 0}
	base := int32(0)

	addr, err := AllocateRange(memory, &base, 3)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, addr == 0, "expected allocation at 0, got %d", addr)
	assert(t, base == 3, "expected base_address to advance to 3, got %d", base)

	// Next allocation of size 3 would span [3,6) and collide with 5; the
	// retry at [6,9) collides with 6, so the allocator lands past it at 7.
	addr2, err := AllocateRange(memory, &base, 3)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, addr2 == 7, "expected reallocation at 7 after collision, got %d", addr2)
}

func TestResolveSymbolsThreePass(t *testing.T) {
	program := &ast.Program{
		Data: []ast.Line{
			{Labels: []string{"buf"}, Kind: ast.Words, WordsData: []ast.Operand{ast.Leaf(ast.Const(1)), ast.Leaf(ast.Const(2))}},
		},
		Bss: []ast.Line{
			{Labels: []string{"scratch"}, Kind: ast.Reserved, ReserveLen: ast.Leaf(ast.Const(4))},
		},
		Code: []ast.Line{
			{Labels: []string{"entry"}, Kind: ast.Instruction, Instr: ast.Instr{Mnemonic: "start"}},
			{Kind: ast.Instruction, Instr: ast.Instr{Mnemonic: "stop"}},
		},
	}

	memory := make(MemoryLayout)
	symbols, err := ResolveSymbols(program, memory, 0)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, symbols["buf"] == 0, "expected buf at address 0, got %d", symbols["buf"])
	assert(t, symbols["scratch"] == 2, "expected scratch at address 2 (bss flows on after data), got %d", symbols["scratch"])
	assert(t, symbols["entry"] == 0, "expected entry at instruction index 0, got %d", symbols["entry"])
	assert(t, program.Code[1].BaseAddress == 1, "expected second instruction at index 1, got %d", program.Code[1].BaseAddress)
}

func TestResolveSymbolsDetectsRedefinition(t *testing.T) {
	program := &ast.Program{
		Data: []ast.Line{
			{Labels: []string{"x"}, Kind: ast.Words, WordsData: []ast.Operand{ast.Leaf(ast.Const(1))}},
			{Labels: []string{"x"}, Kind: ast.Words, WordsData: []ast.Operand{ast.Leaf(ast.Const(2))}},
		},
	}
	_, err := ResolveSymbols(program, make(MemoryLayout), 0)
	assert(t, err != nil, "expected a symbol redefinition error")
}

func TestResolveSymbolsRejectsIllegalSectionContent(t *testing.T) {
	program := &ast.Program{
		Bss: []ast.Line{
			{Kind: ast.Words, WordsData: []ast.Operand{ast.Leaf(ast.Const(1))}},
		},
	}
	_, err := ResolveSymbols(program, make(MemoryLayout), 0)
	assert(t, err != nil, "expected bss to reject a .word directive")
}
