package eval

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

func TestRestrictEvalConstantArithmetic(t *testing.T) {
	v, err := RestrictEval(ast.AddOp(ast.Const(3), ast.Const(4)))
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, v == 7, "expected 7, got %d", v)
}

func TestRestrictEvalRejectsSymbol(t *testing.T) {
	_, err := RestrictEval(ast.Leaf(ast.Sym("foo")))
	assert(t, err != nil, "expected an error evaluating a symbol without a table")
}

func TestEvalResolvesSymbol(t *testing.T) {
	symbols := SymbolTable{"foo": 42}
	v, err := Eval(ast.Leaf(ast.Sym("foo")), 0, symbols)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, v == 42, "expected 42, got %d", v)
}

func TestEvalUnknownSymbolFails(t *testing.T) {
	_, err := Eval(ast.Leaf(ast.Sym("missing")), 0, SymbolTable{})
	assert(t, err != nil, "expected an error for an unknown symbol")
}

func TestEvalRelativeUsesPosition(t *testing.T) {
	v, err := Eval(ast.Leaf(ast.Rel(4)), 100, SymbolTable{})
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, v == 104, "expected 104, got %d", v)
}

func TestEvalNoOperandIsZero(t *testing.T) {
	v, err := Eval(ast.None(), 0, SymbolTable{})
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, v == 0, "expected 0, got %d", v)
}

func TestEvalSubtractsSymbols(t *testing.T) {
	symbols := SymbolTable{"a": 10, "b": 3}
	v, err := Eval(ast.SubOp(ast.Sym("a"), ast.Sym("b")), 0, symbols)
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, v == 7, "expected 7, got %d", v)
}
