// Package eval evaluates operand expressions against a symbol table,
// or restricted to constant-only expressions where a symbol table is
// not yet available.
package eval

import (
	"rvm/internal/ast"
	"rvm/internal/errs"
)

// SymbolTable maps a symbol name to its resolved address or value.
type SymbolTable map[string]int32

func restrictEvalPrimitive(p ast.Primitive) (int32, error) {
	if p.Variant == ast.Constant {
		return p.IntValue, nil
	}
	return 0, errs.NewInvalidOperand("Restricted evaluation not possible.")
}

// RestrictEval evaluates an operand that must be constant-only — no
// symbol references or relative positions are allowed. Used while
// resolving `.set` addresses, before any symbol table exists.
func RestrictEval(o ast.Operand) (int32, error) {
	switch o.Variant {
	case ast.Symbol, ast.Constant, ast.Relative:
		return restrictEvalPrimitive(o.Prim)
	case ast.Add:
		l, err := restrictEvalPrimitive(o.Lhs)
		if err != nil {
			return 0, err
		}
		r, err := restrictEvalPrimitive(o.Rhs)
		if err != nil {
			return 0, err
		}
		return l + r, nil
	case ast.Sub:
		l, err := restrictEvalPrimitive(o.Lhs)
		if err != nil {
			return 0, err
		}
		r, err := restrictEvalPrimitive(o.Rhs)
		if err != nil {
			return 0, err
		}
		return l - r, nil
	default:
		return 0, errs.NewInvalidOperand("Not a valid operand.")
	}
}

func evalPrimitive(p ast.Primitive, position int32, symbols SymbolTable) (int32, error) {
	switch p.Variant {
	case ast.Symbol:
		v, ok := symbols[p.Name]
		if !ok {
			return 0, errs.NewInvalidOperand("Unknown symbol.")
		}
		return v, nil
	case ast.Constant:
		return p.IntValue, nil
	case ast.Relative:
		return position + p.IntValue, nil
	default:
		return 0, errs.NewInvalidOperand("Not a valid operand.")
	}
}

// Eval evaluates an operand at the given position (used to resolve
// Relative operands), looking up any symbol references in symbols.
func Eval(o ast.Operand, position int32, symbols SymbolTable) (int32, error) {
	switch o.Variant {
	case ast.Symbol, ast.Constant, ast.Relative:
		return evalPrimitive(o.Prim, position, symbols)
	case ast.NoOperand:
		return 0, nil
	case ast.Add:
		l, err := evalPrimitive(o.Lhs, position, symbols)
		if err != nil {
			return 0, err
		}
		r, err := evalPrimitive(o.Rhs, position, symbols)
		if err != nil {
			return 0, err
		}
		return l + r, nil
	case ast.Sub:
		l, err := evalPrimitive(o.Lhs, position, symbols)
		if err != nil {
			return 0, err
		}
		r, err := evalPrimitive(o.Rhs, position, symbols)
		if err != nil {
			return 0, err
		}
		return l - r, nil
	default:
		return 0, errs.NewInvalidOperand("Not a valid operand.")
	}
}
