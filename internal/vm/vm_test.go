package vm

import (
	"fmt"
	"strings"
	"testing"

	"rvm/internal/asmx"
	"rvm/internal/source"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func assembleAndRun(t *testing.T, src string) *VM {
	t.Helper()
	program, err := source.Parse(strings.NewReader(src))
	assert(t, err == nil, "unexpected parse error: %v", err)

	layout, code, entry, err := asmx.Assemble(program)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	m, err := New(code, layout, 256, 256, entry)
	assert(t, err == nil, "unexpected vm.New error: %v", err)
	assert(t, m.Run() == nil, "unexpected run error")
	return m
}

func TestPushAddLeavesExpectedResultOnStack(t *testing.T) {
	m := assembleAndRun(t, `
.code
start
pushc 3
pushc 4
add
stop
`)
	assert(t, m.SP == 2, "expected 2 values on stack, got %d", m.SP)
	assert(t, m.Stack[1] == 7, "expected 7 on top of stack, got %d", m.Stack[1])
}

func TestForwardThenBackwardRestoresInitialState(t *testing.T) {
	src := `
.code
start
pushc 3
pushc 4
popc 4
popc 3
stop
`
	program, err := source.Parse(strings.NewReader(src))
	assert(t, err == nil, "unexpected parse error: %v", err)

	layout, code, entry, err := asmx.Assemble(program)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	m, err := New(code, layout, 256, 256, entry)
	assert(t, err == nil, "unexpected vm.New error: %v", err)
	assert(t, m.Run() == nil, "unexpected forward run error")
	assert(t, m.SP == 0, "expected empty stack after forward+reverse pops, got sp=%d", m.SP)
	assert(t, !m.Running, "expected machine stopped after forward run")

	// Invert direction and run back to the start instruction.
	m.Dir = m.Dir.Invert()
	m.StepPC()
	assert(t, m.Run() == nil, "unexpected backward run error")

	// The backward run leaves pc one step before start; inverting once
	// more steps it back onto the entry.
	m.Dir = m.Dir.Invert()
	m.StepPC()
	assert(t, m.PC == entry, "expected pc to return to entry %d, got %d", entry, m.PC)
	assert(t, m.SP == 0, "expected stack restored to empty, got sp=%d", m.SP)
}

func TestPopcMismatchIsDomainError(t *testing.T) {
	program, err := source.Parse(strings.NewReader(`
.code
start
pushc 3
popc 4
stop
`))
	assert(t, err == nil, "unexpected parse error: %v", err)

	layout, code, entry, err := asmx.Assemble(program)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	m, err := New(code, layout, 256, 256, entry)
	assert(t, err == nil, "unexpected vm.New error: %v", err)
	err = m.Run()
	assert(t, err != nil, "expected a domain error popping a mismatched constant")
}

func TestStackOverflowIsReported(t *testing.T) {
	program, err := source.Parse(strings.NewReader(`
.code
start
pushc 1
pushc 1
stop
`))
	assert(t, err == nil, "unexpected parse error: %v", err)

	layout, code, entry, err := asmx.Assemble(program)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	m, err := New(code, layout, 256, 1, entry)
	assert(t, err == nil, "unexpected vm.New error: %v", err)
	err = m.Run()
	assert(t, err != nil, "expected a stack overflow error with a 1-word stack")
}

func TestNewRejectsLayoutBeyondMemoryCapacity(t *testing.T) {
	_, err := New(nil, map[int32]int32{10: 1}, 4, 4, 0)
	assert(t, err != nil, "expected an out-of-memory error when a layout address exceeds memorySize")
}

func TestShlRotatesLeft(t *testing.T) {
	program, err := source.Parse(strings.NewReader(`
.code
start
pushc 4
pushc 1
shl
stop
`))
	assert(t, err == nil, "unexpected parse error: %v", err)

	layout, code, entry, err := asmx.Assemble(program)
	assert(t, err == nil, "unexpected assemble error: %v", err)

	m, err := New(code, layout, 256, 256, entry)
	assert(t, err == nil, "unexpected vm.New error: %v", err)
	assert(t, m.Run() == nil, "unexpected run error")
	assert(t, m.Stack[1] == 1<<4, "expected 1 rotated left by 4 == 16, got %d", m.Stack[1])
}
