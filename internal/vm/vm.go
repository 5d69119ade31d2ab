// Package vm implements the reversible stack machine: a bijective
// interpreter where every forward instruction has a well-defined
// backward inverse, selected by a single direction bit in the opcode.
package vm

import (
	"math/bits"

	"rvm/internal/errs"
	"rvm/internal/inst"
)

// Direction is the machine's current execution direction. Running a
// program forward from start to stop, then backward from stop to
// start, must restore the machine to its initial state.
type Direction int32

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) Invert() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "Forward"
	}
	return "Backward"
}

// Boolean encoding used by the comparison and push/pop-true/false
// instructions: True is encoded as Backward's numeric value, False as
// Forward's — this lets `uncall` flip a direction and a boolean with
// the same negation.
const (
	True  int32 = int32(Backward)
	False int32 = int32(Forward)
)

// VM holds the complete, fully reversible machine state.
type VM struct {
	Dir Direction
	PC  int32
	BR  int32

	SP int32
	FP int32

	// FrameDepth counts stack frames opened by asf and not yet closed
	// by rsf. It is purely derived state (incremented by asf,
	// decremented by rsf, regardless of execution direction) kept for
	// callers such as the debugger that need to tell an active frame
	// apart from a top-level stack sitting at fp=0.
	FrameDepth int32

	Memory []int32
	Stack  []int32

	Running bool
	Counter uint64

	Program []int32
}

// New creates a machine ready to execute program, with its memory
// preloaded from layout and execution starting at pc. memorySize must
// be large enough to hold every address named in layout, or an
// OutOfMemory error is returned.
func New(program []int32, layout map[int32]int32, memorySize, stackSize int, pc int32) (*VM, error) {
	maxAddress := int32(-1)
	for address := range layout {
		if address > maxAddress {
			maxAddress = address
		}
	}
	if maxAddress >= int32(memorySize) {
		return nil, errs.NewOutOfMemory(0, int(maxAddress)+1)
	}

	m := &VM{
		Dir:     Forward,
		PC:      pc,
		Memory:  make([]int32, memorySize),
		Stack:   make([]int32, stackSize),
		Program: program,
	}
	for address, value := range layout {
		m.Memory[address] = value
	}
	return m, nil
}

func (m *VM) requireParams(n int32) error {
	if m.SP < n {
		return errs.NewStackUnderflow()
	}
	return nil
}

func (m *VM) requireCapacity(n int32) error {
	if int32(len(m.Stack))-m.SP <= n {
		return errs.NewStackOverflow()
	}
	return nil
}

func assertPositive(n int32) error {
	if n < 0 {
		return errs.NewInvalidArgument("Negative operands are not supported for stack allocation instructions.")
	}
	return nil
}

func (m *VM) memAt(address int32) (*int32, error) {
	if address < 0 || int(address) >= len(m.Memory) {
		return nil, errs.NewInvalidArgument("Memory address %d out of range.", address)
	}
	return &m.Memory[address], nil
}

func (m *VM) stackAt(address int32) (*int32, error) {
	if address < 0 || int(address) >= len(m.Stack) {
		return nil, errs.NewInvalidArgument("Stack address %d out of range.", address)
	}
	return &m.Stack[address], nil
}

// StepPC advances the program counter by the branch register's
// magnitude (or by a single step if BR is zero), in the current
// direction.
func (m *VM) StepPC() {
	if m.BR == 0 {
		m.PC += int32(m.Dir)
	} else {
		m.PC += int32(m.Dir) * m.BR
	}
}

// Step executes exactly one instruction and advances the program
// counter.
func (m *VM) Step() error {
	m.Counter++
	if err := m.stepInstr(); err != nil {
		return err
	}
	m.StepPC()
	return nil
}

// Run executes instructions until the machine's Running flag is
// cleared by a `stop`/`start` transition.
func (m *VM) Run() error {
	for {
		if err := m.Step(); err != nil {
			return err
		}
		if !m.Running {
			return nil
		}
	}
}

func (m *VM) stepInstr() error {
	if m.PC < 0 || int(m.PC) >= len(m.Program) {
		return errs.NewInvalidArgument("Program counter %d out of range.", m.PC)
	}
	instruction := m.Program[m.PC]
	operand := inst.SignExtend(instruction & inst.OperandWidthMask)
	opcode := (instruction >> inst.OperandWidth) & inst.OpcodeWidthMask

	effective := opcode
	if m.Dir == Backward {
		effective = inst.Inverse(opcode)
	}

	data, isForward, ok := inst.At(effective)
	if !ok {
		return errs.NewIllegalInstruction(instruction, opcode)
	}

	switch data.Opcode {
	case 0: // start / stop
		if isForward {
			if m.Running {
				return errs.NewInvalidArgument("Executed 'start' instruction on machine already running.")
			}
			m.Running = true
		} else {
			if !m.Running {
				return errs.NewInvalidArgument("Executed 'stop' instruction on machine that is not running.")
			}
			m.Running = false
		}

	case 1: // nop / nop
		// no-op

	case 2: // pushc / popc
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			m.Stack[m.SP] = operand
			m.SP++
		} else {
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.SP--
			if err := clear(&m.Stack[m.SP], operand); err != nil {
				return err
			}
		}

	case 3: // dup / undup
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.Stack[m.SP] = m.Stack[m.SP-1]
			m.SP++
		} else {
			if err := m.requireParams(2); err != nil {
				return err
			}
			m.SP--
			if err := clear(&m.Stack[m.SP], m.Stack[m.SP-1]); err != nil {
				return err
			}
		}

	case 4: // swap / swap
		if err := m.requireParams(2); err != nil {
			return err
		}
		m.Stack[m.SP-1], m.Stack[m.SP-2] = m.Stack[m.SP-2], m.Stack[m.SP-1]

	case 5: // bury / dig
		if err := m.requireParams(3); err != nil {
			return err
		}
		sp1, sp2, sp3 := m.Stack[m.SP-1], m.Stack[m.SP-2], m.Stack[m.SP-3]
		if isForward {
			m.Stack[m.SP-3] = sp1
			m.Stack[m.SP-2] = sp3
			m.Stack[m.SP-1] = sp2
		} else {
			m.Stack[m.SP-1] = sp3
			m.Stack[m.SP-2] = sp1
			m.Stack[m.SP-3] = sp2
		}

	case 6: // allocpar / releasepar
		if err := assertPositive(operand); err != nil {
			return err
		}
		if isForward {
			if err := m.requireCapacity(operand); err != nil {
				return err
			}
			m.SP += operand
		} else {
			if err := m.requireParams(operand); err != nil {
				return err
			}
			for i := int32(1); i <= operand; i++ {
				if err := clear(&m.Stack[m.SP-i], 0); err != nil {
					return err
				}
			}
			m.SP -= operand
		}

	case 7: // asf / rsf
		if err := assertPositive(operand); err != nil {
			return err
		}
		if isForward {
			if err := m.requireCapacity(operand + 1); err != nil {
				return err
			}
			m.Stack[m.SP] = m.FP
			m.FP = m.SP
			m.SP += operand + 1
			m.FrameDepth++
		} else {
			if err := m.requireParams(operand + 1); err != nil {
				return err
			}
			for i := int32(1); i <= operand; i++ {
				if err := clear(&m.Stack[m.SP-i], 0); err != nil {
					return err
				}
			}
			m.SP -= operand + 1
			if err := clear(&m.FP, m.SP); err != nil {
				return err
			}
			m.FP, m.Stack[m.SP] = m.Stack[m.SP], m.FP
			m.FrameDepth--
		}

	case 8: // pushl / popl
		slot, err := m.stackAt(m.FP + operand)
		if err != nil {
			return err
		}
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			m.Stack[m.SP], *slot = *slot, m.Stack[m.SP]
			m.SP++
		} else {
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.SP--
			m.Stack[m.SP], *slot = *slot, m.Stack[m.SP]
			if err := clear(&m.Stack[m.SP], 0); err != nil {
				return err
			}
		}

	case 9: // call / call
		if err := m.requireParams(1); err != nil {
			return err
		}
		m.BR, m.Stack[m.SP-1] = m.Stack[m.SP-1], m.BR

	case 10: // uncall / uncall
		if err := m.requireParams(1); err != nil {
			return err
		}
		m.BR = -m.BR
		m.Stack[m.SP-1] = -m.Stack[m.SP-1]
		m.BR, m.Stack[m.SP-1] = m.Stack[m.SP-1], m.BR
		m.Dir = m.Dir.Invert()

	case 11: // branch / branch
		m.BR += int32(m.Dir) * operand

	case 12: // brt / brt
		if err := m.requireParams(1); err != nil {
			return err
		}
		if m.Stack[m.SP-1] == True {
			m.BR += int32(m.Dir) * operand
		}

	case 13: // brf / brf
		if err := m.requireParams(1); err != nil {
			return err
		}
		if m.Stack[m.SP-1] == False {
			m.BR += int32(m.Dir) * operand
		}

	case 14: // pushtrue / poptrue
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			m.Stack[m.SP] = True
			m.SP++
		} else {
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.SP--
			if err := clear(&m.Stack[m.SP], True); err != nil {
				return err
			}
		}

	case 15: // pushfalse / popfalse
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			m.Stack[m.SP] = False
			m.SP++
		} else {
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.SP--
			if err := clear(&m.Stack[m.SP], False); err != nil {
				return err
			}
		}

	case 16: // cmpusheq / cmpopeq
		if err := m.cmpush(isForward, func(a, b int32) bool { return a == b }); err != nil {
			return err
		}
	case 17: // cmpushne / cmpopne
		if err := m.cmpush(isForward, func(a, b int32) bool { return a != b }); err != nil {
			return err
		}
	case 18: // cmpushlt / cmpoplt
		if err := m.cmpush(isForward, func(a, b int32) bool { return a < b }); err != nil {
			return err
		}
	case 19: // cmpushle / cmpople
		if err := m.cmpush(isForward, func(a, b int32) bool { return a <= b }); err != nil {
			return err
		}

	case 20: // inc / dec
		if err := m.requireParams(1); err != nil {
			return err
		}
		if isForward {
			m.Stack[m.SP-1] += operand
		} else {
			m.Stack[m.SP-1] -= operand
		}

	case 21: // neg / neg
		if err := m.requireParams(1); err != nil {
			return err
		}
		m.Stack[m.SP-1] = -m.Stack[m.SP-1]

	case 22: // add / sub
		if err := m.requireParams(2); err != nil {
			return err
		}
		if isForward {
			m.Stack[m.SP-1] += m.Stack[m.SP-2]
		} else {
			m.Stack[m.SP-1] -= m.Stack[m.SP-2]
		}

	case 23: // xor / xor
		if err := m.requireParams(2); err != nil {
			return err
		}
		m.Stack[m.SP-1] ^= m.Stack[m.SP-2]

	case 24: // shl / shr
		if err := m.requireParams(2); err != nil {
			return err
		}
		value := uint32(m.Stack[m.SP-1])
		shift := int(m.Stack[m.SP-2])
		if isForward {
			value = bits.RotateLeft32(value, shift)
		} else {
			value = bits.RotateLeft32(value, -shift)
		}
		m.Stack[m.SP-1] = int32(value)

	case 25: // arpushadd / arpopadd
		if err := m.arith(isForward, func(a, b int32) int32 { return a + b }); err != nil {
			return err
		}
	case 26: // arpushsub / arpopsub
		if err := m.arith(isForward, func(a, b int32) int32 { return a - b }); err != nil {
			return err
		}
	case 27: // arpushmul / arpopmul
		if err := m.arith(isForward, func(a, b int32) int32 { return a * b }); err != nil {
			return err
		}
	case 28: // arpushdiv / arpopdiv
		if err := m.arith(isForward, func(a, b int32) int32 { return a / b }); err != nil {
			return err
		}
	case 29: // arpushmod / arpopmod
		if err := m.arith(isForward, func(a, b int32) int32 { return a % b }); err != nil {
			return err
		}
	case 30: // arpushand / arpopand
		if err := m.arith(isForward, func(a, b int32) int32 { return a & b }); err != nil {
			return err
		}
	case 31: // arpushor / arpopor
		if err := m.arith(isForward, func(a, b int32) int32 { return a | b }); err != nil {
			return err
		}

	case 32: // pushm / popm
		cell, err := m.memAt(operand)
		if err != nil {
			return err
		}
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			m.Stack[m.SP], *cell = *cell, m.Stack[m.SP]
			m.SP++
		} else {
			if err := m.requireParams(1); err != nil {
				return err
			}
			m.SP--
			m.Stack[m.SP], *cell = *cell, m.Stack[m.SP]
			if err := clear(&m.Stack[m.SP], 0); err != nil {
				return err
			}
		}

	case 33: // load / store
		if isForward {
			if err := m.requireCapacity(1); err != nil {
				return err
			}
			if err := m.requireParams(1); err != nil {
				return err
			}
			cell, err := m.memAt(m.Stack[m.SP-1] + operand)
			if err != nil {
				return err
			}
			m.Stack[m.SP], *cell = *cell, m.Stack[m.SP]
			m.SP++
		} else {
			if err := m.requireParams(2); err != nil {
				return err
			}
			m.SP--
			cell, err := m.memAt(m.Stack[m.SP-1] + operand)
			if err != nil {
				return err
			}
			m.Stack[m.SP], *cell = *cell, m.Stack[m.SP]
			if err := clear(&m.Stack[m.SP], 0); err != nil {
				return err
			}
		}

	case 34: // memswap / memswap
		if err := m.requireParams(2); err != nil {
			return err
		}
		a, err := m.memAt(m.Stack[m.SP-1])
		if err != nil {
			return err
		}
		b, err := m.memAt(m.Stack[m.SP-2])
		if err != nil {
			return err
		}
		*a, *b = *b, *a

	case 35: // xorhc / xorhc
		if err := m.requireParams(1); err != nil {
			return err
		}
		// Use the raw operand field bits, not the sign-extended operand, to
		// synthesize the high half of a 32-bit constant.
		m.Stack[m.SP-1] ^= (instruction & inst.OpcodeWidthMask) << (inst.OperandWidth - 1)

	default:
		return errs.NewIllegalInstruction(instruction, opcode)
	}

	return nil
}

func (m *VM) cmpush(isForward bool, cmp func(a, b int32) bool) error {
	boolOf := func(v bool) int32 {
		if v {
			return True
		}
		return False
	}
	if isForward {
		if err := m.requireCapacity(1); err != nil {
			return err
		}
		if err := m.requireParams(2); err != nil {
			return err
		}
		m.Stack[m.SP] = boolOf(cmp(m.Stack[m.SP-1], m.Stack[m.SP-2]))
		m.SP++
		return nil
	}
	if err := m.requireParams(3); err != nil {
		return err
	}
	m.SP--
	return clear(&m.Stack[m.SP], boolOf(cmp(m.Stack[m.SP-1], m.Stack[m.SP-2])))
}

func (m *VM) arith(isForward bool, op func(a, b int32) int32) error {
	if isForward {
		if err := m.requireCapacity(1); err != nil {
			return err
		}
		if err := m.requireParams(2); err != nil {
			return err
		}
		m.Stack[m.SP] = op(m.Stack[m.SP-1], m.Stack[m.SP-2])
		m.SP++
		return nil
	}
	if err := m.requireParams(3); err != nil {
		return err
	}
	m.SP--
	return clear(&m.Stack[m.SP], op(m.Stack[m.SP-1], m.Stack[m.SP-2]))
}
