package e2e_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rvm/internal/asmx"
	"rvm/internal/errs"
	"rvm/internal/source"
	"rvm/internal/vm"
)

// assemble parses and assembles src, returning a fresh machine ready to
// run plus its entry address.
func assemble(src string, stackSize, memorySize int) (*vm.VM, int32) {
	program, err := source.Parse(strings.NewReader(src))
	Expect(err).NotTo(HaveOccurred())

	layout, code, entry, err := asmx.Assemble(program)
	Expect(err).NotTo(HaveOccurred())

	m, err := vm.New(code, layout, memorySize, stackSize, entry)
	Expect(err).NotTo(HaveOccurred())

	return m, entry
}

var _ = Describe("end-to-end scenarios", func() {
	It("runs an empty program to completion with an empty stack", func() {
		m, _ := assemble("start\nstop\n", 64, 64)
		Expect(m.Run()).To(Succeed())
		Expect(m.SP).To(Equal(int32(0)))
		Expect(m.Counter).To(Equal(uint64(2)))
	})

	It("echoes a pushed constant back on the stack", func() {
		m, _ := assemble("start\npushc 42\nstop\n", 64, 64)
		Expect(m.Run()).To(Succeed())
		Expect(m.SP).To(Equal(int32(1)))
		Expect(m.Stack[0]).To(Equal(int32(42)))
	})

	It("adds two pushed constants, leaving the lower operand beneath the sum", func() {
		m, _ := assemble("start\npushc 3\npushc 4\nadd\nstop\n", 64, 64)
		Expect(m.Run()).To(Succeed())
		Expect(m.SP).To(Equal(int32(2)))
		Expect(m.Stack[0]).To(Equal(int32(3)))
		Expect(m.Stack[1]).To(Equal(int32(7)))
	})

	It("reports a domain error when popc's operand mismatches the stack", func() {
		m, _ := assemble("start\npushc 5\npopc 4\nstop\n", 64, 64)
		err := m.Run()
		Expect(err).To(HaveOccurred())
		var rerr *errs.Error
		Expect(err).To(BeAssignableToTypeOf(rerr))
		Expect(err.(*errs.Error).Kind).To(Equal(errs.DomainError))
		Expect(err.Error()).To(ContainSubstring("4"))
		Expect(err.Error()).To(ContainSubstring("5"))
	})

	It("frees a stack frame and local slot back to an empty stack", func() {
		// rsf requires every local slot zeroed and the stack back at
		// exactly fp+N+1 before it runs; a value loaded back out of a
		// local with pushl has to be retired (popc) before the frame is
		// released, or the leftover item on the stack makes rsf's own
		// zero-check fail.
		m, _ := assemble("start\nasf 2\npushc 9\npopl 1\npushl 1\npopc 9\nrsf 2\nstop\n", 64, 64)
		Expect(m.Run()).To(Succeed())
		Expect(m.SP).To(Equal(int32(0)))
	})

	It("skips the negation when a taken branch jumps over it", func() {
		// A taken branch leaves its distance in br, so the landing site
		// carries the paired `brt -2` that brings br back to 0 before
		// execution continues one instruction at a time.
		m, _ := assemble("start\npushc 1\npushtrue\nbrt +2\nneg\nbrt -2\npoptrue\nstop\n", 64, 64)
		Expect(m.Run()).To(Succeed())
		Expect(m.SP).To(Equal(int32(1)))
		Expect(m.Stack[0]).To(Equal(int32(1)))
	})
})

var _ = Describe("the reversibility law", func() {
	It("restores every register and stack cell after running forward then backward", func() {
		src := "start\npushc 3\npushc 4\nadd\nstop\n"
		m, entry := assemble(src, 64, 64)

		initialMemory := append([]int32(nil), m.Memory...)

		Expect(m.Run()).To(Succeed())
		forwardCounter := m.Counter

		m.Dir = m.Dir.Invert()
		m.StepPC()
		Expect(m.Run()).To(Succeed())

		// The backward run leaves pc one step before start; inverting
		// once more steps it back onto the entry.
		m.Dir = m.Dir.Invert()
		m.StepPC()

		Expect(m.PC).To(Equal(entry))
		Expect(m.SP).To(Equal(int32(0)))
		Expect(m.Memory).To(Equal(initialMemory))
		Expect(m.Counter).To(Equal(2 * forwardCounter))
	})
})

var _ = Describe("boundary conditions", func() {
	It("reports a stack underflow adding with fewer than two operands on the stack", func() {
		m, _ := assemble("start\npushc 1\nadd\nstop\n", 64, 64)
		err := m.Run()
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.StackUnderflow))
	})

	It("reports a stack overflow when allocpar exceeds stack capacity", func() {
		m, _ := assemble("start\nallocpar 4\nstop\n", 2, 64)
		err := m.Run()
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.StackOverflow))
	})

	It("reports an out-of-range memory access via load with a large operand", func() {
		m, _ := assemble("start\npushc 0\nload 100000\nstop\n", 64, 8)
		err := m.Run()
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.InvalidArgument))
	})

	It("reports a domain error when clear observes a tampered cell", func() {
		m, _ := assemble("start\npushc 5\npopc 9\nstop\n", 64, 64)
		err := m.Run()
		Expect(err).To(HaveOccurred())
		Expect(err.(*errs.Error).Kind).To(Equal(errs.DomainError))
	})
})
