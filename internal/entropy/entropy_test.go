package entropy

import (
	"bytes"
	"fmt"
	"testing"

	"rvm/internal/layout"
	"rvm/internal/vm"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestReportNoneWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	m, err := vm.New(nil, nil, 8, 8, 0)
	assert(t, err == nil, "unexpected error: %v", err)
	Report(&buf, None, layout.MemoryLayout{}, m)
	assert(t, buf.Len() == 0, "expected no output for Measure None, got %q", buf.String())
}

func TestReportHammingWeightCountsDifferingBits(t *testing.T) {
	var buf bytes.Buffer
	m, err := vm.New(nil, nil, 4, 4, 0)
	assert(t, err == nil, "unexpected error: %v", err)
	m.Memory[0] = 0b11
	original := layout.MemoryLayout{0: 0}

	Report(&buf, HammingWeight, original, m)
	want := "Information present in machine state after execution: 2 Bits in non-zero state.\n"
	assert(t, buf.String() == want, "expected %q, got %q", want, buf.String())
}

func TestReportWordDifferenceCountsWords(t *testing.T) {
	var buf bytes.Buffer
	m, err := vm.New(nil, nil, 4, 4, 0)
	assert(t, err == nil, "unexpected error: %v", err)
	m.Memory[0] = 7
	original := layout.MemoryLayout{0: 0}

	Report(&buf, WordDifference, original, m)
	want := "Information present in machine state after execution: 32 Bits in 1 32-bit words.\n"
	assert(t, buf.String() == want, "expected %q, got %q", want, buf.String())
}
