//go:build !unsafe_operations

package vm

import "rvm/internal/errs"

// clear asserts that value, once xor-ed with expected, becomes zero —
// the reversible machine's "pop a known value" primitive — and reports
// the mismatch otherwise. Disable this check by building with the
// unsafe_operations tag.
func clear(value *int32, expected int32) error {
	original := *value
	*value ^= expected
	if *value != 0 {
		mismatch := *value
		*value = original
		return errs.NewDomainError(expected, expected^mismatch)
	}
	return nil
}
