//go:build unsafe_operations

package vm

// clear skips the domain-error check entirely, trading the guarantee
// that reversed execution actually reconstructs prior state for raw
// speed. Mirrors the original's UNSAFE_OPERATIONS build.
func clear(value *int32, expected int32) error {
	*value ^= expected
	return nil
}
