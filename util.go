package gpuallocator

import "github.com/cockroachdb/errors"

// checkPow2 validates that value is a power of two, matching the reference
// implementation's alignment validation.
func checkPow2(value uint64, name string) error {
	if value == 0 || value&(value-1) != 0 {
		return errors.Newf("%s must be a power of two, got %d", name, value)
	}
	return nil
}

func alignUp(value uint64, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}
