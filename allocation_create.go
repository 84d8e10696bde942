package gpuallocator

import "github.com/cockroachdb/errors"

// AllocationDesc describes a request for a range of device memory.
type AllocationDesc struct {
	// Name is attached to the allocation for diagnostics and leak reports.
	Name string

	// Size is the number of bytes requested. Must be non-zero.
	Size uint64

	// Alignment the returned offset must satisfy. Must be a power of two
	// (or zero, meaning no constraint beyond natural placement).
	Alignment uint64

	// MemoryTypeBits restricts the search to device memory types whose bit
	// is set in this mask, mirroring a device memory-requirements query.
	// Must be non-zero.
	MemoryTypeBits uint32

	// Location hints where the allocation should live.
	Location MemoryLocation

	// Linear marks the resource as a linearly-tiled resource for the
	// purpose of the granularity conflict check. Non-linear (tiled/opaque)
	// resources must not share a device page with a linear resource.
	Linear bool
}

func (d AllocationDesc) validate() error {
	if d.Size == 0 {
		return errors.New("size must be non-zero")
	}
	if d.Alignment != 0 {
		if err := checkPow2(d.Alignment, "alignment"); err != nil {
			return err
		}
	}
	if d.MemoryTypeBits == 0 {
		return errors.New("memory type bits must be non-zero")
	}
	return nil
}
