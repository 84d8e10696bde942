package gpuallocator

import "github.com/cockroachdb/errors"

// Sentinel errors returned by this package. Use errors.Is to test for them;
// errors returned from Allocate/New are wrapped with additional context
// and remain unwrappable to these sentinels. Free returns no error.
var (
	// ErrOutOfMemory is returned when no memory type or existing block has
	// room for a request and a new block could not be created.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrFailedToMap is returned when a host-visible allocation's backing
	// block could not be mapped into host address space.
	ErrFailedToMap = errors.New("failed to map memory")

	// ErrNoCompatibleMemoryType is returned when no device memory type
	// satisfies an allocation's memory-type-bits mask and location.
	ErrNoCompatibleMemoryType = errors.New("no compatible memory type available")

	// ErrInvalidAllocationDesc is returned when an AllocationDesc fails
	// validation (zero size, non-power-of-two alignment, empty mask).
	ErrInvalidAllocationDesc = errors.New("invalid allocation create desc")

	// ErrInvalidAllocatorDesc is returned when CreateOptions fails
	// validation at New.
	ErrInvalidAllocatorDesc = errors.New("invalid allocator create desc")

	// ErrInternal indicates a broken invariant inside the allocator itself:
	// a dedicated block rejecting a request sized to match it, or a block's
	// free-list allocator failing to initialise. Double frees and unknown
	// handles are not reported, since Free returns no error.
	ErrInternal = errors.New("internal allocator error")
)
