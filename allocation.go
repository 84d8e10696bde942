package gpuallocator

import (
	"unsafe"

	"github.com/Traverse-Research/gpu-allocator/internal/suballoc"
)

// Allocation is a handle to a range of device memory returned by
// Allocator.Allocate. The zero value is the null allocation: IsNull reports
// true and every other accessor returns its zero value.
type Allocation struct {
	blk         *block
	chunkHandle suballoc.ChunkHandle

	offset uint64
	size   uint64
	name   string
}

// IsNull reports whether this is the zero-value allocation, as returned
// when an Allocate call fails.
func (a Allocation) IsNull() bool {
	return a.blk == nil
}

// Memory returns the DeviceHeap this allocation lives in, or nil if null.
func (a Allocation) Memory() DeviceHeap {
	if a.blk == nil {
		return nil
	}
	return a.blk.heap
}

// Offset returns the byte offset of this allocation within its DeviceHeap.
func (a Allocation) Offset() uint64 {
	return a.offset
}

// Size returns the size in bytes of this allocation.
func (a Allocation) Size() uint64 {
	return a.size
}

// Name returns the diagnostic name this allocation was created with.
func (a Allocation) Name() string {
	return a.name
}

// MappedPtr returns a pointer to this allocation's bytes if its backing
// block is persistently mapped, or nil otherwise.
func (a Allocation) MappedPtr() unsafe.Pointer {
	if a.blk == nil || a.blk.mappedBase == nil {
		return nil
	}
	return unsafe.Pointer(uintptr(a.blk.mappedBase) + uintptr(a.offset))
}
