// Package fakedevice implements an in-memory gpuallocator.Device for tests.
// It never touches real GPU memory: heaps are plain byte slices and
// MapHeap returns a pointer into that slice.
package fakedevice

import (
	"fmt"
	"unsafe"

	gpuallocator "github.com/Traverse-Research/gpu-allocator"
)

// MemoryType describes one fake device memory type.
type MemoryType struct {
	Properties gpuallocator.MemoryPropertyFlags
	HeapSize   uint64
}

// Device is a hand-written test double standing in for a real Vulkan or
// D3D12 platform adapter, mirroring how the teacher's test suite drives its
// allocator through generated mocks instead of a real driver.
type Device struct {
	Types []MemoryType

	heaps map[*heap]struct{}
	next  int
}

type heap struct {
	id   int
	size uint64
	data []byte
}

// New creates a fake device exposing the given memory types.
func New(types ...MemoryType) *Device {
	return &Device{Types: types, heaps: make(map[*heap]struct{})}
}

func (d *Device) MemoryTypeCount() int { return len(d.Types) }

func (d *Device) MemoryTypeProperties(index int) gpuallocator.MemoryPropertyFlags {
	return d.Types[index].Properties
}

func (d *Device) MemoryTypeHeapSize(index int) uint64 {
	return d.Types[index].HeapSize
}

func (d *Device) AllocateHeap(memoryTypeIndex int, size uint64) (gpuallocator.DeviceHeap, error) {
	h := &heap{id: d.next, size: size, data: make([]byte, size)}
	d.next++
	d.heaps[h] = struct{}{}
	return h, nil
}

func (d *Device) FreeHeap(dh gpuallocator.DeviceHeap) {
	h, ok := dh.(*heap)
	if !ok {
		return
	}
	delete(d.heaps, h)
}

func (d *Device) MapHeap(dh gpuallocator.DeviceHeap) (unsafe.Pointer, error) {
	h, ok := dh.(*heap)
	if !ok {
		return nil, fmt.Errorf("fakedevice: not a heap")
	}
	if len(h.data) == 0 {
		return nil, nil
	}
	return unsafe.Pointer(&h.data[0]), nil
}

func (d *Device) UnmapHeap(dh gpuallocator.DeviceHeap) {}

// LiveHeapCount reports how many heaps have been allocated and not yet
// freed, used by tests to assert block teardown actually happened.
func (d *Device) LiveHeapCount() int { return len(d.heaps) }
