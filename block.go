package gpuallocator

import (
	"log/slog"
	"unsafe"

	"github.com/Traverse-Research/gpu-allocator/internal/suballoc"
	"github.com/cockroachdb/errors"
)

// block owns exactly one device heap and the sub-allocator variant handing
// out ranges of it. A block is either general purpose (backed by a
// FreeListAllocator, shared by many allocations) or dedicated (backed by a
// DedicatedAllocator, sized exactly to one allocation).
type block struct {
	id              int
	memoryTypeIndex int
	dedicated       bool

	device Device
	heap   DeviceHeap
	size   uint64

	mappedBase unsafe.Pointer
	sub        suballoc.SubAllocator
}

func newBlock(id int, device Device, memoryTypeIndex int, size uint64, dedicated bool, granularity uint64, mapped bool) (*block, error) {
	heap, err := device.AllocateHeap(memoryTypeIndex, size)
	if err != nil {
		return nil, errors.Wrapf(ErrOutOfMemory, "allocating device heap of size %d: %s", size, err)
	}

	var sub suballoc.SubAllocator
	if dedicated {
		sub = suballoc.NewDedicatedAllocator(size)
	} else {
		fl, err := suballoc.NewFreeListAllocator(size, granularity)
		if err != nil {
			device.FreeHeap(heap)
			return nil, errors.Wrap(ErrInternal, err.Error())
		}
		sub = fl
	}

	b := &block{
		id:              id,
		memoryTypeIndex: memoryTypeIndex,
		dedicated:       dedicated,
		device:          device,
		heap:            heap,
		size:            size,
		sub:             sub,
	}

	if mapped {
		ptr, err := device.MapHeap(heap)
		if err != nil {
			device.FreeHeap(heap)
			return nil, errors.Wrap(ErrFailedToMap, err.Error())
		}
		b.mappedBase = ptr
	}

	return b, nil
}

func (b *block) isEmpty() bool {
	return b.sub.IsEmpty()
}

// destroy releases the backing device heap. If the block still has live
// allocations, it logs a leak report when settings.LogLeaksOnShutdown is
// set rather than refusing to destroy, mirroring the reference
// implementation's shutdown-time leak reporting.
func (b *block) destroy(logger *slog.Logger, settings DebugSettings) {
	if !b.sub.IsEmpty() && settings.LogLeaksOnShutdown {
		for _, line := range b.sub.ReportMemoryLeaks(nil) {
			logger.Warn("unreleased allocation at block destroy", slog.Int("block_id", b.id), slog.String("detail", line))
		}
	}
	if b.mappedBase != nil {
		b.device.UnmapHeap(b.heap)
	}
	b.device.FreeHeap(b.heap)
}
