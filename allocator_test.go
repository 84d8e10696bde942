package gpuallocator_test

import (
	"testing"

	gpuallocator "github.com/Traverse-Research/gpu-allocator"
	"github.com/Traverse-Research/gpu-allocator/internal/fakedevice"
	"github.com/stretchr/testify/require"
)

func newTestDevice() *fakedevice.Device {
	return fakedevice.New(
		fakedevice.MemoryType{
			Properties: gpuallocator.MemoryPropertyDeviceLocal,
			HeapSize:   4 * 1024 * 1024 * 1024,
		},
		fakedevice.MemoryType{
			Properties: gpuallocator.MemoryPropertyHostVisible | gpuallocator.MemoryPropertyHostCoherent,
			HeapSize:   256 * 1024 * 1024,
		},
	)
}

func TestAllocatorAllocateAndFree(t *testing.T) {
	device := newTestDevice()
	a, err := gpuallocator.New(gpuallocator.CreateOptions{Device: device})
	require.NoError(t, err)

	alloc, err := a.Allocate(gpuallocator.AllocationDesc{
		Name:           "vertex-buffer",
		Size:           1024,
		Alignment:      256,
		MemoryTypeBits: 0b11,
		Location:       gpuallocator.MemoryLocationGpuOnly,
	})
	require.NoError(t, err)
	require.False(t, alloc.IsNull())
	require.Equal(t, uint64(1024), alloc.Size())

	a.Free(alloc)
	require.Empty(t, a.ReportMemoryLeaks())
}

func TestAllocatorRejectsInvalidDesc(t *testing.T) {
	device := newTestDevice()
	a, err := gpuallocator.New(gpuallocator.CreateOptions{Device: device})
	require.NoError(t, err)

	_, err = a.Allocate(gpuallocator.AllocationDesc{Size: 0})
	require.Error(t, err)

	_, err = a.Allocate(gpuallocator.AllocationDesc{Size: 16, Alignment: 3})
	require.Error(t, err)

	_, err = a.Allocate(gpuallocator.AllocationDesc{Size: 16, Alignment: 4, MemoryTypeBits: 0})
	require.Error(t, err)
}

func TestAllocatorRestrictsByMemoryTypeBits(t *testing.T) {
	device := newTestDevice()
	a, err := gpuallocator.New(gpuallocator.CreateOptions{Device: device})
	require.NoError(t, err)

	_, err = a.Allocate(gpuallocator.AllocationDesc{
		Size:           16,
		MemoryTypeBits: 1 << 1, // only the host-visible type
		Location:       gpuallocator.MemoryLocationGpuOnly,
	})
	// Location prefers device-local but no memory type satisfies the
	// preferred flags once restricted to index 1's type bit (GpuOnly has no
	// required flags, so this should still succeed against the host-visible
	// type 1 with a cost penalty).
	require.NoError(t, err)
}

func TestAllocatorOversizeRequestGetsDedicatedBlock(t *testing.T) {
	device := fakedevice.New(fakedevice.MemoryType{
		Properties: gpuallocator.MemoryPropertyDeviceLocal,
		HeapSize:   4 * 1024 * 1024 * 1024,
	})
	a, err := gpuallocator.New(gpuallocator.CreateOptions{
		Device:                      device,
		PreferredLargeHeapBlockSize: 1024,
	})
	require.NoError(t, err)

	alloc, err := a.Allocate(gpuallocator.AllocationDesc{
		Size:           2048, // larger than the 1024 default block size
		MemoryTypeBits: 1,
		Location:       gpuallocator.MemoryLocationGpuOnly,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2048), alloc.Size())

	a.Free(alloc)
	require.Equal(t, 0, device.LiveHeapCount(), "dedicated block must be torn down immediately once emptied")
}

func TestAllocatorKeepsOneEmptyBlockByDefault(t *testing.T) {
	device := fakedevice.New(fakedevice.MemoryType{
		Properties: gpuallocator.MemoryPropertyDeviceLocal,
		HeapSize:   4 * 1024 * 1024 * 1024,
	})
	a, err := gpuallocator.New(gpuallocator.CreateOptions{
		Device:                      device,
		PreferredLargeHeapBlockSize: 1024,
	})
	require.NoError(t, err)

	alloc, err := a.Allocate(gpuallocator.AllocationDesc{Size: 64, MemoryTypeBits: 1, Location: gpuallocator.MemoryLocationGpuOnly})
	require.NoError(t, err)
	a.Free(alloc)

	require.Equal(t, 1, device.LiveHeapCount(), "the only empty block should be kept, not destroyed")

	a.Cleanup()
	require.Equal(t, 0, device.LiveHeapCount(), "Cleanup should destroy even the kept empty block")
}

func TestAllocatorDestroysBlockImmediatelyWhenSiblingExists(t *testing.T) {
	device := fakedevice.New(fakedevice.MemoryType{
		Properties: gpuallocator.MemoryPropertyDeviceLocal,
		HeapSize:   4 * 1024 * 1024 * 1024,
	})
	a, err := gpuallocator.New(gpuallocator.CreateOptions{
		Device:                      device,
		PreferredLargeHeapBlockSize: 1024,
	})
	require.NoError(t, err)

	// Each allocation is sized to force its own block (bigger than what's
	// left in any existing block), so two allocations produce two general
	// blocks.
	first, err := a.Allocate(gpuallocator.AllocationDesc{Size: 768, MemoryTypeBits: 1, Location: gpuallocator.MemoryLocationGpuOnly})
	require.NoError(t, err)
	second, err := a.Allocate(gpuallocator.AllocationDesc{Size: 768, MemoryTypeBits: 1, Location: gpuallocator.MemoryLocationGpuOnly})
	require.NoError(t, err)
	require.Equal(t, 2, device.LiveHeapCount())

	a.Free(first)
	require.Equal(t, 1, device.LiveHeapCount(), "the block holding only the first allocation must be destroyed immediately since a sibling general block exists")

	a.Free(second)
	require.Equal(t, 1, device.LiveHeapCount(), "the last remaining empty block is kept under the default policy")
}

func TestAllocatorReportsLeaksOnDestroy(t *testing.T) {
	device := newTestDevice()
	a, err := gpuallocator.New(gpuallocator.CreateOptions{
		Device: device,
		Debug:  gpuallocator.DebugSettings{LogLeaksOnShutdown: true},
	})
	require.NoError(t, err)

	_, err = a.Allocate(gpuallocator.AllocationDesc{Name: "leaked", Size: 128, MemoryTypeBits: 0b11, Location: gpuallocator.MemoryLocationGpuOnly})
	require.NoError(t, err)

	leaks := a.ReportMemoryLeaks()
	require.Len(t, leaks, 1)

	a.Destroy()
}

func TestAllocatorMapsHostVisibleMemory(t *testing.T) {
	device := newTestDevice()
	a, err := gpuallocator.New(gpuallocator.CreateOptions{Device: device})
	require.NoError(t, err)

	alloc, err := a.Allocate(gpuallocator.AllocationDesc{
		Size:           64,
		MemoryTypeBits: 0b11,
		Location:       gpuallocator.MemoryLocationCpuToGpu,
	})
	require.NoError(t, err)
	require.NotNil(t, alloc.MappedPtr())
}
