package suballoc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeListAllocatorBasicAllocFree(t *testing.T) {
	a, err := NewFreeListAllocator(1024, 0)
	require.NoError(t, err)

	alloc, ok := a.Allocate(Request{Size: 256, Alignment: 16, Type: AllocationTypeNonLinear, Name: "a"})
	require.True(t, ok)
	require.Equal(t, uint64(0), alloc.Offset)
	require.Equal(t, uint64(256), alloc.Size)
	require.False(t, a.IsEmpty())
	require.Equal(t, uint64(256), a.AllocatedSize())

	a.Free(alloc.ChunkHandle)
	require.True(t, a.IsEmpty())
	require.Equal(t, uint64(0), a.AllocatedSize())
}

func TestFreeListAllocatorBestFitPicksSmallestFittingRegion(t *testing.T) {
	a, err := NewFreeListAllocator(1024, 0)
	require.NoError(t, err)

	big, ok := a.Allocate(Request{Size: 512, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)
	_, ok = a.Allocate(Request{Size: 128, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)

	// Free only `big`, leaving two free chunks separated by the live 128-byte
	// allocation: [0,512) and [512+128, 1024). The remaining tail is
	// 1024-512-128=384, so the free regions are 512 and 384. A request of 64
	// should land at the start of the smaller (384) region, offset 640, not
	// in the larger 512 region.
	a.Free(big.ChunkHandle)

	tiny, ok := a.Allocate(Request{Size: 64, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)
	require.Equal(t, uint64(640), tiny.Offset)
}

func TestFreeListAllocatorRejectsOversizeRequest(t *testing.T) {
	a, err := NewFreeListAllocator(128, 0)
	require.NoError(t, err)

	_, ok := a.Allocate(Request{Size: 256, Alignment: 1, Type: AllocationTypeNonLinear})
	require.False(t, ok)
}

func TestFreeListAllocatorMergesAdjacentFreeChunksOnFree(t *testing.T) {
	a, err := NewFreeListAllocator(1024, 0)
	require.NoError(t, err)

	first, ok := a.Allocate(Request{Size: 128, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)
	second, ok := a.Allocate(Request{Size: 128, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)

	a.Free(first.ChunkHandle)
	a.Free(second.ChunkHandle)

	// After merging, a single request spanning both original regions plus
	// the original tail must succeed as one allocation.
	whole, ok := a.Allocate(Request{Size: 1024, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)
	require.Equal(t, uint64(0), whole.Offset)
}

func TestFreeListAllocatorGranularityAlignsUpOnConflict(t *testing.T) {
	tests := map[string]struct {
		firstType  AllocationType
		secondType AllocationType
		wantOffset uint64
	}{
		"Linear Then Linear Shares Page": {
			firstType:  AllocationTypeLinear,
			secondType: AllocationTypeLinear,
			wantOffset: 16,
		},
		"Linear Then NonLinear Bumps To Next Page": {
			firstType:  AllocationTypeLinear,
			secondType: AllocationTypeNonLinear,
			wantOffset: 256,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			const granularity = 256
			a, err := NewFreeListAllocator(1024, granularity)
			require.NoError(t, err)

			first, ok := a.Allocate(Request{Size: 16, Alignment: 1, Type: tc.firstType})
			require.True(t, ok)
			require.Equal(t, uint64(0), first.Offset)

			second, ok := a.Allocate(Request{Size: 16, Alignment: 1, Type: tc.secondType})
			require.True(t, ok)
			require.Equal(t, tc.wantOffset, second.Offset)
		})
	}
}

func TestFreeListAllocatorGranularityRejectsWhenBumpedRangeNoLongerFits(t *testing.T) {
	// Only one page of headroom exists past the first allocation, so
	// bumping the second, conflicting allocation up to the next page
	// leaves no room for it to fit.
	const granularity = 256
	a, err := NewFreeListAllocator(272, granularity)
	require.NoError(t, err)

	first, ok := a.Allocate(Request{Size: 16, Alignment: 1, Type: AllocationTypeLinear})
	require.True(t, ok)
	require.Equal(t, uint64(0), first.Offset)

	_, ok = a.Allocate(Request{Size: 32, Alignment: 1, Type: AllocationTypeNonLinear})
	require.False(t, ok)
}

func TestFreeListAllocatorGranularityAliasing(t *testing.T) {
	// granularity 1024: a linear allocation at offset 0 and a following
	// non-linear allocation must not share page 0, so the second must
	// land at or above offset 1024.
	const granularity = 1024
	a, err := NewFreeListAllocator(4096, granularity)
	require.NoError(t, err)

	first, ok := a.Allocate(Request{Size: 512, Alignment: 1, Type: AllocationTypeLinear})
	require.True(t, ok)
	require.Equal(t, uint64(0), first.Offset)

	second, ok := a.Allocate(Request{Size: 512, Alignment: 1, Type: AllocationTypeNonLinear})
	require.True(t, ok)
	require.GreaterOrEqual(t, second.Offset, uint64(granularity))
}

func TestFreeListAllocatorReportMemoryLeaks(t *testing.T) {
	a, err := NewFreeListAllocator(1024, 0)
	require.NoError(t, err)

	_, ok := a.Allocate(Request{Size: 64, Alignment: 1, Type: AllocationTypeNonLinear, Name: "leaked"})
	require.True(t, ok)

	leaks := a.ReportMemoryLeaks(nil)
	require.Len(t, leaks, 1)
	require.Contains(t, leaks[0], "leaked")
}
