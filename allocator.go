package gpuallocator

import (
	"log/slog"
	"math/bits"

	"github.com/Traverse-Research/gpu-allocator/visualize"
	"github.com/cockroachdb/errors"
)

// Allocator is the core sub-allocation engine. It routes allocation
// requests to the memory type that best matches the requested
// MemoryTypeBits mask and MemoryLocation, creating and destroying device
// heaps as needed.
//
// Allocator is not safe for concurrent use; callers must serialize access
// to a single Allocator themselves.
type Allocator struct {
	device Device
	types  []*memoryType

	logger *slog.Logger
	debug  DebugSettings
}

// Allocate finds or creates a block satisfying desc and returns a handle to
// the reserved range.
func (a *Allocator) Allocate(desc AllocationDesc) (Allocation, error) {
	if err := desc.validate(); err != nil {
		return Allocation{}, errors.Wrap(ErrInvalidAllocationDesc, err.Error())
	}

	preferred, required := memoryPreferences(desc.Location)

	idx, err := a.findMemoryTypeIndex(desc.MemoryTypeBits, preferred, required)
	if err != nil {
		return Allocation{}, err
	}

	stackTrace := captureStackTrace(a.debug)

	alloc, allocErr := a.types[idx].allocate(desc, stackTrace)
	if allocErr == nil {
		a.logAllocate(desc, alloc)
		return alloc, nil
	}

	// Retry once against the best memory type matching only the required
	// flags, dropping the preference score. This mirrors the reference
	// implementation's fallback when the preferred memory type is
	// exhausted.
	fallbackIdx, fallbackErr := a.findMemoryTypeIndex(desc.MemoryTypeBits, 0, required)
	if fallbackErr != nil || fallbackIdx == idx {
		return Allocation{}, allocErr
	}

	alloc, allocErr = a.types[fallbackIdx].allocate(desc, stackTrace)
	if allocErr != nil {
		return Allocation{}, allocErr
	}
	a.logAllocate(desc, alloc)
	return alloc, nil
}

func (a *Allocator) logAllocate(desc AllocationDesc, alloc Allocation) {
	if !a.debug.LogAllocations {
		return
	}
	a.logger.Debug("allocated", slog.String("name", desc.Name), slog.Uint64("size", desc.Size), slog.Uint64("offset", alloc.offset))
}

// Free releases alloc. Freeing the null allocation is a no-op.
func (a *Allocator) Free(alloc Allocation) {
	if alloc.IsNull() {
		return
	}
	a.types[alloc.blk.memoryTypeIndex].free(alloc)
}

// Cleanup destroys every currently empty block across every memory type,
// overriding the default keep-one-empty-block policy.
func (a *Allocator) Cleanup() {
	for _, mt := range a.types {
		mt.cleanup()
	}
}

// ReportMemoryLeaks returns one line per allocation still live across every
// memory type. Intended to be called from Destroy or on demand.
func (a *Allocator) ReportMemoryLeaks() []string {
	var out []string
	for _, mt := range a.types {
		out = mt.reportLeaks(out)
	}
	return out
}

// Destroy tears down every block across every memory type. If
// DebugSettings.LogLeaksOnShutdown is set, any allocation still live is
// logged before its owning block is released.
func (a *Allocator) Destroy() {
	if a.debug.LogLeaksOnShutdown {
		for _, line := range a.ReportMemoryLeaks() {
			a.logger.Warn("memory leak detected", slog.String("detail", line))
		}
	}
	for _, mt := range a.types {
		mt.destroyAll()
	}
}

// Snapshot returns a read-only occupancy report across every memory type,
// for use by the visualize package.
func (a *Allocator) Snapshot() []visualize.MemoryTypeReport {
	reports := make([]visualize.MemoryTypeReport, 0, len(a.types))
	for _, mt := range a.types {
		reports = append(reports, mt.snapshot())
	}
	return reports
}

// findMemoryTypeIndex scans the device's memory types in order, scoring
// each by how many preferred flags it is missing and how many
// not-preferred flags it carries, and returns the first zero-cost match or
// else the lowest-cost match. Grounded on the reference implementation's
// find_memorytype_index / the teacher's findMemoryTypeIndex.
func (a *Allocator) findMemoryTypeIndex(memoryTypeBits uint32, preferred, required MemoryPropertyFlags) (int, error) {
	best := -1
	bestCost := -1

	for i := 0; i < a.device.MemoryTypeCount(); i++ {
		if memoryTypeBits != 0 && memoryTypeBits&(1<<uint(i)) == 0 {
			continue
		}

		props := a.device.MemoryTypeProperties(i)
		if !props.Has(required) {
			continue
		}

		missingPreferred := bits.OnesCount32(uint32(preferred &^ props))
		presentNotPreferred := bits.OnesCount32(uint32(props &^ preferred &^ required))
		cost := missingPreferred + presentNotPreferred

		if cost == 0 {
			return i, nil
		}
		if best == -1 || cost < bestCost {
			best = i
			bestCost = cost
		}
	}

	if best == -1 {
		return -1, errors.Wrap(ErrNoCompatibleMemoryType, "no device memory type matches the requested mask and required flags")
	}
	return best, nil
}

// memoryPreferences translates a MemoryLocation into the memory property
// flags the allocator should prefer and require when scoring memory types.
func memoryPreferences(location MemoryLocation) (preferred, required MemoryPropertyFlags) {
	switch location {
	case MemoryLocationGpuOnly:
		return MemoryPropertyDeviceLocal, 0
	case MemoryLocationCpuToGpu:
		return MemoryPropertyDeviceLocal | MemoryPropertyHostVisible | MemoryPropertyHostCoherent,
			MemoryPropertyHostVisible | MemoryPropertyHostCoherent
	case MemoryLocationGpuToCpu:
		return MemoryPropertyHostVisible | MemoryPropertyHostCoherent | MemoryPropertyHostCached,
			MemoryPropertyHostVisible | MemoryPropertyHostCoherent
	default:
		return 0, 0
	}
}
