package gpuallocator

import (
	"log/slog"

	"github.com/Traverse-Research/gpu-allocator/internal/suballoc"
	"github.com/Traverse-Research/gpu-allocator/visualize"
	"github.com/cockroachdb/errors"
)

// memoryType owns every block allocated from one device memory type index.
// It decides when to reuse an existing block, when to create a new one, and
// when an empty block should be torn down.
type memoryType struct {
	index      int
	device     Device
	properties MemoryPropertyFlags

	defaultBlockSize uint64
	granularity      uint64

	blocks      []*block
	nextBlockID int

	logger *slog.Logger
	debug  DebugSettings
}

func newMemoryType(index int, device Device, properties MemoryPropertyFlags, defaultBlockSize uint64, granularity uint64, logger *slog.Logger, debug DebugSettings) *memoryType {
	return &memoryType{
		index:            index,
		device:           device,
		properties:       properties,
		defaultBlockSize: defaultBlockSize,
		granularity:      granularity,
		logger:           logger,
		debug:            debug,
	}
}

// allocate satisfies desc from an existing block, or creates a new block.
// Requests larger than the type's default block size are promoted to a
// dedicated, request-sized block (see DESIGN.md for why this module uses a
// strict size > block_size threshold rather than a size > block_size/2
// preference heuristic).
func (mt *memoryType) allocate(desc AllocationDesc, stackTrace string) (Allocation, error) {
	allocType := suballoc.AllocationTypeNonLinear
	if desc.Linear {
		allocType = suballoc.AllocationTypeLinear
	}
	req := suballoc.Request{Size: desc.Size, Alignment: desc.Alignment, Type: allocType, Name: desc.Name, StackTrace: stackTrace}

	if desc.Size > mt.defaultBlockSize {
		b, err := mt.createBlock(desc.Size, true)
		if err != nil {
			return Allocation{}, err
		}
		alloc, ok := b.sub.Allocate(req)
		if !ok {
			return Allocation{}, errors.Wrap(ErrInternal, "dedicated block rejected a request sized to match it")
		}
		return mt.wrap(b, alloc, desc.Name), nil
	}

	for _, b := range mt.blocks {
		if b.dedicated {
			continue
		}
		if alloc, ok := b.sub.Allocate(req); ok {
			return mt.wrap(b, alloc, desc.Name), nil
		}
	}

	b, err := mt.createBlock(mt.defaultBlockSize, false)
	if err != nil {
		return Allocation{}, err
	}
	alloc, ok := b.sub.Allocate(req)
	if !ok {
		return Allocation{}, errors.Wrap(ErrOutOfMemory, "newly created block could not satisfy request")
	}
	return mt.wrap(b, alloc, desc.Name), nil
}

func (mt *memoryType) createBlock(size uint64, dedicated bool) (*block, error) {
	mapped := mt.properties.Has(MemoryPropertyHostVisible)
	b, err := newBlock(mt.nextBlockID, mt.device, mt.index, size, dedicated, mt.granularity, mapped)
	if err != nil {
		return nil, err
	}
	mt.nextBlockID++
	mt.blocks = append(mt.blocks, b)

	if mt.debug.LogAllocations {
		mt.logger.Debug("created block", slog.Int("memory_type", mt.index), slog.Int("block_id", b.id), slog.Uint64("size", size), slog.Bool("dedicated", dedicated))
	}
	return b, nil
}

func (mt *memoryType) wrap(b *block, alloc suballoc.Allocation, name string) Allocation {
	return Allocation{blk: b, chunkHandle: alloc.ChunkHandle, offset: alloc.Offset, size: alloc.Size, name: name}
}

// free releases alloc back to its owning block, then applies the
// keep-one-empty-block teardown policy: an empty dedicated block is always
// torn down immediately, and an empty general block is torn down if any
// other general block (empty or not) exists, so the only general block is
// kept even when empty.
func (mt *memoryType) free(alloc Allocation) {
	b := alloc.blk
	b.sub.Free(alloc.chunkHandle)

	if mt.debug.LogFrees {
		mt.logger.Debug("freed allocation", slog.Int("memory_type", mt.index), slog.Int("block_id", b.id), slog.Uint64("offset", alloc.offset), slog.Uint64("size", alloc.size))
	}

	if !b.isEmpty() {
		return
	}

	if b.dedicated {
		mt.destroyBlock(b)
		return
	}

	generalCount := 0
	for _, other := range mt.blocks {
		if !other.dedicated {
			generalCount++
		}
	}
	if generalCount > 1 {
		mt.destroyBlock(b)
	}
}

func (mt *memoryType) destroyBlock(b *block) {
	b.destroy(mt.logger, mt.debug)
	for i, other := range mt.blocks {
		if other == b {
			mt.blocks = append(mt.blocks[:i], mt.blocks[i+1:]...)
			break
		}
	}
}

// cleanup destroys every currently empty block, regardless of the
// keep-one-empty-block policy.
func (mt *memoryType) cleanup() {
	for _, b := range append([]*block(nil), mt.blocks...) {
		if b.isEmpty() {
			mt.destroyBlock(b)
		}
	}
}

func (mt *memoryType) destroyAll() {
	for _, b := range mt.blocks {
		b.destroy(mt.logger, mt.debug)
	}
	mt.blocks = nil
}

func (mt *memoryType) reportLeaks(out []string) []string {
	for _, b := range mt.blocks {
		out = b.sub.ReportMemoryLeaks(out)
	}
	return out
}

func (mt *memoryType) snapshot() visualize.MemoryTypeReport {
	report := visualize.MemoryTypeReport{Index: mt.index}
	for _, b := range mt.blocks {
		blockReport := visualize.BlockReport{ID: b.id, Size: b.size, Dedicated: b.dedicated}
		b.sub.VisitChunks(func(offset, size uint64, free bool, name string) {
			blockReport.Chunks = append(blockReport.Chunks, visualize.ChunkReport{Offset: offset, Size: size, Free: free, Name: name})
		})
		report.Blocks = append(report.Blocks, blockReport)
	}
	return report
}
