package suballoc

import (
	"fmt"

	"github.com/pkg/errors"
)

// FreeListAllocator is a general purpose SubAllocator backing one memory
// block. It tracks free regions with a plain slice (not a segmented
// best-fit bucket structure) and picks the smallest free region that fits a
// request, tie-broken by lowest offset, exactly as a linear best-fit scan.
type FreeListAllocator struct {
	arena       *chunkArena
	granularity uint64
	size        uint64

	freeList []*chunk
	head     *chunk

	allocatedBytes uint64
	liveCount      int
}

// NewFreeListAllocator creates an allocator over a block of the given size.
// granularity is the platform's buffer/image page granularity; pass 0 or 1
// to disable the adjacency check entirely.
func NewFreeListAllocator(size uint64, granularity uint64) (*FreeListAllocator, error) {
	if err := checkPow2OrZero(granularity, "granularity"); err != nil {
		return nil, errors.Wrap(err, "creating free list allocator")
	}
	if size == 0 {
		return nil, errors.New("creating free list allocator: size must be non-zero")
	}

	a := &FreeListAllocator{
		arena:       newChunkArena(),
		granularity: granularity,
		size:        size,
	}

	initial := a.arena.create()
	initial.offset = 0
	initial.size = size
	initial.typ = AllocationTypeFree
	initial.markFree()

	a.head = initial
	a.freeList = append(a.freeList, initial)
	return a, nil
}

func checkPow2OrZero(value uint64, name string) error {
	if value != 0 && value&(value-1) != 0 {
		return errors.Errorf("%s must be zero or a power of two, got %d", name, value)
	}
	return nil
}

// Allocate implements SubAllocator.
func (a *FreeListAllocator) Allocate(req Request) (Allocation, bool) {
	var best *chunk
	var bestOffset uint64

	for _, c := range a.freeList {
		offset := alignUp(c.offset, req.Alignment)
		if offset+req.Size > c.offset+c.size {
			continue
		}

		aligned, ok := checkConflictAndAlignUp(a.granularity, offset, req.Size, req.Type, c.prevPhysical, c.nextPhysical)
		if !ok {
			continue
		}
		offset = aligned
		if offset+req.Size > c.offset+c.size {
			continue
		}

		if best == nil || c.size < best.size || (c.size == best.size && c.offset < best.offset) {
			best = c
			bestOffset = offset
		}
	}

	if best == nil {
		return Allocation{}, false
	}
	return a.commit(best, bestOffset, req), true
}

func (a *FreeListAllocator) commit(c *chunk, offset uint64, req Request) Allocation {
	leadGap := offset - c.offset
	tailGap := (c.offset + c.size) - (offset + req.Size)

	a.removeFree(c)

	var used *chunk
	if leadGap == 0 {
		used = c
		used.size = req.Size
	} else {
		lead := c
		lead.size = leadGap
		lead.markFree()
		a.insertFree(lead)

		used = a.arena.create()
		used.offset = offset
		used.prevPhysical = lead
		used.nextPhysical = lead.nextPhysical
		if lead.nextPhysical != nil {
			lead.nextPhysical.prevPhysical = used
		}
		lead.nextPhysical = used
		used.size = req.Size
	}
	used.typ = req.Type
	used.name = req.Name
	used.stackTrace = req.StackTrace
	used.markTaken()

	if tailGap > 0 {
		tail := a.arena.create()
		tail.offset = offset + req.Size
		tail.size = tailGap
		tail.typ = AllocationTypeFree
		tail.prevPhysical = used
		tail.nextPhysical = used.nextPhysical
		if used.nextPhysical != nil {
			used.nextPhysical.prevPhysical = tail
		}
		used.nextPhysical = tail
		tail.markFree()
		a.insertFree(tail)
	}

	a.allocatedBytes += req.Size
	a.liveCount++
	return Allocation{ChunkHandle: used.handle, Offset: used.offset, Size: used.size}
}

// Free implements SubAllocator. Freeing an unknown handle is a no-op.
func (a *FreeListAllocator) Free(handle ChunkHandle) {
	c, ok := a.arena.lookup(handle)
	if !ok {
		return
	}

	a.allocatedBytes -= c.size
	a.liveCount--
	c.typ = AllocationTypeFree

	if c.nextPhysical != nil && c.nextPhysical.isFree() {
		next := c.nextPhysical
		a.removeFree(next)
		c.size += next.size
		c.nextPhysical = next.nextPhysical
		if next.nextPhysical != nil {
			next.nextPhysical.prevPhysical = c
		}
		a.arena.remove(next)
	}

	if c.prevPhysical != nil && c.prevPhysical.isFree() {
		prev := c.prevPhysical
		a.removeFree(prev)
		prev.size += c.size
		prev.nextPhysical = c.nextPhysical
		if c.nextPhysical != nil {
			c.nextPhysical.prevPhysical = prev
		}
		if a.head == c {
			a.head = prev
		}
		a.arena.remove(c)
		c = prev
	}

	c.markFree()
	a.insertFree(c)
}

func (a *FreeListAllocator) removeFree(target *chunk) {
	for i, f := range a.freeList {
		if f == target {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
			return
		}
	}
}

func (a *FreeListAllocator) insertFree(c *chunk) {
	a.freeList = append(a.freeList, c)
}

func (a *FreeListAllocator) IsEmpty() bool                   { return a.liveCount == 0 }
func (a *FreeListAllocator) AllocatedSize() uint64           { return a.allocatedBytes }
func (a *FreeListAllocator) SupportsGeneralAllocations() bool { return true }

func (a *FreeListAllocator) VisitChunks(visit func(offset, size uint64, free bool, name string)) {
	for c := a.head; c != nil; c = c.nextPhysical {
		visit(c.offset, c.size, c.isFree(), c.name)
	}
}

func (a *FreeListAllocator) ReportMemoryLeaks(out []string) []string {
	for c := a.head; c != nil; c = c.nextPhysical {
		if c.isFree() {
			continue
		}
		line := fmt.Sprintf("chunk %q at offset %d, size %d not freed", c.name, c.offset, c.size)
		if c.stackTrace != "" {
			line += fmt.Sprintf("\nallocated at:\n%s", c.stackTrace)
		}
		out = append(out, line)
	}
	return out
}
