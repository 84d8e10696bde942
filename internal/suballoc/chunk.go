package suballoc

import (
	"sync"

	"github.com/dolthub/swiss"
)

// ChunkHandle is an opaque reference to a chunk record, stable across the
// chunk's lifetime. Handle values are never reused within an arena; the chunk
// records themselves are returned to a sync.Pool once merged away, mirroring
// the teacher's BlockAllocationHandle indirection: callers never hold a raw
// pointer to a chunk, since chunks are merged, split, and recycled.
type ChunkHandle uint64

// NoChunk is the zero handle, never assigned to a real chunk.
const NoChunk ChunkHandle = 0

type chunk struct {
	handle ChunkHandle
	offset uint64
	size   uint64
	typ    AllocationType
	name   string

	// stackTrace holds the allocation-time backtrace when
	// DebugSettings.StoreStackTraces was set, surfaced in leak reports.
	stackTrace string

	prevPhysical *chunk
	nextPhysical *chunk

	// prevFree/nextFree thread this chunk through the free list. A chunk
	// marks itself free by setting prevFree to itself (the teacher's
	// sentinel convention in tlsf.go).
	prevFree *chunk
	nextFree *chunk
}

func (c *chunk) isFree() bool {
	return c.prevFree == c
}

func (c *chunk) markFree() {
	c.prevFree = c
	c.nextFree = c
}

func (c *chunk) markTaken() {
	c.prevFree = nil
	c.nextFree = nil
}

var chunkPool = sync.Pool{
	New: func() any { return &chunk{} },
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	*c = chunk{}
	return c
}

func releaseChunk(c *chunk) {
	chunkPool.Put(c)
}

// chunkArena owns every chunk belonging to one block and maps stable handles
// to live chunk pointers, matching TLSFBlockMetadata.handleKey in the
// teacher's metadata package.
type chunkArena struct {
	byHandle *swiss.Map[ChunkHandle, *chunk]
	nextID   ChunkHandle
}

func newChunkArena() *chunkArena {
	return &chunkArena{
		byHandle: swiss.NewMap[ChunkHandle, *chunk](16),
		nextID:   1,
	}
}

func (a *chunkArena) create() *chunk {
	c := newChunk()
	c.handle = a.nextID
	a.nextID++
	a.byHandle.Put(c.handle, c)
	return c
}

func (a *chunkArena) lookup(handle ChunkHandle) (*chunk, bool) {
	return a.byHandle.Get(handle)
}

func (a *chunkArena) remove(c *chunk) {
	a.byHandle.Delete(c.handle)
	releaseChunk(c)
}
