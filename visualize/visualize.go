// Package visualize provides a read-only snapshot of an allocator's block
// and chunk occupancy, for diagnostics and tooling. It never mutates the
// allocator it inspects.
package visualize

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// ChunkReport describes one occupied or free range within a block.
type ChunkReport struct {
	Offset uint64
	Size   uint64
	Free   bool
	Name   string
}

// BlockReport describes one device heap and its chunk layout.
type BlockReport struct {
	ID        int
	Size      uint64
	Dedicated bool
	Chunks    []ChunkReport
}

// MemoryTypeReport describes every block owned by one memory type.
type MemoryTypeReport struct {
	Index  int
	Blocks []BlockReport
}

// Snapshotter is implemented by the allocator types this package inspects.
// It is satisfied by *gpuallocator.Allocator without this package importing
// the root package, avoiding an import cycle between the allocator and its
// own diagnostics.
type Snapshotter interface {
	Snapshot() []MemoryTypeReport
}

// Snapshot returns a's current block/chunk occupancy.
func Snapshot(a Snapshotter) []MemoryTypeReport {
	return a.Snapshot()
}

// WriteJSON serializes a snapshot using the same incremental jsonstream
// writer style the teacher uses for its detailed memory map, rather than
// building an intermediate tree and handing it to encoding/json.
func WriteJSON(report []MemoryTypeReport) ([]byte, error) {
	w := jwriter.NewWriter()
	arr := w.Array()

	for _, mt := range report {
		obj := arr.Object()
		obj.Name("memoryTypeIndex").Int(mt.Index)

		blocksArr := obj.Name("blocks").Array()
		for _, b := range mt.Blocks {
			blockObj := blocksArr.Object()
			blockObj.Name("id").Int(b.ID)
			blockObj.Name("size").Float64(float64(b.Size))
			blockObj.Name("dedicated").Bool(b.Dedicated)

			chunksArr := blockObj.Name("chunks").Array()
			for _, c := range b.Chunks {
				chunkObj := chunksArr.Object()
				chunkObj.Name("offset").Float64(float64(c.Offset))
				chunkObj.Name("size").Float64(float64(c.Size))
				chunkObj.Name("free").Bool(c.Free)
				if !c.Free {
					chunkObj.Name("name").String(c.Name)
				}
				chunkObj.End()
			}
			chunksArr.End()
			blockObj.End()
		}
		blocksArr.End()
		obj.End()
	}
	arr.End()

	return w.Bytes(), w.Error()
}
