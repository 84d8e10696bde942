package gpuallocator

import (
	"log/slog"

	"github.com/cockroachdb/errors"
)

const (
	defaultDeviceLocalBlockSize = 64 * 1024 * 1024
	defaultHostVisibleBlockSize = 32 * 1024 * 1024
	smallHeapThreshold          = 1024 * 1024 * 1024
)

// CreateOptions configures a new Allocator.
type CreateOptions struct {
	// Device is the platform adapter the allocator will call into for
	// heap allocation, mapping, and memory-type queries. Required.
	Device Device

	// PreferredLargeHeapBlockSize overrides the default block size used
	// for heaps larger than smallHeapThreshold. Zero selects the default
	// (64MiB for device-local memory types, 32MiB for host-visible ones).
	PreferredLargeHeapBlockSize uint64

	// BufferImageGranularity is the platform's buffer/image page
	// granularity, used by the granularity conflict check. Zero disables
	// the check.
	BufferImageGranularity uint64

	// Debug controls optional diagnostics.
	Debug DebugSettings

	// Logger receives structured log output. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates an Allocator, querying options.Device for its memory types and
// computing a default block size for each.
func New(options CreateOptions) (*Allocator, error) {
	if options.Device == nil {
		return nil, errors.Wrap(ErrInvalidAllocatorDesc, "Device must not be nil")
	}
	if options.BufferImageGranularity != 0 {
		if err := checkPow2(options.BufferImageGranularity, "BufferImageGranularity"); err != nil {
			return nil, errors.Wrap(ErrInvalidAllocatorDesc, err.Error())
		}
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Allocator{
		device: options.Device,
		logger: logger,
		debug:  options.Debug,
	}

	count := options.Device.MemoryTypeCount()
	a.types = make([]*memoryType, count)
	for i := 0; i < count; i++ {
		props := options.Device.MemoryTypeProperties(i)
		heapSize := options.Device.MemoryTypeHeapSize(i)

		def := defaultDeviceLocalBlockSize
		if props.Has(MemoryPropertyHostVisible) {
			def = defaultHostVisibleBlockSize
		}
		if options.PreferredLargeHeapBlockSize != 0 {
			def = int(options.PreferredLargeHeapBlockSize)
		}

		blockSize := calculatePreferredBlockSize(heapSize, uint64(def))
		a.types[i] = newMemoryType(i, options.Device, props, blockSize, options.BufferImageGranularity, logger, options.Debug)

		if options.Debug.LogMemoryInformation {
			logger.Info("memory type", slog.Int("index", i), slog.Uint64("heap_size", heapSize), slog.Uint64("block_size", blockSize), slog.Uint64("properties", uint64(props)))
		}
	}

	return a, nil
}

// calculatePreferredBlockSize shrinks the default block size for small
// heaps, matching the teacher's calculatePreferredBlockSize: heaps at or
// below smallHeapThreshold get an eighth of their size, aligned up to 32
// bytes, instead of the full preferred size.
func calculatePreferredBlockSize(heapSize uint64, preferred uint64) uint64 {
	if heapSize > 0 && heapSize <= smallHeapThreshold {
		return alignUp(heapSize/8, 32)
	}
	return preferred
}
