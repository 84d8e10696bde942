package gpuallocator

import "runtime"

// DebugSettings controls optional diagnostics. All fields default to false;
// enabling them trades allocation-time overhead for better leak and
// corruption reports.
type DebugSettings struct {
	// LogMemoryInformation logs device memory type/heap properties when the
	// allocator is created.
	LogMemoryInformation bool

	// LogLeaksOnShutdown reports any allocation still live when the
	// allocator's Destroy method runs.
	LogLeaksOnShutdown bool

	// StoreStackTraces captures the caller's stack at allocation time and
	// includes it in leak reports. Expensive; off by default.
	StoreStackTraces bool

	// LogAllocations logs every successful Allocate call.
	LogAllocations bool

	// LogFrees logs every Free call.
	LogFrees bool
}

func captureStackTrace(settings DebugSettings) string {
	if !settings.StoreStackTraces {
		return ""
	}
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
