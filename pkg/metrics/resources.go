package metrics

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is a point-in-time view of process resources
type ResourceUsage struct {
	MemoryRSS      uint64
	MemoryVMS      uint64
	HeapAlloc      uint64
	GoroutineCount int
}

// ResourceMonitor samples the current process
type ResourceMonitor struct {
	process *process.Process
	mu      sync.Mutex
}

// NewResourceMonitor creates a monitor for this process. When the process
// table cannot be read only Go runtime figures are reported.
func NewResourceMonitor() *ResourceMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &ResourceMonitor{process: proc}
}

// Usage returns current resource usage
func (rm *ResourceMonitor) Usage() ResourceUsage {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usage := ResourceUsage{
		HeapAlloc:      memStats.HeapAlloc,
		GoroutineCount: runtime.NumGoroutine(),
	}
	if rm.process != nil {
		if memInfo, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
			usage.MemoryVMS = memInfo.VMS
		}
	}
	if usage.MemoryRSS == 0 {
		usage.MemoryRSS = memStats.Sys
	}
	return usage
}

// ResidentMemory returns the RSS of the current process in bytes
func ResidentMemory() uint64 {
	return NewResourceMonitor().Usage().MemoryRSS
}
