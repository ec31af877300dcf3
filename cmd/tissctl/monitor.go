package main

import (
	"runtime"
	"sync"
	"time"

	"github.com/farxc/tiss_wrapper/internal/logger"
)

// ProfilerStats holds the peaks seen while an ingestion ran.
type ProfilerStats struct {
	PeakGoroutines int
	PeakHeapMB     uint64
	GCCycles       uint32
	Samples        int
}

// MemoryMonitor samples the runtime on an interval until stopped.
type MemoryMonitor struct {
	mu       sync.Mutex
	stats    ProfilerStats
	baseGC   uint32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewMonitor() *MemoryMonitor {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &MemoryMonitor{
		baseGC: ms.NumGC,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *MemoryMonitor) Start(interval time.Duration, appLogger *logger.Logger) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sample(appLogger)
			case <-m.stop:
				m.sample(appLogger)
				return
			}
		}
	}()
}

func (m *MemoryMonitor) sample(appLogger *logger.Logger) {
	const component = "Monitor"

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	goroutines := runtime.NumGoroutine()
	heapMB := ms.HeapAlloc >> 20

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Samples++
	m.stats.PeakGoroutines = max(m.stats.PeakGoroutines, goroutines)
	m.stats.PeakHeapMB = max(m.stats.PeakHeapMB, heapMB)
	m.stats.GCCycles = ms.NumGC - m.baseGC

	appLogger.Debug(component, "goroutines=%d heapMB=%d gcCycles=%d", goroutines, heapMB, m.stats.GCCycles)
}

// Stop takes a final sample and returns the peaks. It is safe to call more
// than once, but only after Start.
func (m *MemoryMonitor) Stop() ProfilerStats {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
