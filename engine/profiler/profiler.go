package profiler

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Profiler tracks frame rate and memory statistics for the viewer loop.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	logger         *log.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler logging to logger (log.Default() when nil).
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *log.Logger) *Profiler {
	if logger == nil {
		logger = log.Default()
	}
	return &Profiler{
		logger:         logger,
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Tick should be called once per frame to track frame timing.
// Logs FPS, heap usage, allocation rate and GC pauses when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Phase is one timed step of a Stopwatch.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Stopwatch times consecutive phases of a one-shot job such as loading an asset.
type Stopwatch struct {
	start  time.Time
	last   time.Time
	phases []Phase
}

// StartStopwatch starts timing the first phase.
func StartStopwatch() *Stopwatch {
	now := time.Now()
	return &Stopwatch{start: now, last: now}
}

// Mark ends the current phase under name and starts the next one.
func (s *Stopwatch) Mark(name string) {
	now := time.Now()
	s.phases = append(s.phases, Phase{Name: name, Duration: now.Sub(s.last)})
	s.last = now
}

// Phases returns the marked phases in order.
func (s *Stopwatch) Phases() []Phase {
	return append([]Phase(nil), s.phases...)
}

// Total returns the time from start to the last mark.
func (s *Stopwatch) Total() time.Duration {
	return s.last.Sub(s.start)
}

// String formats the phases as "name: dur | ... | total: dur".
func (s *Stopwatch) String() string {
	var b strings.Builder
	for _, ph := range s.phases {
		fmt.Fprintf(&b, "%s: %s | ", ph.Name, ph.Duration.Round(time.Microsecond))
	}
	fmt.Fprintf(&b, "total: %s", s.Total().Round(time.Microsecond))
	return b.String()
}

// Log writes the phases to logger under label.
func (s *Stopwatch) Log(logger *log.Logger, label string) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[Profiler] %s: %s", label, s)
}
