package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	pingTimeout = 2 * time.Second
	// failedThreshold is the number of consecutive failed pings after which
	// the store is reported as failed rather than degraded.
	failedThreshold = 3
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

type memoryReport struct {
	RSS       uint64 `json:"rss"`
	VMS       uint64 `json:"vms"`
	HeapAlloc uint64 `json:"heapAlloc"`
}

type healthReport struct {
	Status     HealthStatus  `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
	Uptime     float64       `json:"uptime"`
	Memory     *memoryReport `json:"memory,omitempty"`
	Goroutines int           `json:"goroutines"`
	Database   string        `json:"database"`
	LastError  string        `json:"lastError,omitempty"`
}

// storeHealth counts consecutive failed pings.
type storeHealth struct {
	mu       sync.Mutex
	failures int
	lastErr  string
}

func (h *storeHealth) record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.failures = 0
		h.lastErr = ""
		return
	}
	h.failures++
	h.lastErr = err.Error()
}

func (h *storeHealth) snapshot() (HealthStatus, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.failures == 0:
		return StatusHealthy, ""
	case h.failures < failedThreshold:
		return StatusDegraded, h.lastErr
	default:
		return StatusFailed, h.lastErr
	}
}

var (
	selfOnce sync.Once
	self     *process.Process
)

func processMemory(ctx context.Context) *memoryReport {
	selfOnce.Do(func() {
		self, _ = process.NewProcessWithContext(ctx, int32(os.Getpid()))
	})

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report := &memoryReport{HeapAlloc: ms.HeapAlloc}
	if self == nil {
		return report
	}
	if info, err := self.MemoryInfoWithContext(ctx); err == nil {
		report.RSS = info.RSS
		report.VMS = info.VMS
	}
	return report
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	now := s.now()
	s.health.record(s.store.Ping(ctx))
	status, lastErr := s.health.snapshot()

	report := healthReport{
		Status:     status,
		Timestamp:  now.UTC(),
		Uptime:     now.Sub(s.started).Seconds(),
		Memory:     processMemory(ctx),
		Goroutines: runtime.NumGoroutine(),
		Database:   "connected",
		LastError:  lastErr,
	}
	code := http.StatusOK
	if status != StatusHealthy {
		report.Database = "disconnected"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}
