package core

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time view of this process, reported by the
// health endpoint and the live stats stream.
type ProcessStats struct {
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// StatsCollector samples process-level metrics via gopsutil.
type StatsCollector struct {
	proc    *process.Process
	started time.Time
}

// NewStatsCollector binds a collector to the current process.
func NewStatsCollector() (*StatsCollector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &StatsCollector{proc: proc, started: time.Now()}, nil
}

// Collect samples current process stats. Metric read failures degrade to
// zero values; a nil collector reports only goroutines and uptime zero.
func (s *StatsCollector) Collect() ProcessStats {
	stats := ProcessStats{Goroutines: runtime.NumGoroutine()}
	if s == nil {
		return stats
	}
	stats.UptimeSeconds = int64(time.Since(s.started).Seconds())
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
