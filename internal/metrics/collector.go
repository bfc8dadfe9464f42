package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot holds one sample of process and system metrics
type Snapshot struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // Can exceed 100% on multi-core
	ProcessRSSMB      float64
	MemoryUsedGB      float64
	MemoryPercent     float64
	Goroutines        int
	Timestamp         time.Time
}

// Reporter reports pipeline counters to be logged next to the system metrics
type Reporter func() []zap.Field

// Collector periodically samples system metrics and the registered
// pipeline counters and logs them together
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	mu     sync.RWMutex
	stage  string
	report Reporter
	last   *Snapshot
	counts func() int
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		counts:   runtime.NumGoroutine,
	}
}

// SetStage names the current pipeline stage and its progress reporter.
// A nil reporter logs system metrics only.
func (c *Collector) SetStage(stage string, report Reporter) {
	c.mu.Lock()
	c.stage = stage
	c.report = report
	c.mu.Unlock()
}

// Start begins periodic collection. Returns when ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Baseline sample for the CPU deltas
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Last returns the most recent snapshot, nil before the first sample
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Collect takes one sample and logs it
func (c *Collector) Collect() *Snapshot {
	s := &Snapshot{Timestamp: time.Now(), Goroutines: c.counts()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vmem.UsedPercent
		s.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
	}

	c.mu.Lock()
	c.last = s
	stage, report := c.stage, c.report
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("stage", stage),
		zap.Float64("sys_cpu", s.CPUPercent),
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.String("rss", fmt.Sprintf("%.1f MB", s.ProcessRSSMB)),
		zap.Float64("mem_pct", s.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", s.MemoryUsedGB)),
		zap.Int("goroutines", s.Goroutines),
	}
	if report != nil {
		fields = append(fields, report()...)
	}
	c.logger.Info("System metrics", fields...)
	return s
}
