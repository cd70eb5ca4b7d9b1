package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sampler periodically records CPU and memory usage of one process.
type Sampler struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Usage is a single resource sample.
type Usage struct {
	RSS        uint64
	CPUPercent float64
}

// Sample reads the current usage of pid.
func Sample(ctx context.Context, pid int32) (Usage, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return Usage{}, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, err
	}
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{RSS: mem.RSS, CPUPercent: cpu}, nil
}

// Run samples pid until ctx is done or the process disappears.
func (s Sampler) Run(ctx context.Context, pid int32) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		u, err := Sample(ctx, pid)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Debug("stop sampling studio server", "pid", pid, "error", err)
			}
			return
		}
		setChildUsage(u.RSS, u.CPUPercent)
	}
}
