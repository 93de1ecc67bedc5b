// Package loadsignal supplies the normalized load value the movement
// backpressure policy keys on.
package loadsignal

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/cpu"
)

// Signal yields the current system load normalized to [0, 1].
type Signal interface {
	CurrentLoad() float64
}

// Static is a fixed load value, used in tests and as a disabled signal.
type Static float64

func (s Static) CurrentLoad() float64 { return float64(s) }

// CPU samples overall CPU utilization in the background and exposes the
// latest reading. Sampling never sits on the movement hot path.
type CPU struct {
	interval time.Duration
	load     atomic.Uint64
}

// NewCPU starts sampling at the given interval until ctx is cancelled.
func NewCPU(ctx context.Context, interval time.Duration) *CPU {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := &CPU{interval: interval}
	go s.run(ctx)
	return s
}

func (s *CPU) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// cpu.Percent blocks for the interval, measuring across it.
		percentages, err := cpu.Percent(s.interval, false)
		if err != nil || len(percentages) == 0 {
			continue
		}
		s.load.Store(math.Float64bits(percentages[0] / 100))
	}
}

// CurrentLoad returns the most recent sample.
func (s *CPU) CurrentLoad() float64 {
	return math.Float64frombits(s.load.Load())
}
