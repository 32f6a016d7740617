package frontend

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// SlowTickThreshold is the wall-clock budget of one tick. Ticks over it mean
// the pipeline is falling behind the sensors.
const SlowTickThreshold = 100 * time.Millisecond

// CPUClock reports CPU time consumed so far.
type CPUClock interface {
	CPUTime() time.Duration
}

type nopCPUClock struct{}

func (nopCPUClock) CPUTime() time.Duration { return 0 }

// LatencyStats is a snapshot of tick classification counters.
type LatencyStats struct {
	Slow     uint64        `json:"slow"`
	Fast     uint64        `json:"fast"`
	LastWall time.Duration `json:"last_wall_ns"`
	LastCPU  time.Duration `json:"last_cpu_ns"`
}

type tickStart struct {
	wall time.Time
	cpu  time.Duration
}

// LatencyMonitor classifies ticks as slow or fast. It is advisory: it never
// changes what the frontend does.
type LatencyMonitor struct {
	clock  clock.Clock
	cpu    CPUClock
	logger *zap.SugaredLogger

	slow, fast        atomic.Uint64
	lastWall, lastCPU atomic.Int64
}

// NewLatencyMonitor returns a monitor. A nil cpu disables CPU timing.
func NewLatencyMonitor(clk clock.Clock, cpu CPUClock, logger *zap.SugaredLogger) *LatencyMonitor {
	if cpu == nil {
		cpu = nopCPUClock{}
	}
	return &LatencyMonitor{clock: clk, cpu: cpu, logger: logger}
}

func (m *LatencyMonitor) start() tickStart {
	return tickStart{wall: m.clock.Now(), cpu: m.cpu.CPUTime()}
}

// finish classifies the tick begun at s and reports whether it was slow.
func (m *LatencyMonitor) finish(s tickStart) bool {
	wall := m.clock.Since(s.wall)
	cpu := m.cpu.CPUTime() - s.cpu
	m.lastWall.Store(int64(wall))
	m.lastCPU.Store(int64(cpu))

	if wall > SlowTickThreshold {
		m.logger.Warnw("estimator is slow",
			"ratio", fmt.Sprintf("%d:%d", m.slow.Load(), m.fast.Load()),
			"wall_ms", wall.Milliseconds(),
			"cpu_ms", cpu.Milliseconds(),
			"start_epoch_ms", s.wall.UnixMilli(),
		)
		m.slow.Add(1)
		return true
	}
	m.fast.Add(1)
	return false
}

// Stats returns the current counters. Safe for concurrent use.
func (m *LatencyMonitor) Stats() LatencyStats {
	return LatencyStats{
		Slow:     m.slow.Load(),
		Fast:     m.fast.Load(),
		LastWall: time.Duration(m.lastWall.Load()),
		LastCPU:  time.Duration(m.lastCPU.Load()),
	}
}
