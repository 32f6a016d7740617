package frontend

import (
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

type threadCPUClock struct {
	tasks procfs.FS
}

// NewThreadCPUClock returns a CPUClock reading the user+system time of the
// calling OS thread from /proc/self/task. CPUTime must be called from a
// goroutine locked to its thread, as IMUStream.Run is.
func NewThreadCPUClock() (CPUClock, error) {
	fs, err := procfs.NewFS("/proc/self/task")
	if err != nil {
		return nil, fmt.Errorf("procfs tasks: %w", err)
	}
	return threadCPUClock{tasks: fs}, nil
}

func (c threadCPUClock) CPUTime() time.Duration {
	task, err := c.tasks.Proc(unix.Gettid())
	if err != nil {
		return 0
	}
	stat, err := task.Stat()
	if err != nil {
		return 0
	}
	return time.Duration(stat.CPUTime() * float64(time.Second))
}
