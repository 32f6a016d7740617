//go:build !linux

package frontend

import "errors"

// NewThreadCPUClock is only available on Linux.
func NewThreadCPUClock() (CPUClock, error) {
	return nil, errors.New("per-thread CPU time needs linux procfs")
}
