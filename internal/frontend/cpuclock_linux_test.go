package frontend

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	x := 0
	for time.Now().Before(deadline) {
		x++
	}
	_ = x
}

func TestThreadCPUClockCountsOwnThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cpu, err := NewThreadCPUClock()
	require.NoError(t, err)

	before := cpu.CPUTime()
	spin(150 * time.Millisecond)
	assert.Greater(t, cpu.CPUTime()-before, 50*time.Millisecond)
}

func TestThreadCPUClockIgnoresOtherThreads(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cpu, err := NewThreadCPUClock()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		spin(200 * time.Millisecond)
	}()

	before := cpu.CPUTime()
	<-done
	assert.Less(t, cpu.CPUTime()-before, 100*time.Millisecond)
}
