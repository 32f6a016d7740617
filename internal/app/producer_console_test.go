package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/imu"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

type scriptedSource struct {
	next    int64
	failOn  int64
	readErr error
}

func (s *scriptedSource) Next() (imu.Sample, error) {
	s.next++
	if s.next == s.failOn {
		return imu.Sample{}, s.readErr
	}
	return imu.Sample{TimestampNs: s.next, LinearAccel: r3.Vector{Z: 9.81}}, nil
}

func TestProduceIMU(t *testing.T) {
	broker := newFakeBroker()
	src := &scriptedSource{failOn: 2, readErr: errors.New("spi")}
	ticks := make(chan time.Time)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- produceIMU(ctx, src, broker, "imu", ticks, zap.NewNop().Sugar()) }()

	for i := 0; i < 4; i++ {
		ticks <- time.Time{}
	}
	require.Eventually(t, func() bool { return broker.count("imu") == 3 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var s imu.Sample
	require.NoError(t, json.Unmarshal(broker.published["imu"][1], &s))
	assert.Equal(t, int64(3), s.TimestampNs, "failed read is skipped")
	assert.Equal(t, 9.81, s.LinearAccel.Z)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsolePrintsOutputs(t *testing.T) {
	broker := newFakeBroker()
	out := &syncBuffer{}
	require.NoError(t, subscribeConsole(broker, "slow_pose", "imu_integrator_input", out, zap.NewNop().Sugar()))

	p, err := json.Marshal(pose.Sample{TimestampNs: 1_500_000_000, Position: [3]float32{1, 2, 3}, Orientation: pose.Quat32{W: 1}})
	require.NoError(t, err)
	broker.Publish("slow_pose", 0, false, p)
	broker.Publish("slow_pose", 0, false, []byte("garbage"))

	s, err := json.Marshal(pose.IntegratorSeed{TimestampS: 1.505, Velocity: r3.Vector{X: 0.25}})
	require.NoError(t, err)
	broker.Publish("imu_integrator_input", 0, false, s)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[POSE] t=1.500000"))
	assert.Contains(t, lines[0], "w= 1.0000")
	assert.True(t, strings.HasPrefix(lines[1], "[SEED] t=1.505000"))
	assert.Contains(t, lines[1], "v=(  0.250")
}
