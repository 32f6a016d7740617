package sensors

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vio_frontend/internal/imu"
)

type fakeRegisters struct {
	values [6]int16
	fail   int // register index that errors, -1 for none
}

func (f *fakeRegisters) get(i int) (int16, error) {
	if i == f.fail {
		return 0, errors.New("spi timeout")
	}
	return f.values[i], nil
}

func (f *fakeRegisters) GetAccelerationX() (int16, error) { return f.get(0) }
func (f *fakeRegisters) GetAccelerationY() (int16, error) { return f.get(1) }
func (f *fakeRegisters) GetAccelerationZ() (int16, error) { return f.get(2) }
func (f *fakeRegisters) GetRotationX() (int16, error)     { return f.get(3) }
func (f *fakeRegisters) GetRotationY() (int16, error)     { return f.get(4) }
func (f *fakeRegisters) GetRotationZ() (int16, error)     { return f.get(5) }

func TestMPU9250SourceNext(t *testing.T) {
	regs := &fakeRegisters{values: [6]int16{0, 0, 16384, 131, 0, -131}, fail: -1}
	mock := clock.NewMock()
	mock.Add(time.Second)
	src := newMPU9250Source(regs, imu.MPU9250Scale(0, 0), mock)

	s, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(time.Second), s.TimestampNs)
	assert.InDelta(t, imu.StandardGravity, s.LinearAccel.Z, 1e-9)
	assert.InDelta(t, math.Pi/180, s.AngularVelocity.X, 1e-12)
	assert.InDelta(t, -math.Pi/180, s.AngularVelocity.Z, 1e-12)
}

func TestMPU9250SourceTimestampsIncrease(t *testing.T) {
	regs := &fakeRegisters{fail: -1}
	mock := clock.NewMock()
	mock.Add(time.Second)
	src := newMPU9250Source(regs, imu.MPU9250Scale(1, 1), mock)

	a, err := src.Next()
	require.NoError(t, err)
	b, err := src.Next()
	require.NoError(t, err)
	assert.Greater(t, b.TimestampNs, a.TimestampNs, "same clock reading still advances")

	mock.Add(5 * time.Millisecond)
	c, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, a.TimestampNs+int64(5*time.Millisecond), c.TimestampNs)
}

func TestMPU9250SourceReadError(t *testing.T) {
	for i, name := range []string{"accel X", "accel Y", "accel Z", "gyro X", "gyro Y", "gyro Z"} {
		t.Run(name, func(t *testing.T) {
			src := newMPU9250Source(&fakeRegisters{fail: i}, imu.MPU9250Scale(0, 0), clock.NewMock())
			_, err := src.Next()
			assert.ErrorContains(t, err, name)
		})
	}
}
