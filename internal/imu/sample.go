package imu

import (
	"github.com/golang/geo/r3"
)

// Sample is a single inertial measurement as delivered on the imu topic.
// Samples arrive strictly time-ordered and are never modified after delivery.
type Sample struct {
	TimestampNs     int64     `json:"timestamp_ns"` // nanoseconds since dataset epoch
	AngularVelocity r3.Vector `json:"angular_v"`    // rad/s
	LinearAccel     r3.Vector `json:"linear_a"`     // m/s^2
}

// Seconds returns the sample timestamp in seconds.
func (s Sample) Seconds() float64 {
	return float64(s.TimestampNs) / 1e9
}

// Source is anything that can provide inertial samples over time:
// the MPU9250 reader, a replay file, a test script.
type Source interface {
	Next() (Sample, error)
}
