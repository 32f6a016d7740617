// Package estimator defines the capability surface the fusion frontend
// needs from a visual-inertial filter, the static configuration such a
// filter is built from, and a strapdown stand-in for end-to-end runs.
package estimator

import (
	"image"

	"github.com/golang/geo/r3"
)

// Estimator is a stateful visual-inertial filter. Calls must be made from
// a single goroutine with non-decreasing timestamps.
type Estimator interface {
	// FeedIMU propagates the filter with one inertial measurement.
	FeedIMU(t float64, angularVelocity, linearAccel r3.Vector)
	// FeedStereo runs a fused update with a synchronized stereo pair.
	FeedStereo(t float64, left, right *image.Gray, camID0, camID1 int)
	// Initialized reports whether the filter has a usable estimate.
	Initialized() bool
	// State returns a snapshot of the current estimate.
	State() State
}

// State is a read-only snapshot of the filter estimate. It is only
// meaningful once the estimator reports Initialized.
type State struct {
	// OrientationXYZW is the IMU orientation stored as (x, y, z, w).
	OrientationXYZW    [4]float64
	Velocity           r3.Vector
	Position           r3.Vector
	BiasAccel          r3.Vector
	BiasGyro           r3.Vector
	CamToIMUTimeOffset float64
}
