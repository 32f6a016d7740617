// Package pose defines the two products published downstream of the fusion
// frontend and the conversions from the estimator's internal representation.
package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// ErrNonFinite reports a NaN or Inf in a value about to be published.
// It means the estimator diverged; there is no sound output to send.
var ErrNonFinite = errors.New("non-finite value")

// Quat32 is a single-precision quaternion in (w, x, y, z) order.
type Quat32 struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Sample is the consumer-facing pose, stamped with the capture time of the
// camera pair that produced it.
type Sample struct {
	TimestampNs int64      `json:"timestamp_ns"`
	Position    [3]float32 `json:"position"`
	Orientation Quat32     `json:"orientation"`
}

// FromXYZW reorders a quaternion stored as (x, y, z, w) into a gonum
// quaternion, whose Real part is w.
func FromXYZW(q [4]float64) quat.Number {
	return quat.Number{Real: q[3], Imag: q[0], Jmag: q[1], Kmag: q[2]}
}

// ToQuat32 narrows q to single precision keeping (w, x, y, z) order.
func ToQuat32(q quat.Number) Quat32 {
	return Quat32{W: float32(q.Real), X: float32(q.Imag), Y: float32(q.Jmag), Z: float32(q.Kmag)}
}

// ToPosition32 narrows p to single precision.
func ToPosition32(p r3.Vector) [3]float32 {
	return [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
}

// Validate checks the seven pose scalars. Narrowing can overflow a finite
// float64 to Inf, so the check runs on the single-precision values.
func (s Sample) Validate() error {
	q := s.Orientation
	for _, c := range []struct {
		name string
		v    float32
	}{
		{"orientation.w", q.W},
		{"orientation.x", q.X},
		{"orientation.y", q.Y},
		{"orientation.z", q.Z},
		{"position.x", s.Position[0]},
		{"position.y", s.Position[1]},
		{"position.z", s.Position[2]},
	} {
		if !finite(float64(c.v)) {
			return fmt.Errorf("pose %s = %v: %w", c.name, c.v, ErrNonFinite)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkVector(name string, v r3.Vector) error {
	for i, c := range [3]float64{v.X, v.Y, v.Z} {
		if !finite(c) {
			return fmt.Errorf("%s[%d] = %v: %w", name, i, c, ErrNonFinite)
		}
	}
	return nil
}
