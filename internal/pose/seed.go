package pose

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NoiseConfig is the inertial noise model handed to the downstream
// integrator. The values are fixed for the sensor and not estimated.
type NoiseConfig struct {
	GyroNoise        float64   `json:"gyro_noise"`
	AccNoise         float64   `json:"acc_noise"`
	GyroWalk         float64   `json:"gyro_walk"`
	AccWalk          float64   `json:"acc_walk"`
	Gravity          r3.Vector `json:"n_gravity"`
	IntegrationSigma float64   `json:"imu_integration_sigma"`
	NominalRate      float64   `json:"nominal_rate"` // Hz
}

// DefaultNoise returns the noise model of the EuRoC ADIS16448 inertial unit.
func DefaultNoise() NoiseConfig {
	return NoiseConfig{
		GyroNoise:        0.00016968,
		AccNoise:         0.002,
		GyroWalk:         1.9393e-05,
		AccWalk:          0.003,
		Gravity:          r3.Vector{X: 0, Y: 0, Z: -9.81},
		IntegrationSigma: 1.0,
		NominalRate:      200.0,
	}
}

// IntegratorSeed is a complete snapshot used to (re)start the high-rate
// predictor that runs between fused updates.
type IntegratorSeed struct {
	TimestampS  float64     `json:"timestamp_s"`
	TimeOffset  float64     `json:"time_offset"` // camera-to-IMU, seconds
	Noise       NoiseConfig `json:"params"`
	BiasAccel   r3.Vector   `json:"bias_a"`
	BiasGyro    r3.Vector   `json:"bias_g"`
	Position    r3.Vector   `json:"position"`
	Velocity    r3.Vector   `json:"velocity"`
	Orientation quat.Number `json:"quat"` // Real is w
}

// Validate checks every estimator-derived field of the seed.
func (s IntegratorSeed) Validate() error {
	if !finite(s.TimestampS) {
		return fmt.Errorf("seed timestamp = %v: %w", s.TimestampS, ErrNonFinite)
	}
	if !finite(s.TimeOffset) {
		return fmt.Errorf("seed time offset = %v: %w", s.TimeOffset, ErrNonFinite)
	}
	for _, v := range []struct {
		name string
		v    r3.Vector
	}{
		{"bias_a", s.BiasAccel},
		{"bias_g", s.BiasGyro},
		{"position", s.Position},
		{"velocity", s.Velocity},
	} {
		if err := checkVector("seed "+v.name, v.v); err != nil {
			return err
		}
	}
	q := s.Orientation
	if !finite(q.Real) || !finite(q.Imag) || !finite(q.Jmag) || !finite(q.Kmag) {
		return fmt.Errorf("seed orientation = %v: %w", q, ErrNonFinite)
	}
	return nil
}
