package pose

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

func TestFromXYZWReordersToWXYZ(t *testing.T) {
	// Reordering carries the scalars through unchanged; it does not normalize.
	q := FromXYZW([4]float64{0.1, 0.2, 0.3, 0.9327})

	assert.Equal(t, quat.Number{Real: 0.9327, Imag: 0.1, Jmag: 0.2, Kmag: 0.3}, q)

	q32 := ToQuat32(q)
	assert.Equal(t, Quat32{W: 0.9327, X: 0.1, Y: 0.2, Z: 0.3}, q32)
}

func TestToPosition32(t *testing.T) {
	assert.Equal(t, [3]float32{1.5, -2, 3.25}, ToPosition32(r3.Vector{X: 1.5, Y: -2, Z: 3.25}))
}

func TestSampleValidate(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	base := Sample{Position: [3]float32{1, 2, 3}, Orientation: Quat32{W: 1}}
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*Sample)
	}{
		{"w", func(s *Sample) { s.Orientation.W = nan }},
		{"x", func(s *Sample) { s.Orientation.X = inf }},
		{"y", func(s *Sample) { s.Orientation.Y = nan }},
		{"z", func(s *Sample) { s.Orientation.Z = -inf }},
		{"px", func(s *Sample) { s.Position[0] = nan }},
		{"py", func(s *Sample) { s.Position[1] = inf }},
		{"pz", func(s *Sample) { s.Position[2] = nan }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrNonFinite)
		})
	}
}

func TestNarrowingOverflowIsCaught(t *testing.T) {
	s := Sample{Position: ToPosition32(r3.Vector{X: 1e300}), Orientation: Quat32{W: 1}}
	assert.ErrorIs(t, s.Validate(), ErrNonFinite)
}

func TestSeedValidate(t *testing.T) {
	seed := IntegratorSeed{
		TimestampS:  1,
		Noise:       DefaultNoise(),
		Orientation: quat.Number{Real: 1},
	}
	require.NoError(t, seed.Validate())

	bad := seed
	bad.Velocity.Y = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrNonFinite)

	bad = seed
	bad.TimeOffset = math.Inf(-1)
	assert.ErrorIs(t, bad.Validate(), ErrNonFinite)

	bad = seed
	bad.Orientation.Kmag = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrNonFinite)
}

func TestDefaultNoise(t *testing.T) {
	n := DefaultNoise()
	assert.Equal(t, 0.00016968, n.GyroNoise)
	assert.Equal(t, 0.002, n.AccNoise)
	assert.Equal(t, 1.9393e-05, n.GyroWalk)
	assert.Equal(t, 0.003, n.AccWalk)
	assert.Equal(t, r3.Vector{Z: -9.81}, n.Gravity)
	assert.Equal(t, 1.0, n.IntegrationSigma)
	assert.Equal(t, 200.0, n.NominalRate)
}
