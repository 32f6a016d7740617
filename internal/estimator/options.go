package estimator

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// CameraOptions is the calibration of one camera.
type CameraOptions struct {
	Fisheye bool
	// Intrinsics holds fx, fy, cx, cy, k1, k2, p1, p2.
	Intrinsics [8]float64
	// TCtoI is the row-major 4x4 transform from camera to IMU frame.
	TCtoI  [16]float64
	Width  int
	Height int
}

// rotationTolerance bounds how far a calibrated rotation may drift from
// an exact rotation before it is rejected.
const rotationTolerance = 1e-6

// Extrinsics returns the IMU-to-camera rotation and the IMU origin expressed
// in the camera frame, as stored in the filter state.
func (c CameraOptions) Extrinsics() (quat.Number, r3.Vector) {
	t := mat.NewDense(4, 4, c.TCtoI[:])
	rot := mat.DenseCopyOf(t.Slice(0, 3, 0, 3))
	trans := mat.NewVecDense(3, []float64{c.TCtoI[3], c.TCtoI[7], c.TCtoI[11]})

	var rT mat.Dense
	rT.CloneFrom(rot.T())

	var p mat.VecDense
	p.MulVec(&rT, trans)
	p.ScaleVec(-1, &p)

	return rotationToQuat(&rT), r3.Vector{X: p.AtVec(0), Y: p.AtVec(1), Z: p.AtVec(2)}
}

// checkRotation verifies the rotation block of TCtoI is a proper rotation:
// determinant +1, and the quaternion Extrinsics derives from it maps each
// IMU axis onto the matching row of the matrix.
func (c CameraOptions) checkRotation() error {
	rot := mat.NewDense(4, 4, c.TCtoI[:]).Slice(0, 3, 0, 3)
	if det := mat.Det(rot); math.Abs(det-1) > rotationTolerance {
		return fmt.Errorf("T_CtoI rotation has determinant %.9f", det)
	}

	q, _ := c.Extrinsics()
	axes := [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	for k, axis := range axes {
		got := rotate(q, axis)
		want := r3.Vector{X: rot.At(k, 0), Y: rot.At(k, 1), Z: rot.At(k, 2)}
		if d := got.Sub(want).Norm(); d > rotationTolerance {
			return fmt.Errorf("T_CtoI rotation is not orthonormal: axis %d off by %.3g", k, d)
		}
	}
	return nil
}

// Options is the static configuration blob an estimator is constructed from.
type Options struct {
	Cameras []CameraOptions

	InitWindowTime float64 // seconds of IMU history required to initialize
	InitIMUThresh  float64 // accel excitation (m/s^2 std) that triggers initialization

	FastThreshold int
	GridX, GridY  int
	NumPts        int
	KNNRatio      float64
	UseKLT        bool
	UseStereo     bool

	MSCKFChi2Multiplier float64
	SLAMChi2Multiplier  float64
	SLAMSigmaPix        float64

	IMUAvg               bool
	DoFEJ                bool
	UseRK4Integration    bool
	CalibCameraPose      bool
	CalibCameraIntrinsic bool
	CalibCameraTimeOff   bool

	DtSLAMDelay      float64
	MaxSLAMFeatures  int
	MaxSLAMInUpdate  int
	MaxMSCKFInUpdate int
	UseAruco         bool
	FeatRepSLAM      string
	FeatRepAruco     string
}

// DefaultOptions returns the tuning used with the EuRoC MAV stereo rig.
func DefaultOptions() Options {
	return Options{
		Cameras: []CameraOptions{
			{
				Intrinsics: [8]float64{458.654, 457.296, 367.215, 248.375, -0.28340811, 0.07395907, 0.00019359, 1.76187114e-05},
				TCtoI: [16]float64{
					0.0148655429818, -0.999880929698, 0.00414029679422, -0.0216401454975,
					0.999557249008, 0.0149672133247, 0.025715529948, -0.064676986768,
					-0.0257744366974, 0.00375618835797, 0.999660727178, 0.00981073058949,
					0.0, 0.0, 0.0, 1.0,
				},
				Width:  752,
				Height: 480,
			},
			{
				Intrinsics: [8]float64{457.587, 456.134, 379.999, 255.238, -0.28368365, 0.07451284, -0.00010473, -3.55590700e-05},
				TCtoI: [16]float64{
					0.0125552670891, -0.999755099723, 0.0182237714554, -0.0198435579556,
					0.999598781151, 0.0130119051815, 0.0251588363115, 0.0453689425024,
					-0.0253898008918, 0.0179005838253, 0.999517347078, 0.00786212447038,
					0.0, 0.0, 0.0, 1.0,
				},
				Width:  752,
				Height: 480,
			},
		},
		InitWindowTime:       0.75,
		InitIMUThresh:        1.5,
		FastThreshold:        15,
		GridX:                5,
		GridY:                3,
		NumPts:               150,
		KNNRatio:             0.7,
		UseKLT:               true,
		UseStereo:            true,
		MSCKFChi2Multiplier:  1,
		SLAMChi2Multiplier:   1,
		SLAMSigmaPix:         1,
		IMUAvg:               true,
		DoFEJ:                true,
		UseRK4Integration:    true,
		CalibCameraPose:      true,
		CalibCameraIntrinsic: true,
		CalibCameraTimeOff:   true,
		DtSLAMDelay:          3.0,
		MaxSLAMFeatures:      50,
		MaxSLAMInUpdate:      25,
		MaxMSCKFInUpdate:     999,
		FeatRepSLAM:          "ANCHORED_FULL_INVERSE_DEPTH",
		FeatRepAruco:         "ANCHORED_FULL_INVERSE_DEPTH",
	}
}

// Validate checks the options are usable for a stereo filter.
func (o Options) Validate() error {
	if len(o.Cameras) != 2 {
		return fmt.Errorf("stereo estimator needs 2 cameras, got %d", len(o.Cameras))
	}
	for i, c := range o.Cameras {
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("camera %d: invalid image size %dx%d", i, c.Width, c.Height)
		}
		if c.TCtoI[15] != 1 {
			return fmt.Errorf("camera %d: T_CtoI is not a homogeneous transform", i)
		}
		if err := c.checkRotation(); err != nil {
			return fmt.Errorf("camera %d: %w", i, err)
		}
	}
	if o.InitWindowTime <= 0 {
		return errors.New("init window time must be positive")
	}
	if o.NumPts <= 0 {
		return fmt.Errorf("num_pts must be positive, got %d", o.NumPts)
	}
	return nil
}

// Downsampled returns a copy of o with every camera at half resolution.
func (o Options) Downsampled() Options {
	cams := make([]CameraOptions, len(o.Cameras))
	for i, c := range o.Cameras {
		for k := 0; k < 4; k++ {
			c.Intrinsics[k] /= 2
		}
		c.Width /= 2
		c.Height /= 2
		cams[i] = c
	}
	o.Cameras = cams
	return o
}

// rotationToQuat converts a rotation matrix to a unit quaternion.
func rotationToQuat(r mat.Matrix) quat.Number {
	m := func(i, j int) float64 { return r.At(i, j) }
	tr := m(0, 0) + m(1, 1) + m(2, 2)

	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m(2, 1) - m(1, 2)) / s, Jmag: (m(0, 2) - m(2, 0)) / s, Kmag: (m(1, 0) - m(0, 1)) / s}
	case m(0, 0) > m(1, 1) && m(0, 0) > m(2, 2):
		s := math.Sqrt(1+m(0, 0)-m(1, 1)-m(2, 2)) * 2
		q = quat.Number{Real: (m(2, 1) - m(1, 2)) / s, Imag: s / 4, Jmag: (m(0, 1) + m(1, 0)) / s, Kmag: (m(0, 2) + m(2, 0)) / s}
	case m(1, 1) > m(2, 2):
		s := math.Sqrt(1+m(1, 1)-m(0, 0)-m(2, 2)) * 2
		q = quat.Number{Real: (m(0, 2) - m(2, 0)) / s, Imag: (m(0, 1) + m(1, 0)) / s, Jmag: s / 4, Kmag: (m(1, 2) + m(2, 1)) / s}
	default:
		s := math.Sqrt(1+m(2, 2)-m(0, 0)-m(1, 1)) * 2
		q = quat.Number{Real: (m(1, 0) - m(0, 1)) / s, Imag: (m(0, 2) + m(2, 0)) / s, Jmag: (m(1, 2) + m(2, 1)) / s, Kmag: s / 4}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}
