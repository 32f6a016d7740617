package estimator

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

var gravity = r3.Vector{X: 0, Y: 0, Z: -9.81}

type windowSample struct {
	t     float64
	gyro  r3.Vector
	accel r3.Vector
}

// Strapdown is an inertial-only stand-in for a visual-inertial filter.
// It keeps an initialization window, aligns with gravity once the window
// shows enough excitation and a stereo pair has been seen, then integrates
// gyro and accelerometer. Stereo pairs are accepted but carry no update.
type Strapdown struct {
	opts Options

	window    []windowSample
	sawStereo bool
	ready     bool

	lastT float64
	q     quat.Number // IMU to world
	v, p  r3.Vector
	bg    r3.Vector
}

// NewStrapdown returns an uninitialized strapdown estimator.
func NewStrapdown(opts Options) *Strapdown {
	return &Strapdown{opts: opts, q: quat.Number{Real: 1}}
}

// FeedIMU implements Estimator.
func (s *Strapdown) FeedIMU(t float64, angularVelocity, linearAccel r3.Vector) {
	if !s.ready {
		s.window = append(s.window, windowSample{t: t, gyro: angularVelocity, accel: linearAccel})
		for len(s.window) > 0 && t-s.window[0].t > s.opts.InitWindowTime {
			s.window = s.window[1:]
		}
		s.tryInitialize(t)
		return
	}

	dt := t - s.lastT
	s.lastT = t
	if dt <= 0 {
		return
	}

	w := angularVelocity.Sub(s.bg).Mul(dt / 2)
	s.q = quat.Mul(s.q, quat.Exp(quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z}))
	s.q = quat.Scale(1/quat.Abs(s.q), s.q)

	a := rotate(s.q, linearAccel).Add(gravity)
	s.p = s.p.Add(s.v.Mul(dt)).Add(a.Mul(dt * dt / 2))
	s.v = s.v.Add(a.Mul(dt))
}

// FeedStereo implements Estimator.
func (s *Strapdown) FeedStereo(t float64, left, right *image.Gray, camID0, camID1 int) {
	s.sawStereo = true
}

// Initialized implements Estimator.
func (s *Strapdown) Initialized() bool {
	return s.ready
}

// State implements Estimator.
func (s *Strapdown) State() State {
	return State{
		OrientationXYZW: [4]float64{s.q.Imag, s.q.Jmag, s.q.Kmag, s.q.Real},
		Velocity:        s.v,
		Position:        s.p,
		BiasGyro:        s.bg,
	}
}

func (s *Strapdown) tryInitialize(t float64) {
	if !s.sawStereo || len(s.window) < 2 {
		return
	}
	if s.window[len(s.window)-1].t-s.window[0].t < s.opts.InitWindowTime*0.95 {
		return
	}

	var meanA, meanW r3.Vector
	for _, ws := range s.window {
		meanA = meanA.Add(ws.accel)
		meanW = meanW.Add(ws.gyro)
	}
	n := float64(len(s.window))
	meanA = meanA.Mul(1 / n)
	meanW = meanW.Mul(1 / n)

	var variance float64
	for _, ws := range s.window {
		d := ws.accel.Norm() - meanA.Norm()
		variance += d * d
	}
	if math.Sqrt(variance/n) < s.opts.InitIMUThresh {
		return
	}

	s.q = alignGravity(meanA)
	s.bg = meanW
	s.v, s.p = r3.Vector{}, r3.Vector{}
	s.lastT = t
	s.window = nil
	s.ready = true
}

// alignGravity returns the tilt-only orientation that maps the measured
// specific force onto world +Z. Yaw is left at zero.
//
// Uses the tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func alignGravity(accel r3.Vector) quat.Number {
	roll := math.Atan2(accel.Y, accel.Z)
	pitch := math.Atan2(-accel.X, math.Sqrt(accel.Y*accel.Y+accel.Z*accel.Z))

	qr := quat.Number{Real: math.Cos(roll / 2), Imag: math.Sin(roll / 2)}
	qp := quat.Number{Real: math.Cos(pitch / 2), Jmag: math.Sin(pitch / 2)}
	return quat.Mul(qp, qr)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	r := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
