// Package frontend drives a visual-inertial estimator from an inertial
// stream and a camera queue, and publishes its pose and integrator seed.
//
// Every inertial sample is fed to the estimator. Camera pairs are held back
// by one step: a pair is fused only on the tick where the next pair is
// dequeued, so fusion always lags ingestion by exactly one pair.
package frontend

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/camera"
	"github.com/relabs-tech/vio_frontend/internal/estimator"
	"github.com/relabs-tech/vio_frontend/internal/imu"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

var (
	// ErrNilSample is an ingestion fault: a delivery carried no sample.
	ErrNilSample = errors.New("nil inertial sample")
	// ErrNonMonotonic is an ingestion fault: a timestamp did not increase.
	ErrNonMonotonic = errors.New("inertial timestamp not strictly increasing")
	// ErrHalted is returned by every call after a fault.
	ErrHalted = errors.New("frontend halted")
)

// Stereo camera ids passed with every fused pair.
const (
	leftCamID  = 0
	rightCamID = 1
)

// CameraSource yields queued camera pairs without blocking.
type CameraSource interface {
	TryDequeue() (camera.FramePair, bool)
}

// Publisher accepts a published value. Implementations must not block and
// must treat the value as their own copy.
type Publisher[T any] interface {
	Publish(T)
}

// Option configures a Frontend.
type Option func(*Frontend)

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(f *Frontend) { f.logger = logger }
}

// WithClock sets the wall clock used for latency monitoring.
func WithClock(clk clock.Clock) Option {
	return func(f *Frontend) { f.clock = clk }
}

// WithCPUClock sets the CPU-time source used for latency monitoring.
func WithCPUClock(cpu CPUClock) Option {
	return func(f *Frontend) { f.cpu = cpu }
}

// Frontend is not safe for concurrent use: HandleIMU must be called from a
// single goroutine. Latency may be read from anywhere.
type Frontend struct {
	est   estimator.Estimator
	cams  CameraSource
	poses Publisher[pose.Sample]
	seeds Publisher[pose.IntegratorSeed]

	logger  *zap.SugaredLogger
	clock   clock.Clock
	cpu     CPUClock
	latency *LatencyMonitor

	pending     pendingFrame
	prevSeconds float64
	publishing  bool
	fault       error
}

// New returns a frontend with an empty pending buffer.
func New(
	est estimator.Estimator,
	cams CameraSource,
	poses Publisher[pose.Sample],
	seeds Publisher[pose.IntegratorSeed],
	opts ...Option,
) *Frontend {
	f := &Frontend{
		est:    est,
		cams:   cams,
		poses:  poses,
		seeds:  seeds,
		logger: zap.NewNop().Sugar(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.latency = NewLatencyMonitor(f.clock, f.cpu, f.logger)
	return f
}

// HandleIMU runs one tick for sample s. Any error is fatal: the frontend
// latches it and every later call fails with ErrHalted.
func (f *Frontend) HandleIMU(s *imu.Sample) error {
	if f.fault != nil {
		return fmt.Errorf("%w: %w", ErrHalted, f.fault)
	}

	start := f.latency.start()
	if err := f.tick(s); err != nil {
		f.fault = err
		f.logger.Errorw("fusion frontend fault", "error", err)
		return err
	}
	f.latency.finish(start)
	return nil
}

// Latency returns tick classification counters.
func (f *Frontend) Latency() LatencyStats {
	return f.latency.Stats()
}

func (f *Frontend) tick(s *imu.Sample) error {
	if s == nil {
		return ErrNilSample
	}

	t := s.Seconds()
	if !(t > f.prevSeconds) {
		return fmt.Errorf("%w: %.9f s after %.9f s", ErrNonMonotonic, t, f.prevSeconds)
	}
	f.prevSeconds = t

	f.est.FeedIMU(t, s.AngularVelocity, s.LinearAccel)

	next, ok := f.cams.TryDequeue()
	if !ok {
		return nil
	}

	held, holding := f.pending.held()
	if !holding {
		f.pending.hold(next)
		f.logger.Debugw("holding first camera pair", "timestamp_ns", next.TimestampNs)
		return nil
	}

	if err := f.fuse(held, t); err != nil {
		return err
	}
	f.pending.hold(next)
	return nil
}

// fuse runs the stereo update for the held pair and publishes the result.
// imuSeconds stamps the integrator seed.
func (f *Frontend) fuse(held camera.FramePair, imuSeconds float64) error {
	f.est.FeedStereo(held.Seconds(), held.Left, held.Right, leftCamID, rightCamID)

	st := f.est.State()
	q := pose.FromXYZW(st.OrientationXYZW)
	p := pose.Sample{
		TimestampNs: held.TimestampNs,
		Position:    pose.ToPosition32(st.Position),
		Orientation: pose.ToQuat32(q),
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("frame %d ns: %w", held.TimestampNs, err)
	}

	if !f.est.Initialized() {
		return nil
	}

	seed := pose.IntegratorSeed{
		TimestampS:  imuSeconds,
		TimeOffset:  st.CamToIMUTimeOffset,
		Noise:       pose.DefaultNoise(),
		BiasAccel:   st.BiasAccel,
		BiasGyro:    st.BiasGyro,
		Position:    st.Position,
		Velocity:    st.Velocity,
		Orientation: q,
	}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("frame %d ns: %w", held.TimestampNs, err)
	}

	if !f.publishing {
		f.publishing = true
		f.logger.Infow("estimator initialized, publishing", "timestamp_ns", held.TimestampNs)
	}
	f.poses.Publish(p)
	f.seeds.Publish(seed)
	return nil
}
