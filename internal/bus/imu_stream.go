package bus

import (
	"context"
	"runtime"
	"sync"

	"github.com/relabs-tech/vio_frontend/internal/camera"
	"github.com/relabs-tech/vio_frontend/internal/imu"
)

// IMUHandler processes one inertial sample. A non-nil error stops the stream.
type IMUHandler func(*imu.Sample) error

type imuEntry struct {
	sample *imu.Sample
	pairs  []camera.FramePair
}

// IMUStream delivers inertial samples to a handler running on one
// dedicated goroutine. Invocations never overlap.
//
// Camera pairs handed over with a sample become visible in the attached
// CameraQueue only when that sample reaches the handler, so a pair is
// never dequeued ahead of the inertial history that covers it.
type IMUStream struct {
	ch        chan imuEntry
	cams      *CameraQueue
	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	stopOnce  sync.Once
}

// NewIMUStream returns a stream buffering up to size undelivered samples.
// cams receives pairs passed to DeliverWithPairs and may be nil when the
// producer never hands pairs over.
func NewIMUStream(size int, cams *CameraQueue) *IMUStream {
	return &IMUStream{
		ch:      make(chan imuEntry, size),
		cams:    cams,
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Deliver hands s to the processing goroutine, blocking while the buffer is
// full. It fails once the stream is closed or the handler has stopped.
func (s *IMUStream) Deliver(ctx context.Context, sample *imu.Sample) error {
	return s.DeliverWithPairs(ctx, sample, nil)
}

// DeliverWithPairs is Deliver for a sample that reaches the capture time of
// pairs. The pairs are enqueued on the processing goroutine immediately
// before the handler sees sample.
func (s *IMUStream) DeliverWithPairs(ctx context.Context, sample *imu.Sample, pairs []camera.FramePair) error {
	if len(pairs) > 0 && s.cams == nil {
		return ErrNoCameraQueue
	}

	select {
	case <-s.closing:
		return ErrStreamClosed
	case <-s.stopped:
		return ErrStreamClosed
	default:
	}

	select {
	case s.ch <- imuEntry{sample: sample, pairs: pairs}:
		return nil
	case <-s.closing:
		return ErrStreamClosed
	case <-s.stopped:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Samples already buffered are still handled.
func (s *IMUStream) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Run calls handler for every delivered sample, in order, on the calling
// goroutine, which is locked to its OS thread for the duration. It returns
// nil after Close once the buffer is drained, the handler's first error,
// or ctx.Err().
func (s *IMUStream) Run(ctx context.Context, handler IMUHandler) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer s.stopOnce.Do(func() { close(s.stopped) })

	for {
		select {
		case e := <-s.ch:
			if err := s.handle(e, handler); err != nil {
				return err
			}
		case <-s.closing:
			return s.drain(handler)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *IMUStream) handle(e imuEntry, handler IMUHandler) error {
	for _, p := range e.pairs {
		s.cams.Enqueue(p)
	}
	return handler(e.sample)
}

func (s *IMUStream) drain(handler IMUHandler) error {
	for {
		select {
		case e := <-s.ch:
			if err := s.handle(e, handler); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
