package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/camera"
	"github.com/relabs-tech/vio_frontend/internal/imu"
)

// Sink accepts inertial samples for processing together with the camera
// pairs whose capture time the sample has reached. The pairs must not be
// exposed to the consumer before the sample itself is processed.
type Sink interface {
	DeliverWithPairs(ctx context.Context, s *imu.Sample, pairs []camera.FramePair) error
	Close()
}

// ReplayOptions controls a Replayer.
type ReplayOptions struct {
	// Realtime paces delivery at the recorded sample spacing.
	Realtime   bool
	Downsample bool
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
}

// Replayer feeds a Sequence into the input bus. Each camera pair is
// handed over with the first inertial sample at or after its capture time.
type Replayer struct {
	seq  *Sequence
	sink Sink
	opts ReplayOptions
}

// NewReplayer returns a replayer for seq.
func NewReplayer(seq *Sequence, sink Sink, opts ReplayOptions) *Replayer {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Replayer{seq: seq, sink: sink, opts: opts}
}

// Run replays the whole sequence and closes the sink when done.
// It stops early on context cancellation or when the sink refuses a sample.
func (r *Replayer) Run(ctx context.Context) error {
	defer r.sink.Close()
	if len(r.seq.IMU) == 0 {
		return ErrEmptySequence
	}

	log := r.opts.Logger
	log.Infow("replaying sequence",
		"imu_samples", len(r.seq.IMU),
		"stereo_pairs", len(r.seq.Frames),
		"unpaired", r.seq.Unpaired,
		"realtime", r.opts.Realtime,
	)

	start := r.opts.Clock.Now()
	t0 := r.seq.IMU[0].TimestampNs
	nextFrame := 0

	for i := range r.seq.IMU {
		s := r.seq.IMU[i]

		var pairs []camera.FramePair
		for nextFrame < len(r.seq.Frames) && r.seq.Frames[nextFrame].TimestampNs <= s.TimestampNs {
			ref := r.seq.Frames[nextFrame]
			nextFrame++
			pair, err := ref.Load(r.opts.Downsample)
			if err != nil {
				return fmt.Errorf("load frame %d: %w", ref.TimestampNs, err)
			}
			pairs = append(pairs, pair)
		}

		if r.opts.Realtime {
			due := start.Add(time.Duration(s.TimestampNs - t0))
			if err := r.sleepUntil(ctx, due); err != nil {
				return err
			}
		}

		if err := r.sink.DeliverWithPairs(ctx, &s, pairs); err != nil {
			return fmt.Errorf("deliver sample %d: %w", s.TimestampNs, err)
		}
	}

	log.Infow("replay finished", "frames_delivered", nextFrame)
	return nil
}

func (r *Replayer) sleepUntil(ctx context.Context, due time.Time) error {
	d := due.Sub(r.opts.Clock.Now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.opts.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
