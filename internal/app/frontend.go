package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/bus"
	"github.com/relabs-tech/vio_frontend/internal/config"
	"github.com/relabs-tech/vio_frontend/internal/dataset"
	"github.com/relabs-tech/vio_frontend/internal/estimator"
	"github.com/relabs-tech/vio_frontend/internal/frontend"
	"github.com/relabs-tech/vio_frontend/internal/logging"
	"github.com/relabs-tech/vio_frontend/internal/mqttbus"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

const (
	imuStreamBuffer = 256
	outputBuffer    = 256
)

// EstimatorOptions applies the configured tuning to the EuRoC defaults.
func EstimatorOptions(cfg *config.Config) estimator.Options {
	opts := estimator.DefaultOptions()
	opts.NumPts = cfg.NumPts
	opts.UseStereo = cfg.UseStereo
	opts.UseKLT = cfg.UseKLT
	opts.UseRK4Integration = cfg.UseRK4Integration
	if cfg.DownsampleCameras {
		opts = opts.Downsampled()
	}
	return opts
}

// pipeline is the in-process part of the frontend: input bus, fusion
// frontend and output topics.
type pipeline struct {
	cams   *bus.CameraQueue
	stream *bus.IMUStream
	poses  *bus.Topic[pose.Sample]
	seeds  *bus.Topic[pose.IntegratorSeed]
	fe     *frontend.Frontend
	logger *zap.SugaredLogger
}

func newPipeline(cfg *config.Config, est estimator.Estimator, cpu frontend.CPUClock, logger *zap.SugaredLogger) *pipeline {
	cams := bus.NewCameraQueue(cfg.CamQueueSize)
	p := &pipeline{
		cams:   cams,
		stream: bus.NewIMUStream(imuStreamBuffer, cams),
		poses:  bus.NewTopic[pose.Sample](cfg.TopicPose),
		seeds:  bus.NewTopic[pose.IntegratorSeed](cfg.TopicIMUIntegratorInput),
		logger: logger,
	}
	p.fe = frontend.New(est, p.cams, p.poses, p.seeds,
		frontend.WithLogger(logger.Named("fusion")),
		frontend.WithCPUClock(cpu),
	)
	return p
}

// run drives the frontend until feed has delivered everything, the
// frontend faults or ctx ends. The output topics are closed on return.
func (p *pipeline) run(ctx context.Context, feed func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feedErr := make(chan error, 1)
	go func() { feedErr <- feed(ctx) }()

	runErr := p.stream.Run(ctx, p.fe.HandleIMU)
	cancel()
	p.stream.Close()
	ferr := <-feedErr

	p.poses.Close()
	p.seeds.Close()

	lat := p.fe.Latency()
	p.logger.Infow("processing stopped",
		"poses_published", p.poses.Published(),
		"slow_ticks", lat.Slow,
		"fast_ticks", lat.Fast,
		"camera_pairs_evicted", p.cams.Dropped(),
	)
	return multierr.Combine(ignoreShutdown(runErr), ignoreShutdown(ferr))
}

func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrStreamClosed) {
		return nil
	}
	return err
}

// datasetFeed replays the configured EuRoC sequence. Pairs ride on the
// inertial stream so none becomes visible before the samples covering it
// are processed.
func (p *pipeline) datasetFeed(cfg *config.Config) (func(context.Context) error, error) {
	seq, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	r := dataset.NewReplayer(seq, p.stream, dataset.ReplayOptions{
		Realtime:   cfg.DatasetRealtime,
		Downsample: cfg.DownsampleCameras,
		Logger:     p.logger.Named("replay"),
	})
	return r.Run, nil
}

// mqttFeed subscribes the input bus to the sensor topics and waits for ctx.
func (p *pipeline) mqttFeed(client mqttbus.Client, cfg *config.Config) func(context.Context) error {
	return func(ctx context.Context) error {
		log := p.logger.Named("mqtt")
		if err := mqttbus.SubscribeCameras(client, cfg.TopicCam, p.cams, cfg.DownsampleCameras, log); err != nil {
			return err
		}
		if err := mqttbus.SubscribeIMU(ctx, client, cfg.TopicIMU, p.stream, log); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

// RunFrontend runs the fusion frontend until the input ends, a fault
// occurs, or ctx is canceled.
func RunFrontend(ctx context.Context) error {
	cfg := config.Get()

	logger, err := logging.NewLogger("frontend", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := EstimatorOptions(cfg)
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("estimator options: %w", err)
	}

	cpu, err := frontend.NewThreadCPUClock()
	if err != nil {
		logger.Warnw("CPU time unavailable, reporting wall time only", "error", err)
	}

	p := newPipeline(cfg, estimator.NewStrapdown(opts), cpu, logger)

	client, err := mqttbus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDFrontend, logger.Named("mqtt"))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	var feed func(context.Context) error
	switch cfg.InputSource {
	case config.InputMQTT:
		feed = p.mqttFeed(client, cfg)
	default:
		if feed, err = p.datasetFeed(cfg); err != nil {
			return err
		}
	}

	poseCh, err := p.poses.Subscribe("mqtt", outputBuffer)
	if err != nil {
		return err
	}
	seedCh, err := p.seeds.Subscribe("mqtt", outputBuffer)
	if err != nil {
		return err
	}
	web, err := NewWeb(p.poses, p.seeds, p.fe.Latency, logger.Named("web"))
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		bgErrs error
	)
	goRun := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ignoreShutdown(fn()); err != nil {
				mu.Lock()
				bgErrs = multierr.Append(bgErrs, err)
				mu.Unlock()
			}
		}()
	}

	// Forwarders drain until the topics close, not until ctx ends.
	drainCtx := context.WithoutCancel(ctx)
	mqttLog := logger.Named("mqtt")
	goRun(func() error { return mqttbus.Forward(drainCtx, client, cfg.TopicPose, poseCh, mqttLog) })
	goRun(func() error { return mqttbus.Forward(drainCtx, client, cfg.TopicIMUIntegratorInput, seedCh, mqttLog) })
	goRun(func() error { return web.Track(drainCtx) })

	srvCtx, stopSrv := context.WithCancel(ctx)
	goRun(func() error {
		return serveHTTP(srvCtx, ":"+strconv.Itoa(cfg.WebServerPort), web.Handler(), logger.Named("web"))
	})

	logger.Infow("frontend running", "input", cfg.InputSource, "pose_topic", cfg.TopicPose, "seed_topic", cfg.TopicIMUIntegratorInput)
	runErr := p.run(ctx, feed)
	stopSrv()
	wg.Wait()

	if runErr != nil {
		logger.Errorw("frontend stopped on fault", "error", runErr)
	}
	return multierr.Append(runErr, bgErrs)
}

// serveHTTP serves h on addr until ctx ends.
func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *zap.SugaredLogger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("web server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if lerr := <-errCh; !errors.Is(lerr, http.ErrServerClosed) {
		err = multierr.Append(err, lerr)
	}
	return err
}
