package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/config"
	"github.com/relabs-tech/vio_frontend/internal/imu"
	"github.com/relabs-tech/vio_frontend/internal/logging"
	"github.com/relabs-tech/vio_frontend/internal/mqttbus"
	"github.com/relabs-tech/vio_frontend/internal/sensors"
)

// RunIMUProducer reads the MPU9250 every IMU_SAMPLE_INTERVAL and publishes
// the samples on the imu topic until ctx is canceled.
func RunIMUProducer(ctx context.Context) error {
	cfg := config.Get()

	logger, err := logging.NewLogger("imu_producer", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := sensors.NewMPU9250Source(sensors.MPU9250Options{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	}, logger.Named("mpu9250"))
	if err != nil {
		return err
	}

	client, err := mqttbus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer, logger.Named("mqtt"))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	ticker := clock.New().Ticker(interval)
	defer ticker.Stop()

	logger.Infow("connected to MQTT, starting publish loop", "topic", cfg.TopicIMU, "interval", interval)
	return produceIMU(ctx, src, client, cfg.TopicIMU, ticker.C, logger)
}

// produceIMU publishes one sample per tick. Read and publish errors are
// logged and the tick skipped.
func produceIMU(ctx context.Context, src imu.Source, client mqttbus.Client, topic string, ticks <-chan time.Time, logger *zap.SugaredLogger) error {
	var published, failed uint64
	for {
		select {
		case <-ctx.Done():
			logger.Infow("producer stopping", "published", published, "failed", failed)
			return nil
		case <-ticks:
		}

		s, err := src.Next()
		if err != nil {
			failed++
			logger.Warnw("IMU read error", "error", err)
			continue
		}
		if err := mqttbus.PublishJSON(client, topic, s); err != nil {
			failed++
			logger.Warnw("MQTT publish error", "error", err)
			continue
		}
		published++
		if published%1000 == 0 {
			logger.Debugw("imu tick",
				"published", published,
				"accel", fmt.Sprintf("%.2f %.2f %.2f", s.LinearAccel.X, s.LinearAccel.Y, s.LinearAccel.Z),
				"gyro", fmt.Sprintf("%.3f %.3f %.3f", s.AngularVelocity.X, s.AngularVelocity.Y, s.AngularVelocity.Z),
			)
		}
	}
}
