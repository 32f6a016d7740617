package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/config"
	"github.com/relabs-tech/vio_frontend/internal/logging"
	"github.com/relabs-tech/vio_frontend/internal/mqttbus"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

// RunConsoleMQTT prints every pose and integrator seed published by the
// frontend until ctx is canceled.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()

	logger, err := logging.NewLogger("console", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := mqttbus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger.Named("mqtt"))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeConsole(client, cfg.TopicPose, cfg.TopicIMUIntegratorInput, os.Stdout, logger); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Infow("console shutting down")
	return nil
}

func subscribeConsole(client mqttbus.Client, poseTopic, seedTopic string, out io.Writer, logger *zap.SugaredLogger) error {
	poseToken := client.Subscribe(poseTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p pose.Sample
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			logger.Warnw("pose unmarshal error", "error", err)
			return
		}
		fmt.Fprintln(out, formatPose(p))
	})
	poseToken.Wait()
	if poseToken.Error() != nil {
		return poseToken.Error()
	}
	logger.Infow("subscribed", "topic", poseTopic)

	seedToken := client.Subscribe(seedTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s pose.IntegratorSeed
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			logger.Warnw("seed unmarshal error", "error", err)
			return
		}
		fmt.Fprintln(out, formatSeed(s))
	})
	seedToken.Wait()
	if seedToken.Error() != nil {
		return seedToken.Error()
	}
	logger.Infow("subscribed", "topic", seedTopic)
	return nil
}

func formatPose(p pose.Sample) string {
	q := p.Orientation
	return fmt.Sprintf(
		"[POSE] t=%.6f  p=(%8.3f %8.3f %8.3f)  q=(w=%7.4f x=%7.4f y=%7.4f z=%7.4f)",
		float64(p.TimestampNs)/1e9,
		p.Position[0], p.Position[1], p.Position[2],
		q.W, q.X, q.Y, q.Z,
	)
}

func formatSeed(s pose.IntegratorSeed) string {
	return fmt.Sprintf(
		"[SEED] t=%.6f  dt=%+.4f  v=(%7.3f %7.3f %7.3f)  ba=(%+.4f %+.4f %+.4f)  bg=(%+.5f %+.5f %+.5f)",
		s.TimestampS, s.TimeOffset,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
		s.BiasAccel.X, s.BiasAccel.Y, s.BiasAccel.Z,
		s.BiasGyro.X, s.BiasGyro.Y, s.BiasGyro.Z,
	)
}
