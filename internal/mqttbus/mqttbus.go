// Package mqttbus carries the frontend's input and output streams over MQTT.
// All payloads are JSON.
package mqttbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/camera"
	"github.com/relabs-tech/vio_frontend/internal/imu"
)

// Client is the part of mqtt.Client this package uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// SampleSink accepts inertial samples for processing.
type SampleSink interface {
	Deliver(ctx context.Context, s *imu.Sample) error
}

// FrameSink accepts camera pairs without blocking.
type FrameSink interface {
	Enqueue(camera.FramePair) (evicted bool)
}

// CameraMessage is the wire form of a stereo capture: two PNG images.
type CameraMessage struct {
	TimestampNs int64  `json:"timestamp_ns"`
	LeftPNG     []byte `json:"left_png"`
	RightPNG    []byte `json:"right_png"`
}

// Connect dials broker and blocks until the session is up.
func Connect(broker, clientID string, logger *zap.SugaredLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnw("mqtt connection lost", "broker", broker, "error", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	logger.Infow("connected to MQTT broker", "broker", broker, "client_id", clientID)
	return client, nil
}

func wait(token mqtt.Token) error {
	token.Wait()
	return token.Error()
}

// PublishJSON marshals v and publishes it at QoS 0.
func PublishJSON(client Client, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	if err := wait(client.Publish(topic, 0, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeIMU delivers every sample received on topic to sink. A payload
// of null is delivered as a nil sample so the frontend sees it.
func SubscribeIMU(ctx context.Context, client Client, topic string, sink SampleSink, logger *zap.SugaredLogger) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var s *imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			logger.Warnw("imu unmarshal error", "topic", msg.Topic(), "error", err)
			return
		}
		if err := sink.Deliver(ctx, s); err != nil {
			logger.Debugw("imu sample not delivered", "error", err)
		}
	}
	if err := wait(client.Subscribe(topic, 0, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	logger.Infow("subscribed", "topic", topic)
	return nil
}

// SubscribeCameras decodes stereo captures received on topic and enqueues
// them on sink.
func SubscribeCameras(client Client, topic string, sink FrameSink, downsample bool, logger *zap.SugaredLogger) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		pair, err := DecodeCameraMessage(msg.Payload(), downsample)
		if err != nil {
			logger.Warnw("camera message dropped", "topic", msg.Topic(), "error", err)
			return
		}
		if sink.Enqueue(pair) {
			logger.Debugw("camera queue full, evicted oldest pair", "timestamp_ns", pair.TimestampNs)
		}
	}
	if err := wait(client.Subscribe(topic, 0, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	logger.Infow("subscribed", "topic", topic)
	return nil
}

// DecodeCameraMessage parses a CameraMessage payload into a frame pair.
func DecodeCameraMessage(payload []byte, downsample bool) (camera.FramePair, error) {
	var m CameraMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return camera.FramePair{}, fmt.Errorf("unmarshal camera message: %w", err)
	}
	left, err := camera.DecodePNG(bytes.NewReader(m.LeftPNG))
	if err != nil {
		return camera.FramePair{}, fmt.Errorf("left image: %w", err)
	}
	right, err := camera.DecodePNG(bytes.NewReader(m.RightPNG))
	if err != nil {
		return camera.FramePair{}, fmt.Errorf("right image: %w", err)
	}
	return camera.FramePair{
		TimestampNs: m.TimestampNs,
		Left:        camera.Preprocess(left, downsample),
		Right:       camera.Preprocess(right, downsample),
	}, nil
}

// Forward publishes every value read from in as JSON on topic until in is
// closed or ctx is done. Publish failures are logged and skipped.
func Forward[T any](ctx context.Context, client Client, topic string, in <-chan T, logger *zap.SugaredLogger) error {
	var failed int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				return nil
			}
			if err := PublishJSON(client, topic, v); err != nil {
				failed++
				logger.Warnw("forward failed", "topic", topic, "failures", failed, "error", err)
			}
		}
	}
}
