package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("MQTT_BROKER=tcp://localhost:1883\nDATASET_PATH=/data/MH_01\n"))
	require.NoError(t, err)

	assert.Equal(t, "imu", cfg.TopicIMU)
	assert.Equal(t, "cam", cfg.TopicCam)
	assert.Equal(t, "slow_pose", cfg.TopicPose)
	assert.Equal(t, "imu_integrator_input", cfg.TopicIMUIntegratorInput)
	assert.Equal(t, InputDataset, cfg.InputSource)
	assert.Equal(t, 8, cfg.CamQueueSize)
	assert.Equal(t, 150, cfg.NumPts)
	assert.True(t, cfg.UseStereo)
	assert.False(t, cfg.DownsampleCameras)
}

func TestParseOverrides(t *testing.T) {
	in := `
# broker
MQTT_BROKER = tcp://pi.local:1883
INPUT_SOURCE=mqtt
TOPIC_POSE=vio/pose
CAM_QUEUE_SIZE=2
DOWNSAMPLE_CAMERAS=true
USE_KLT=false
NUM_PTS=200
IMU_SPI_DEVICE=/dev/spidev0.0
IMU_ACCEL_RANGE=2
IMU_GYRO_RANGE=1
WEB_SERVER_PORT=9000
LOG_LEVEL=debug
`
	cfg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "tcp://pi.local:1883", cfg.MQTTBroker)
	assert.Equal(t, InputMQTT, cfg.InputSource)
	assert.Equal(t, "vio/pose", cfg.TopicPose)
	assert.Equal(t, 2, cfg.CamQueueSize)
	assert.True(t, cfg.DownsampleCameras)
	assert.False(t, cfg.UseKLT)
	assert.Equal(t, 200, cfg.NumPts)
	assert.Equal(t, "/dev/spidev0.0", cfg.IMUSPIDevice)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, byte(1), cfg.IMUGyroRange)
	assert.Equal(t, 9000, cfg.WebServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		msg  string
	}{
		{"no equals", "MQTT_BROKER=x\nNOPE\n", "line 2"},
		{"unknown key", "MQTT_BROKER=x\nFOO=1\n", "unknown config key"},
		{"bad bool", "MQTT_BROKER=x\nUSE_STEREO=maybe\n", "USE_STEREO"},
		{"zero queue", "MQTT_BROKER=x\nCAM_QUEUE_SIZE=0\n", "must be positive"},
		{"bad source", "MQTT_BROKER=x\nINPUT_SOURCE=file\n", "INPUT_SOURCE"},
		{"accel range", "MQTT_BROKER=x\nIMU_ACCEL_RANGE=4\n", "IMU_ACCEL_RANGE must be 0-3"},
		{"port range", "MQTT_BROKER=x\nWEB_SERVER_PORT=70000\n", "out of range"},
		{"missing broker", "INPUT_SOURCE=mqtt\n", "MQTT_BROKER is required"},
		{"missing dataset", "MQTT_BROKER=x\n", "DATASET_PATH is required"},
		{"same output topics", "MQTT_BROKER=x\nINPUT_SOURCE=mqtt\nTOPIC_POSE=out\nTOPIC_IMU_INTEGRATOR_INPUT=out\n", "must differ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestLoadAndGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vio_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_BROKER=tcp://b:1883\nINPUT_SOURCE=mqtt\n"), 0o644))

	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	require.NoError(t, InitGlobal(path))
	require.NotNil(t, Get())
	assert.Equal(t, "tcp://b:1883", Get().MQTTBroker)
}
