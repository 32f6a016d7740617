package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Input sources for the frontend.
const (
	InputDataset = "dataset"
	InputMQTT    = "mqtt"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDFrontend string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string

	// Topics
	TopicIMU                string
	TopicCam                string
	TopicPose               string
	TopicIMUIntegratorInput string

	// Input
	InputSource       string // "dataset" or "mqtt"
	DatasetPath       string // EuRoC sequence root (the directory holding mav0/)
	DatasetRealtime   bool   // pace replay at the recorded rate
	CamQueueSize      int
	DownsampleCameras bool

	// Estimator tuning
	NumPts            int
	UseStereo         bool
	UseKLT            bool
	UseRK4Integration bool

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange      byte
	IMUSampleInterval int // milliseconds

	// Web Server
	WebServerPort int

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the values used for keys missing from the file.
func Default() *Config {
	return &Config{
		MQTTClientIDFrontend:    "vio-frontend",
		MQTTClientIDProducer:    "vio-imu-producer",
		MQTTClientIDConsole:     "vio-console",
		TopicIMU:                "imu",
		TopicCam:                "cam",
		TopicPose:               "slow_pose",
		TopicIMUIntegratorInput: "imu_integrator_input",
		InputSource:             InputDataset,
		CamQueueSize:            8,
		NumPts:                  150,
		UseStereo:               true,
		UseKLT:                  true,
		UseRK4Integration:       true,
		IMUSampleInterval:       5,
		WebServerPort:           8080,
		LogLevel:                "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default(). Blank lines and lines
// starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseRange(key, value, help string) (byte, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < 0 || n > 3 {
		return 0, fmt.Errorf("%s must be 0-3 (%s), got %d", key, help, n)
	}
	return byte(n), nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FRONTEND":
		c.MQTTClientIDFrontend = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_CAM":
		c.TopicCam = value
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_IMU_INTEGRATOR_INPUT":
		c.TopicIMUIntegratorInput = value

	// Input
	case "INPUT_SOURCE":
		switch value {
		case InputDataset, InputMQTT:
			c.InputSource = value
		default:
			return fmt.Errorf("INPUT_SOURCE must be %q or %q, got %q", InputDataset, InputMQTT, value)
		}
	case "DATASET_PATH":
		c.DatasetPath = value
	case "DATASET_REALTIME":
		c.DatasetRealtime, err = parseBool(key, value)
	case "CAM_QUEUE_SIZE":
		c.CamQueueSize, err = parsePositive(key, value)
	case "DOWNSAMPLE_CAMERAS":
		c.DownsampleCameras, err = parseBool(key, value)

	// Estimator tuning
	case "NUM_PTS":
		c.NumPts, err = parsePositive(key, value)
	case "USE_STEREO":
		c.UseStereo, err = parseBool(key, value)
	case "USE_KLT":
		c.UseKLT, err = parseBool(key, value)
	case "USE_RK4_INTEGRATION":
		c.UseRK4Integration, err = parseBool(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseRange(key, value, "0=±2g, 1=±4g, 2=±8g, 3=±16g")
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseRange(key, value, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s")
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parsePositive(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, perr)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT out of range: %d", port)
		}
		c.WebServerPort = port

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.InputSource == InputDataset && c.DatasetPath == "" {
		return fmt.Errorf("DATASET_PATH is required when INPUT_SOURCE=%s", InputDataset)
	}
	if c.TopicPose == c.TopicIMUIntegratorInput {
		return fmt.Errorf("TOPIC_POSE and TOPIC_IMU_INTEGRATOR_INPUT must differ, both are %q", c.TopicPose)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
