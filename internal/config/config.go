package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete camd configuration
type Config struct {
	CameraName       string            `yaml:"camera_name"`
	ShutdownTimeoutS int               `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig      `yaml:"camera"`
	Publish          PublishConfig     `yaml:"publish"`
	Temperature      TemperatureConfig `yaml:"temperature"`
	Debug            DebugConfig       `yaml:"debug"`
	HealthPort       string            `yaml:"health_port"`
}

// CameraConfig contains device open settings. All of these are fixed at
// open time; changing them requires a full reopen.
type CameraConfig struct {
	Model         string  `yaml:"model"`           // requested camera model
	Serial        int     `yaml:"serial"`          // 0 = first available
	Resolution    string  `yaml:"resolution"`      // 720p, 1080p, 1200p, 4k
	FPS           int     `yaml:"fps"`             // grab frame rate
	Flip          bool    `yaml:"flip"`            // camera mounted upside down
	HDR           bool    `yaml:"hdr"`             // enable HDR if supported
	Source        string  `yaml:"source"`          // live, replay, stream
	ReplayPath    string  `yaml:"replay_path"`     // recording path for source=replay
	StreamAddress string  `yaml:"stream_address"`  // sender address for source=stream
	StreamPort    int     `yaml:"stream_port"`     // sender port for source=stream
	OpenTimeoutS  float64 `yaml:"open_timeout_s"`  // per-attempt open timeout
	OpenRetries   int     `yaml:"open_retries"`    // bounded open attempts at startup
	OpenRetryS    float64 `yaml:"open_retry_s"`    // delay between open attempts
	ReconnectMax  int     `yaml:"reconnect_max"`   // bounded reconnects on dropped grab
}

// PublishConfig contains MQTT sink settings and output tuning
type PublishConfig struct {
	Broker    string          `yaml:"broker"`
	TopicRoot string          `yaml:"topic_root"`
	QoS       map[string]byte `yaml:"qos"`
	Downscale float64         `yaml:"downscale"` // output downscale factor, dynamic
	Topics    Topics          `yaml:"topics"`
}

// Topics contains the per-stream topic names. Empty entries are derived
// from topic_root by Validate.
type Topics struct {
	ImageColor    string `yaml:"image_color"`
	ImageColorRaw string `yaml:"image_color_raw"`
	ImageGray     string `yaml:"image_gray"`
	ImageGrayRaw  string `yaml:"image_gray_raw"`
	Imu           string `yaml:"imu"`
	ImuRaw        string `yaml:"imu_raw"`
	Temperature   string `yaml:"temperature"`
	Control       string `yaml:"control"`
	Status        string `yaml:"status"`
	Diagnostics   string `yaml:"diagnostics"`
}

// TemperatureConfig tunes the low-frequency temperature poller
type TemperatureConfig struct {
	PeriodS    float64 `yaml:"period_s"`    // poll period, default 1s
	StaleAfter int     `yaml:"stale_after"` // consecutive failures before stale
}

// DebugConfig contains per-subsystem debug log flags (dynamic)
type DebugConfig struct {
	Common  bool `yaml:"common"`
	Video   bool `yaml:"video"`
	Sensors bool `yaml:"sensors"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ParseResolution converts a resolution name to width/height in pixels
func ParseResolution(res string) (width, height int, err error) {
	switch res {
	case "720p":
		return 1280, 720, nil
	case "1080p":
		return 1920, 1080, nil
	case "1200p":
		return 1920, 1200, nil
	case "4k":
		return 3840, 2160, nil
	default:
		return 0, 0, fmt.Errorf("unknown resolution %q (must be 720p, 1080p, 1200p or 4k)", res)
	}
}
