package config

import (
	"fmt"
	"regexp"
)

var cameraNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// Source values accepted for camera.source
const (
	SourceLive   = "live"
	SourceReplay = "replay"
	SourceStream = "stream"
)

// Validate checks the configuration and fills defaults in place
func Validate(cfg *Config) error {
	if cfg.CameraName == "" {
		cfg.CameraName = "camd"
	}
	if !cameraNamePattern.MatchString(cfg.CameraName) {
		return fmt.Errorf("camera_name must match pattern [a-z0-9_-]+")
	}

	// Camera section
	if cfg.Camera.Resolution == "" {
		cfg.Camera.Resolution = "1080p"
	}
	if _, _, err := ParseResolution(cfg.Camera.Resolution); err != nil {
		return err
	}
	if cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}

	switch cfg.Camera.Source {
	case "":
		cfg.Camera.Source = SourceLive
	case SourceLive:
	case SourceReplay:
		if cfg.Camera.ReplayPath == "" {
			return fmt.Errorf("camera.replay_path is required when source=replay")
		}
	case SourceStream:
		if cfg.Camera.StreamAddress == "" {
			return fmt.Errorf("camera.stream_address is required when source=stream")
		}
		if cfg.Camera.StreamPort == 0 {
			cfg.Camera.StreamPort = 30000
		}
	default:
		return fmt.Errorf("camera.source must be one of live, replay, stream (got %q)", cfg.Camera.Source)
	}

	if cfg.Camera.OpenTimeoutS <= 0 {
		cfg.Camera.OpenTimeoutS = 5.0
	}
	if cfg.Camera.OpenRetries <= 0 {
		cfg.Camera.OpenRetries = 5
	}
	if cfg.Camera.OpenRetryS <= 0 {
		cfg.Camera.OpenRetryS = 1.0
	}
	if cfg.Camera.ReconnectMax <= 0 {
		cfg.Camera.ReconnectMax = 3
	}

	// Publish section
	if cfg.Publish.Broker == "" {
		return fmt.Errorf("publish.broker is required")
	}
	if cfg.Publish.TopicRoot == "" {
		cfg.Publish.TopicRoot = fmt.Sprintf("camd/%s", cfg.CameraName)
	}
	if cfg.Publish.Downscale == 0 {
		cfg.Publish.Downscale = 1.0
	}
	if cfg.Publish.Downscale <= 0 {
		return fmt.Errorf("publish.downscale must be > 0")
	}

	deriveTopics(cfg)

	if cfg.Publish.QoS == nil {
		cfg.Publish.QoS = map[string]byte{
			"image":       0,
			"imu":         0,
			"temperature": 0,
			"control":     1,
			"status":      1,
			"diagnostics": 0,
		}
	}

	// Temperature section
	if cfg.Temperature.PeriodS <= 0 {
		cfg.Temperature.PeriodS = 1.0
	}
	if cfg.Temperature.StaleAfter <= 0 {
		cfg.Temperature.StaleAfter = 5
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.HealthPort == "" {
		cfg.HealthPort = "8080"
	}

	return nil
}

// deriveTopics fills empty topic names from the topic root
func deriveTopics(cfg *Config) {
	root := cfg.Publish.TopicRoot
	t := &cfg.Publish.Topics

	def := func(field *string, suffix string) {
		if *field == "" {
			*field = fmt.Sprintf("%s/%s", root, suffix)
		}
	}

	def(&t.ImageColor, "image/color")
	def(&t.ImageColorRaw, "image/color_raw")
	def(&t.ImageGray, "image/gray")
	def(&t.ImageGrayRaw, "image/gray_raw")
	def(&t.Imu, "imu/data")
	def(&t.ImuRaw, "imu/data_raw")
	def(&t.Temperature, "temperature")
	def(&t.Control, "control")
	def(&t.Status, "status")
	def(&t.Diagnostics, "diagnostics")
}
