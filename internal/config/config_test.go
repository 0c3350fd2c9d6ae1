package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
camera_name: zed_one
camera:
  fps: 30
publish:
  broker: localhost:1883
`

func TestLoadFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Camera.Resolution != "1080p" {
		t.Errorf("expected default resolution 1080p, got %q", cfg.Camera.Resolution)
	}
	if cfg.Camera.Source != SourceLive {
		t.Errorf("expected default source live, got %q", cfg.Camera.Source)
	}
	if cfg.Camera.OpenTimeoutS != 5.0 {
		t.Errorf("expected default open timeout 5s, got %v", cfg.Camera.OpenTimeoutS)
	}
	if cfg.Publish.Downscale != 1.0 {
		t.Errorf("expected default downscale 1.0, got %v", cfg.Publish.Downscale)
	}
	if cfg.Temperature.PeriodS != 1.0 {
		t.Errorf("expected default temperature period 1s, got %v", cfg.Temperature.PeriodS)
	}
	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("expected default shutdown timeout 5, got %d", cfg.ShutdownTimeoutS)
	}
}

func TestTopicDerivation(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Publish.TopicRoot != "camd/zed_one" {
		t.Errorf("expected topic root camd/zed_one, got %q", cfg.Publish.TopicRoot)
	}
	if cfg.Publish.Topics.ImageColor != "camd/zed_one/image/color" {
		t.Errorf("unexpected color topic %q", cfg.Publish.Topics.ImageColor)
	}
	if cfg.Publish.Topics.ImuRaw != "camd/zed_one/imu/data_raw" {
		t.Errorf("unexpected raw imu topic %q", cfg.Publish.Topics.ImuRaw)
	}
	if cfg.Publish.Topics.Control != "camd/zed_one/control" {
		t.Errorf("unexpected control topic %q", cfg.Publish.Topics.Control)
	}
}

func TestTopicOverrideIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
  topics:
    image_color: custom/color
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Publish.Topics.ImageColor != "custom/color" {
		t.Errorf("explicit topic was overwritten: %q", cfg.Publish.Topics.ImageColor)
	}
	if cfg.Publish.Topics.ImageGray != "camd/zed_one/image/gray" {
		t.Errorf("derived topic wrong: %q", cfg.Publish.Topics.ImageGray)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero fps",
			mutate:  func(c *Config) { c.Camera.FPS = 0 },
			wantErr: "camera.fps",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Camera.Source = "usb" },
			wantErr: "camera.source",
		},
		{
			name:    "replay without path",
			mutate:  func(c *Config) { c.Camera.Source = SourceReplay },
			wantErr: "replay_path",
		},
		{
			name:    "stream without address",
			mutate:  func(c *Config) { c.Camera.Source = SourceStream },
			wantErr: "stream_address",
		},
		{
			name:    "negative downscale",
			mutate:  func(c *Config) { c.Publish.Downscale = -1 },
			wantErr: "downscale",
		},
		{
			name:    "missing broker",
			mutate:  func(c *Config) { c.Publish.Broker = "" },
			wantErr: "publish.broker",
		},
		{
			name:    "bad resolution",
			mutate:  func(c *Config) { c.Camera.Resolution = "333p" },
			wantErr: "resolution",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				CameraName: "test_cam",
				Camera:     CameraConfig{FPS: 15},
				Publish:    PublishConfig{Broker: "localhost:1883"},
			}
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("720p")
	if err != nil {
		t.Fatalf("ParseResolution failed: %v", err)
	}
	if w != 1280 || h != 720 {
		t.Errorf("expected 1280x720, got %dx%d", w, h)
	}

	if _, _, err := ParseResolution("8k"); err == nil {
		t.Error("expected error for unknown resolution")
	}
}
