package emitter

import (
	"testing"

	"github.com/visiona/camd/internal/config"
)

func qosConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		CameraName: "cam0",
		Camera:     config.CameraConfig{FPS: 30},
		Publish: config.PublishConfig{
			Broker: "tcp://localhost:1883",
			QoS: map[string]byte{
				"image":       0,
				"imu":         0,
				"temperature": 1,
				"control":     1,
				"status":      1,
			},
		},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestQoSForMapsTopicClasses(t *testing.T) {
	cfg := qosConfig(t)
	e := NewMQTTEmitter(cfg)
	topics := &cfg.Publish.Topics

	cases := []struct {
		topic string
		want  byte
	}{
		{topics.ImageColor, 0},
		{topics.ImageColorRaw, 0},
		{topics.ImageGray, 0},
		{topics.ImageGrayRaw, 0},
		{topics.Imu, 0},
		{topics.ImuRaw, 0},
		{topics.Temperature, 1},
		{topics.Control, 1},
		{topics.Status, 1},
	}
	for _, tc := range cases {
		if got := e.qosFor(tc.topic); got != tc.want {
			t.Errorf("qosFor(%q) = %d, want %d", tc.topic, got, tc.want)
		}
	}
}

func TestQoSForOverriddenTopicFallsBackToSuffix(t *testing.T) {
	cfg := qosConfig(t)
	cfg.Publish.QoS["image"] = 2
	e := NewMQTTEmitter(cfg)

	if got := e.qosFor("custom/ns/image/left"); got != 2 {
		t.Errorf("qosFor(custom image topic) = %d, want 2", got)
	}
	if got := e.qosFor("entirely/unknown"); got != 0 {
		t.Errorf("qosFor(unknown topic) = %d, want 0", got)
	}
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	e := NewMQTTEmitter(qosConfig(t))

	if e.HasSubscribers("any") {
		t.Error("unconnected emitter reports subscribers")
	}
	if err := e.Publish("any", []byte("x")); err == nil {
		t.Error("publish succeeded without a connection")
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("error counter = %d, want 1", got)
	}
}
