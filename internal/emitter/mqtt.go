package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/visiona/camd/internal/config"
)

// MQTTEmitter publishes the camera streams to an MQTT broker
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // exported for the control plane subscription

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Publish.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", e.cfg.CameraName, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.Publish.Broker,
			"auto_reconnect", "enabled")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Publish.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.Publish.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// HasSubscribers gates on connection state; the broker does not expose
// per-topic subscriber counts.
func (e *MQTTEmitter) HasSubscribers(topic string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Publish publishes a payload to a topic with the configured QoS
func (e *MQTTEmitter) Publish(topic string, payload []byte) error {
	if !e.HasSubscribers(topic) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.Client.Publish(topic, e.qosFor(topic), false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("message published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

// qosFor maps a topic to its configured QoS class. The QoS map is keyed
// by stream class (image, imu, temperature, control, status,
// diagnostics), not by full topic name.
func (e *MQTTEmitter) qosFor(topic string) byte {
	t := &e.cfg.Publish.Topics
	var class string
	switch topic {
	case t.ImageColor, t.ImageColorRaw, t.ImageGray, t.ImageGrayRaw:
		class = "image"
	case t.Imu, t.ImuRaw:
		class = "imu"
	case t.Temperature:
		class = "temperature"
	case t.Control:
		class = "control"
	case t.Status:
		class = "status"
	case t.Diagnostics:
		class = "diagnostics"
	default:
		// Overridden topic names fall back to suffix matching
		switch {
		case strings.Contains(topic, "image"):
			class = "image"
		case strings.Contains(topic, "imu"):
			class = "imu"
		}
	}

	if qos, ok := e.cfg.Publish.QoS[class]; ok {
		return qos
	}
	return 0
}

var _ Sink = (*MQTTEmitter)(nil)
