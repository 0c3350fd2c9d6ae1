package emitter

import "context"

// Sink is the publish side of the message transport. Per-topic QoS is
// fixed at construction; Publish never blocks acquisition longer than
// its internal timeout.
type Sink interface {
	// Connect establishes the transport connection
	Connect(ctx context.Context) error
	// HasSubscribers reports whether publishing to topic would reach
	// anyone. Sinks that cannot know (MQTT brokers do not expose
	// subscriber counts) gate on connection state instead.
	HasSubscribers(topic string) bool
	// Publish sends a payload on a topic
	Publish(topic string, payload []byte) error
	// Disconnect closes the transport. Idempotent.
	Disconnect() error
}

// Stats contains sink publish counters
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}
