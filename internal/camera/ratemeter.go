package camera

import (
	"sync"
	"time"
)

// rateMeter measures the frequency of a loop over a sliding window. It
// feeds the diagnostics report; Tick is called once per cycle by the
// owning loop, Rate/SinceLastTick are read from anywhere.
type rateMeter struct {
	mu          sync.Mutex
	window      time.Duration
	count       uint64
	windowStart time.Time
	lastTick    time.Time
	rate        float64
}

func newRateMeter(window time.Duration) *rateMeter {
	return &rateMeter{
		window:      window,
		windowStart: time.Now(),
	}
}

// Tick records one event
func (m *rateMeter) Tick() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	m.lastTick = now

	elapsed := now.Sub(m.windowStart)
	if elapsed >= m.window {
		m.rate = float64(m.count) / elapsed.Seconds()
		m.count = 0
		m.windowStart = now
	}
}

// Rate returns the last completed-window frequency in Hz
func (m *rateMeter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// SinceLastTick returns how long ago the loop last ticked. Before the
// first tick it reports the time since the meter was created.
func (m *rateMeter) SinceLastTick() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastTick.IsZero() {
		return time.Since(m.windowStart)
	}
	return time.Since(m.lastTick)
}
