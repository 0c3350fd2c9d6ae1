package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/visiona/camd/internal/device"
)

// Manager owns the device handle and drives the connection state
// machine. ConnState is written only by the goroutine performing
// open/grab and read freely by everyone else.
type Manager struct {
	handle device.Handle
	open   device.OpenParams

	mu     sync.RWMutex
	state  ConnState
	code   device.Status
	intr   device.Intrinsics
	opened bool
}

// NewManager creates a connection manager for a handle
func NewManager(h device.Handle, p device.OpenParams) *Manager {
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Second
	}
	return &Manager{handle: h, open: p}
}

// Handle exposes the device to the acquisition loop and the temperature
// poller. Never call Grab from more than one goroutine.
func (m *Manager) Handle() device.Handle {
	return m.handle
}

// Open attempts to establish the device connection within the configured
// timeout. On success it populates the intrinsics and transitions to
// Connected. On timeout it returns ErrOpenTimeout without retrying;
// retry policy belongs to the caller.
func (m *Manager) Open(ctx context.Context) error {
	m.set(ConnOpening, device.StatusOK)

	// The SDK open call cannot be interrupted; run it on the side and
	// abandon it on timeout. The idempotent Close protects a late
	// success.
	result := make(chan device.Status, 1)
	go func() {
		result <- m.handle.Open(m.open)
	}()

	timer := time.NewTimer(m.open.Timeout)
	defer timer.Stop()

	select {
	case st := <-result:
		if st != device.StatusOK {
			m.set(ConnFaulted, st)
			return &DeviceError{Code: st}
		}

		m.mu.Lock()
		m.intr = m.handle.Intrinsics()
		m.opened = true
		m.state = ConnConnected
		m.code = device.StatusOK
		m.mu.Unlock()

		return nil

	case <-timer.C:
		slog.Warn("camera open timed out",
			"timeout", m.open.Timeout,
			"source", m.open.Source.String(),
		)
		m.set(ConnFaulted, device.StatusTimeout)
		return ErrOpenTimeout

	case <-ctx.Done():
		m.set(ConnUnconnected, device.StatusOK)
		return ctx.Err()
	}
}

// OpenWithRetry re-invokes Open on a periodic timer until success or the
// attempt budget is exhausted.
func (m *Manager) OpenWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = m.Open(ctx)
		if lastErr == nil {
			slog.Info("camera connected",
				"attempt", attempt,
				"model", m.Intrinsics().Model,
				"serial", m.Intrinsics().Serial,
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("camera open failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr,
		)

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Close releases the handle. Safe to call any number of times.
func (m *Manager) Close() {
	m.mu.Lock()
	wasOpen := m.opened
	m.opened = false
	m.state = ConnUnconnected
	m.mu.Unlock()

	if wasOpen {
		m.handle.Close()
		slog.Info("camera closed")
	}
}

// MarkGrab records the outcome of a grab call. Called only by the grab
// loop.
func (m *Manager) MarkGrab(st device.Status) {
	if st == device.StatusOK {
		m.set(ConnConnected, st)
		return
	}
	m.set(ConnFaulted, st)
}

// State returns the connection state and the last device status code
func (m *Manager) State() (ConnState, device.Status) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.code
}

// Intrinsics returns the calibration populated by the last successful
// open. Immutable until the next open.
func (m *Manager) Intrinsics() device.Intrinsics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intr
}

func (m *Manager) set(state ConnState, code device.Status) {
	m.mu.Lock()
	m.state = state
	m.code = code
	m.mu.Unlock()
}
