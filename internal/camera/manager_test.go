package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/visiona/camd/internal/device"
)

func TestOpenTimeout(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		OpenDelay: 300 * time.Millisecond,
	})
	m := NewManager(sim, device.OpenParams{Timeout: 30 * time.Millisecond})

	err := m.Open(context.Background())
	if !errors.Is(err, ErrOpenTimeout) {
		t.Fatalf("err = %v, want ErrOpenTimeout", err)
	}

	state, code := m.State()
	if state != ConnFaulted {
		t.Errorf("state = %s, want error", state)
	}
	if code != device.StatusTimeout {
		t.Errorf("code = %s, want timeout", code)
	}
}

func TestOpenDeviceError(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		OpenFailures: 1,
		OpenStatus:   device.StatusInvalidParameters,
	})
	m := NewManager(sim, device.OpenParams{Timeout: time.Second})

	err := m.Open(context.Background())

	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want *DeviceError", err)
	}
	if devErr.Code != device.StatusInvalidParameters {
		t.Errorf("code = %s, want invalid parameters", devErr.Code)
	}
}

func TestOpenWithRetrySucceedsAfterFailures(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		OpenFailures: 3,
	})
	m := NewManager(sim, device.OpenParams{Model: "sim", Timeout: time.Second})

	if err := m.OpenWithRetry(context.Background(), 5, time.Millisecond); err != nil {
		t.Fatalf("OpenWithRetry: %v", err)
	}
	if got := sim.OpenCalls(); got != 4 {
		t.Errorf("open calls = %d, want 4", got)
	}
	if state, _ := m.State(); state != ConnConnected {
		t.Errorf("state = %s, want connected", state)
	}
	if m.Intrinsics().Model != "sim" {
		t.Error("intrinsics not populated after open")
	}
}

func TestOpenWithRetryExhausted(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		OpenFailures: 10,
	})
	m := NewManager(sim, device.OpenParams{Timeout: time.Second})

	err := m.OpenWithRetry(context.Background(), 3, time.Millisecond)
	if err == nil {
		t.Fatal("OpenWithRetry succeeded, want error after exhausted attempts")
	}
	if got := sim.OpenCalls(); got != 3 {
		t.Errorf("open calls = %d, want 3", got)
	}
}

func TestOpenWithRetryCancelled(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{
		OpenFailures: 10,
	})
	m := NewManager(sim, device.OpenParams{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.OpenWithRetry(ctx, 5, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{})
	m := NewManager(sim, device.OpenParams{Timeout: time.Second})

	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Close()
	m.Close()
	m.Close()

	if state, _ := m.State(); state != ConnUnconnected {
		t.Errorf("state = %s, want unconnected", state)
	}
}

func TestMarkGrabTransitions(t *testing.T) {
	sim := device.NewSimulator(device.SimulatorConfig{})
	m := NewManager(sim, device.OpenParams{Timeout: time.Second})
	if err := m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.MarkGrab(device.StatusConnectionDropped)
	if state, code := m.State(); state != ConnFaulted || code != device.StatusConnectionDropped {
		t.Errorf("after failed grab: state = %s code = %s", state, code)
	}

	m.MarkGrab(device.StatusOK)
	if state, _ := m.State(); state != ConnConnected {
		t.Errorf("after recovered grab: state = %s, want connected", state)
	}
}
