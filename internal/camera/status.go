package camera

import (
	"errors"
	"fmt"

	"github.com/visiona/camd/internal/device"
)

// Errors surfaced by the acquisition pipeline
var (
	// ErrOpenTimeout is returned when the device did not connect within
	// the configured budget. Recoverable by retry.
	ErrOpenTimeout = errors.New("camera: open timeout")
	// ErrThreadStuck is returned when a loop failed to exit within the
	// shutdown join bound. Fatal; escalated to the process exit path.
	ErrThreadStuck = errors.New("camera: acquisition thread stuck during shutdown")
)

// DeviceError wraps a fault code reported by the device handle
type DeviceError struct {
	Code device.Status
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera: device error: %s", e.Code)
}

// ConnState is the connection status. It transitions only through the
// Manager; all loops read it freely through Manager.State.
type ConnState int32

const (
	ConnUnconnected ConnState = iota
	ConnOpening
	ConnConnected
	ConnFaulted
)

func (s ConnState) String() string {
	switch s {
	case ConnUnconnected:
		return "unconnected"
	case ConnOpening:
		return "opening"
	case ConnConnected:
		return "connected"
	case ConnFaulted:
		return "error"
	default:
		return fmt.Sprintf("conn(%d)", int32(s))
	}
}

// LoopState tracks one acquisition/publish loop
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopConnecting
	LoopStreaming
	LoopStopping
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopConnecting:
		return "connecting"
	case LoopStreaming:
		return "streaming"
	case LoopStopping:
		return "stopping"
	case LoopStopped:
		return "stopped"
	default:
		return fmt.Sprintf("loop(%d)", int32(s))
	}
}
