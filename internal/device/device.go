// Package device defines the boundary to the camera SDK. The daemon only
// ever talks to a Handle; the real SDK binding and the Simulator both live
// behind it.
package device

import (
	"fmt"
	"time"
)

// Status is the per-call status code reported by the device
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusCameraNotDetected
	StatusInvalidParameters
	StatusConnectionDropped
	StatusSensorsUnavailable
	StatusReplayEnded
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusCameraNotDetected:
		return "camera not detected"
	case StatusInvalidParameters:
		return "invalid parameters"
	case StatusConnectionDropped:
		return "connection dropped"
	case StatusSensorsUnavailable:
		return "sensors unavailable"
	case StatusReplayEnded:
		return "replay ended"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Recoverable reports whether a grab returning this status is worth a
// reconnect attempt. Everything else is treated as fatal for the
// acquisition loop.
func (s Status) Recoverable() bool {
	switch s {
	case StatusTimeout, StatusConnectionDropped:
		return true
	default:
		return false
	}
}

// Source selects where the device reads frames from
type Source int

const (
	SourceLive Source = iota
	SourceReplay
	SourceStream
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceReplay:
		return "replay"
	case SourceStream:
		return "stream"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// OpenParams are the immutable-at-open device settings
type OpenParams struct {
	Model         string
	Serial        int
	Width         int
	Height        int
	FPS           int
	Flip          bool
	HDR           bool
	Source        Source
	ReplayPath    string
	StreamAddress string
	StreamPort    int
	Timeout       time.Duration
}

// ImageKind selects one of the image variants a grab produces
type ImageKind int

const (
	ImageColor ImageKind = iota
	ImageColorRaw
	ImageGray
	ImageGrayRaw
)

func (k ImageKind) String() string {
	switch k {
	case ImageColor:
		return "color"
	case ImageColorRaw:
		return "color_raw"
	case ImageGray:
		return "gray"
	case ImageGrayRaw:
		return "gray_raw"
	default:
		return fmt.Sprintf("image(%d)", int(k))
	}
}

// Image is one decoded image plane. Data is freshly allocated by every
// retrieve call; the caller owns it.
type Image struct {
	Kind      ImageKind
	Width     int
	Height    int
	Step      int // bytes per row
	Data      []byte
	Timestamp time.Time // capture time, derived from the grab call
}

// SensorData is one IMU sample, calibrated and raw, with its capture time
type SensorData struct {
	Timestamp             time.Time
	Orientation           [4]float64 // quaternion x,y,z,w
	AngularVelocity       [3]float64 // rad/s
	LinearAcceleration    [3]float64 // m/s^2
	RawAngularVelocity    [3]float64
	RawLinearAcceleration [3]float64
}

// Intrinsics holds the calibration computed by the device at open time
type Intrinsics struct {
	Width      int
	Height     int
	Fx, Fy     float64
	Cx, Cy     float64
	Distortion [5]float64
	Model      string // model actually detected, may differ from requested
	Serial     int
	FWVersion  int
}

// Handle is the opaque camera connection. Implementations must be safe
// for use from a single goroutine at a time; the acquisition loop is the
// only caller of Grab/Retrieve*, the temperature poller only calls
// Temperature.
type Handle interface {
	// Open establishes the connection. The device enforces p.Timeout
	// internally where it can; callers still guard with their own timer.
	Open(p OpenParams) Status
	// Grab acquires the next frame and sensor sample
	Grab() Status
	// RetrieveImage returns one image variant of the last grabbed frame
	RetrieveImage(kind ImageKind) (Image, Status)
	// RetrieveSensors returns the IMU sample of the last grab
	RetrieveSensors() (SensorData, Status)
	// Temperature reads the sensor temperature in degrees Celsius.
	// Safe to call concurrently with Grab.
	Temperature() (float64, Status)
	// Intrinsics returns the calibration populated by a successful Open
	Intrinsics() Intrinsics
	// Close releases the device. Idempotent.
	Close()
}

// New returns the Handle for the configured source. Replay is backed by
// the Simulator; live and stream sources need an SDK-backed Handle linked
// into the build, which this tree does not carry.
func New(p OpenParams) (Handle, error) {
	switch p.Source {
	case SourceReplay:
		return NewSimulator(SimulatorConfig{
			Width:         p.Width,
			Height:        p.Height,
			FrameInterval: time.Second / time.Duration(max(p.FPS, 1)),
		}), nil
	default:
		return nil, fmt.Errorf("device: source %s requires an SDK-backed handle", p.Source)
	}
}
