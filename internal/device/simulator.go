package device

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SimulatorConfig tunes the simulated device
type SimulatorConfig struct {
	Width  int
	Height int
	// FrameInterval is how long each Grab call takes; it paces the
	// acquisition the way a hardware grab would.
	FrameInterval time.Duration
	// OpenFailures is the number of Open calls that fail before one
	// succeeds.
	OpenFailures int
	// OpenStatus is the status returned while Open is failing
	// (default: camera not detected).
	OpenStatus Status
	// OpenDelay is how long each Open call takes
	OpenDelay time.Duration
	// Temp is the reported sensor temperature
	Temp float64
}

// Simulator is a deterministic in-memory Handle. It backs the replay
// source and every test that needs a device.
type Simulator struct {
	cfg SimulatorConfig

	mu         sync.Mutex
	opened     bool
	openCalls  int
	grabs      uint64
	baseTime   time.Time
	lastGrab   time.Time
	grabFails  int
	grabStatus Status
	grabDelay  time.Duration
	tempFails  int
	intr       Intrinsics
}

// NewSimulator creates a simulated device
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Width == 0 {
		cfg.Width = 1920
	}
	if cfg.Height == 0 {
		cfg.Height = 1080
	}
	if cfg.FrameInterval == 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.OpenStatus == StatusOK {
		cfg.OpenStatus = StatusCameraNotDetected
	}
	if cfg.Temp == 0 {
		cfg.Temp = 42.5
	}
	return &Simulator{cfg: cfg}
}

// InjectGrabFailure makes the next n Grab calls return st
func (s *Simulator) InjectGrabFailure(st Status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabStatus = st
	s.grabFails = n
}

// InjectGrabDelay makes the next Grab call block for d, simulating a
// hung SDK call
func (s *Simulator) InjectGrabDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabDelay = d
}

// InjectTemperatureFailure makes the next n Temperature calls fail
func (s *Simulator) InjectTemperatureFailure(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempFails = n
}

// OpenCalls returns how many times Open has been invoked
func (s *Simulator) OpenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCalls
}

// Open implements Handle
func (s *Simulator) Open(p OpenParams) Status {
	if s.cfg.OpenDelay > 0 {
		time.Sleep(s.cfg.OpenDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.openCalls++
	if s.openCalls <= s.cfg.OpenFailures {
		return s.cfg.OpenStatus
	}

	s.opened = true
	s.grabs = 0
	s.baseTime = time.Now()
	s.intr = Intrinsics{
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Fx:     float64(s.cfg.Width) * 0.85,
		Fy:     float64(s.cfg.Width) * 0.85,
		Cx:     float64(s.cfg.Width) / 2,
		Cy:     float64(s.cfg.Height) / 2,
		Model:  p.Model,
		Serial: p.Serial,
	}
	return StatusOK
}

// Grab implements Handle. Grab paces the caller at the configured frame
// interval and stamps the frame with a monotonic capture time.
func (s *Simulator) Grab() Status {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return StatusCameraNotDetected
	}
	if s.grabFails > 0 {
		s.grabFails--
		st := s.grabStatus
		s.mu.Unlock()
		return st
	}
	interval := s.cfg.FrameInterval
	delay := s.grabDelay
	s.grabDelay = 0
	s.mu.Unlock()

	time.Sleep(interval + delay)

	s.mu.Lock()
	s.grabs++
	s.lastGrab = s.baseTime.Add(time.Duration(s.grabs) * interval)
	s.mu.Unlock()
	return StatusOK
}

// RetrieveImage implements Handle
func (s *Simulator) RetrieveImage(kind ImageKind) (Image, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.grabs == 0 {
		return Image{}, StatusFailure
	}

	channels := 3
	if kind == ImageGray || kind == ImageGrayRaw {
		channels = 1
	}
	step := s.cfg.Width * channels
	data := make([]byte, step*s.cfg.Height)
	// Stamp the sequence number into the first bytes so consumers can
	// tell frames apart.
	seq := s.grabs
	for i := 0; i < 8 && i < len(data); i++ {
		data[i] = byte(seq >> (8 * i))
	}

	return Image{
		Kind:      kind,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Step:      step,
		Data:      data,
		Timestamp: s.lastGrab,
	}, StatusOK
}

// RetrieveSensors implements Handle
func (s *Simulator) RetrieveSensors() (SensorData, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.grabs == 0 {
		return SensorData{}, StatusSensorsUnavailable
	}

	t := float64(s.grabs) * s.cfg.FrameInterval.Seconds()
	return SensorData{
		Timestamp:             s.lastGrab,
		Orientation:           [4]float64{0, 0, math.Sin(t / 2), math.Cos(t / 2)},
		AngularVelocity:       [3]float64{0, 0, 1},
		LinearAcceleration:    [3]float64{0, 0, 9.81},
		RawAngularVelocity:    [3]float64{0.001, -0.002, 1.0003},
		RawLinearAcceleration: [3]float64{0.01, -0.02, 9.83},
	}, StatusOK
}

// Temperature implements Handle
func (s *Simulator) Temperature() (float64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, StatusCameraNotDetected
	}
	if s.tempFails > 0 {
		s.tempFails--
		return 0, StatusSensorsUnavailable
	}
	return s.cfg.Temp, StatusOK
}

// Intrinsics implements Handle
func (s *Simulator) Intrinsics() Intrinsics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intr
}

// Close implements Handle
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
}

var _ Handle = (*Simulator)(nil)

// String describes the simulator for logs
func (s *Simulator) String() string {
	return fmt.Sprintf("simulator %dx%d @%v", s.cfg.Width, s.cfg.Height, s.cfg.FrameInterval)
}
