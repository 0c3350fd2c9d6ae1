package camera

import (
	"sync"
	"time"

	"github.com/visiona/camd/internal/device"
)

// FrameSet is the most recent decoded image set produced by one grab
// cycle. The grab loop replaces it wholesale each cycle; the image Data
// slices are freshly allocated by the device per retrieve, so a snapshot
// never aliases a buffer the writer will touch again.
type FrameSet struct {
	Color    device.Image
	ColorRaw device.Image
	Gray     device.Image
	GrayRaw  device.Image
	Stamp    time.Time // capture time derived from the grab call
	Seq      uint64
	TraceID  string
	Valid    bool
}

// frameCell is a single-writer latest-wins snapshot cell. The lock is
// held only for the struct copy, never across a publish or device call.
// A capacity-1 notify channel coalesces wakeups: a consumer sees either
// the previous or the current frame, never a torn mix, and the writer
// never blocks.
type frameCell struct {
	mu     sync.Mutex
	cur    FrameSet
	notify chan struct{}
}

func newFrameCell() *frameCell {
	return &frameCell{notify: make(chan struct{}, 1)}
}

// Set overwrites the cell unconditionally and signals waiting consumers
func (c *frameCell) Set(fs FrameSet) {
	c.mu.Lock()
	c.cur = fs
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns a consistent copy of the current frame set
func (c *frameCell) Snapshot() FrameSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Wait returns the notify channel; one receive per Set, coalesced
func (c *frameCell) Wait() <-chan struct{} {
	return c.notify
}

// SensorSet is the most recent IMU sample, same ownership pattern as
// FrameSet but updated at sensor rate.
type SensorSet struct {
	Data  device.SensorData
	Stamp time.Time
	Seq   uint64
	Valid bool
}

type sensorCell struct {
	mu     sync.Mutex
	cur    SensorSet
	notify chan struct{}
}

func newSensorCell() *sensorCell {
	return &sensorCell{notify: make(chan struct{}, 1)}
}

func (c *sensorCell) Set(ss SensorSet) {
	c.mu.Lock()
	c.cur = ss
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *sensorCell) Snapshot() SensorSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *sensorCell) Wait() <-chan struct{} {
	return c.notify
}
