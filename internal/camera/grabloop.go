package camera

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/camd/internal/device"
)

// runGrabLoop is the producer: it repeatedly grabs from the device,
// writes the image and sensor cells, and keeps the connection status
// current. It never blocks on consumers; the cells are overwritten
// unconditionally each cycle so a slow subscriber drops frames instead
// of back-pressuring acquisition.
func (d *Driver) runGrabLoop() {
	defer d.wg.Done()
	defer d.grabState.Store(int32(LoopStopped))

	d.grabState.Store(int32(LoopStreaming))
	slog.Info("grab loop started", "cycle", d.cyclePeriod)

	handle := d.mgr.Handle()
	var seq uint64

	for !d.stop.Load() {
		st := handle.Grab()

		switch {
		case st == device.StatusOK:
			d.mgr.MarkGrab(st)
			d.grabMeter.Tick()
			seq++
			d.retrieveAndPublish(handle, seq)

			if d.store.GetBool("debug.common") {
				slog.Debug("grab cycle complete", "seq", seq)
			}

		case st == device.StatusReplayEnded:
			slog.Info("replay source ended, stopping acquisition")
			d.mgr.MarkGrab(st)
			return

		case st.Recoverable():
			d.mgr.MarkGrab(st)
			slog.Warn("grab failed with recoverable error, reconnecting",
				"status", st.String(),
			)
			if !d.reconnect() {
				d.recordFault(&DeviceError{Code: st})
				return
			}

		default:
			d.mgr.MarkGrab(st)
			d.recordFault(&DeviceError{Code: st})
			slog.Error("grab failed with unrecoverable error, stopping acquisition",
				"status", st.String(),
			)
			return
		}
	}

	d.grabState.Store(int32(LoopStopping))
	slog.Info("grab loop stopping", "frames", seq)
}

// retrieveAndPublish pulls all image variants and the sensor sample of
// the current grab into the snapshot cells. The capture timestamp comes
// from the grab call, not from wall clock at publish time.
func (d *Driver) retrieveAndPublish(handle device.Handle, seq uint64) {
	fs := FrameSet{Seq: seq, TraceID: uuid.New().String()}

	kinds := []struct {
		kind device.ImageKind
		dst  *device.Image
	}{
		{device.ImageColor, &fs.Color},
		{device.ImageColorRaw, &fs.ColorRaw},
		{device.ImageGray, &fs.Gray},
		{device.ImageGrayRaw, &fs.GrayRaw},
	}
	for _, k := range kinds {
		img, st := handle.RetrieveImage(k.kind)
		if st != device.StatusOK {
			slog.Warn("image retrieve failed",
				"kind", k.kind.String(),
				"status", st.String(),
			)
			return
		}
		*k.dst = img
	}
	fs.Stamp = fs.Color.Timestamp
	fs.Valid = true
	d.frames.Set(fs)

	sens, st := handle.RetrieveSensors()
	if st == device.StatusOK {
		d.sensors.Set(SensorSet{
			Data:  sens,
			Stamp: sens.Timestamp,
			Seq:   seq,
			Valid: true,
		})
	} else if st != device.StatusSensorsUnavailable {
		slog.Warn("sensor retrieve failed", "status", st.String())
	}
}

// reconnect attempts a bounded number of reopen cycles after a dropped
// connection. Returns false when the budget is exhausted or shutdown was
// requested, which the caller treats as fatal.
func (d *Driver) reconnect() bool {
	d.grabState.Store(int32(LoopConnecting))
	defer d.grabState.Store(int32(LoopStreaming))

	retryDelay := time.Duration(d.cfg.Camera.OpenRetryS * float64(time.Second))

	d.mgr.Close()

	for attempt := 1; attempt <= d.cfg.Camera.ReconnectMax; attempt++ {
		if d.stop.Load() {
			return false
		}

		d.mu.Lock()
		d.reconnects++
		d.mu.Unlock()

		err := d.mgr.Open(context.Background())
		if err == nil {
			slog.Info("camera reconnected", "attempt", attempt)
			return true
		}
		slog.Warn("reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", d.cfg.Camera.ReconnectMax,
			"error", err,
		)

		if attempt == d.cfg.Camera.ReconnectMax {
			break
		}
		time.Sleep(retryDelay)
	}

	slog.Error("reconnect budget exhausted, giving up",
		"attempts", d.cfg.Camera.ReconnectMax,
	)
	return false
}
