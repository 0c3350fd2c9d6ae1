package camera

import (
	"log/slog"
	"time"

	"github.com/visiona/camd/internal/device"
	"github.com/visiona/camd/internal/msgs"
)

// runTempLoop polls the sensor temperature at its own low frequency,
// independent of the grab cadence. It reads the handle directly; the
// temperature sensor needs no grab-cycle synchronization. Read failures
// are non-fatal: the last valid value is retained and marked stale after
// the configured number of consecutive failures.
func (d *Driver) runTempLoop() {
	defer d.wg.Done()

	period := time.Duration(d.cfg.Temperature.PeriodS * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	// The poll period is far longer than the shutdown join bound, so
	// re-check the stop flag at grab-cycle cadence between polls.
	check := time.NewTicker(d.cyclePeriod)
	defer check.Stop()

	slog.Info("temperature poller started", "period", period)

	handle := d.mgr.Handle()
	topic := d.cfg.Publish.Topics.Temperature

	for !d.stop.Load() {
		select {
		case <-check.C:
			continue
		case <-ticker.C:
		}

		temp, st := handle.Temperature()
		if st != device.StatusOK {
			d.recordTempFailure(st)
			continue
		}

		d.tempMu.Lock()
		d.tempValue = temp
		d.tempValid = true
		d.tempStale = false
		d.tempFails = 0
		d.tempMu.Unlock()

		if !d.sink.HasSubscribers(topic) {
			continue
		}

		m := msgs.Temperature{
			FrameID: d.frameIDs.Imu,
			Stamp:   time.Now().UnixNano(),
			Celsius: temp,
		}
		payload, err := m.Marshal()
		if err != nil {
			slog.Error("temperature encode failed", "error", err)
			continue
		}
		if err := d.sink.Publish(topic, payload); err != nil {
			slog.Error("temperature publish failed", "error", err)
		}
	}
}

func (d *Driver) recordTempFailure(st device.Status) {
	d.tempMu.Lock()
	d.tempFails++
	fails := d.tempFails
	if fails >= d.cfg.Temperature.StaleAfter {
		d.tempStale = true
	}
	stale := d.tempStale
	d.tempMu.Unlock()

	slog.Warn("temperature read failed",
		"status", st.String(),
		"consecutive_failures", fails,
		"stale", stale,
	)
}

// Temperature returns the last valid reading and whether it has gone
// stale. ok is false before the first successful read.
func (d *Driver) Temperature() (value float64, stale, ok bool) {
	d.tempMu.RLock()
	defer d.tempMu.RUnlock()
	return d.tempValue, d.tempStale, d.tempValid
}
