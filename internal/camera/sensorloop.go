package camera

import (
	"log/slog"
	"time"

	"github.com/visiona/camd/internal/msgs"
)

// runSensorLoop consumes IMU samples and publishes the calibrated and
// raw streams. Sensor cadence is independent of video cadence; the loop
// only shares the stop flag and the duplicate-suppression discipline
// with the video loop.
func (d *Driver) runSensorLoop() {
	defer d.wg.Done()
	defer d.sensorState.Store(int32(LoopStopped))

	d.sensorState.Store(int32(LoopStreaming))
	slog.Info("sensor publish loop started")

	poll := time.NewTicker(d.cyclePeriod)
	defer poll.Stop()

	var lastStamp time.Time
	var published uint64

	for !d.stop.Load() {
		select {
		case <-d.sensors.Wait():
		case <-poll.C:
		}

		snap := d.sensors.Snapshot()
		if !snap.Valid || !snap.Stamp.After(lastStamp) {
			continue
		}
		lastStamp = snap.Stamp

		topics := &d.cfg.Publish.Topics
		sent := false

		if d.sink.HasSubscribers(topics.Imu) {
			m := msgs.Imu{
				FrameID:            d.frameIDs.Imu,
				Stamp:              snap.Stamp.UnixNano(),
				Seq:                snap.Seq,
				Orientation:        snap.Data.Orientation,
				AngularVelocity:    snap.Data.AngularVelocity,
				LinearAcceleration: snap.Data.LinearAcceleration,
			}
			if err := d.publishImu(topics.Imu, &m); err != nil {
				slog.Error("imu publish failed", "error", err)
			} else {
				sent = true
			}
		}

		if d.sink.HasSubscribers(topics.ImuRaw) {
			// Raw samples are uncompensated and carry no orientation
			// estimate.
			m := msgs.Imu{
				FrameID:            d.frameIDs.Imu,
				Stamp:              snap.Stamp.UnixNano(),
				Seq:                snap.Seq,
				AngularVelocity:    snap.Data.RawAngularVelocity,
				LinearAcceleration: snap.Data.RawLinearAcceleration,
			}
			if err := d.publishImu(topics.ImuRaw, &m); err != nil {
				slog.Error("raw imu publish failed", "error", err)
			} else {
				sent = true
			}
		}

		if sent {
			d.sensorMeter.Tick()
			published++
		}

		if d.store.GetBool("debug.sensors") {
			slog.Debug("sensor cycle",
				"seq", snap.Seq,
				"stamp", snap.Stamp.UnixNano(),
				"published", sent,
			)
		}
	}

	d.sensorState.Store(int32(LoopStopping))
	slog.Info("sensor publish loop stopping", "samples_published", published)
}

func (d *Driver) publishImu(topic string, m *msgs.Imu) error {
	payload, err := m.Marshal()
	if err != nil {
		return err
	}
	return d.sink.Publish(topic, payload)
}
