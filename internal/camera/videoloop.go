package camera

import (
	"log/slog"
	"time"

	"github.com/visiona/camd/internal/device"
	"github.com/visiona/camd/internal/msgs"
)

// runVideoLoop consumes grabbed frames and publishes the four image
// variants. It wakes on the frame cell notification with a bounded poll
// fallback so the stop flag is always observed within one cycle; a
// frame is published at most once per topic (strictly increasing
// capture timestamps).
func (d *Driver) runVideoLoop() {
	defer d.wg.Done()
	defer d.videoState.Store(int32(LoopStopped))

	d.videoState.Store(int32(LoopStreaming))
	slog.Info("video publish loop started")

	poll := time.NewTicker(d.cyclePeriod)
	defer poll.Stop()

	var lastStamp time.Time
	var published uint64

	for !d.stop.Load() {
		select {
		case <-d.frames.Wait():
		case <-poll.C:
		}

		snap := d.frames.Snapshot()
		if !snap.Valid || !snap.Stamp.After(lastStamp) {
			continue
		}
		lastStamp = snap.Stamp

		downscale := d.store.GetFloat("publish.downscale")
		topics := &d.cfg.Publish.Topics

		variants := []struct {
			topic string
			img   device.Image
			raw   bool
		}{
			{topics.ImageColor, snap.Color, false},
			{topics.ImageColorRaw, snap.ColorRaw, true},
			{topics.ImageGray, snap.Gray, false},
			{topics.ImageGrayRaw, snap.GrayRaw, true},
		}

		sent := false
		for _, v := range variants {
			// Skip encode and publish cost entirely when nobody
			// listens.
			if !d.sink.HasSubscribers(v.topic) {
				continue
			}
			if err := d.publishImage(v.topic, v.img, snap, v.raw, downscale); err != nil {
				slog.Error("image publish failed", "topic", v.topic, "error", err)
				continue
			}
			sent = true
		}
		if sent {
			d.videoMeter.Tick()
			published++
		}

		if d.store.GetBool("debug.video") {
			slog.Debug("video cycle",
				"seq", snap.Seq,
				"stamp", snap.Stamp.UnixNano(),
				"published", sent,
			)
		}
	}

	d.videoState.Store(int32(LoopStopping))
	slog.Info("video publish loop stopping", "frames_published", published)
}

func (d *Driver) publishImage(topic string, img device.Image, snap FrameSet, raw bool, downscale float64) error {
	out := downsample(img, downscale)

	encoding := "bgr8"
	if img.Kind == device.ImageGray || img.Kind == device.ImageGrayRaw {
		encoding = "mono8"
	}

	m := msgs.Image{
		FrameID:  d.frameIDs.Optical,
		Stamp:    snap.Stamp.UnixNano(),
		Seq:      snap.Seq,
		TraceID:  snap.TraceID,
		Width:    out.Width,
		Height:   out.Height,
		Step:     out.Step,
		Encoding: encoding,
		Data:     out.Data,
		Info:     d.cameraInfo(raw, downscale),
	}

	payload, err := m.Marshal()
	if err != nil {
		return err
	}
	return d.sink.Publish(topic, payload)
}

// cameraInfo builds the calibration metadata for a published image.
// Raw topics carry the distortion coefficients; rectified topics carry
// none. The intrinsic matrix is scaled by the downscale factor.
func (d *Driver) cameraInfo(raw bool, downscale float64) msgs.CameraInfo {
	intr := d.mgr.Intrinsics()

	s := 1.0 / downscale
	info := msgs.CameraInfo{
		FrameID: d.frameIDs.Optical,
		Width:   int(float64(intr.Width) * s),
		Height:  int(float64(intr.Height) * s),
		K: [9]float64{
			intr.Fx * s, 0, intr.Cx * s,
			0, intr.Fy * s, intr.Cy * s,
			0, 0, 1,
		},
		Model: intr.Model,
	}
	if raw {
		info.D = intr.Distortion[:]
	}
	return info
}

// downsample produces a nearest-neighbor reduced copy of an image. A
// factor at or near 1 returns the input untouched.
func downsample(img device.Image, factor float64) device.Image {
	if factor <= 1.001 || img.Width == 0 {
		return img
	}

	channels := img.Step / img.Width
	outW := int(float64(img.Width) / factor)
	outH := int(float64(img.Height) / factor)
	if outW < 1 || outH < 1 {
		return img
	}

	out := device.Image{
		Kind:      img.Kind,
		Width:     outW,
		Height:    outH,
		Step:      outW * channels,
		Timestamp: img.Timestamp,
		Data:      make([]byte, outW*outH*channels),
	}

	for y := 0; y < outH; y++ {
		srcY := int(float64(y) * factor)
		for x := 0; x < outW; x++ {
			srcX := int(float64(x) * factor)
			src := srcY*img.Step + srcX*channels
			dst := y*out.Step + x*channels
			copy(out.Data[dst:dst+channels], img.Data[src:src+channels])
		}
	}
	return out
}
