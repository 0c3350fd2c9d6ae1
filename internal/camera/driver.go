package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/camd/internal/config"
	"github.com/visiona/camd/internal/control"
	"github.com/visiona/camd/internal/device"
	"github.com/visiona/camd/internal/emitter"
	"github.com/visiona/camd/internal/msgs"
	"github.com/visiona/camd/internal/params"
)

// Driver is the acquisition service orchestrator: one grab loop feeding
// a video publish loop and a sensor publish loop through latest-wins
// snapshot cells, plus a low-frequency temperature poller and the MQTT
// control plane.
type Driver struct {
	cfg   *config.Config
	store *params.Store
	mgr   *Manager
	sink  emitter.Sink

	frames  *frameCell
	sensors *sensorCell

	frameIDs    msgs.FrameIDs
	cyclePeriod time.Duration

	// stop is the single cancellation signal shared by all
	// acquisition/publish loops
	stop atomic.Bool

	grabState   atomic.Int32
	videoState  atomic.Int32
	sensorState atomic.Int32

	grabMeter   *rateMeter
	videoMeter  *rateMeter
	sensorMeter *rateMeter

	tempMu    sync.RWMutex
	tempValue float64
	tempValid bool
	tempStale bool
	tempFails int

	mu         sync.RWMutex
	started    time.Time
	isRunning  bool
	lastErr    error // fatal acquisition fault, consumed by diagnostics
	reconnects uint32
	cancelRun  context.CancelFunc

	controlHandler *control.Handler
	wg             sync.WaitGroup
}

// New creates a driver for the given device handle and publish sink.
// The handle and sink are injected so tests run against the simulator
// and an in-memory sink.
func New(cfg *config.Config, handle device.Handle, sink emitter.Sink) (*Driver, error) {
	open, err := OpenParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	cycle := time.Second / time.Duration(cfg.Camera.FPS)

	d := &Driver{
		cfg:         cfg,
		store:       params.NewStore(),
		mgr:         NewManager(handle, open),
		sink:        sink,
		frames:      newFrameCell(),
		sensors:     newSensorCell(),
		frameIDs:    msgs.DeriveFrameIDs(cfg.CameraName),
		cyclePeriod: cycle,
		grabMeter:   newRateMeter(2 * time.Second),
		videoMeter:  newRateMeter(2 * time.Second),
		sensorMeter: newRateMeter(2 * time.Second),
	}

	if err := d.declareParams(); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenParamsFromConfig maps the camera section of the configuration onto
// device open parameters. The same mapping feeds both the device factory
// and the connection manager.
func OpenParamsFromConfig(cfg *config.Config) (device.OpenParams, error) {
	width, height, err := config.ParseResolution(cfg.Camera.Resolution)
	if err != nil {
		return device.OpenParams{}, err
	}

	open := device.OpenParams{
		Model:         cfg.Camera.Model,
		Serial:        cfg.Camera.Serial,
		Width:         width,
		Height:        height,
		FPS:           cfg.Camera.FPS,
		Flip:          cfg.Camera.Flip,
		HDR:           cfg.Camera.HDR,
		ReplayPath:    cfg.Camera.ReplayPath,
		StreamAddress: cfg.Camera.StreamAddress,
		StreamPort:    cfg.Camera.StreamPort,
		Timeout:       time.Duration(cfg.Camera.OpenTimeoutS * float64(time.Second)),
	}
	switch cfg.Camera.Source {
	case config.SourceReplay:
		open.Source = device.SourceReplay
	case config.SourceStream:
		open.Source = device.SourceStream
	default:
		open.Source = device.SourceLive
	}
	return open, nil
}

// declareParams registers the configuration surface. Mutability and
// validators are resolved here, once, at registration time.
func (d *Driver) declareParams() error {
	type decl struct {
		name     string
		def      params.Value
		mut      params.Mutability
		validate params.Validator
	}
	decls := []decl{
		{"camera.model", params.String(d.cfg.Camera.Model), params.ReadOnly, nil},
		{"camera.serial", params.Int(int64(d.cfg.Camera.Serial)), params.ReadOnly, nil},
		{"camera.resolution", params.String(d.cfg.Camera.Resolution), params.ReadOnly, nil},
		{"camera.fps", params.Int(int64(d.cfg.Camera.FPS)), params.ReadOnly, params.Positive},
		{"camera.flip", params.Bool(d.cfg.Camera.Flip), params.ReadOnly, nil},
		{"camera.hdr", params.Bool(d.cfg.Camera.HDR), params.ReadOnly, nil},
		{"camera.source", params.String(d.cfg.Camera.Source), params.ReadOnly, nil},
		{"camera.open_timeout_s", params.Float(d.cfg.Camera.OpenTimeoutS), params.ReadOnly, params.Positive},
		{"debug.common", params.Bool(d.cfg.Debug.Common), params.Dynamic, nil},
		{"debug.video", params.Bool(d.cfg.Debug.Video), params.Dynamic, nil},
		{"debug.sensors", params.Bool(d.cfg.Debug.Sensors), params.Dynamic, nil},
		{"publish.downscale", params.Float(d.cfg.Publish.Downscale), params.Dynamic, params.Positive},
	}
	for _, dd := range decls {
		if err := d.store.Declare(dd.name, dd.def, dd.mut, dd.validate); err != nil {
			return err
		}
	}
	return nil
}

// Params exposes the parameter store (read side)
func (d *Driver) Params() *params.Store {
	return d.store
}

// Run starts the pipeline and blocks until the context is cancelled.
// The initial connection is retried on a periodic timer, bounded by
// camera.open_retries.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return fmt.Errorf("driver is already running")
	}
	d.isRunning = true
	d.started = time.Now()
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancelRun = cancel
	d.mu.Unlock()

	slog.Info("camera driver starting",
		"camera", d.cfg.CameraName,
		"source", d.cfg.Camera.Source,
		"resolution", d.cfg.Camera.Resolution,
		"fps", d.cfg.Camera.FPS,
	)

	retryDelay := time.Duration(d.cfg.Camera.OpenRetryS * float64(time.Second))
	if err := d.mgr.OpenWithRetry(ctx, d.cfg.Camera.OpenRetries, retryDelay); err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	if err := d.sink.Connect(ctx); err != nil {
		d.mgr.Close()
		return fmt.Errorf("failed to connect publish sink: %w", err)
	}

	// The control plane rides on the MQTT sink; in-memory sinks used by
	// tests run without one.
	if m, ok := d.sink.(*emitter.MQTTEmitter); ok {
		d.controlHandler = control.NewHandler(d.cfg, m.Client, control.Callbacks{
			OnSetParams:      d.setParams,
			OnGetParams:      d.store.List,
			OnGetStatus:      d.getStatus,
			OnGetDiagnostics: d.getDiagnostics,
			OnShutdown:       d.shutdownViaControl,
		})
		if err := d.controlHandler.Start(ctx); err != nil {
			d.mgr.Close()
			return fmt.Errorf("failed to start control plane: %w", err)
		}
	}

	d.stop.Store(false)

	d.wg.Add(1)
	go d.runGrabLoop()

	d.wg.Add(1)
	go d.runVideoLoop()

	d.wg.Add(1)
	go d.runSensorLoop()

	d.wg.Add(1)
	go d.runTempLoop()

	slog.Info("camera driver running")

	<-ctx.Done()

	slog.Info("camera driver run loop exiting")
	return nil
}

// Shutdown sets the stop flag, joins all loops within a bound derived
// from one grab-cycle duration, then tears down the transport and the
// device. A loop that fails to exit within the bound indicates a stuck
// device call and is reported as ErrThreadStuck.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	slog.Info("shutting down camera driver")

	d.stop.Store(true)

	joined := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(joined)
	}()

	var joinErr error
	select {
	case <-joined:
		slog.Info("all acquisition loops joined")
	case <-time.After(d.joinBound()):
		slog.Error("acquisition loop failed to exit within join bound",
			"bound", d.joinBound(),
			"grab_state", d.GrabState().String(),
			"video_state", d.VideoState().String(),
			"sensor_state", d.SensorState().String(),
		)
		joinErr = ErrThreadStuck
	case <-ctx.Done():
		joinErr = ctx.Err()
	}

	if d.controlHandler != nil {
		if err := d.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	if err := d.sink.Disconnect(); err != nil {
		slog.Error("failed to disconnect sink", "error", err)
	}

	d.mgr.Close()

	d.mu.Lock()
	uptime := time.Since(d.started)
	d.isRunning = false
	d.mu.Unlock()

	slog.Info("camera driver shutdown complete", "uptime", uptime)
	return joinErr
}

// joinBound is the shutdown join budget: each loop must observe the stop
// flag within one grab cycle, so a small multiple of the cycle bounds
// the join. The floor absorbs scheduler noise on loaded machines.
func (d *Driver) joinBound() time.Duration {
	bound := 4 * d.cyclePeriod
	if bound < 200*time.Millisecond {
		return 200 * time.Millisecond
	}
	return bound
}

// Stopping reports whether shutdown has been requested
func (d *Driver) Stopping() bool {
	return d.stop.Load()
}

// GrabState returns the grab loop state
func (d *Driver) GrabState() LoopState { return LoopState(d.grabState.Load()) }

// VideoState returns the video publish loop state
func (d *Driver) VideoState() LoopState { return LoopState(d.videoState.Load()) }

// SensorState returns the sensor publish loop state
func (d *Driver) SensorState() LoopState { return LoopState(d.sensorState.Load()) }

// Err returns the recorded fatal acquisition fault, if any
func (d *Driver) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *Driver) recordFault(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

// ShutdownTimeout returns the configured graceful shutdown budget
func (d *Driver) ShutdownTimeout() time.Duration {
	return time.Duration(d.cfg.ShutdownTimeoutS) * time.Second
}

// setParams applies a parameter change batch; side effects (debug flags,
// downscale) take effect on the next loop iteration, never mid-iteration.
func (d *Driver) setParams(reqs []params.Request) []params.Result {
	results := d.store.Apply(reqs)
	for _, r := range results {
		if r.Accepted() {
			slog.Info("parameter updated", "name", r.Name, "value", r.Value.String())
		} else {
			slog.Warn("parameter change rejected", "name", r.Name, "error", r.Err)
		}
	}
	return results
}

// getStatus builds the control-plane status payload
func (d *Driver) getStatus() map[string]interface{} {
	d.mu.RLock()
	started := d.started
	running := d.isRunning
	reconnects := d.reconnects
	d.mu.RUnlock()

	connState, code := d.mgr.State()

	return map[string]interface{}{
		"camera":    d.cfg.CameraName,
		"uptime_s":  time.Since(started).Seconds(),
		"running":   running,
		"connection": map[string]interface{}{
			"state":      connState.String(),
			"last_code":  code.String(),
			"reconnects": reconnects,
		},
		"rates": map[string]interface{}{
			"grab_hz":   d.grabMeter.Rate(),
			"video_hz":  d.videoMeter.Rate(),
			"sensor_hz": d.sensorMeter.Rate(),
		},
		"loops": map[string]interface{}{
			"grab":   d.GrabState().String(),
			"video":  d.VideoState().String(),
			"sensor": d.SensorState().String(),
		},
	}
}

func (d *Driver) getDiagnostics() interface{} {
	return d.BuildReport()
}

func (d *Driver) shutdownViaControl() error {
	d.mu.RLock()
	cancel := d.cancelRun
	d.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("driver not running")
	}
	cancel()
	return nil
}
