package camera

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Severity grades a diagnostic check
type Severity int

const (
	SevOK Severity = iota
	SevWarn
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevOK:
		return "ok"
	case SevWarn:
		return "warn"
	case SevError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalJSON renders the severity as its name
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Check is one named health check in a report
type Check struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report is a point-in-time health summary derived from already-computed
// state. Building one never triggers device I/O.
type Report struct {
	Status     Severity `json:"status"`
	UptimeS    float64  `json:"uptime_s"`
	Checks     []Check  `json:"checks"`
	GrabHz     float64  `json:"grab_hz"`
	VideoHz    float64  `json:"video_hz"`
	SensorHz   float64  `json:"sensor_hz"`
	Reconnects uint32   `json:"reconnects"`
}

// BuildReport computes the diagnostic report. Side-effect-free and
// non-blocking: it reads status values, loop states and rate meters,
// never the device handle.
func (d *Driver) BuildReport() Report {
	d.mu.RLock()
	started := d.started
	running := d.isRunning
	lastErr := d.lastErr
	reconnects := d.reconnects
	d.mu.RUnlock()

	stopping := d.stop.Load()
	connState, code := d.mgr.State()

	report := Report{
		Status:     SevOK,
		UptimeS:    time.Since(started).Seconds(),
		GrabHz:     d.grabMeter.Rate(),
		VideoHz:    d.videoMeter.Rate(),
		SensorHz:   d.sensorMeter.Rate(),
		Reconnects: reconnects,
	}

	// connection
	switch connState {
	case ConnConnected:
		report.addCheck("connection", SevOK, "connected")
	case ConnFaulted:
		report.addCheck("connection", SevError,
			fmt.Sprintf("device error: %s", code))
	default:
		report.addCheck("connection", SevWarn, connState.String())
	}

	// grab thread: a Stopped state while shutdown was not requested is
	// an unexpected death; a silent-but-alive loop degrades to WARN
	grabState := d.GrabState()
	tolerance := d.cadenceTolerance()
	if late := d.grabMeter.SinceLastTick(); grabState == LoopStreaming && running && late > tolerance {
		report.addCheck("grab-thread", SevWarn,
			fmt.Sprintf("no grab for %v (tolerance %v)", late.Round(time.Millisecond), tolerance))
	} else {
		report.addLoopCheck("grab-thread", grabState, stopping, lastErr)
	}

	report.addLoopCheck("video-thread", d.VideoState(), stopping, nil)
	report.addLoopCheck("sensor-thread", d.SensorState(), stopping, nil)

	// temperature freshness
	if _, stale, ok := d.Temperature(); stale {
		report.addCheck("temperature-freshness", SevWarn, "temperature reading stale")
	} else if ok {
		report.addCheck("temperature-freshness", SevOK, "fresh")
	} else {
		report.addCheck("temperature-freshness", SevOK, "no reading yet")
	}

	for _, c := range report.Checks {
		if c.Severity > report.Status {
			report.Status = c.Severity
		}
	}
	return report
}

// cadenceTolerance is how long the grab loop may go silent before the
// diagnostics degrade to WARN
func (d *Driver) cadenceTolerance() time.Duration {
	tol := 10 * d.cyclePeriod
	if tol < time.Second {
		return time.Second
	}
	return tol
}

func (r *Report) addCheck(name string, sev Severity, msg string) {
	r.Checks = append(r.Checks, Check{Name: name, Severity: sev, Message: msg})
}

func (r *Report) addLoopCheck(name string, state LoopState, stopping bool, lastErr error) {
	switch {
	case state == LoopStopped && !stopping:
		msg := "stopped unexpectedly"
		if lastErr != nil {
			msg = fmt.Sprintf("stopped unexpectedly: %v", lastErr)
		}
		r.addCheck(name, SevError, msg)
	case state == LoopStopped || state == LoopStopping:
		r.addCheck(name, SevOK, "stopped (shutdown)")
	default:
		r.addCheck(name, SevOK, state.String())
	}
}

// LivenessHandler serves /health: alive if this code runs
func (d *Driver) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	d.mu.RLock()
	started := d.started
	d.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	})
}

// ReadinessHandler serves /readiness with the full diagnostic report
func (d *Driver) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	report := d.BuildReport()
	statusCode := http.StatusOK
	if report.Status == SevError {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(report)
}

// StartHealthServer starts the HTTP health endpoints in the background
func (d *Driver) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.LivenessHandler)
	mux.HandleFunc("/readiness", d.ReadinessHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health server",
		"port", port,
		"endpoints", []string{"/health", "/readiness"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	return nil
}
