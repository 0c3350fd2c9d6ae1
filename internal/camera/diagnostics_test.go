package camera

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func newIdleDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(testConfig(t), testSimulator(), newMemorySink())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestReportBeforeStartIsWarn(t *testing.T) {
	d := newIdleDriver(t)

	report := d.BuildReport()
	if report.Status != SevWarn {
		t.Errorf("status = %s, want warn while unconnected", report.Status)
	}
	for _, c := range report.Checks {
		if c.Name == "connection" && c.Severity != SevWarn {
			t.Errorf("connection check = %s, want warn", c.Severity)
		}
	}
}

func TestReportOverallIsMaxSeverity(t *testing.T) {
	d := newIdleDriver(t)

	// An unexpected loop death dominates the unconnected warning
	d.grabState.Store(int32(LoopStopped))
	d.mu.Lock()
	d.isRunning = true
	d.mu.Unlock()

	report := d.BuildReport()
	if report.Status != SevError {
		t.Errorf("status = %s, want error", report.Status)
	}
}

func TestLoopCheckDuringShutdownIsClean(t *testing.T) {
	d := newIdleDriver(t)

	d.stop.Store(true)
	d.grabState.Store(int32(LoopStopped))
	d.videoState.Store(int32(LoopStopped))
	d.sensorState.Store(int32(LoopStopped))

	report := d.BuildReport()
	for _, c := range report.Checks {
		if c.Severity == SevError {
			t.Errorf("check %s = error during requested shutdown", c.Name)
		}
	}
}

func TestGrabCadenceDegradesToWarn(t *testing.T) {
	d := newIdleDriver(t)

	d.mu.Lock()
	d.isRunning = true
	d.mu.Unlock()
	d.grabState.Store(int32(LoopStreaming))

	// The meter has never ticked and the driver is older than the
	// tolerance, so the grab loop counts as silent
	d.grabMeter.windowStart = time.Now().Add(-5 * time.Second)

	report := d.BuildReport()
	found := false
	for _, c := range report.Checks {
		if c.Name == "grab-thread" && c.Severity == SevWarn {
			found = true
		}
	}
	if !found {
		t.Errorf("silent grab loop not flagged: %+v", report.Checks)
	}
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(Check{Name: "x", Severity: SevWarn, Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["severity"] != "warn" {
		t.Errorf("severity = %v, want warn", decoded["severity"])
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	d := newIdleDriver(t)

	rec := httptest.NewRecorder()
	d.LivenessHandler(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Errorf("liveness status = %d, want 200", rec.Code)
	}
}

func TestReadinessReflectsReport(t *testing.T) {
	d := newIdleDriver(t)

	rec := httptest.NewRecorder()
	d.ReadinessHandler(rec, httptest.NewRequest("GET", "/readiness", nil))
	// Unconnected is warn, not error, so the endpoint stays ready
	if rec.Code != 200 {
		t.Errorf("readiness status = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "warn" {
		t.Errorf("status = %v, want warn", body["status"])
	}
	if checks, ok := body["checks"].([]interface{}); !ok || len(checks) == 0 {
		t.Error("readiness body carries no checks")
	}
}
