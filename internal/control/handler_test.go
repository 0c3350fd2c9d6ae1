package control

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/visiona/camd/internal/config"
	"github.com/visiona/camd/internal/params"
)

func newTestHandler(t *testing.T, cb Callbacks) *Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.CameraName = "cam0"
	return NewHandler(cfg, nil, cb)
}

func storeBackedCallbacks(t *testing.T) (Callbacks, *params.Store) {
	t.Helper()
	store := params.NewStore()
	if err := store.Declare("publish.downscale", params.Float(1.0), params.Dynamic, params.Positive); err != nil {
		t.Fatal(err)
	}
	if err := store.Declare("debug.video", params.Bool(false), params.Dynamic, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Declare("camera.fps", params.Int(30), params.ReadOnly, nil); err != nil {
		t.Fatal(err)
	}
	cb := Callbacks{
		OnSetParams: store.Apply,
		OnGetParams: store.List,
	}
	return cb, store
}

func setParamsCmd(reqs ...map[string]interface{}) Command {
	raw := make([]interface{}, len(reqs))
	for i, r := range reqs {
		raw[i] = r
	}
	return Command{
		Command: "set_params",
		Params:  map[string]interface{}{"requests": raw},
	}
}

func TestHandleSetParamsSuccess(t *testing.T) {
	cb, store := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	resp := h.Handle(setParamsCmd(
		map[string]interface{}{"name": "publish.downscale", "value": 2.0},
		map[string]interface{}{"name": "debug.video", "value": true},
	))

	if resp.Status != "success" {
		t.Fatalf("status = %q, want success (error: %s)", resp.Status, resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	for _, r := range resp.Results {
		if !r.Accepted {
			t.Errorf("%s rejected: %s", r.Name, r.Error)
		}
	}
	if got := store.GetFloat("publish.downscale"); got != 2.0 {
		t.Errorf("downscale = %v, want 2.0", got)
	}
	if !store.GetBool("debug.video") {
		t.Error("debug.video not applied")
	}
}

func TestHandleSetParamsPartial(t *testing.T) {
	cb, store := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	resp := h.Handle(setParamsCmd(
		map[string]interface{}{"name": "publish.downscale", "value": -1.0},
		map[string]interface{}{"name": "debug.video", "value": true},
	))

	if resp.Status != "partial" {
		t.Fatalf("status = %q, want partial", resp.Status)
	}
	if resp.Results[0].Accepted {
		t.Error("out-of-range downscale was accepted")
	}
	if !resp.Results[1].Accepted {
		t.Errorf("debug.video rejected: %s", resp.Results[1].Error)
	}
	// Rejected request must not affect the stored value
	if got := store.GetFloat("publish.downscale"); got != 1.0 {
		t.Errorf("downscale = %v, want unchanged 1.0", got)
	}
}

func TestHandleSetParamsAllRejected(t *testing.T) {
	cb, _ := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	resp := h.Handle(setParamsCmd(
		map[string]interface{}{"name": "camera.fps", "value": 60},
		map[string]interface{}{"name": "nope", "value": 1},
	))

	if resp.Status != "error" {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	for _, r := range resp.Results {
		if r.Accepted {
			t.Errorf("%s accepted, want rejected", r.Name)
		}
	}
}

func TestHandleSetParamsMalformed(t *testing.T) {
	cb, _ := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	cases := []Command{
		{Command: "set_params"},
		{Command: "set_params", Params: map[string]interface{}{"requests": []interface{}{}}},
		{Command: "set_params", Params: map[string]interface{}{"requests": []interface{}{"not-an-object"}}},
		{Command: "set_params", Params: map[string]interface{}{
			"requests": []interface{}{map[string]interface{}{"value": 1}},
		}},
	}
	for i, cmd := range cases {
		resp := h.Handle(cmd)
		if resp.Status != "error" {
			t.Errorf("case %d: status = %q, want error", i, resp.Status)
		}
	}
}

func TestHandleGetParams(t *testing.T) {
	cb, _ := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	resp := h.Handle(Command{Command: "get_params"})
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	list, ok := resp.Data["params"].([]map[string]interface{})
	if !ok {
		t.Fatalf("params data has type %T", resp.Data["params"])
	}
	if len(list) != 3 {
		t.Fatalf("params = %d, want 3", len(list))
	}
	// List is sorted by name
	if list[0]["name"] != "camera.fps" {
		t.Errorf("first param = %v, want camera.fps", list[0]["name"])
	}
	if list[0]["mutability"] != "read-only" {
		t.Errorf("camera.fps mutability = %v", list[0]["mutability"])
	}
}

func TestHandleGetStatus(t *testing.T) {
	h := newTestHandler(t, Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{"running": true, "state": "connected"}
		},
	})

	resp := h.Handle(Command{Command: "get_status"})
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	if resp.Data["running"] != true {
		t.Errorf("running = %v, want true", resp.Data["running"])
	}
}

func TestHandleGetDiagnostics(t *testing.T) {
	h := newTestHandler(t, Callbacks{
		OnGetDiagnostics: func() interface{} {
			return map[string]interface{}{"status": "OK"}
		},
	})

	resp := h.Handle(Command{Command: "get_diagnostics"})
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	if resp.Data["report"] == nil {
		t.Error("missing report in diagnostics response")
	}
}

func TestHandleShutdown(t *testing.T) {
	done := make(chan struct{})
	h := newTestHandler(t, Callbacks{
		OnShutdown: func() error {
			close(done)
			return nil
		},
	})

	resp := h.Handle(Command{Command: "shutdown"})
	if resp.Status != "success" {
		t.Fatalf("status = %q, want success", resp.Status)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback never invoked")
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h := newTestHandler(t, Callbacks{})

	resp := h.Handle(Command{Command: "reboot"})
	if resp.Status != "error" {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.CommandAck != "reboot" {
		t.Errorf("command_ack = %q, want reboot", resp.CommandAck)
	}
}

func TestResponseJSONShape(t *testing.T) {
	cb, _ := storeBackedCallbacks(t)
	h := newTestHandler(t, cb)

	resp := h.Handle(setParamsCmd(
		map[string]interface{}{"name": "debug.video", "value": true},
	))
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"command_ack", "status", "results", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("response JSON missing %q", key)
		}
	}
}
