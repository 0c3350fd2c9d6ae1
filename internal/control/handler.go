package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/visiona/camd/internal/config"
	"github.com/visiona/camd/internal/params"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ParamResult is the per-request outcome of a set_params batch
type ParamResult struct {
	Name     string `json:"name"`
	Accepted bool   `json:"accepted"`
	Value    string `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Results    []ParamResult          `json:"results,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Callbacks contains the driver hooks invoked by commands
type Callbacks struct {
	OnSetParams      func([]params.Request) []params.Result
	OnGetParams      func() []params.Descriptor
	OnGetStatus      func() map[string]interface{}
	OnGetDiagnostics func() interface{}
	OnShutdown       func() error
}

// Handler handles control plane commands over MQTT
type Handler struct {
	cfg       *config.Config
	client    mqtt.Client
	commands  chan Command
	callbacks Callbacks
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes to the control topic and begins processing commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Publish.Topics.Control
	qos := h.cfg.Publish.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	topic := h.cfg.Publish.Topics.Control

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.Handle(cmd))
		}
	}
}

// Handle executes a command and returns its response. Parameter
// validation errors are returned in the response; they never crash the
// process.
func (h *Handler) Handle(cmd Command) Response {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "set_params":
		h.handleSetParams(cmd, &resp)

	case "get_params":
		if h.callbacks.OnGetParams == nil {
			resp.Status = "error"
			resp.Error = "get_params not implemented"
			break
		}
		descs := h.callbacks.OnGetParams()
		list := make([]map[string]interface{}, 0, len(descs))
		for _, d := range descs {
			list = append(list, map[string]interface{}{
				"name":       d.Name,
				"mutability": d.Mutability.String(),
				"default":    d.Default.String(),
				"value":      d.Current.String(),
			})
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"params": list}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "get_diagnostics":
		if h.callbacks.OnGetDiagnostics == nil {
			resp.Status = "error"
			resp.Error = "get_diagnostics not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"report": h.callbacks.OnGetDiagnostics(),
		}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
			break
		}
		slog.Warn("shutdown command received via control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
		}
		// Trigger shutdown after the response goes out
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

// handleSetParams parses a batch of {name, value} requests and applies
// them through the driver callback. Requests are independent; the
// response status is the conjunction of per-request outcomes.
func (h *Handler) handleSetParams(cmd Command, resp *Response) {
	if h.callbacks.OnSetParams == nil {
		resp.Status = "error"
		resp.Error = "set_params not implemented"
		return
	}

	rawReqs, ok := cmd.Params["requests"].([]interface{})
	if !ok || len(rawReqs) == 0 {
		resp.Status = "error"
		resp.Error = "missing or invalid 'requests' parameter (expected array of {name, value})"
		return
	}

	reqs := make([]params.Request, 0, len(rawReqs))
	for i, raw := range rawReqs {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			resp.Status = "error"
			resp.Error = fmt.Sprintf("requests[%d] is not an object", i)
			return
		}
		name, ok := obj["name"].(string)
		if !ok || name == "" {
			resp.Status = "error"
			resp.Error = fmt.Sprintf("requests[%d] missing 'name'", i)
			return
		}
		value, ok := params.FromInterface(obj["value"])
		if !ok {
			resp.Status = "error"
			resp.Error = fmt.Sprintf("requests[%d] has unsupported value type", i)
			return
		}
		reqs = append(reqs, params.Request{Name: name, Value: value})
	}

	results := h.callbacks.OnSetParams(reqs)

	accepted := 0
	for _, r := range results {
		pr := ParamResult{Name: r.Name, Accepted: r.Accepted()}
		if r.Accepted() {
			pr.Value = r.Value.String()
			accepted++
		} else {
			pr.Error = r.Err.Error()
		}
		resp.Results = append(resp.Results, pr)
	}

	switch {
	case accepted == len(results):
		resp.Status = "success"
	case accepted > 0:
		resp.Status = "partial"
	default:
		resp.Status = "error"
		resp.Error = "all requests rejected"
	}
}

// sendResponse publishes a response to the status topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.Publish.Topics.Status
	qos := h.cfg.Publish.QoS["status"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
