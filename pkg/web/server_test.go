package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-stuffbot/internal/log"
	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/control"
	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
)

type fakeLoop struct {
	status  control.Status
	history []decision.Exchange
}

func (f *fakeLoop) Status() control.Status       { return f.status }
func (f *fakeLoop) History() []decision.Exchange { return f.history }

func newTestServer(cameras *camera.Manager) (*Server, *fakeLoop) {
	loop := &fakeLoop{
		status: control.Status{
			State: control.Running,
			Tick:  42,
			Mode:  mode.Approaching,
			Robot: decision.RobotState{LinearVelocity: 0.3},
			Objects: []tracking.TrackedObject{
				{ID: "a1b2c3d4", Class: "chair", Confidence: 0.9},
			},
		},
		history: []decision.Exchange{{Tick: 41, Command: decision.Hold(mode.Approaching)}},
	}
	return NewServer(Config{Port: "0"}, loop, nil, cameras, log.Discard()), loop
}

func get(t *testing.T, s *Server, method, path string) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)

	code, body := get(t, s, http.MethodGet, "/api/status")
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}

	var got map[string]any
	decode(t, body, &got)
	if got["state"] != "RUNNING" {
		t.Errorf("state = %v, want RUNNING", got["state"])
	}
	if got["mode"] != "APPROACHING" {
		t.Errorf("mode = %v, want APPROACHING", got["mode"])
	}
	if got["tick"] != float64(42) {
		t.Errorf("tick = %v, want 42", got["tick"])
	}
}

func TestHistoryAndObjects(t *testing.T) {
	s, _ := newTestServer(nil)

	code, body := get(t, s, http.MethodGet, "/api/history")
	if code != http.StatusOK {
		t.Fatalf("history code = %d", code)
	}
	var history []decision.Exchange
	decode(t, body, &history)
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	if history[0].Command.NextMode != mode.Approaching {
		t.Errorf("next mode = %v, want Approaching", history[0].Command.NextMode)
	}

	code, body = get(t, s, http.MethodGet, "/api/objects")
	if code != http.StatusOK {
		t.Fatalf("objects code = %d", code)
	}
	var objects []tracking.TrackedObject
	decode(t, body, &objects)
	if len(objects) != 1 || objects[0].Class != "chair" {
		t.Errorf("objects = %+v, want one chair", objects)
	}
}

func TestCameraEndpoints(t *testing.T) {
	s, _ := newTestServer(nil)
	if code, _ := get(t, s, http.MethodGet, "/api/camera"); code != http.StatusNotFound {
		t.Errorf("camera without manager: code = %d, want 404", code)
	}

	mgr := camera.NewManager(camera.DefaultConfig())
	applied := 0
	mgr.OnConfigChange = func(camera.Config) error { applied++; return nil }
	s, _ = newTestServer(mgr)

	code, body := get(t, s, http.MethodGet, "/api/camera/presets")
	if code != http.StatusOK {
		t.Fatalf("presets code = %d", code)
	}
	if !strings.Contains(string(body), "720p") {
		t.Errorf("presets %s missing 720p", body)
	}

	code, body = get(t, s, http.MethodPost, "/api/camera/preset/720p")
	if code != http.StatusOK {
		t.Fatalf("apply preset code = %d", code)
	}
	var cfg camera.Config
	decode(t, body, &cfg)
	if cfg.Width != 1280 {
		t.Errorf("width = %d, want 1280", cfg.Width)
	}
	if applied != 1 {
		t.Errorf("OnConfigChange called %d times, want 1", applied)
	}

	if code, _ := get(t, s, http.MethodPost, "/api/camera/preset/nope"); code != http.StatusBadRequest {
		t.Errorf("unknown preset: code = %d, want 400", code)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(nil)
	if code, _ := get(t, s, http.MethodGet, "/ws/status"); code != http.StatusUpgradeRequired {
		t.Errorf("code = %d, want 426", code)
	}
}
