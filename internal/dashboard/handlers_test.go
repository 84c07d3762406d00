package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/runstate"
)

func newTestServer(t *testing.T) (*Server, *control.Signals, *runstate.State) {
	t.Helper()
	signals := control.NewSignals()
	state := runstate.New(runstate.Pacing{
		Short:    time.Second,
		Medium:   2 * time.Second,
		Long:     3 * time.Second,
		Checkbox: 200 * time.Millisecond,
	})
	hub := NewHub(state, 10*time.Millisecond)
	go hub.Run()
	t.Cleanup(hub.Stop)
	srv := NewServer(0, signals, state, hub, logger.NewNoopLogger())
	return srv, signals, state
}

func postControl(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleControl(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestControlPauseResume(t *testing.T) {
	srv, signals, state := newTestServer(t)

	rec := postControl(t, srv, `{"action":"pause"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	if !signals.Paused() || !state.Snapshot().IsPaused {
		t.Error("pause did not close the gate")
	}
	resp := decodeResponse(t, rec)
	if resp["ok"] != true || resp["paused"] != true {
		t.Errorf("response = %v", resp)
	}

	// Idempotent.
	postControl(t, srv, `{"action":"pause"}`)

	rec = postControl(t, srv, `{"action":"resume"}`)
	if rec.Code != http.StatusOK || signals.Paused() {
		t.Error("resume did not open the gate")
	}
}

func TestControlSkipForcesResume(t *testing.T) {
	srv, signals, _ := newTestServer(t)
	postControl(t, srv, `{"action":"pause"}`)

	rec := postControl(t, srv, `{"action":"skip"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("skip status = %d", rec.Code)
	}
	if signals.Paused() {
		t.Error("skip left the gate closed")
	}
	if !signals.TakeSkip() {
		t.Error("skip signal not set")
	}
}

func TestControlStop(t *testing.T) {
	srv, signals, _ := newTestServer(t)
	rec := postControl(t, srv, `{"action":"stop_after_current"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if !signals.StopRequested() {
		t.Error("stop signal not set")
	}
}

func TestControlUpdateConfig(t *testing.T) {
	srv, _, state := newTestServer(t)

	rec := postControl(t, srv, `{"action":"update_config","delay_medium":4.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	p := state.Pacing()
	if p.Medium != 4500*time.Millisecond {
		t.Errorf("Medium = %v, want 4.5s", p.Medium)
	}
	if p.Short != time.Second {
		t.Errorf("Short = %v, want untouched 1s", p.Short)
	}

	// Below-minimum values clamp rather than fail.
	postControl(t, srv, `{"action":"update_config","delay_checkbox":0.001}`)
	if got := state.Pacing().Checkbox; got != runstate.MinCheckboxDelay {
		t.Errorf("Checkbox = %v, want clamped %v", got, runstate.MinCheckboxDelay)
	}
}

func TestControlUpdateConfigMalformed(t *testing.T) {
	srv, _, state := newTestServer(t)
	before := state.Pacing()

	rec := postControl(t, srv, `{"action":"update_config","delay_short":"fast","delay_medium":9}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	// Nothing partially applied.
	if state.Pacing() != before {
		t.Errorf("pacing changed by rejected request: %+v", state.Pacing())
	}
}

func TestControlToggleLot(t *testing.T) {
	srv, signals, _ := newTestServer(t)

	rec := postControl(t, srv, `{"action":"toggle_lot","lot":"3"}`)
	resp := decodeResponse(t, rec)
	if resp["excluded"] != true || !signals.Excluded("3") {
		t.Errorf("toggle response = %v", resp)
	}

	// Numeric lot ids are accepted too.
	rec = postControl(t, srv, `{"action":"toggle_lot","lot":3}`)
	resp = decodeResponse(t, rec)
	if resp["excluded"] != false || signals.Excluded("3") {
		t.Errorf("second toggle response = %v", resp)
	}
}

func TestControlToggleLotMissing(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := postControl(t, srv, `{"action":"toggle_lot"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestControlUnknownAction(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := postControl(t, srv, `{"action":"reboot"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp["ok"] != false {
		t.Errorf("response = %v", resp)
	}
}

func TestControlRejectsGet(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/control", nil)
	rec := httptest.NewRecorder()
	srv.handleControl(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStateStreamDeliversFinalSnapshot(t *testing.T) {
	srv, _, state := newTestServer(t)
	state.SetPhase("Finished")
	state.SetFinished()

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	srv.handleState(rec, req)

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("not an SSE body: %q", body)
	}
	var snap runstate.Snapshot
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data: "))
	// A finished run closes after exactly one event.
	if strings.Contains(payload, "\n") {
		t.Fatalf("expected a single event, got %q", body)
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		t.Fatalf("bad snapshot payload: %v", err)
	}
	if !snap.IsFinished || snap.CurrentPhase != "Finished" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStateStreamContentType(t *testing.T) {
	srv, _, state := newTestServer(t)
	state.SetFinished()

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	srv.handleState(rec, req)
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestIndexServed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.handleIndex(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "LOT Runner") {
		t.Error("index page missing title")
	}
}
