package dashboard

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chr1sbest/lotrunner/internal/runstate"
)

//go:embed index.html
var indexHTML []byte

// controlRequest is the body of POST /api/control. Delay values are
// seconds, the unit the UI sliders work in. Pointers distinguish
// "absent" from zero.
type controlRequest struct {
	Action        string          `json:"action"`
	Lot           json.RawMessage `json:"lot,omitempty"`
	DelayShort    *float64        `json:"delay_short,omitempty"`
	DelayMedium   *float64        `json:"delay_medium,omitempty"`
	DelayLong     *float64        `json:"delay_long,omitempty"`
	DelayCheckbox *float64        `json:"delay_checkbox,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed request body"})
		return
	}

	switch req.Action {
	case "pause":
		s.signals.Pause()
		s.state.SetPaused(true)
		s.state.AppendLog(logLine("Paused by operator"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": true})

	case "resume":
		s.signals.Resume()
		s.state.SetPaused(false)
		s.state.AppendLog(logLine("Resumed by operator"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": false})

	case "skip":
		s.signals.RequestSkip()
		s.state.SetPaused(false)
		s.state.AppendLog(logLine("Skip requested"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "stop_after_current":
		s.signals.RequestStop()
		s.state.AppendLog(logLine("Stop after current lot requested"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "update_config":
		applied := s.state.UpdatePacing(pacingFrom(req))
		s.state.AppendLog(logLine("Pacing updated"))
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"config": pacingSeconds(applied),
		})

	case "toggle_lot":
		lot, ok := lotKey(req.Lot)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing or malformed lot"})
			return
		}
		excluded := s.signals.ToggleExcluded(lot)
		verb := "included"
		if excluded {
			verb = "excluded"
		}
		s.state.AppendLog(logLine(fmt.Sprintf("LOT %s %s", lot, verb)))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lot": lot, "excluded": excluded})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "unknown action: " + req.Action})
	}
}

// handleState streams snapshots as server-sent events until the run
// finishes or the client disconnects. The final snapshot is always
// delivered before the stream closes.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, cancel := s.hub.Subscribe()
	defer cancel()

	// First event fires immediately so the UI renders without waiting a
	// tick.
	first := s.state.Snapshot()
	if !writeEvent(w, flusher, first) || first.IsFinished {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if !writeEvent(w, flusher, snap) {
				return
			}
			if snap.IsFinished {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, snap runstate.Snapshot) bool {
	data, err := json.Marshal(snap)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func logLine(msg string) string {
	return time.Now().Format("15:04:05") + "  " + msg
}

// pacingFrom builds a partial pacing update; zero fields are left
// unchanged by UpdatePacing.
func pacingFrom(req controlRequest) runstate.Pacing {
	var p runstate.Pacing
	if req.DelayShort != nil {
		p.Short = secondsToDuration(*req.DelayShort)
	}
	if req.DelayMedium != nil {
		p.Medium = secondsToDuration(*req.DelayMedium)
	}
	if req.DelayLong != nil {
		p.Long = secondsToDuration(*req.DelayLong)
	}
	if req.DelayCheckbox != nil {
		p.Checkbox = secondsToDuration(*req.DelayCheckbox)
	}
	return p
}

func secondsToDuration(s float64) time.Duration {
	d := time.Duration(s * float64(time.Second))
	if d <= 0 {
		// Clamp handled downstream; a positive epsilon keeps "0" from
		// meaning "leave unchanged".
		d = time.Millisecond
	}
	return d
}

func pacingSeconds(p runstate.Pacing) map[string]float64 {
	return map[string]float64{
		"delay_short":    p.Short.Seconds(),
		"delay_medium":   p.Medium.Seconds(),
		"delay_long":     p.Long.Seconds(),
		"delay_checkbox": p.Checkbox.Seconds(),
	}
}

// lotKey accepts the lot id as either a JSON string or number.
func lotKey(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		return asString, true
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return strconv.Itoa(int(asNumber)), true
	}
	return "", false
}
