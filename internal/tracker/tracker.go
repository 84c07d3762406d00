// Package tracker persists run-level bookkeeping next to the ledger: a
// heartbeat file for crash forensics, a lock file so two runs cannot
// drive the same browser, and cumulative run metrics.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunState is the heartbeat written after every lot. If a run dies, it
// tells the operator exactly where.
type RunState struct {
	RunID       string    `json:"run_id"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Phase       string    `json:"phase"`
	CurrentLot  int       `json:"current_lot,omitempty"`
	CurrentStep string    `json:"current_step,omitempty"`
	LotsDone    int       `json:"lots_done"`
	LotsFailed  int       `json:"lots_failed"`
	LotsSkipped int       `json:"lots_skipped"`
	LotsTotal   int       `json:"lots_total"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
}

type Writer struct {
	Dir          string
	RunStatePath string
	LockPath     string
	MetricsPath  string
}

func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:          dir,
		RunStatePath: filepath.Join(dir, "run_state.json"),
		LockPath:     filepath.Join(dir, ".lotrunner_lock"),
		MetricsPath:  filepath.Join(dir, "run_metrics.json"),
	}
}

func (w *Writer) WriteRunState(s RunState) error {
	return writeJSONAtomic(w.RunStatePath, s)
}

func (w *Writer) LoadRunState() (*RunState, error) {
	b, err := os.ReadFile(w.RunStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rs RunState
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, nil
	}
	return &rs, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
