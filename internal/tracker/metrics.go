package tracker

import (
	"encoding/json"
	"os"
	"time"
)

// RunMetrics accumulates totals across every run against the same
// ledger, so reruns after a crash keep adding to the same counters.
type RunMetrics struct {
	StartedAt      time.Time  `json:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LotsDone       int        `json:"lots_done"`
	LotsFailed     int        `json:"lots_failed"`
	LotsSkipped    int        `json:"lots_skipped"`
	AccountsPaid   int        `json:"accounts_paid"`
	ReceiptsMerged int        `json:"receipts_merged,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
}

// LotDelta is the outcome of one processed lot.
type LotDelta struct {
	Done     bool
	Failed   bool
	Skipped  bool
	Accounts int
}

func (w *Writer) LoadMetrics() (*RunMetrics, error) {
	b, err := os.ReadFile(w.MetricsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m RunMetrics
	if err := json.Unmarshal(b, &m); err != nil {
		// Corrupted metrics file: treat as no metrics.
		return nil, nil
	}
	return &m, nil
}

func (w *Writer) SaveMetrics(m *RunMetrics) error {
	return writeJSONAtomic(w.MetricsPath, m)
}

func (w *Writer) LoadOrInitMetrics(runID string) (*RunMetrics, error) {
	m, err := w.LoadMetrics()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if m == nil {
		m = &RunMetrics{StartedAt: now}
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = now
	}
	m.UpdatedAt = now
	m.LastRunID = runID
	if err := w.SaveMetrics(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (w *Writer) AddLot(runID string, delta LotDelta) {
	m, err := w.LoadOrInitMetrics(runID)
	if err != nil || m == nil {
		return
	}
	if delta.Done {
		m.LotsDone++
		m.AccountsPaid += delta.Accounts
	}
	if delta.Failed {
		m.LotsFailed++
	}
	if delta.Skipped {
		m.LotsSkipped++
	}
	m.UpdatedAt = time.Now()
	m.LastRunID = runID
	_ = w.SaveMetrics(m)
}

func (w *Writer) AddMerged(runID string, count int) {
	m, err := w.LoadOrInitMetrics(runID)
	if err != nil || m == nil {
		return
	}
	m.ReceiptsMerged += count
	m.UpdatedAt = time.Now()
	m.LastRunID = runID
	_ = w.SaveMetrics(m)
}

func (w *Writer) MarkComplete(runID string) {
	m, err := w.LoadOrInitMetrics(runID)
	if err != nil || m == nil {
		return
	}
	if m.CompletedAt == nil {
		now := time.Now()
		m.CompletedAt = &now
	}
	m.UpdatedAt = time.Now()
	m.LastRunID = runID
	_ = w.SaveMetrics(m)
}
