// Package runstate holds the single shared view of an in-flight run.
//
// One RunState exists per process. The worker writes progress into it, the
// dashboard reads consistent snapshots out of it, and every access goes
// through the same mutex. Nothing here blocks: locks are held only for the
// read/modify/write, never across a portal call or a wait.
package runstate

import (
	"sync"
	"time"
)

// Lot lifecycle values mirrored to the dashboard table.
const (
	LotPending = "pending"
	LotRunning = "running"
	LotDone    = "done"
	LotFailed  = "failed"
	LotSkipped = "skipped"
)

// Pacing is the set of live-tunable delays between portal actions.
type Pacing struct {
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	Checkbox time.Duration
}

// Minimum bounds for live pacing updates. Anything lower would hammer the
// portal, so updates clamp here instead of failing.
const (
	MinDelay         = 100 * time.Millisecond
	MinCheckboxDelay = 50 * time.Millisecond
)

// LotStatus is one row of the dashboard's per-LOT table.
type LotStatus struct {
	Lot    string `json:"lot"`
	Count  int    `json:"count"`
	Status string `json:"status"`
	RefID  string `json:"ref_id"`
	Step   string `json:"step"`
}

// Snapshot is a consistent point-in-time copy of the run state, shaped for
// the wire. All fields are plain values; mutating a snapshot has no effect
// on the live state.
type Snapshot struct {
	CurrentPhase   string         `json:"current_phase"`
	CurrentLot     string         `json:"current_lot"`
	CurrentStep    string         `json:"current_step"`
	LotsDone       int            `json:"lots_done"`
	LotsTotal      int            `json:"lots_total"`
	LotsSkipped    int            `json:"lots_skipped"`
	LotsFailed     int            `json:"lots_failed"`
	LotStatuses    []LotStatus    `json:"lot_statuses"`
	MemoryMB       float64        `json:"memory_mb"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	IsPaused       bool           `json:"is_paused"`
	IsFinished     bool           `json:"is_finished"`
	LogMessages    []string       `json:"log_messages"`
	Config         PacingSnapshot `json:"config"`
}

// PacingSnapshot reports delays in seconds, the unit the dashboard sliders
// work in.
type PacingSnapshot struct {
	DelayShort    float64 `json:"delay_short"`
	DelayMedium   float64 `json:"delay_medium"`
	DelayLong     float64 `json:"delay_long"`
	DelayCheckbox float64 `json:"delay_checkbox"`
}

const logRingSize = 80

// State is the process-wide run state. Create one with New and pass it by
// reference to every component that needs it.
type State struct {
	mu sync.Mutex

	phase       string
	currentLot  string
	currentStep string

	lotsDone    int
	lotsTotal   int
	lotsSkipped int
	lotsFailed  int

	lots []LotStatus

	memoryMB  float64
	startTime time.Time
	paused    bool
	finished  bool

	logLines []string

	pacing Pacing
}

// New creates a run state with the given starting pacing values.
func New(p Pacing) *State {
	return &State{
		phase:     "Startup",
		startTime: time.Now(),
		pacing:    clampPacing(p),
		logLines:  make([]string, 0, logRingSize),
	}
}

func clampPacing(p Pacing) Pacing {
	if p.Short < MinDelay {
		p.Short = MinDelay
	}
	if p.Medium < MinDelay {
		p.Medium = MinDelay
	}
	if p.Long < MinDelay {
		p.Long = MinDelay
	}
	if p.Checkbox < MinCheckboxDelay {
		p.Checkbox = MinCheckboxDelay
	}
	return p
}

// InitLots seeds the per-LOT table. Order is preserved in snapshots.
func (s *State) InitLots(rows []LotStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots = make([]LotStatus, len(rows))
	copy(s.lots, rows)
	s.lotsTotal = len(rows)
}

// SetPhase records the high-level stage of the overall run.
func (s *State) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// SetCurrentLot records the LOT the worker is on.
func (s *State) SetCurrentLot(lot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLot = lot
}

// SetCurrentStep records the step label. The checkpoint gate calls this on
// every checkpoint.
func (s *State) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStep = step
	for i := range s.lots {
		if s.lots[i].Lot == s.currentLot {
			s.lots[i].Step = step
		}
	}
}

// SetLotStatus updates one row of the per-LOT table.
func (s *State) SetLotStatus(lot, status, refID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lots {
		if s.lots[i].Lot != lot {
			continue
		}
		s.lots[i].Status = status
		if refID != "" {
			s.lots[i].RefID = refID
		}
		if status != LotRunning {
			s.lots[i].Step = ""
		}
	}
}

// AddDone increments the completed counter.
func (s *State) AddDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotsDone++
}

// AddFailed increments the failed counter.
func (s *State) AddFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotsFailed++
}

// AddSkipped increments the skipped counter.
func (s *State) AddSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotsSkipped++
}

// SetMemoryMB updates the resource-usage gauge.
func (s *State) SetMemoryMB(mb float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryMB = mb
}

// SetPaused flips the paused flag shown to observers.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// SetFinished marks the run finished. Telemetry streams terminate after
// their next snapshot.
func (s *State) SetFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

// Finished reports whether the run has been marked finished.
func (s *State) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// AppendLog adds a line to the bounded live-log ring. Implements
// logger.Sink.
func (s *State) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLines = append(s.logLines, line)
	if len(s.logLines) > logRingSize {
		s.logLines = s.logLines[len(s.logLines)-logRingSize:]
	}
}

// Pacing returns the current delay values.
func (s *State) Pacing() Pacing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pacing
}

// UpdatePacing replaces any non-zero delay values, clamped to minimum
// bounds. Waits already in flight keep the old value; the next
// pacing-adjacent wait picks up the new one.
func (s *State) UpdatePacing(p Pacing) Pacing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Short > 0 {
		s.pacing.Short = max(p.Short, MinDelay)
	}
	if p.Medium > 0 {
		s.pacing.Medium = max(p.Medium, MinDelay)
	}
	if p.Long > 0 {
		s.pacing.Long = max(p.Long, MinDelay)
	}
	if p.Checkbox > 0 {
		s.pacing.Checkbox = max(p.Checkbox, MinCheckboxDelay)
	}
	return s.pacing
}

// Snapshot copies the whole state under one lock acquisition.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lots := make([]LotStatus, len(s.lots))
	copy(lots, s.lots)
	logs := make([]string, len(s.logLines))
	copy(logs, s.logLines)

	return Snapshot{
		CurrentPhase:   s.phase,
		CurrentLot:     s.currentLot,
		CurrentStep:    s.currentStep,
		LotsDone:       s.lotsDone,
		LotsTotal:      s.lotsTotal,
		LotsSkipped:    s.lotsSkipped,
		LotsFailed:     s.lotsFailed,
		LotStatuses:    lots,
		MemoryMB:       s.memoryMB,
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		IsPaused:       s.paused,
		IsFinished:     s.finished,
		LogMessages:    logs,
		Config: PacingSnapshot{
			DelayShort:    s.pacing.Short.Seconds(),
			DelayMedium:   s.pacing.Medium.Seconds(),
			DelayLong:     s.pacing.Long.Seconds(),
			DelayCheckbox: s.pacing.Checkbox.Seconds(),
		},
	}
}
