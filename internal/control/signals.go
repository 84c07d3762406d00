// Package control carries operator intent from the dashboard to the worker.
//
// The dashboard writes signals; the worker observes them only at
// checkpoints. Pause/resume is a gate channel (closed means open gate),
// skip is a one-shot message, stop is sticky for the rest of the run.
package control

import (
	"errors"
	"sort"
	"sync"
)

// ErrSkipLot is returned from a checkpoint when the operator asked to skip
// the current LOT. Nothing after the checkpoint runs for that LOT.
var ErrSkipLot = errors.New("skip current lot")

// ErrStopRun is returned from a checkpoint once stop-after-current has been
// requested. It stays set for the remainder of the run.
var ErrStopRun = errors.New("stop after current lot")

// Signals is the shared signal set between the control plane and the
// worker. Writes come from the dashboard handlers; reads and clears happen
// at checkpoints and in the run driver.
type Signals struct {
	mu       sync.Mutex
	gate     chan struct{} // closed while running; replaced with an open channel on pause
	paused   bool
	skip     chan struct{} // capacity 1, one-shot
	stop     chan struct{} // closed on stop-after-current, never reopened
	stopOnce sync.Once
	excluded map[string]bool
}

// NewSignals creates a signal set with the gate open.
func NewSignals() *Signals {
	gate := make(chan struct{})
	close(gate)
	return &Signals{
		gate:     gate,
		skip:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		excluded: make(map[string]bool),
	}
}

// Pause closes the gate. Checkpoints block until Resume.
func (s *Signals) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.gate = make(chan struct{})
}

// Resume opens the gate, waking any checkpoint blocked on it.
func (s *Signals) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.gate)
}

// Paused reports whether the gate is currently closed.
func (s *Signals) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Gate returns the channel a checkpoint waits on. Receiving completes as
// soon as the gate is open.
func (s *Signals) Gate() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate
}

// RequestSkip sets the one-shot skip signal and forces the gate open so a
// blocked checkpoint wakes and raises immediately.
func (s *Signals) RequestSkip() {
	select {
	case s.skip <- struct{}{}:
	default:
	}
	s.Resume()
}

// TakeSkip consumes the skip signal if set.
func (s *Signals) TakeSkip() bool {
	select {
	case <-s.skip:
		return true
	default:
		return false
	}
}

// RequestStop sets the sticky stop-after-current signal. The gate is left
// as-is; a paused run stays paused until resumed or skipped.
func (s *Signals) RequestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stopped returns a channel closed once stop has been requested.
func (s *Signals) Stopped() <-chan struct{} {
	return s.stop
}

// StopRequested reports whether stop-after-current has been requested.
func (s *Signals) StopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// ToggleExcluded flips a LOT's membership in the excluded set and reports
// whether it is now excluded.
func (s *Signals) ToggleExcluded(lot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.excluded[lot] {
		delete(s.excluded, lot)
		return false
	}
	s.excluded[lot] = true
	return true
}

// Excluded reports whether the operator pre-excluded a LOT.
func (s *Signals) Excluded(lot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excluded[lot]
}

// ExcludedList returns the excluded LOT ids in stable order.
func (s *Signals) ExcludedList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.excluded))
	for lot := range s.excluded {
		out = append(out, lot)
	}
	sort.Strings(out)
	return out
}
