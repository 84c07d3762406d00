package control

import (
	"testing"
	"time"
)

func TestGateOpenByDefault(t *testing.T) {
	s := NewSignals()
	select {
	case <-s.Gate():
	default:
		t.Fatal("gate should be open initially")
	}
	if s.Paused() {
		t.Error("Paused() = true on a fresh signal set")
	}
}

func TestPauseResume(t *testing.T) {
	s := NewSignals()
	s.Pause()
	if !s.Paused() {
		t.Fatal("Paused() = false after Pause")
	}
	select {
	case <-s.Gate():
		t.Fatal("gate receivable while paused")
	default:
	}

	// Idempotent.
	s.Pause()

	released := make(chan struct{})
	go func() {
		<-s.Gate()
		close(released)
	}()
	s.Resume()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("blocked receiver not released by Resume")
	}
	if s.Paused() {
		t.Error("Paused() = true after Resume")
	}
}

func TestSkipIsOneShot(t *testing.T) {
	s := NewSignals()
	if s.TakeSkip() {
		t.Fatal("TakeSkip() = true with no request")
	}
	s.RequestSkip()
	s.RequestSkip() // coalesces, capacity one
	if !s.TakeSkip() {
		t.Fatal("TakeSkip() = false after request")
	}
	if s.TakeSkip() {
		t.Fatal("skip observed twice")
	}
}

func TestSkipForcesGateOpen(t *testing.T) {
	s := NewSignals()
	s.Pause()
	s.RequestSkip()
	select {
	case <-s.Gate():
	default:
		t.Fatal("gate still closed after skip request")
	}
}

func TestStopIsSticky(t *testing.T) {
	s := NewSignals()
	if s.StopRequested() {
		t.Fatal("stop set on fresh signals")
	}
	s.RequestStop()
	s.RequestStop() // idempotent
	if !s.StopRequested() {
		t.Fatal("StopRequested() = false after request")
	}
	// Still set after being observed.
	if !s.StopRequested() {
		t.Fatal("stop was consumed; it must stay set")
	}
	select {
	case <-s.Stopped():
	default:
		t.Fatal("Stopped() channel not closed")
	}
}

func TestStopLeavesGateClosed(t *testing.T) {
	s := NewSignals()
	s.Pause()
	s.RequestStop()
	if !s.Paused() {
		t.Error("stop request must not resume a paused run")
	}
}

func TestToggleExcluded(t *testing.T) {
	s := NewSignals()
	if s.Excluded("3") {
		t.Fatal("lot excluded by default")
	}
	if !s.ToggleExcluded("3") {
		t.Fatal("first toggle should exclude")
	}
	if !s.Excluded("3") {
		t.Fatal("Excluded() = false after toggle")
	}
	if s.ToggleExcluded("3") {
		t.Fatal("second toggle should include")
	}
	if s.Excluded("3") {
		t.Fatal("still excluded after second toggle")
	}
}

func TestExcludedListSorted(t *testing.T) {
	s := NewSignals()
	s.ToggleExcluded("9")
	s.ToggleExcluded("2")
	s.ToggleExcluded("5")
	got := s.ExcludedList()
	want := []string{"2", "5", "9"}
	if len(got) != len(want) {
		t.Fatalf("list = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}
