package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	write := func(name string) {
		t.Helper()
		body := `{"name": "` + name + `", "csv_path": "ledger.csv", "portal_url": "https://portal.example.com"}`
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("before")

	w, err := NewWatcher(NewLoader(), path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Name; got != "before" {
		t.Fatalf("initial Name = %q", got)
	}

	write("after")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Error != nil {
				t.Fatalf("watch error: %v", ev.Error)
			}
			if ev.Config.Name == "after" {
				if w.Current().Name != "after" {
					t.Error("Current() not updated after reload")
				}
				return
			}
		case <-deadline:
			t.Fatal("reload event never arrived")
		}
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	body := `{"name": "stable", "csv_path": "ledger.csv", "portal_url": "https://portal.example.com"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(NewLoader(), path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for sibling write: %+v", ev)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherStopClosesEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	body := `{"name": "ok", "csv_path": "ledger.csv", "portal_url": "https://portal.example.com"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(NewLoader(), path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	_ = w.Stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Stop")
		}
	}
}

func TestWatcherSurfacesReloadErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	body := `{"name": "ok", "csv_path": "ledger.csv", "portal_url": "https://portal.example.com"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher(NewLoader(), path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("corrupt config: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Error == nil {
			t.Fatalf("expected reload error, got %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error event never arrived")
	}
}
