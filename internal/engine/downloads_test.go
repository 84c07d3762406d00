package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAwaitDownloadRenamesNewFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old_receipt.pdf"))

	m, _, _ := newTestMachine(t, singlePagePortal(1))
	before, err := dirSnapshot(dir)
	if err != nil {
		t.Fatal(err)
	}

	// The browser lands the file under the server's name after a delay.
	go func() {
		time.Sleep(20 * time.Millisecond)
		writeFile(t, filepath.Join(dir, "InstallmentReport.pdf"))
	}()

	target := filepath.Join(dir, "3_C320461082.pdf")
	if err := m.awaitDownload(context.Background(), dir, before, target); err != nil {
		t.Fatalf("awaitDownload: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("renamed receipt missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "InstallmentReport.pdf")); !os.IsNotExist(err) {
		t.Error("browser-named file still present after rename")
	}
	if _, err := os.Stat(filepath.Join(dir, "old_receipt.pdf")); err != nil {
		t.Error("pre-existing file was claimed")
	}
}

func TestAwaitDownloadIgnoresPartials(t *testing.T) {
	dir := t.TempDir()
	m, _, _ := newTestMachine(t, singlePagePortal(1))
	before, err := dirSnapshot(dir)
	if err != nil {
		t.Fatal(err)
	}

	partial := filepath.Join(dir, "report.pdf.crdownload")
	writeFile(t, partial)
	go func() {
		time.Sleep(20 * time.Millisecond)
		final := filepath.Join(dir, "report.pdf")
		if err := os.Rename(partial, final); err != nil {
			t.Error(err)
		}
	}()

	target := filepath.Join(dir, "5_C320461082.pdf")
	if err := m.awaitDownload(context.Background(), dir, before, target); err != nil {
		t.Fatalf("awaitDownload: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("renamed receipt missing: %v", err)
	}
}

func TestAwaitDownloadTimesOut(t *testing.T) {
	dir := t.TempDir()
	m, _, _ := newTestMachine(t, singlePagePortal(1))
	before, err := dirSnapshot(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = m.awaitDownload(context.Background(), dir, before, filepath.Join(dir, "1_C1.pdf"))
	if err == nil || !strings.Contains(err.Error(), "did not appear") {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestAwaitDownloadHonorsCancel(t *testing.T) {
	dir := t.TempDir()
	m, _, _ := newTestMachine(t, singlePagePortal(1))
	before, err := dirSnapshot(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err = m.awaitDownload(ctx, dir, before, filepath.Join(dir, "1_C1.pdf"))
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
