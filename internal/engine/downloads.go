package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/export"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/store"
)

// StepDownload is the checkpoint label for the receipt phase.
const StepDownload = "download receipt"

// downloadPoll is how often the receipt phase checks for the browser to
// finish writing a downloaded file.
const downloadPoll = time.Second

// DownloadReceipts fetches the installment report PDF for every paid lot
// through the portal's reports screen. Receipts already on disk are left
// alone, so the phase is safe to rerun. A single failed download is
// logged and skipped; only operator skip/stop ends the phase early.
func (m *Machine) DownloadReceipts(ctx context.Context, lots []*store.Lot, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	for _, lot := range lots {
		if lot.ReferenceID == "" {
			continue
		}
		target := filepath.Join(dir, export.ReceiptName(lot))
		if _, err := os.Stat(target); err == nil {
			m.log.Debug("Receipt already downloaded", logger.F("lot", lot.LOT))
			continue
		}

		if err := m.cp.Checkpoint(StepDownload); err != nil {
			if errors.Is(err, control.ErrSkipLot) {
				m.log.Warn("Receipt download skipped", logger.F("lot", lot.LOT))
				continue
			}
			return err
		}

		m.state.SetCurrentLot(fmt.Sprintf("%d", lot.LOT))
		if err := m.downloadOne(ctx, lot, target); err != nil {
			m.log.Error("Receipt download failed", logger.F("lot", lot.LOT), logger.F("error", err))
			continue
		}
		m.log.Info("Receipt downloaded", logger.F("lot", lot.LOT), logger.F("file", target))
	}
	return nil
}

func (m *Machine) downloadOne(ctx context.Context, lot *store.Lot, target string) error {
	link, err := m.find(ctx, "reports_link")
	if err != nil {
		return fmt.Errorf("reports screen: %w", err)
	}
	if err := link.Click(ctx); err != nil {
		return fmt.Errorf("reports screen: %w", err)
	}
	if _, err := m.drv.WaitFor(ctx, m.profile.Get("report_heading"), m.waitTimeout); err != nil {
		return fmt.Errorf("reports screen never loaded: %w", err)
	}

	input, err := m.find(ctx, "reference_input")
	if err != nil {
		return fmt.Errorf("reference input: %w", err)
	}
	if err := input.Clear(ctx); err != nil {
		return fmt.Errorf("reference input: %w", err)
	}
	if err := input.Type(ctx, lot.ReferenceID); err != nil {
		return fmt.Errorf("reference input: %w", err)
	}

	search, err := m.find(ctx, "search_button")
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := search.Click(ctx); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := m.pause(ctx, m.pacing().Medium); err != nil {
		return err
	}

	sel, err := m.find(ctx, "format_select")
	if err != nil {
		return fmt.Errorf("format select: %w", err)
	}
	options, err := sel.FindAll(ctx, m.profile.Get("pdf_option_rel"))
	if err != nil || len(options) == 0 {
		return fmt.Errorf("no PDF option: %w", err)
	}
	if err := options[0].Click(ctx); err != nil {
		return fmt.Errorf("format select: %w", err)
	}

	ok, err := m.find(ctx, "ok_button")
	if err != nil {
		return fmt.Errorf("download trigger: %w", err)
	}

	// The browser names the download after the server's filename, so
	// snapshot the directory first and claim whatever lands in it.
	dir := filepath.Dir(target)
	before, err := dirSnapshot(dir)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if err := ok.Click(ctx); err != nil {
		return fmt.Errorf("download trigger: %w", err)
	}

	return m.awaitDownload(ctx, dir, before, target)
}

// awaitDownload waits for a new file to land in dir and renames it to
// target. In-progress downloads keep a partial suffix until the browser
// finishes, so those are left alone.
func (m *Machine) awaitDownload(ctx context.Context, dir string, before map[string]bool, target string) error {
	deadline := time.Now().Add(m.waitTimeout)
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || before[name] || partialDownload(name) {
				continue
			}
			if err := os.Rename(filepath.Join(dir, name), target); err != nil {
				return fmt.Errorf("download: rename %s: %w", name, err)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("download did not appear within %s: %s", m.waitTimeout, target)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(downloadPoll):
		}
	}
}

func dirSnapshot(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	return names, nil
}

func partialDownload(name string) bool {
	for _, suffix := range []string{".crdownload", ".part", ".download", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
