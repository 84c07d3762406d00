package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/export"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/runstate"
	"github.com/chr1sbest/lotrunner/internal/store"
	"github.com/chr1sbest/lotrunner/internal/tracker"
)

// Phase labels mirrored to the dashboard.
const (
	PhasePayments = "Phase 1: Payments"
	PhaseReceipts = "Phase 2: Receipts"
	PhaseMerge    = "Phase 3: Merge"
	PhaseFinished = "Finished"
)

// ErrMemoryLimit aborts a run whose process footprint crossed the
// configured ceiling. The browser leaks under long sessions; dying early
// with a clean ledger beats an OOM kill mid-payment.
var ErrMemoryLimit = errors.New("memory limit exceeded")

// Runner walks the lot list through the step machine, persisting the
// ledger after every lot so a crash or stop can always be resumed.
type Runner struct {
	Machine *Machine
	Signals *control.Signals
	State   *runstate.State
	Log     logger.Logger

	Tracker *tracker.Writer
	RunID   string

	CSVPath  string
	XLSXPath string
	// DownloadDir enables the receipt download and merge phases when
	// non-empty.
	DownloadDir string

	MemoryLimitMB int

	// Selected restricts the run to these lot numbers; empty means all.
	Selected map[int]bool
}

// Run processes every pending lot, then the receipt phases. Lot-level
// failures are recorded in the ledger and the run moves to the next
// lot. It returns nil when the run finished or was stopped cleanly by
// the operator; an error means the whole run aborted (cancellation or
// the memory ceiling).
func (r *Runner) Run(ctx context.Context, lots []*store.Lot) error {
	r.State.SetPhase(PhasePayments)
	r.initRows(lots)

	stopped := false

	for _, lot := range lots {
		key := strconv.Itoa(lot.LOT)

		if r.Selected != nil && !r.Selected[lot.LOT] {
			continue
		}
		if lot.Paid() {
			r.State.SetLotStatus(key, runstate.LotDone, lot.ReferenceID)
			r.State.AddDone()
			r.Log.Info("Already paid, skipping", logger.F("lot", lot.LOT), logger.F("ref", lot.ReferenceID))
			continue
		}
		if err := ctx.Err(); err != nil {
			r.persist(lots)
			return err
		}
		if r.Signals.StopRequested() {
			stopped = true
			break
		}
		if r.Signals.Excluded(key) {
			lot.Remarks = "Excluded via dashboard"
			r.State.SetLotStatus(key, runstate.LotSkipped, "")
			r.State.AddSkipped()
			r.Log.Info("Lot excluded", logger.F("lot", lot.LOT))
			r.persist(lots)
			continue
		}
		if err := r.checkMemory(); err != nil {
			r.persist(lots)
			return err
		}

		r.State.SetCurrentLot(key)
		r.State.SetLotStatus(key, runstate.LotRunning, "")
		r.Log.Info("Processing lot", logger.F("lot", lot.LOT), logger.F("accounts", len(lot.Accounts)))

		err := r.Machine.ProcessLot(ctx, lot)
		switch {
		case err == nil:
			r.State.SetLotStatus(key, runstate.LotDone, lot.ReferenceID)
			r.State.AddDone()
			r.addMetrics(tracker.LotDelta{Done: true, Accounts: len(lot.Accounts)})
			r.Log.Info("Lot paid", logger.F("lot", lot.LOT), logger.F("ref", lot.ReferenceID))

		case errors.Is(err, control.ErrSkipLot):
			lot.Remarks = "Skipped by operator"
			r.State.SetLotStatus(key, runstate.LotSkipped, "")
			r.State.AddSkipped()
			r.addMetrics(tracker.LotDelta{Skipped: true})
			r.Log.Warn("Lot skipped by operator", logger.F("lot", lot.LOT))

		case errors.Is(err, control.ErrStopRun):
			lot.Remarks = "Stopped by operator mid-lot"
			r.State.SetLotStatus(key, runstate.LotPending, "")
			r.Log.Warn("Stop requested, lot left pending", logger.F("lot", lot.LOT))
			stopped = true

		default:
			if lot.Remarks == "" {
				lot.Remarks = err.Error()
			}
			r.State.SetLotStatus(key, runstate.LotFailed, "")
			r.State.AddFailed()
			r.addMetrics(tracker.LotDelta{Failed: true})
			r.Log.Error("Lot failed", logger.F("lot", lot.LOT), logger.F("error", err))
		}

		r.persist(lots)
		r.writeHeartbeat("running", nil)

		if stopped {
			break
		}
	}

	r.State.SetCurrentLot("")
	r.State.SetCurrentStep("")

	if stopped {
		r.Log.Warn("Run stopped after current lot")
		r.finish("stopped")
		return nil
	}

	if r.DownloadDir != "" {
		if err := r.runReceiptPhases(ctx, lots); err != nil {
			if errors.Is(err, control.ErrStopRun) || errors.Is(err, context.Canceled) {
				r.finish("stopped")
				return nil
			}
			r.writeHeartbeat("aborted", err)
			return err
		}
	}

	r.finish("complete")
	if r.Tracker != nil {
		r.Tracker.MarkComplete(r.RunID)
	}
	return nil
}

// initRows seeds the dashboard table, carrying forward prior outcomes so
// a resumed run shows its history.
func (r *Runner) initRows(lots []*store.Lot) {
	rows := make([]runstate.LotStatus, 0, len(lots))
	for _, lot := range lots {
		status := runstate.LotPending
		if lot.Paid() {
			status = runstate.LotDone
		}
		rows = append(rows, runstate.LotStatus{
			Lot:    strconv.Itoa(lot.LOT),
			Count:  lot.Count,
			Status: status,
			RefID:  lot.ReferenceID,
		})
	}
	r.State.InitLots(rows)
}

func (r *Runner) runReceiptPhases(ctx context.Context, lots []*store.Lot) error {
	r.State.SetPhase(PhaseReceipts)
	if err := r.Machine.DownloadReceipts(ctx, lots, r.DownloadDir); err != nil {
		return err
	}
	r.persist(lots)

	r.State.SetPhase(PhaseMerge)
	res, err := export.MergeReceipts(r.DownloadDir, lots)
	if err != nil {
		r.Log.Error("Receipt merge failed", logger.F("error", err))
		return nil
	}
	if res.OutputPath != "" {
		r.Log.Info("Receipts merged",
			logger.F("output", res.OutputPath),
			logger.F("merged", len(res.Merged)),
			logger.F("skipped", len(res.Skipped)))
		if r.Tracker != nil {
			r.Tracker.AddMerged(r.RunID, len(res.Merged))
		}
	}
	return nil
}

// persist rewrites the CSV ledger and its XLSX mirror. Called after
// every lot so a crash loses at most the lot in flight.
func (r *Runner) persist(lots []*store.Lot) {
	if err := store.Save(r.CSVPath, lots); err != nil {
		r.Log.Error("Ledger write failed", logger.F("error", err))
	}
	if r.XLSXPath != "" {
		if err := export.WriteXLSX(r.XLSXPath, lots); err != nil {
			r.Log.Error("XLSX export failed", logger.F("error", err))
		}
	}
}

func (r *Runner) addMetrics(delta tracker.LotDelta) {
	if r.Tracker != nil {
		r.Tracker.AddLot(r.RunID, delta)
	}
}

func (r *Runner) writeHeartbeat(status string, lastErr error) {
	if r.Tracker == nil {
		return
	}
	snap := r.State.Snapshot()
	rs := tracker.RunState{
		RunID:       r.RunID,
		PID:         os.Getpid(),
		Phase:       snap.CurrentPhase,
		CurrentStep: snap.CurrentStep,
		LotsDone:    snap.LotsDone,
		LotsFailed:  snap.LotsFailed,
		LotsSkipped: snap.LotsSkipped,
		LotsTotal:   snap.LotsTotal,
		Status:      status,
	}
	if lot, err := strconv.Atoi(snap.CurrentLot); err == nil {
		rs.CurrentLot = lot
	}
	if lastErr != nil {
		rs.LastError = lastErr.Error()
	}
	if err := r.Tracker.WriteRunState(rs); err != nil {
		r.Log.Error("Heartbeat write failed", logger.F("error", err))
	}
}

func (r *Runner) finish(status string) {
	r.State.SetPhase(PhaseFinished)
	r.State.SetFinished()
	r.writeHeartbeat(status, nil)
	snap := r.State.Snapshot()
	r.Log.Info("Run finished",
		logger.F("status", status),
		logger.F("done", snap.LotsDone),
		logger.F("skipped", snap.LotsSkipped),
		logger.F("failed", snap.LotsFailed))
}

// checkMemory samples the Go heap into the dashboard gauge and enforces
// the configured ceiling. The browser's own footprint is out of reach
// from here; the limit mainly catches runaway growth on the driver side.
func (r *Runner) checkMemory() error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mb := float64(ms.Sys) / (1024 * 1024)
	r.State.SetMemoryMB(mb)
	if r.MemoryLimitMB > 0 && mb > float64(r.MemoryLimitMB) {
		return fmt.Errorf("%w: %.0f MB > %d MB", ErrMemoryLimit, mb, r.MemoryLimitMB)
	}
	return nil
}
