// Package engine drives the per-lot step sequence and the run loop
// around it. Each lot walks a fixed nine-step ladder against the portal:
// cash mode, account entry, fetch, count verification, due-date
// validation, selection, selection verification, save, pay. Operator
// control enters only through the checkpoints between steps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/portal"
	"github.com/chr1sbest/lotrunner/internal/resilience"
	"github.com/chr1sbest/lotrunner/internal/runstate"
	"github.com/chr1sbest/lotrunner/internal/store"
)

// Step labels recorded at each checkpoint and shown on the dashboard.
const (
	StepCashMode        = "select cash mode"
	StepEnterAccounts   = "enter accounts"
	StepFetch           = "fetch"
	StepVerifyCount     = "verify count"
	StepValidateDates   = "validate due dates"
	StepSelect          = "select accounts"
	StepVerifySelection = "verify selection"
	StepSave            = "save"
	StepPay             = "pay"
)

// pageSize is how many result rows the portal shows per page.
const pageSize = 10

// maxPageBacktrack caps repeated previous-page clicks when returning to
// the first page, so a broken pager cannot loop forever.
const maxPageBacktrack = 10

// ErrDueDateInvalid marks a lot whose installment rows carry a due date
// outside the current month. Paying such a lot would post against the
// wrong period, so the lot fails before save and the run moves on.
var ErrDueDateInvalid = errors.New("due date outside current month")

// ErrReferenceUnreadable marks a payment whose confirmation text yielded
// no reference token even after operator adjudication. The lot fails
// with the payment possibly completed, so the remark tells the operator
// to reconcile against the portal before rerunning.
var ErrReferenceUnreadable = errors.New("payment reference unreadable")

var dueDateRe = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

// Machine executes the step ladder for one lot at a time.
type Machine struct {
	drv         portal.Driver
	profile     portal.Profile
	cp          *control.Checkpointer
	state       *runstate.State
	log         logger.Logger
	waitTimeout time.Duration
	retry       resilience.RetryConfig

	// now is replaceable so due-date validation is testable.
	now func() time.Time
}

// NewMachine wires a step machine over the given driver and control
// surface.
func NewMachine(drv portal.Driver, profile portal.Profile, cp *control.Checkpointer, state *runstate.State, log logger.Logger, waitTimeout time.Duration) *Machine {
	return &Machine{
		drv:         drv,
		profile:     profile,
		cp:          cp,
		state:       state,
		log:         log,
		waitTimeout: waitTimeout,
		retry:       resilience.DefaultRetryConfig(),
		now:         time.Now,
	}
}

// ProcessLot runs the full ladder for one lot, mutating its status
// fields as each step lands. A nil return means the lot was paid and its
// reference captured. control.ErrSkipLot and control.ErrStopRun pass
// through untouched; every other error is a lot failure and the run
// driver continues with the next lot.
func (m *Machine) ProcessLot(ctx context.Context, lot *store.Lot) error {
	steps := []struct {
		label string
		fn    func(context.Context, *store.Lot) error
	}{
		{StepCashMode, m.selectCashMode},
		{StepEnterAccounts, m.enterAccounts},
		{StepFetch, m.fetch},
		{StepVerifyCount, m.verifyCount},
		{StepValidateDates, m.validateDueDates},
		{StepSelect, m.selectAccounts},
		{StepVerifySelection, m.verifySelection},
		{StepSave, m.save},
		{StepPay, m.pay},
	}

	for _, step := range steps {
		if err := m.cp.Checkpoint(step.label); err != nil {
			return err
		}
		if err := step.fn(ctx, lot); err != nil {
			return err
		}
	}
	return nil
}

// selectCashMode makes sure the cash payment radio is active. The radio
// keeps its state between lots, so clicking only when unselected keeps
// the step idempotent.
func (m *Machine) selectCashMode(ctx context.Context, lot *store.Lot) error {
	radio, err := m.find(ctx, "cash_radio")
	if err != nil {
		if !errors.Is(err, portal.ErrNotFound) {
			return fmt.Errorf("cash mode: %w", err)
		}
		// Portals without a value attribute on the radio fall back to
		// the first radio in the form.
		radios, ferr := m.drv.FindAll(ctx, m.profile.Get("any_radio"))
		if ferr != nil || len(radios) == 0 {
			return fmt.Errorf("cash mode: no payment mode radio: %w", err)
		}
		radio = radios[0]
	}

	selected, err := radio.Selected(ctx)
	if err != nil {
		return fmt.Errorf("cash mode: %w", err)
	}
	if !selected {
		if err := radio.Click(ctx); err != nil {
			return fmt.Errorf("cash mode: %w", err)
		}
		if err := m.pause(ctx, m.pacing().Short); err != nil {
			return err
		}
	}
	return nil
}

// enterAccounts clears any prior input and types the lot's account
// numbers, finishing with Enter the way an operator would.
func (m *Machine) enterAccounts(ctx context.Context, lot *store.Lot) error {
	if clear, err := m.find(ctx, "clear_button"); err == nil {
		if err := clear.Click(ctx); err != nil {
			return fmt.Errorf("enter accounts: clear: %w", err)
		}
		if err := m.pause(ctx, m.pacing().Short); err != nil {
			return err
		}
	}

	input, err := m.find(ctx, "account_input")
	if err != nil {
		return fmt.Errorf("enter accounts: %w", err)
	}
	if err := input.Clear(ctx); err != nil {
		return fmt.Errorf("enter accounts: %w", err)
	}
	if err := input.Type(ctx, strings.Join(lot.Accounts, ",")); err != nil {
		return fmt.Errorf("enter accounts: %w", err)
	}
	if err := input.Type(ctx, portal.KeyEnter); err != nil {
		return fmt.Errorf("enter accounts: %w", err)
	}
	return m.pause(ctx, m.pacing().Short)
}

// fetch submits the lot and waits for the result summary to render.
func (m *Machine) fetch(ctx context.Context, lot *store.Lot) error {
	btn, err := m.find(ctx, "fetch_button")
	if err != nil {
		lot.FetchStatus = "FAIL"
		return fmt.Errorf("fetch: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		lot.FetchStatus = "FAIL"
		return fmt.Errorf("fetch: %w", err)
	}
	if err := m.pause(ctx, m.pacing().Medium); err != nil {
		return err
	}
	if _, err := m.drv.WaitFor(ctx, m.profile.Get("display_summary"), m.waitTimeout); err != nil {
		lot.FetchStatus = "FAIL"
		return fmt.Errorf("fetch: result summary never appeared: %w", err)
	}
	lot.FetchStatus = "OK"
	return nil
}

// verifyCount reads the "Displaying A - B of N" summary and compares N
// against the lot's expected account count. An unreadable summary or a
// mismatch suspends once for operator adjudication; the summary is
// re-read after resume, and if the discrepancy is still there the
// resume means proceed anyway with the discrepancy on record. Skip
// abandons the lot.
func (m *Machine) verifyCount(ctx context.Context, lot *store.Lot) error {
	adjudicated := false
	for {
		var problem string
		summary, err := m.find(ctx, "display_summary")
		switch {
		case errors.Is(err, portal.ErrNotFound):
			lot.CountMatch = "UNREADABLE"
			problem = "result summary not found"
		case err != nil:
			return fmt.Errorf("verify count: %w", err)
		default:
			text, terr := summary.Text(ctx)
			if terr != nil {
				return fmt.Errorf("verify count: %w", terr)
			}
			dc, ok := portal.ParseDisplayCount(text)
			switch {
			case !ok:
				lot.CountMatch = "UNREADABLE"
				problem = fmt.Sprintf("summary unreadable: %q", text)
			case dc.Total != lot.Count:
				lot.CountMatch = fmt.Sprintf("MISMATCH (expected %d, displayed %d)", lot.Count, dc.Total)
				problem = fmt.Sprintf("count mismatch: expected %d, displayed %d", lot.Count, dc.Total)
			default:
				lot.CountMatch = fmt.Sprintf("OK (%d/%d)", dc.Total, lot.Count)
				return nil
			}
		}

		if adjudicated {
			m.log.Warn("Proceeding past count discrepancy on operator resume",
				logger.F("status", lot.CountMatch))
			return nil
		}
		adjudicated = true
		if serr := m.cp.Suspend(StepVerifyCount, problem); serr != nil {
			return serr
		}
	}
}

// validateDueDates scans every fetched row for a due date and requires
// all of them to fall in the current month. A stale due date means the
// portal is showing the wrong period and paying would post incorrectly,
// so the lot fails with every offending account in its remark. Rows
// that render due dates in an unrecognized format fail the same way: a
// gate that checked nothing has not passed.
func (m *Machine) validateDueDates(ctx context.Context, lot *store.Lot) error {
	pages, err := m.totalPages(ctx, lot.Count)
	if err != nil {
		return fmt.Errorf("validate due dates: %w", err)
	}

	now := m.now()
	wantMonth, wantYear := int(now.Month()), now.Year()
	checked, seen := 0, 0
	var badIDs, badDates []string

	for page := 1; ; page++ {
		rows, err := m.drv.FindAll(ctx, m.profile.Get("result_rows"))
		if err != nil {
			return fmt.Errorf("validate due dates: %w", err)
		}
		for _, row := range rows {
			seen++
			text, err := row.Text(ctx)
			if err != nil {
				return fmt.Errorf("validate due dates: %w", err)
			}
			match := dueDateRe.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			month, _ := strconv.Atoi(match[2])
			year, _ := strconv.Atoi(match[3])
			checked++
			if month != wantMonth || year != wantYear {
				badIDs = append(badIDs, rowIdentifier(text, lot.Accounts, match[0]))
				badDates = append(badDates, match[0])
			}
		}
		if page >= pages {
			break
		}
		if err := m.nextPage(ctx); err != nil {
			return fmt.Errorf("validate due dates: %w", err)
		}
	}

	if pages > 1 {
		if err := m.returnToFirstPage(ctx); err != nil {
			return fmt.Errorf("validate due dates: %w", err)
		}
	}

	if len(badIDs) > 0 {
		lot.DueDateCheck = fmt.Sprintf("FAIL (%s)", badDates[0])
		lot.Remarks = "Due date mismatch: " + strings.Join(badIDs, " ")
		return fmt.Errorf("%w: %s, want %02d/%d", ErrDueDateInvalid, strings.Join(badIDs, " "), wantMonth, wantYear)
	}
	if checked == 0 && seen > 0 {
		lot.DueDateCheck = "UNREADABLE"
		lot.Remarks = fmt.Sprintf("No readable due date in %d rows", seen)
		return fmt.Errorf("%w: no readable due date in %d rows", ErrDueDateInvalid, seen)
	}

	lot.DueDateCheck = fmt.Sprintf("OK (%d rows)", checked)
	return nil
}

// rowIdentifier names an offending row in the lot's remark, preferring
// the account number when the row text carries one of the lot's.
func rowIdentifier(text string, accounts []string, date string) string {
	for _, acct := range accounts {
		if acct != "" && strings.Contains(text, acct) {
			return acct
		}
	}
	return date
}

// selectAccounts ticks every unchecked row checkbox across all result
// pages, then returns to the first page. Re-running it never unticks.
func (m *Machine) selectAccounts(ctx context.Context, lot *store.Lot) error {
	pages, err := m.totalPages(ctx, lot.Count)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}

	clicked := 0
	for page := 1; ; page++ {
		boxes, err := m.drv.FindAll(ctx, m.profile.Get("row_checkboxes"))
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		for _, box := range boxes {
			selected, err := box.Selected(ctx)
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			if selected {
				continue
			}
			if err := box.Click(ctx); err != nil {
				return fmt.Errorf("select: %w", err)
			}
			clicked++
			if err := m.pause(ctx, m.pacing().Checkbox); err != nil {
				return err
			}
		}
		if page >= pages {
			break
		}
		if err := m.nextPage(ctx); err != nil {
			return fmt.Errorf("select: %w", err)
		}
	}

	if pages > 1 {
		if err := m.returnToFirstPage(ctx); err != nil {
			return fmt.Errorf("select: %w", err)
		}
	}

	lot.Selected = fmt.Sprintf("OK (%d new)", clicked)
	return nil
}

// verifySelection re-walks the pages counting ticked checkboxes and
// compares the total against a fresh read of the "of N" summary. When
// the summary cannot be re-read the expected count stands in and the
// outcome is recorded as CHECK without suspending. A readable mismatch
// suspends once; resume after that means proceed with the MISMATCH on
// record, mirroring the count verification step.
func (m *Machine) verifySelection(ctx context.Context, lot *store.Lot) error {
	adjudicated := false
	for {
		selected, err := m.countSelected(ctx, lot.Count)
		if err != nil {
			return fmt.Errorf("verify selection: %w", err)
		}

		displayed, readable := m.displayedTotal(ctx)
		if !readable {
			lot.SelectionVerified = fmt.Sprintf("CHECK (%d/%d)", selected, lot.Count)
			m.log.Warn("Summary unreadable, selection recorded unverified",
				logger.F("selected", selected), logger.F("expected", lot.Count))
			return nil
		}
		if selected != displayed {
			lot.SelectionVerified = fmt.Sprintf("MISMATCH (%d/%d)", selected, displayed)
			if adjudicated {
				m.log.Warn("Proceeding past selection mismatch on operator resume",
					logger.F("status", lot.SelectionVerified))
				return nil
			}
			adjudicated = true
			if serr := m.cp.Suspend(StepVerifySelection,
				fmt.Sprintf("selected %d of %d displayed", selected, displayed)); serr != nil {
				return serr
			}
			continue
		}
		lot.SelectionVerified = fmt.Sprintf("OK (%d/%d)", selected, displayed)
		return nil
	}
}

// displayedTotal re-reads the result summary's reported total.
func (m *Machine) displayedTotal(ctx context.Context) (int, bool) {
	summary, err := m.find(ctx, "display_summary")
	if err != nil {
		return 0, false
	}
	text, err := summary.Text(ctx)
	if err != nil {
		return 0, false
	}
	dc, ok := portal.ParseDisplayCount(text)
	if !ok {
		return 0, false
	}
	return dc.Total, true
}

func (m *Machine) countSelected(ctx context.Context, expected int) (int, error) {
	pages, err := m.totalPages(ctx, expected)
	if err != nil {
		return 0, err
	}
	total := 0
	for page := 1; ; page++ {
		boxes, err := m.drv.FindAll(ctx, m.profile.Get("row_checkboxes"))
		if err != nil {
			return 0, err
		}
		for _, box := range boxes {
			selected, err := box.Selected(ctx)
			if err != nil {
				return 0, err
			}
			if selected {
				total++
			}
		}
		if page >= pages {
			break
		}
		if err := m.nextPage(ctx); err != nil {
			return 0, err
		}
	}
	if pages > 1 {
		if err := m.returnToFirstPage(ctx); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// save commits the selection, accepting the portal's confirmation prompt
// and waiting for the saved list to render.
func (m *Machine) save(ctx context.Context, lot *store.Lot) error {
	btn, err := m.find(ctx, "save_button")
	if err != nil {
		lot.SaveStatus = "FAIL"
		return fmt.Errorf("save: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		lot.SaveStatus = "FAIL"
		return fmt.Errorf("save: %w", err)
	}
	if _, err := m.drv.AcceptPrompt(ctx); err != nil && !errors.Is(err, portal.ErrNoPrompt) {
		lot.SaveStatus = "FAIL"
		return fmt.Errorf("save: %w", err)
	}
	if err := m.pause(ctx, m.pacing().Medium); err != nil {
		return err
	}
	if _, err := m.drv.WaitFor(ctx, m.profile.Get("saved_list_heading"), m.waitTimeout); err != nil {
		lot.SaveStatus = "FAIL"
		return fmt.Errorf("save: saved list never appeared: %w", err)
	}
	lot.SaveStatus = "OK"
	return nil
}

// pay triggers payment and captures the reference id from the
// confirmation text. An unreadable reference suspends once for the
// operator to look at the screen; if it still cannot be parsed after
// resume, the lot fails with ErrReferenceUnreadable and the remark
// flags it for reconciliation against the portal.
func (m *Machine) pay(ctx context.Context, lot *store.Lot) error {
	btn, err := m.find(ctx, "pay_button")
	if err != nil {
		lot.PayStatus = "FAIL"
		return fmt.Errorf("pay: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		lot.PayStatus = "FAIL"
		return fmt.Errorf("pay: %w", err)
	}
	if _, err := m.drv.AcceptPrompt(ctx); err != nil && !errors.Is(err, portal.ErrNoPrompt) {
		lot.PayStatus = "FAIL"
		return fmt.Errorf("pay: %w", err)
	}
	if err := m.pause(ctx, m.pacing().Long); err != nil {
		return err
	}

	suspended := false
	for {
		ref, err := m.readReference(ctx)
		if err != nil {
			lot.PayStatus = "FAIL"
			return fmt.Errorf("pay: %w", err)
		}
		if ref != "" {
			lot.ReferenceID = ref
			lot.PayStatus = "OK"
			lot.Timestamp = m.now().Format("2006-01-02 15:04:05")
			return nil
		}
		if suspended {
			lot.PayStatus = "FAIL (no reference)"
			return fmt.Errorf("%w: payment may have completed, check the portal before rerunning", ErrReferenceUnreadable)
		}
		suspended = true
		if serr := m.cp.Suspend(StepPay, "payment reference not found on screen"); serr != nil {
			return serr
		}
	}
}

func (m *Machine) readReference(ctx context.Context) (string, error) {
	for _, name := range []string{"payment_message", "reference_mention"} {
		el, err := m.find(ctx, name)
		if err != nil {
			if errors.Is(err, portal.ErrNotFound) {
				continue
			}
			return "", err
		}
		text, err := el.Text(ctx)
		if err != nil {
			return "", err
		}
		if ref := portal.ParseReference(text); ref != "" {
			return ref, nil
		}
	}
	return "", nil
}

// totalPages reads the pager only when the expected count spills past a
// single page; for small lots a missing pager is normal.
func (m *Machine) totalPages(ctx context.Context, expected int) (int, error) {
	if expected <= pageSize {
		return 1, nil
	}
	info, err := m.find(ctx, "page_info")
	if err != nil {
		if errors.Is(err, portal.ErrNotFound) {
			return 1, nil
		}
		return 0, err
	}
	text, err := info.Text(ctx)
	if err != nil {
		return 0, err
	}
	return portal.ParseTotalPages(text), nil
}

func (m *Machine) nextPage(ctx context.Context) error {
	if err := m.clickPagerLink(ctx, "next_page_rel"); err != nil {
		return err
	}
	return m.pause(ctx, m.pacing().Medium)
}

// returnToFirstPage walks the previous-page link until it disappears,
// bounded by maxPageBacktrack clicks.
func (m *Machine) returnToFirstPage(ctx context.Context) error {
	for i := 0; i < maxPageBacktrack; i++ {
		err := m.clickPagerLink(ctx, "prev_page_rel")
		if errors.Is(err, portal.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.pause(ctx, m.pacing().Medium); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) clickPagerLink(ctx context.Context, rel string) error {
	info, err := m.find(ctx, "page_info")
	if err != nil {
		return err
	}
	links, err := info.FindAll(ctx, m.profile.Get(rel))
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return portal.ErrNotFound
	}
	return links[0].Click(ctx)
}

// find locates a profiled element, retrying transient wire failures.
func (m *Machine) find(ctx context.Context, name string) (portal.Element, error) {
	var el portal.Element
	err := resilience.Retry(ctx, m.retry, func(ctx context.Context) error {
		var ferr error
		el, ferr = m.drv.Find(ctx, m.profile.Get(name))
		return ferr
	})
	return el, err
}

func (m *Machine) pacing() runstate.Pacing {
	return m.state.Pacing()
}

// pause sleeps for a pacing delay, honoring cancellation.
func (m *Machine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
