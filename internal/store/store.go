// Package store persists per-lot outcomes to a CSV ledger.
//
// The ledger is the source of truth for resumability: it is rewritten in
// full after every lot, and on restart any lot whose payment already
// succeeded is skipped.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Header is the ledger column order. Readers elsewhere (spreadsheets,
// the XLSX export) depend on it staying stable.
var Header = []string{
	"LOT",
	"RD Numbers",
	"Count",
	"Reference_ID",
	"Timestamp",
	"Fetch_Status",
	"Count_Match",
	"Due_Date_Check",
	"Selected",
	"Selection_Verified",
	"Save_Status",
	"Pay_Status",
	"Remarks",
}

// Lot is one batch of account numbers and the recorded outcome of each
// processing step.
type Lot struct {
	LOT               int
	Accounts          []string
	Count             int
	ReferenceID       string
	Timestamp         string
	FetchStatus       string
	CountMatch        string
	DueDateCheck      string
	Selected          string
	SelectionVerified string
	SaveStatus        string
	PayStatus         string
	Remarks           string
}

// Paid reports whether the lot's payment already succeeded on a previous
// run.
func (l *Lot) Paid() bool {
	return strings.HasPrefix(l.PayStatus, "OK")
}

func (l *Lot) record() []string {
	return []string{
		strconv.Itoa(l.LOT),
		strings.Join(l.Accounts, " "),
		strconv.Itoa(l.Count),
		l.ReferenceID,
		l.Timestamp,
		l.FetchStatus,
		l.CountMatch,
		l.DueDateCheck,
		l.Selected,
		l.SelectionVerified,
		l.SaveStatus,
		l.PayStatus,
		l.Remarks,
	}
}

func lotFromRecord(rec []string, line int) (*Lot, error) {
	if len(rec) != len(Header) {
		return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, len(Header), len(rec))
	}
	lot, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return nil, fmt.Errorf("line %d: bad LOT %q", line, rec[0])
	}
	count, err := strconv.Atoi(strings.TrimSpace(rec[2]))
	if err != nil {
		return nil, fmt.Errorf("line %d: bad Count %q", line, rec[2])
	}
	return &Lot{
		LOT:               lot,
		Accounts:          strings.Fields(rec[1]),
		Count:             count,
		ReferenceID:       rec[3],
		Timestamp:         rec[4],
		FetchStatus:       rec[5],
		CountMatch:        rec[6],
		DueDateCheck:      rec[7],
		Selected:          rec[8],
		SelectionVerified: rec[9],
		SaveStatus:        rec[10],
		PayStatus:         rec[11],
		Remarks:           rec[12],
	}, nil
}

// Load reads the full ledger. The header row is checked against Header
// so a file produced by a different tool fails loudly.
func Load(path string) ([]*Lot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ledger %s is empty", path)
	}
	if !headerMatches(records[0]) {
		return nil, fmt.Errorf("ledger %s: unexpected header %v", path, records[0])
	}

	lots := make([]*Lot, 0, len(records)-1)
	for i, rec := range records[1:] {
		lot, err := lotFromRecord(rec, i+2)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", path, err)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// Save rewrites the whole ledger atomically: the CSV is written to a
// temp file in the same directory, fsynced, then renamed over the old
// one so a crash mid-write cannot truncate prior results.
func Save(path string, lots []*Lot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(Header)
	for _, lot := range lots {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(lot.record())
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", writeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func headerMatches(rec []string) bool {
	if len(rec) != len(Header) {
		return false
	}
	for i, col := range rec {
		if strings.TrimSpace(col) != Header[i] {
			return false
		}
	}
	return true
}
