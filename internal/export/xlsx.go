// Package export turns the CSV ledger into operator-facing artifacts:
// a styled XLSX workbook and a merged PDF of downloaded receipts.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chr1sbest/lotrunner/internal/store"
)

const sheetName = "Results"

// WriteXLSX renders the ledger as a styled workbook: bold white-on-blue
// header, frozen top row, and a green highlight on every captured
// reference id so the operator can see paid lots at a glance.
func WriteXLSX(path string, lots []*store.Lot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("xlsx: header style: %w", err)
	}
	refStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
		Font: &excelize.Font{Color: "006100"},
	})
	if err != nil {
		return fmt.Errorf("xlsx: reference style: %w", err)
	}

	for col, name := range store.Header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(store.Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	for i, lot := range lots {
		row := i + 2
		for col, val := range rowValues(lot) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return fmt.Errorf("xlsx: %w", err)
			}
		}
		if lot.ReferenceID != "" {
			cell, _ := excelize.CoordinatesToCellName(4, row)
			if err := f.SetCellStyle(sheetName, cell, cell, refStyle); err != nil {
				return fmt.Errorf("xlsx: %w", err)
			}
		}
	}

	// RD Numbers and Remarks hold the long text.
	_ = f.SetColWidth(sheetName, "A", "A", 6)
	_ = f.SetColWidth(sheetName, "B", "B", 48)
	_ = f.SetColWidth(sheetName, "C", "D", 14)
	_ = f.SetColWidth(sheetName, "E", "E", 20)
	_ = f.SetColWidth(sheetName, "F", "L", 16)
	_ = f.SetColWidth(sheetName, "M", "M", 40)

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("xlsx: freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}

func rowValues(lot *store.Lot) []any {
	rec := make([]any, 0, len(store.Header))
	for _, v := range [13]any{
		lot.LOT,
		strings.Join(lot.Accounts, " "),
		lot.Count,
		lot.ReferenceID,
		lot.Timestamp,
		lot.FetchStatus,
		lot.CountMatch,
		lot.DueDateCheck,
		lot.Selected,
		lot.SelectionVerified,
		lot.SaveStatus,
		lot.PayStatus,
		lot.Remarks,
	} {
		rec = append(rec, v)
	}
	return rec
}
