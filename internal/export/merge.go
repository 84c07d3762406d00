package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/chr1sbest/lotrunner/internal/store"
)

// MergeResult reports what the receipt merge produced.
type MergeResult struct {
	OutputPath string
	Merged     []int // lot numbers included
	Skipped    []int // lots whose receipt was missing or multi-page
}

// MergeReceipts combines every single-page receipt PDF in dir into one
// document named after the lot range, e.g. Merged_1-3,5.pdf. Receipts
// with more than one page are left alone; they usually mean the portal
// rendered an error page instead of a report.
func MergeReceipts(dir string, lots []*store.Lot) (*MergeResult, error) {
	res := &MergeResult{}
	var inputs []string

	sorted := make([]*store.Lot, len(lots))
	copy(sorted, lots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LOT < sorted[j].LOT })

	for _, lot := range sorted {
		if lot.ReferenceID == "" {
			continue
		}
		path := filepath.Join(dir, ReceiptName(lot))
		if _, err := os.Stat(path); err != nil {
			res.Skipped = append(res.Skipped, lot.LOT)
			continue
		}
		pages, err := api.PageCountFile(path)
		if err != nil {
			return nil, fmt.Errorf("merge: count pages of %s: %w", path, err)
		}
		if pages != 1 {
			res.Skipped = append(res.Skipped, lot.LOT)
			continue
		}
		inputs = append(inputs, path)
		res.Merged = append(res.Merged, lot.LOT)
	}

	if len(inputs) == 0 {
		return res, nil
	}

	res.OutputPath = filepath.Join(dir, "Merged_"+FormatLotRange(res.Merged)+".pdf")
	if err := api.MergeCreateFile(inputs, res.OutputPath, false, nil); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return res, nil
}

// ReceiptName is the on-disk name of a lot's downloaded receipt.
func ReceiptName(lot *store.Lot) string {
	return fmt.Sprintf("%d_%s.pdf", lot.LOT, lot.ReferenceID)
}

// FormatLotRange compresses a list of lot numbers into range notation:
// [1 2 3 5 7 8 9] becomes "1-3,5,7-9".
func FormatLotRange(nums []int) string {
	if len(nums) == 0 {
		return ""
	}
	sorted := make([]int, len(nums))
	copy(sorted, nums)
	sort.Ints(sorted)

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, n := range sorted[1:] {
		if n == prev || n == prev+1 {
			prev = n
			continue
		}
		flush()
		start, prev = n, n
	}
	flush()
	return strings.Join(parts, ",")
}
