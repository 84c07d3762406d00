// Package status renders in-place terminal progress for an attended run.
package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ANSI escape codes
const (
	clearLine  = "\033[2K"
	moveUp     = "\033[A"
	moveToCol0 = "\r"
	reset      = "\033[0m"
	bold       = "\033[1m"
	dim        = "\033[2m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	red        = "\033[31m"
)

// Progress bar characters
const (
	barFilled = "█"
	barEmpty  = "░"
	barWidth  = 20
)

// Writer handles in-place status updates to the terminal
type Writer struct {
	w            io.Writer
	mu           sync.Mutex
	linesWritten int
}

// New creates a status writer that outputs to stdout
func New() *Writer {
	return &Writer{w: os.Stdout}
}

// NewWithWriter creates a status writer with a custom output
func NewWithWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Clear erases any previously written status lines
func (s *Writer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.linesWritten; i++ {
		fmt.Fprint(s.w, moveUp+clearLine)
	}
	fmt.Fprint(s.w, moveToCol0)
	s.linesWritten = 0
}

// Update clears previous status and writes new status
func (s *Writer) Update(lines ...string) {
	s.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		fmt.Fprintln(s.w, line)
	}
	s.linesWritten = len(lines)
}

// progressBar generates a progress bar string
func progressBar(completed, total int) string {
	if total == 0 {
		return strings.Repeat(barEmpty, barWidth)
	}

	filled := (completed * barWidth) / total
	if filled > barWidth {
		filled = barWidth
	}

	return green + strings.Repeat(barFilled, filled) + reset +
		dim + strings.Repeat(barEmpty, barWidth-filled) + reset
}

// Lot displays progress through the lot list and the step in flight.
func (s *Writer) Lot(lotNum, done, total int, stepName string) {
	bar := progressBar(done, total)
	line := fmt.Sprintf("%s %s%d/%d%s %sLOT %d: %s%s",
		bar, dim, done, total, reset, bold, lotNum, stepName, reset)
	s.Update(line)
}

// Paused shows that the run is parked at a checkpoint.
func (s *Writer) Paused(lotNum, done, total int, stepName string) {
	bar := progressBar(done, total)
	lines := []string{
		fmt.Sprintf("%s %s%d/%d%s", bar, dim, done, total, reset),
		fmt.Sprintf("%s⏸ Paused at LOT %d (%s)%s", yellow+bold, lotNum, stepName, reset),
	}
	s.Update(lines...)
}

// Complete shows completion status
func (s *Writer) Complete(done, skipped, failed, total int) {
	bar := progressBar(done+skipped+failed, total)
	lines := []string{
		fmt.Sprintf("%s %s%d/%d%s", bar, dim, done, total, reset),
		fmt.Sprintf("%s✓ Complete%s %s(%d paid, %d skipped, %d failed)%s",
			green+bold, reset, dim, done, skipped, failed, reset),
	}
	s.Update(lines...)
}

// Error shows error status
func (s *Writer) Error(lotNum, done, total int, stepName string, err error) {
	s.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()

	bar := progressBar(done, total)

	// Print error state (don't track - let it persist)
	fmt.Fprintln(s.w, fmt.Sprintf("%s %s%d/%d%s", bar, dim, done, total, reset))
	fmt.Fprintln(s.w, fmt.Sprintf("%s✗ LOT %d %s failed%s", red+bold, lotNum, stepName, reset))
	fmt.Fprintln(s.w, fmt.Sprintf("%s%v%s", dim, err, reset))

	s.linesWritten = 0 // don't clear error messages
}
