// Package banner prints the startup summary before a run begins.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chr1sbest/lotrunner/internal/config"
)

// ANSI color codes
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"
	blue  = "\033[34m"
	green = "\033[32m"
)

// Box drawing characters
const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

// Banner handles pretty startup output
type Banner struct {
	writer io.Writer
	width  int
}

// New creates a new Banner that writes to stdout
func New() *Banner {
	return &Banner{
		writer: os.Stdout,
		width:  60,
	}
}

// NewWithWriter creates a Banner with a custom writer (for testing)
func NewWithWriter(w io.Writer) *Banner {
	return &Banner{
		writer: w,
		width:  60,
	}
}

// Print displays the startup banner with run information.
func (b *Banner) Print(cfg *config.Config, totalLots, pendingLots int, dashboardURL string) {
	b.printTop()
	b.line(bold+blue, "LOT Runner")
	if cfg.Name != "" {
		b.line(dim, cfg.Name)
	}
	b.separator()
	b.line("", fmt.Sprintf("Ledger    %s", cfg.CSVPath))
	b.line("", fmt.Sprintf("Lots      %d total, %d pending", totalLots, pendingLots))
	if dashboardURL != "" {
		b.line(green, fmt.Sprintf("Dashboard %s", dashboardURL))
	}
	b.printBottom()
}

func (b *Banner) printTop() {
	fmt.Fprintf(b.writer, "\n%s%s%s%s%s\n", dim, topLeft, strings.Repeat(horizontal, b.width-2), topRight, reset)
}

func (b *Banner) printBottom() {
	fmt.Fprintf(b.writer, "%s%s%s%s%s\n\n", dim, bottomLeft, strings.Repeat(horizontal, b.width-2), bottomRight, reset)
}

func (b *Banner) separator() {
	fmt.Fprintf(b.writer, "%s%s%s%s%s\n", dim, vertical, strings.Repeat(horizontal, b.width-2), vertical, reset)
}

func (b *Banner) line(color, text string) {
	max := b.width - 4
	if len(text) > max && max > 3 {
		text = text[:max-3] + "..."
	}
	padding := max - len(text)
	if padding < 0 {
		padding = 0
	}
	fmt.Fprintf(b.writer, "%s%s%s  %s%s%s%s  %s%s%s\n",
		dim, vertical, reset, color, text, reset, strings.Repeat(" ", padding), dim, vertical, reset)
}
