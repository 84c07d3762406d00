package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chr1sbest/lotrunner/internal/config"
	"github.com/chr1sbest/lotrunner/internal/store"
	"github.com/chr1sbest/lotrunner/internal/tracker"
)

func statusCmd(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configFile := fs.String("config", "lotrunner.json", "Path to config file")
	fs.Parse(args)

	cfg, err := config.NewLoader().LoadAndValidate(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	trk := tracker.NewWriter(filepath.Dir(cfg.CSVPath))

	rs, err := trk.LoadRunState()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if rs == nil {
		fmt.Println("No run recorded yet.")
	} else {
		fmt.Printf("Last run      %s (pid %d)\n", rs.RunID, rs.PID)
		fmt.Printf("Status        %s\n", rs.Status)
		fmt.Printf("Phase         %s\n", rs.Phase)
		if rs.CurrentLot > 0 {
			fmt.Printf("Current lot   %d (%s)\n", rs.CurrentLot, rs.CurrentStep)
		}
		fmt.Printf("Lots          %d done, %d skipped, %d failed of %d\n",
			rs.LotsDone, rs.LotsSkipped, rs.LotsFailed, rs.LotsTotal)
		if rs.LastError != "" {
			fmt.Printf("Last error    %s\n", rs.LastError)
		}
		fmt.Printf("Updated       %s\n", rs.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	if m, err := trk.LoadMetrics(); err == nil && m != nil {
		fmt.Printf("\nCumulative    %d lots paid (%d accounts), %d skipped, %d failed\n",
			m.LotsDone, m.AccountsPaid, m.LotsSkipped, m.LotsFailed)
		if m.CompletedAt != nil {
			fmt.Printf("Completed     %s\n", m.CompletedAt.Format("2006-01-02 15:04:05"))
		}
	}

	lots, err := store.Load(cfg.CSVPath)
	if err != nil {
		return 0
	}
	pending := 0
	for _, lot := range lots {
		if !lot.Paid() {
			pending++
		}
	}
	fmt.Printf("\nLedger        %s: %d lots, %d pending\n", cfg.CSVPath, len(lots), pending)
	return 0
}
