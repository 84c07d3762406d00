package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chr1sbest/lotrunner/internal/config"
	"github.com/chr1sbest/lotrunner/internal/export"
	"github.com/chr1sbest/lotrunner/internal/store"
)

// exportCmd regenerates the ledger's offline artifacts without touching
// the portal. Useful after hand-editing the CSV or re-downloading
// receipts.
func exportCmd(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configFile := fs.String("config", "lotrunner.json", "Path to config file")
	skipMerge := fs.Bool("skip-merge", false, "Skip the receipt PDF merge")
	fs.Parse(args)

	cfg, err := config.NewLoader().LoadAndValidate(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	lots, err := store.Load(cfg.CSVPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cfg.XLSXPath != "" {
		if err := export.WriteXLSX(cfg.XLSXPath, lots); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("Wrote %s\n", cfg.XLSXPath)
	}

	if cfg.DownloadDir != "" && !*skipMerge {
		res, err := export.MergeReceipts(cfg.DownloadDir, lots)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if res.OutputPath != "" {
			fmt.Printf("Merged %d receipts into %s", len(res.Merged), res.OutputPath)
			if len(res.Skipped) > 0 {
				fmt.Printf(" (%d skipped)", len(res.Skipped))
			}
			fmt.Println()
		} else {
			fmt.Println("No single-page receipts to merge.")
		}
	}
	return 0
}
