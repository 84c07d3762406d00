package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chr1sbest/lotrunner/internal/banner"
	"github.com/chr1sbest/lotrunner/internal/config"
	"github.com/chr1sbest/lotrunner/internal/control"
	"github.com/chr1sbest/lotrunner/internal/dashboard"
	"github.com/chr1sbest/lotrunner/internal/engine"
	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/portal"
	"github.com/chr1sbest/lotrunner/internal/runstate"
	"github.com/chr1sbest/lotrunner/internal/store"
	"github.com/chr1sbest/lotrunner/internal/tracker"
	"github.com/chr1sbest/lotrunner/internal/watchdog"
)

const defaultWebDriverURL = "http://localhost:9515"

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "lotrunner.json", "Path to config file")
	lotsFlag := fs.String("lots", "all", `Lot selection: "all", "3", "1-5", or "1-3,7"`)
	noDashboard := fs.Bool("no-dashboard", false, "Run without the control dashboard")
	fs.Parse(args)

	loader := config.NewLoader()
	cfg, err := loader.LoadAndValidate(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	lots, err := store.Load(cfg.CSVPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(lots) == 0 {
		fmt.Fprintf(os.Stderr, "Ledger %s has no lots.\n", cfg.CSVPath)
		return 1
	}

	selected, err := parseLotSelection(*lotsFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	profile, err := portal.LoadProfile(cfg.LocatorsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	state := runstate.New(runstate.Pacing{
		Short:    cfg.Pacing.DelayShort(),
		Medium:   cfg.Pacing.DelayMedium(),
		Long:     cfg.Pacing.DelayLong(),
		Checkbox: cfg.Pacing.DelayCheckbox(),
	})
	log := logger.NewMultiLogger(
		logger.NewStdoutLogger(logger.LevelInfo),
		logger.NewSinkLogger(state, logger.LevelInfo),
	)

	trk := tracker.NewWriter(filepath.Dir(cfg.CSVPath))
	runID := tracker.NewRunID()
	release, err := trk.AcquireLock(runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer release()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	signals := control.NewSignals()
	cp := control.NewCheckpointer(signals, state, log)

	var dashURL string
	if !*noDashboard {
		hub := dashboard.NewHub(state, dashboard.DefaultPublishInterval)
		go hub.Run()
		defer hub.Stop()

		srv := dashboard.NewServer(cfg.GetDashboardPort(), signals, state, hub, log)
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer srv.Shutdown(nil)
		dashURL = srv.BaseURL()
	}

	// Hot-reload pacing edits made to the config file mid-run. Dashboard
	// slider changes and file edits land in the same clamped state.
	watcher, err := config.NewWatcher(loader, *configFile)
	if err == nil {
		if err := watcher.Start(ctx); err == nil {
			defer watcher.Stop()
			go consumePacingUpdates(watcher, state, log)
		}
	}

	pending := 0
	for _, lot := range lots {
		if !lot.Paid() {
			pending++
		}
	}
	banner.New().Print(cfg, len(lots), pending, dashURL)

	webdriverURL := cfg.WebDriverURL
	if webdriverURL == "" {
		webdriverURL = defaultWebDriverURL
	}
	drv, err := portal.NewSession(ctx, webdriverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not start browser session via %s: %v\n", webdriverURL, err)
		return 1
	}
	defer drv.Close(context.Background())

	if err := drv.Navigate(ctx, cfg.PortalURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Login stays manual: the portal uses short-lived credentials the
	// operator holds.
	fmt.Print("\nLog in to the portal in the browser window, then press ENTER to begin... ")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		fmt.Fprintln(os.Stderr, "stdin closed before login confirmation")
		return 1
	}
	if _, err := drv.WaitFor(ctx, profile.Get("deposit_heading"), cfg.GetWaitTimeout()); err != nil {
		log.Warn("Deposit accounts screen not detected, continuing anyway")
	}

	machine := engine.NewMachine(drv, profile, cp, state, log, cfg.GetWaitTimeout())

	wd := watchdog.New(cfg.GetGlobalTimeout(), cfg.GetMemoryLimitMB(), state, log, func() {
		if err := store.Save(cfg.CSVPath, lots); err != nil {
			log.Error("Final ledger flush failed", logger.F("error", err))
		}
	})
	wd.Start(ctx)

	runner := &engine.Runner{
		Machine:       machine,
		Signals:       signals,
		State:         state,
		Log:           log,
		Tracker:       trk,
		RunID:         runID,
		CSVPath:       cfg.CSVPath,
		XLSXPath:      cfg.XLSXPath,
		DownloadDir:   cfg.DownloadDir,
		MemoryLimitMB: cfg.GetMemoryLimitMB(),
		Selected:      selected,
	}

	runErr := runner.Run(ctx, lots)

	// Give connected streams a moment to receive the final snapshot.
	time.Sleep(2 * dashboard.DefaultPublishInterval)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\nRun aborted: %v\n", runErr)
		return 1
	}
	return 0
}

func consumePacingUpdates(w *config.Watcher, state *runstate.State, log logger.Logger) {
	for ev := range w.Events() {
		if ev.Error != nil {
			log.Warn("Config reload failed", logger.F("error", ev.Error))
			continue
		}
		if ev.Config == nil {
			continue
		}
		applied := state.UpdatePacing(runstate.Pacing{
			Short:    ev.Config.Pacing.DelayShort(),
			Medium:   ev.Config.Pacing.DelayMedium(),
			Long:     ev.Config.Pacing.DelayLong(),
			Checkbox: ev.Config.Pacing.DelayCheckbox(),
		})
		log.Info("Pacing reloaded from config",
			logger.F("short", applied.Short),
			logger.F("medium", applied.Medium),
			logger.F("long", applied.Long),
			logger.F("checkbox", applied.Checkbox))
	}
}

// parseLotSelection turns "all", "3", "1-5" or "1-3,7" into a member
// set. Nil means every lot.
func parseLotSelection(expr string) (map[int]bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, "all") {
		return nil, nil
	}

	selected := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil || start > end || start < 1 {
				return nil, fmt.Errorf("bad lot range %q", part)
			}
			for n := start; n <= end; n++ {
				selected[n] = true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad lot number %q", part)
		}
		selected[n] = true
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("empty lot selection %q", expr)
	}
	return selected, nil
}
