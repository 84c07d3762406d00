// Package watchdog enforces the two non-cooperative limits on a run:
// a global wall-clock deadline and a process memory ceiling. Both paths
// flush persistence best-effort and then terminate the process, because
// a hung portal session cannot be unwound cooperatively.
package watchdog

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/runstate"
)

// memSampleInterval is how often the memory gauge is refreshed.
const memSampleInterval = 5 * time.Second

// Watchdog watches one run. Construct with New and call Start once.
type Watchdog struct {
	timeout    time.Duration
	memLimitMB int
	state      *runstate.State
	log        logger.Logger

	// flush runs before termination for a best-effort persistence write.
	flush func()
	// exit is replaceable in tests.
	exit func(code int)
}

// New creates a watchdog. A zero timeout disables the deadline; a zero
// memory limit disables the ceiling. flush may be nil.
func New(timeout time.Duration, memLimitMB int, state *runstate.State, log logger.Logger, flush func()) *Watchdog {
	return &Watchdog{
		timeout:    timeout,
		memLimitMB: memLimitMB,
		state:      state,
		log:        log,
		flush:      flush,
		exit:       os.Exit,
	}
}

// SetExit overrides process termination. Tests use it.
func (w *Watchdog) SetExit(exit func(int)) {
	w.exit = exit
}

// Start launches the deadline timer and the memory sampler. Both stop
// when ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	if w.timeout > 0 {
		go w.watchDeadline(ctx)
	}
	go w.sampleMemory(ctx)
}

func (w *Watchdog) watchDeadline(ctx context.Context) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	w.log.Error("Global timeout reached, terminating", logger.F("timeout", w.timeout))
	w.state.AppendLog(time.Now().Format("15:04:05") + "  GLOBAL TIMEOUT, terminating")
	w.terminate()
}

func (w *Watchdog) sampleMemory(ctx context.Context) {
	ticker := time.NewTicker(memSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		mb := float64(ms.Sys) / (1024 * 1024)
		w.state.SetMemoryMB(mb)
		if w.memLimitMB > 0 && mb > float64(w.memLimitMB) {
			w.log.Error("Memory limit exceeded, terminating",
				logger.F("memory_mb", int(mb)), logger.F("limit_mb", w.memLimitMB))
			w.terminate()
			return
		}
	}
}

func (w *Watchdog) terminate() {
	if w.flush != nil {
		w.flush()
	}
	w.exit(1)
}
