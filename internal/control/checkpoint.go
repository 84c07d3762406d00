package control

import (
	"time"

	"github.com/chr1sbest/lotrunner/internal/logger"
	"github.com/chr1sbest/lotrunner/internal/runstate"
)

// DefaultWarnAfter is how long a checkpoint waits on a closed gate before
// logging a warning. It keeps waiting after the warning; only an explicit
// resume (or skip) releases it.
const DefaultWarnAfter = 5 * time.Minute

// Checkpointer is the worker's only suspension point. The step state
// machine calls Checkpoint between every step; everything else either
// returns or fails.
type Checkpointer struct {
	signals   *Signals
	state     *runstate.State
	log       logger.Logger
	warnAfter time.Duration
}

// NewCheckpointer binds the gate to the shared signal set and run state.
func NewCheckpointer(signals *Signals, state *runstate.State, log logger.Logger) *Checkpointer {
	return &Checkpointer{
		signals:   signals,
		state:     state,
		log:       log,
		warnAfter: DefaultWarnAfter,
	}
}

// SetWarnAfter overrides the pause-warning interval. Tests shrink it.
func (c *Checkpointer) SetWarnAfter(d time.Duration) {
	c.warnAfter = d
}

// Checkpoint records the step label, blocks while the gate is closed, then
// observes the one-shot signals. Returns ErrSkipLot (skip consumed) or
// ErrStopRun (stop is sticky, not consumed), nil otherwise.
func (c *Checkpointer) Checkpoint(step string) error {
	if step != "" {
		c.state.SetCurrentStep(step)
	}

	for {
		gate := c.signals.Gate()
		select {
		case <-gate:
		case <-time.After(c.warnAfter):
			c.log.Warn("Still paused", logger.F("step", step), logger.F("waited", c.warnAfter))
			continue
		}
		break
	}

	if c.signals.TakeSkip() {
		return ErrSkipLot
	}
	if c.signals.StopRequested() {
		return ErrStopRun
	}
	return nil
}

// Suspend closes the gate for operator adjudication and immediately parks
// at a checkpoint. Resume means proceed; skip converts the suspend into an
// item-level skip.
func (c *Checkpointer) Suspend(step, reason string) error {
	c.log.Warn("Suspended for operator decision", logger.F("step", step), logger.F("reason", reason))
	c.signals.Pause()
	c.state.SetPaused(true)
	err := c.Checkpoint(step)
	c.state.SetPaused(false)
	return err
}
