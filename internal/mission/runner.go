package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mixer-line/internal/config"
	"mixer-line/internal/controller"
	"mixer-line/internal/models"

	"github.com/sirupsen/logrus"
)

type request struct {
	cmd   Command
	reply chan error
}

// Runner is the host loop around a controller. Only the goroutine running
// Start touches the controller; other goroutines go through Submit.
type Runner struct {
	controller *controller.Controller
	limits     config.LimitsConfig
	interval   time.Duration
	logger     *logrus.Logger
	store      *models.SnapshotStore

	requests chan request

	// ticks left to skip before the next decision
	skip int

	onSnapshot []func(models.Snapshot)
	onFailure  func(error)
}

func NewRunner(ctrl *controller.Controller, cfg *config.Config, logger *logrus.Logger) *Runner {
	r := &Runner{
		controller: ctrl,
		limits:     cfg.Limits,
		interval:   cfg.Mission.TickInterval,
		logger:     logger,
		store:      models.NewSnapshotStore(),
		requests:   make(chan request),
	}
	r.store.Update(ctrl.Snapshot())
	return r
}

// OnSnapshot registers a callback run after every tick and command.
func (r *Runner) OnSnapshot(callback func(models.Snapshot)) {
	r.onSnapshot = append(r.onSnapshot, callback)
}

func (r *Runner) OnFailure(callback func(error)) {
	r.onFailure = callback
}

func (r *Runner) Store() *models.SnapshotStore {
	return r.store
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Infof("Starting mission runner (tick every %s)", r.interval)
	r.run(ctx, ticker.C)
}

func (r *Runner) run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping mission runner")
			return
		case req := <-r.requests:
			req.reply <- r.Apply(req.cmd)
		case <-ticks:
			if r.skip > 0 {
				r.skip--
				continue
			}
			r.skip = r.ticksToSkip(r.Tick())
		}
	}
}

// ticksToSkip converts a pause into whole ticks: a 2s pause on a 1s cadence
// skips one tick, so the next decision lands 2s after the replenishment.
func (r *Runner) ticksToSkip(pause time.Duration) int {
	if pause <= 0 {
		return 0
	}
	ticks := int((pause + r.interval - 1) / r.interval)
	return ticks - 1
}

// Submit hands cmd to the Start loop and waits for it to be applied.
func (r *Runner) Submit(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one decision if the controller is armed and returns the pause
// requested before the next tick. Must not run concurrently with Start.
func (r *Runner) Tick() time.Duration {
	if !r.controller.Active() {
		return 0
	}

	outcome, err := r.controller.Decision()
	if err != nil {
		r.handleFailure(err)
		return 0
	}

	if outcome.Replenished {
		r.logger.Infof("Replenishment: drew %.2f from each reservoir, pausing %s", outcome.Draw, outcome.Pause)
	}
	r.publish()
	return outcome.Pause
}

func (r *Runner) handleFailure(err error) {
	switch {
	case errors.Is(err, controller.ErrResourcesExhausted):
		r.logger.Errorf("Mission aborted: %v", err)
	case errors.Is(err, controller.ErrMissionEnded):
		r.logger.Warnf("Mission ended: %v", err)
	default:
		r.logger.Errorf("Unexpected controller error: %v", err)
	}

	// Observers get the failed phase; the controller is then disarmed like
	// an operator stop.
	snap := r.controller.Snapshot()
	r.controller.Stop()
	snap.Active = false
	r.emit(snap)

	if r.onFailure != nil {
		r.onFailure(err)
	}
}

// Apply validates cmd against the operator limits and applies it. Must not
// run concurrently with Start.
func (r *Runner) Apply(cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	var err error
	switch cmd.Kind {
	case CommandStart:
		err = r.controller.Start()
		r.skip = 0
	case CommandStop:
		r.controller.Stop()
		r.skip = 0
	case CommandReset:
		r.controller.Reset()
	case CommandSetMissionDuration:
		if cmd.Value < r.limits.MissionDurationMin || cmd.Value > r.limits.MissionDurationMax {
			return fmt.Errorf("%w: mission duration %g not in [%g, %g]", ErrOutOfRange,
				cmd.Value, r.limits.MissionDurationMin, r.limits.MissionDurationMax)
		}
		err = r.controller.SetMissionDuration(cmd.Value)
	case CommandSetOutputFlow:
		if !r.limits.OutputFlowAdjustable {
			return ErrFlowLocked
		}
		if cmd.Value < r.limits.OutputFlowMin || cmd.Value > r.limits.OutputFlowMax {
			return fmt.Errorf("%w: output flow %g not in [%g, %g]", ErrOutOfRange,
				cmd.Value, r.limits.OutputFlowMin, r.limits.OutputFlowMax)
		}
		err = r.controller.SetOutputFlow(cmd.Value)
	case CommandRestock:
		var levels [models.ReservoirCount]float64
		copy(levels[:], cmd.Levels)
		err = r.controller.Restock(levels)
	}

	if err != nil {
		r.logger.Warnf("Command %s rejected: %v", cmd, err)
		return err
	}

	r.logger.Infof("Command applied: %s", cmd)
	r.publish()
	return nil
}

func (r *Runner) publish() {
	r.emit(r.controller.Snapshot())
}

func (r *Runner) emit(snap models.Snapshot) {
	r.store.Update(snap)
	for _, callback := range r.onSnapshot {
		callback(snap)
	}
}
