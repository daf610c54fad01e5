package mission

import (
	"errors"
	"fmt"
	"time"

	"mixer-line/internal/controller"
	"mixer-line/internal/models"

	"github.com/sirupsen/logrus"
)

// Event records one replenishment during a simulated mission.
type Event struct {
	Elapsed   float64 `json:"elapsed"`
	PreVolume float64 `json:"pre_volume"`
	Draw      float64 `json:"draw"`
	Failed    bool    `json:"failed"`
}

// Report summarises an offline mission.
type Report struct {
	Ticks  int             `json:"ticks"`
	Events []Event         `json:"events"`
	Final  models.Snapshot `json:"final"`
	Err    error           `json:"-"`
}

// Outcome names the terminal signal that ended the mission.
func (r Report) Outcome() string {
	switch {
	case errors.Is(r.Err, controller.ErrResourcesExhausted):
		return "resources exhausted"
	case errors.Is(r.Err, controller.ErrMissionEnded):
		return "mission time over"
	case r.Err != nil:
		return r.Err.Error()
	default:
		return "running"
	}
}

// Simulate runs a whole mission on a manual clock, one tick every interval,
// waiting out the replenish pause when it is longer than the interval. It
// stops at the first terminal signal or after maxTicks.
func Simulate(cfg controller.Config, interval time.Duration, maxTicks int, logger *logrus.Logger) (Report, error) {
	if interval <= 0 {
		return Report{}, fmt.Errorf("tick interval must be > 0, got %s", interval)
	}

	clock := controller.NewManualClock(time.Unix(0, 0))
	ctrl, err := controller.New(cfg, clock, logger)
	if err != nil {
		return Report{}, err
	}
	if err := ctrl.Start(); err != nil {
		return Report{}, err
	}

	var report Report
	step := interval
	for report.Ticks < maxTicks {
		clock.Advance(step)

		outcome, err := ctrl.Decision()
		report.Ticks++

		if outcome.Replenished {
			report.Events = append(report.Events, Event{
				Elapsed:   ctrl.Snapshot().Elapsed(),
				PreVolume: outcome.Draw * models.ReservoirCount,
				Draw:      outcome.Draw,
				Failed:    err != nil,
			})
		}

		if err != nil {
			report.Err = err
			break
		}

		step = interval
		if outcome.Pause > step {
			step = outcome.Pause
		}
	}

	report.Final = ctrl.Snapshot()

	logger.WithFields(logrus.Fields{
		"ticks":          report.Ticks,
		"replenishments": report.Final.Replenishments,
		"outcome":        report.Outcome(),
	}).Info("Simulation finished")

	return report, nil
}
