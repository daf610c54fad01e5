package controller

import (
	"errors"
	"fmt"
	"math"
	"time"

	"mixer-line/internal/models"

	"github.com/sirupsen/logrus"
)

// Config holds the construction parameters of a controller.
type Config struct {
	MissionDuration float64                        // Temps de mission alloué (s)
	TankCapacity    float64                        // Volume nominal de la cuve
	OutputFlow      float64                        // Débit de sortie (volume/s)
	Reservoirs      [models.ReservoirCount]float64 // Stock initial par matière première
	ReplenishPause  time.Duration                  // Pause demandée à l'hôte après un remplissage
}

func (c Config) Validate() error {
	var errs []error
	if c.MissionDuration <= 0 {
		errs = append(errs, fmt.Errorf("%w: mission duration must be > 0, got %g", ErrInvalidParameter, c.MissionDuration))
	}
	if c.TankCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%w: tank capacity must be > 0, got %g", ErrInvalidParameter, c.TankCapacity))
	}
	if c.OutputFlow <= 0 {
		errs = append(errs, fmt.Errorf("%w: output flow must be > 0, got %g", ErrInvalidParameter, c.OutputFlow))
	}
	for i, q := range c.Reservoirs {
		if q < 0 {
			errs = append(errs, fmt.Errorf("%w: reservoir %d stock must be >= 0, got %g", ErrInvalidParameter, i+1, q))
		}
	}
	if c.ReplenishPause < 0 {
		errs = append(errs, fmt.Errorf("%w: replenish pause must be >= 0, got %s", ErrInvalidParameter, c.ReplenishPause))
	}
	return errors.Join(errs...)
}

// Outcome describes what a successful Decision did.
type Outcome struct {
	Replenished bool
	// Draw is the quantity taken from each reservoir by the replenishment.
	Draw float64
	// Pause is how long the host should wait before the next tick.
	Pause time.Duration
}

// Controller is the mixing-line decision engine. It is not safe for
// concurrent use: a single host goroutine ticks and mutates it.
type Controller struct {
	clock  Clock
	logger *logrus.Logger
	pause  time.Duration

	phase  models.Phase
	active bool

	missionDuration float64
	startInstant    time.Time
	remainingTime   float64

	lastReplenish time.Time
	tankCapacity  float64
	currentVolume float64
	outputFlow    float64

	reservoirs   [models.ReservoirCount]float64
	initialStock [models.ReservoirCount]float64

	mixerActive    bool
	replenishments int
	failure        error
	lastFailure    error
}

func New(cfg Config, clock Clock, logger *logrus.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock()
	}

	now := clock.Now()
	return &Controller{
		clock:           clock,
		logger:          logger,
		pause:           cfg.ReplenishPause,
		phase:           models.PhaseIdle,
		missionDuration: cfg.MissionDuration,
		startInstant:    now,
		remainingTime:   cfg.MissionDuration,
		lastReplenish:   now,
		tankCapacity:    cfg.TankCapacity,
		currentVolume:   cfg.TankCapacity,
		outputFlow:      cfg.OutputFlow,
		reservoirs:      cfg.Reservoirs,
		initialStock:    cfg.Reservoirs,
	}, nil
}

// Decision advances the mission by one step. A returned error is always
// fatal for the current run: the caller must stop ticking.
func (c *Controller) Decision() (Outcome, error) {
	now := c.clock.Now()
	dt := now.Sub(c.startInstant).Seconds()
	c.remainingTime = c.missionDuration - dt

	if !c.active {
		c.mixerActive = false
		return Outcome{}, fmt.Errorf("%w: the care is off", ErrMissionEnded)
	}
	if c.failure != nil {
		c.mixerActive = false
		return Outcome{}, c.failure
	}
	if c.remainingTime <= 0 {
		c.mixerActive = false
		return Outcome{}, c.fail(models.PhaseTimeExpired,
			fmt.Errorf("%w: the time is over after %.1fs", ErrMissionEnded, dt))
	}

	c.currentVolume = c.drainedVolume(now)

	// dt is compared against half of the *remaining* time, which front-loads
	// replenishments towards the start of the mission.
	if c.currentVolume <= c.tankCapacity/2 && dt < c.remainingTime/2 {
		return c.replenish(now)
	}

	c.mixerActive = false
	return Outcome{}, nil
}

func (c *Controller) drainedVolume(now time.Time) float64 {
	volume := c.tankCapacity - c.outputFlow*now.Sub(c.lastReplenish).Seconds()
	return math.Max(0, volume)
}

func (c *Controller) replenish(now time.Time) (Outcome, error) {
	preVolume := c.currentVolume
	draw := preVolume / models.ReservoirCount
	for i := range c.reservoirs {
		c.reservoirs[i] -= draw
	}
	// Not capped at tank capacity.
	c.currentVolume += c.tankCapacity / 2
	c.mixerActive = true
	c.lastReplenish = now

	outcome := Outcome{Replenished: true, Draw: draw}

	if lowest := min(c.reservoirs[0], c.reservoirs[1], c.reservoirs[2]); lowest < 0 {
		return outcome, c.fail(models.PhaseResourcesExhausted,
			fmt.Errorf("%w: lowest reservoir at %.2f", ErrResourcesExhausted, lowest))
	}

	c.replenishments++
	outcome.Pause = c.pause

	c.logger.WithFields(logrus.Fields{
		"pre_volume": preVolume,
		"draw":       draw,
		"volume":     c.currentVolume,
		"remaining":  c.remainingTime,
	}).Info("Mixer replenished")

	return outcome, nil
}

func (c *Controller) fail(phase models.Phase, err error) error {
	c.phase = phase
	c.failure = err
	c.lastFailure = err
	c.logger.Warnf("Mission failed: %v", err)
	return err
}

// Start arms the controller and resets the mission. It refuses to arm while
// any reservoir is negative; Restock first.
func (c *Controller) Start() error {
	if lowest := min(c.reservoirs[0], c.reservoirs[1], c.reservoirs[2]); lowest < 0 {
		return fmt.Errorf("%w: restock before restarting (lowest reservoir at %.2f)", ErrResourcesExhausted, lowest)
	}
	c.active = true
	c.phase = models.PhaseRunning
	c.failure = nil
	c.lastFailure = nil
	c.replenishments = 0
	c.Reset()
	c.logger.Infof("Mission started: duration=%.0fs flow=%.1f capacity=%.0f",
		c.missionDuration, c.outputFlow, c.tankCapacity)
	return nil
}

// Stop disarms the controller and drops any failure state.
func (c *Controller) Stop() {
	c.active = false
	c.phase = models.PhaseIdle
	c.failure = nil
	c.logger.Info("Mission stopped")
}

// Reset restarts the mission clock and refills the tank. Reservoir stock,
// configured rates and the armed flag are untouched.
func (c *Controller) Reset() {
	now := c.clock.Now()
	c.remainingTime = c.missionDuration
	c.currentVolume = c.tankCapacity
	c.mixerActive = false
	c.startInstant = now
	c.lastReplenish = now
}

// SetMissionDuration replaces the mission duration and restarts the countdown.
func (c *Controller) SetMissionDuration(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: mission duration must be > 0, got %g", ErrInvalidParameter, seconds)
	}
	c.missionDuration = seconds
	c.remainingTime = seconds
	c.startInstant = c.clock.Now()
	c.logger.Debugf("Mission duration set to %.0fs", seconds)
	return nil
}

func (c *Controller) SetOutputFlow(flow float64) error {
	if flow <= 0 {
		return fmt.Errorf("%w: output flow must be > 0, got %g", ErrInvalidParameter, flow)
	}
	c.outputFlow = flow
	c.logger.Debugf("Output flow set to %.1f", flow)
	return nil
}

// Restock replaces the stock of every reservoir.
func (c *Controller) Restock(levels [models.ReservoirCount]float64) error {
	for i, q := range levels {
		if q < 0 {
			return fmt.Errorf("%w: reservoir %d stock must be >= 0, got %g", ErrInvalidParameter, i+1, q)
		}
	}
	c.reservoirs = levels
	c.initialStock = levels
	c.logger.Infof("Reservoirs restocked to %.0f/%.0f/%.0f", levels[0], levels[1], levels[2])
	return nil
}

func (c *Controller) Active() bool {
	return c.active
}

func (c *Controller) Phase() models.Phase {
	return c.phase
}

func (c *Controller) Snapshot() models.Snapshot {
	s := models.Snapshot{
		Phase:           c.phase,
		Active:          c.active,
		MixerActive:     c.mixerActive,
		CurrentVolume:   c.currentVolume,
		TankCapacity:    c.tankCapacity,
		Reservoirs:      c.reservoirs,
		InitialStock:    c.initialStock,
		RemainingTime:   c.remainingTime,
		MissionDuration: c.missionDuration,
		OutputFlow:      c.outputFlow,
		Replenishments:  c.replenishments,
		Timestamp:       c.clock.Now(),
	}
	if c.lastFailure != nil {
		s.LastError = c.lastFailure.Error()
	}
	return s
}
