package controller

import (
	"testing"
	"time"

	"mixer-line/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func standardConfig() Config {
	return Config{
		MissionDuration: 1050,
		TankCapacity:    3000,
		OutputFlow:      50,
		Reservoirs:      [models.ReservoirCount]float64{2000, 2000, 2000},
		ReplenishPause:  2 * time.Second,
	}
}

func newTestController(t *testing.T, cfg Config) (*Controller, *ManualClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Disable logs for tests

	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	ctrl, err := New(cfg, clock, logger)
	require.NoError(t, err)
	return ctrl, clock
}

func startedController(t *testing.T, cfg Config) (*Controller, *ManualClock) {
	t.Helper()
	ctrl, clock := newTestController(t, cfg)
	require.NoError(t, ctrl.Start())
	return ctrl, clock
}

func TestController_ScenarioA_ReplenishAtHalfTank(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	clock.Advance(30 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)

	snap := ctrl.Snapshot()
	assert.True(t, outcome.Replenished)
	assert.Equal(t, 500.0, outcome.Draw)
	assert.Equal(t, 2*time.Second, outcome.Pause)
	assert.True(t, snap.MixerActive)
	assert.Equal(t, 3000.0, snap.CurrentVolume)
	assert.Equal(t, [models.ReservoirCount]float64{1500, 1500, 1500}, snap.Reservoirs)
	assert.Equal(t, 1020.0, snap.RemainingTime)
	assert.Equal(t, 1, snap.Replenishments)
}

func TestController_TriggerBoundary(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	// 1550 > capacity/2: no replenishment yet
	clock.Advance(29 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	assert.False(t, outcome.Replenished)
	assert.False(t, ctrl.Snapshot().MixerActive)
	assert.Equal(t, 1550.0, ctrl.Snapshot().CurrentVolume)

	// exactly capacity/2 triggers
	clock.Advance(time.Second)
	outcome, err = ctrl.Decision()
	require.NoError(t, err)
	assert.True(t, outcome.Replenished)
}

func TestController_DrainIsLinearAndMonotonic(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	previous := ctrl.Snapshot().CurrentVolume
	for i := 1; i < 30; i++ {
		clock.Advance(time.Second)
		_, err := ctrl.Decision()
		require.NoError(t, err)

		volume := ctrl.Snapshot().CurrentVolume
		assert.Less(t, volume, previous, "tick %d", i)
		assert.Equal(t, 3000.0-50.0*float64(i), volume, "tick %d", i)
		previous = volume
	}
}

func TestController_DrainFloorsAtZero(t *testing.T) {
	cfg := standardConfig()
	cfg.MissionDuration = 100
	ctrl, clock := startedController(t, cfg)

	// dt=70 is past remaining/2=15, so the tank is never refilled
	clock.Advance(70 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	assert.False(t, outcome.Replenished)
	assert.Equal(t, 0.0, ctrl.Snapshot().CurrentVolume)

	clock.Advance(10 * time.Second)
	_, err = ctrl.Decision()
	require.NoError(t, err)
	assert.Equal(t, 0.0, ctrl.Snapshot().CurrentVolume)
	assert.Equal(t, [models.ReservoirCount]float64{2000, 2000, 2000}, ctrl.Snapshot().Reservoirs)
}

func TestController_TriggerWindowUsesRemainingTime(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	// dt=400, remaining=650: 400 >= 325 so the empty tank stays empty
	clock.Advance(400 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	assert.False(t, outcome.Replenished)
	assert.False(t, ctrl.Snapshot().MixerActive)
	assert.Equal(t, 0.0, ctrl.Snapshot().CurrentVolume)
}

func TestController_MixerTurnsOffOnNextTick(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	clock.Advance(30 * time.Second)
	_, err := ctrl.Decision()
	require.NoError(t, err)
	require.True(t, ctrl.Snapshot().MixerActive)

	clock.Advance(2 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	assert.False(t, outcome.Replenished)
	assert.Zero(t, outcome.Pause)
	assert.False(t, ctrl.Snapshot().MixerActive)
	assert.Equal(t, 2900.0, ctrl.Snapshot().CurrentVolume)
}

func TestController_ScenarioB_Disarmed(t *testing.T) {
	ctrl, clock := newTestController(t, standardConfig())

	clock.Advance(time.Second)
	_, err := ctrl.Decision()
	assert.ErrorIs(t, err, ErrMissionEnded)
	assert.True(t, IsFatal(err))
	assert.Equal(t, models.PhaseIdle, ctrl.Phase())

	require.NoError(t, ctrl.Start())
	clock.Advance(time.Second)
	_, err = ctrl.Decision()
	require.NoError(t, err)

	ctrl.Stop()
	_, err = ctrl.Decision()
	assert.ErrorIs(t, err, ErrMissionEnded)
	assert.False(t, ctrl.Snapshot().MixerActive)
}

func TestController_TimeExpired(t *testing.T) {
	cfg := standardConfig()
	cfg.MissionDuration = 10
	ctrl, clock := startedController(t, cfg)

	clock.Advance(9 * time.Second)
	_, err := ctrl.Decision()
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = ctrl.Decision()
	assert.ErrorIs(t, err, ErrMissionEnded)
	assert.Equal(t, models.PhaseTimeExpired, ctrl.Phase())
	assert.True(t, ctrl.Phase().Failed())
	assert.Equal(t, 0.0, ctrl.Snapshot().RemainingTime)
	assert.NotEmpty(t, ctrl.Snapshot().LastError)

	// no automatic recovery
	clock.Advance(time.Second)
	_, err = ctrl.Decision()
	assert.ErrorIs(t, err, ErrMissionEnded)

	// explicit restart
	require.NoError(t, ctrl.Start())
	assert.Equal(t, models.PhaseRunning, ctrl.Phase())
	clock.Advance(time.Second)
	_, err = ctrl.Decision()
	assert.NoError(t, err)
}

func TestController_ScenarioC_ResourcesExhausted(t *testing.T) {
	cfg := standardConfig()
	cfg.MissionDuration = 3600
	cfg.Reservoirs = [models.ReservoirCount]float64{1000, 1000, 1000}
	ctrl, clock := startedController(t, cfg)

	clock.Advance(30 * time.Second)
	_, err := ctrl.Decision()
	require.NoError(t, err)
	assert.Equal(t, [models.ReservoirCount]float64{500, 500, 500}, ctrl.Snapshot().Reservoirs)

	// reservoirs reach exactly zero: still fine
	clock.Advance(30 * time.Second)
	_, err = ctrl.Decision()
	require.NoError(t, err)
	assert.Equal(t, [models.ReservoirCount]float64{0, 0, 0}, ctrl.Snapshot().Reservoirs)

	clock.Advance(30 * time.Second)
	outcome, err := ctrl.Decision()
	assert.ErrorIs(t, err, ErrResourcesExhausted)
	assert.True(t, IsFatal(err))
	assert.True(t, outcome.Replenished)
	assert.Equal(t, models.PhaseResourcesExhausted, ctrl.Phase())
	assert.Equal(t, [models.ReservoirCount]float64{-500, -500, -500}, ctrl.Snapshot().Reservoirs)
	assert.Equal(t, 2, ctrl.Snapshot().Replenishments)

	clock.Advance(time.Second)
	_, err = ctrl.Decision()
	assert.ErrorIs(t, err, ErrResourcesExhausted)

	ctrl.Stop()
	assert.ErrorIs(t, ctrl.Start(), ErrResourcesExhausted)
	assert.False(t, ctrl.Active())

	require.NoError(t, ctrl.Restock([models.ReservoirCount]float64{900, 900, 900}))
	require.NoError(t, ctrl.Start())
	assert.True(t, ctrl.Active())
	assert.Empty(t, ctrl.Snapshot().LastError)
}

func TestController_ReplenishIsNotClamped(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	clock.Advance(31 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	require.True(t, outcome.Replenished)

	preVolume := 3000.0 - 50.0*31
	snap := ctrl.Snapshot()
	assert.InDelta(t, preVolume/3, outcome.Draw, 1e-9)
	assert.InDelta(t, preVolume+1500, snap.CurrentVolume, 1e-9)
	for i := range snap.Reservoirs {
		assert.InDelta(t, 2000-preVolume/3, snap.Reservoirs[i], 1e-9)
	}
}

func TestController_ResetIsIdempotent(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	clock.Advance(30 * time.Second)
	_, err := ctrl.Decision()
	require.NoError(t, err)
	clock.Advance(5 * time.Second)
	_, err = ctrl.Decision()
	require.NoError(t, err)

	ctrl.Reset()
	first := ctrl.Snapshot()
	ctrl.Reset()
	second := ctrl.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, 3000.0, first.CurrentVolume)
	assert.Equal(t, 1050.0, first.RemainingTime)
	assert.False(t, first.MixerActive)
	assert.Equal(t, [models.ReservoirCount]float64{1500, 1500, 1500}, first.Reservoirs)
	assert.Equal(t, 50.0, first.OutputFlow)
	assert.True(t, first.Active)
}

func TestController_SetMissionDurationRestartsCountdown(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	clock.Advance(100 * time.Second)
	require.NoError(t, ctrl.SetMissionDuration(500))
	assert.Equal(t, 500.0, ctrl.Snapshot().RemainingTime)

	clock.Advance(10 * time.Second)
	_, err := ctrl.Decision()
	require.NoError(t, err)
	assert.Equal(t, 490.0, ctrl.Snapshot().RemainingTime)
	assert.Equal(t, 500.0, ctrl.Snapshot().MissionDuration)

	assert.ErrorIs(t, ctrl.SetMissionDuration(0), ErrInvalidParameter)
	assert.Equal(t, 500.0, ctrl.Snapshot().MissionDuration)
}

func TestController_SetOutputFlow(t *testing.T) {
	ctrl, clock := startedController(t, standardConfig())

	require.NoError(t, ctrl.SetOutputFlow(100))
	clock.Advance(15 * time.Second)
	outcome, err := ctrl.Decision()
	require.NoError(t, err)
	assert.True(t, outcome.Replenished)
	assert.Equal(t, 500.0, outcome.Draw)

	assert.ErrorIs(t, ctrl.SetOutputFlow(-1), ErrInvalidParameter)
	assert.Equal(t, 100.0, ctrl.Snapshot().OutputFlow)
}

func TestController_InstancesOwnTheirClock(t *testing.T) {
	first, firstClock := startedController(t, standardConfig())
	second, _ := startedController(t, standardConfig())

	firstClock.Advance(30 * time.Second)
	outcome, err := first.Decision()
	require.NoError(t, err)
	assert.True(t, outcome.Replenished)

	outcome, err = second.Decision()
	require.NoError(t, err)
	assert.False(t, outcome.Replenished)
	assert.Equal(t, 3000.0, second.Snapshot().CurrentVolume)
}

func TestNew_InvalidConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := Config{
		MissionDuration: 0,
		TankCapacity:    -1,
		OutputFlow:      0,
		Reservoirs:      [models.ReservoirCount]float64{1, -1, 1},
	}
	_, err := New(cfg, nil, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "mission duration")
	assert.Contains(t, err.Error(), "tank capacity")
	assert.Contains(t, err.Error(), "reservoir 2")
}
