package models

import (
	"fmt"
	"sync"
	"time"
)

// ReservoirCount is the number of raw-material reservoirs feeding the mixer.
const ReservoirCount = 3

// Phase is the controller state machine position.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseRunning            Phase = "running"
	PhaseTimeExpired        Phase = "time_expired"
	PhaseResourcesExhausted Phase = "resources_exhausted"
)

// Failed reports whether the phase is one of the terminal failure states.
func (p Phase) Failed() bool {
	return p == PhaseTimeExpired || p == PhaseResourcesExhausted
}

// Snapshot is the read-only view of a mission published after each tick.
type Snapshot struct {
	Phase           Phase                   `json:"phase"`
	Active          bool                    `json:"active"`
	MixerActive     bool                    `json:"mixer_active"`
	CurrentVolume   float64                 `json:"current_volume"`
	TankCapacity    float64                 `json:"tank_capacity"`
	Reservoirs      [ReservoirCount]float64 `json:"reservoirs"`
	InitialStock    [ReservoirCount]float64 `json:"initial_stock"`
	RemainingTime   float64                 `json:"remaining_time"`
	MissionDuration float64                 `json:"mission_duration"`
	OutputFlow      float64                 `json:"output_flow"`
	Replenishments  int                     `json:"replenishments"`
	LastError       string                  `json:"last_error,omitempty"`
	Timestamp       time.Time               `json:"timestamp"`
}

// Elapsed returns the seconds spent in the mission so far.
func (s Snapshot) Elapsed() float64 {
	return s.MissionDuration - s.RemainingTime
}

// ElapsedClock formats the elapsed time as HH:MM:SS.
func (s Snapshot) ElapsedClock() string {
	elapsed := int(s.Elapsed())
	if elapsed < 0 {
		elapsed = 0
	}
	hours, rem := elapsed/3600, elapsed%3600
	minutes, seconds := rem/60, rem%60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Progress is the remaining share of the mission, clamped to [0, 1].
func (s Snapshot) Progress() float64 {
	return ratio(s.RemainingTime, s.MissionDuration)
}

// ReservoirLevel is the fill ratio of reservoir i against its initial stock.
func (s Snapshot) ReservoirLevel(i int) float64 {
	return ratio(s.Reservoirs[i], s.InitialStock[i])
}

func ratio(value, max float64) float64 {
	if max <= 0 || value <= 0 {
		return 0
	}
	if value >= max {
		return 1
	}
	return value / max
}

// SnapshotStore holds the latest snapshot for concurrent readers.
type SnapshotStore struct {
	snapshot Snapshot
	updated  bool
	mutex    sync.RWMutex
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (ss *SnapshotStore) Update(s Snapshot) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	ss.snapshot = s
	ss.updated = true
}

// Get returns the latest snapshot and whether one was ever stored.
func (ss *SnapshotStore) Get() (Snapshot, bool) {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.snapshot, ss.updated
}
