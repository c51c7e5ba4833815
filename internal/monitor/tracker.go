package monitor

import (
	"sync"

	"go1-control/internal/logger"
	"go1-control/internal/models"
)

// ModeChangeCallback is called when the robot reports a different mode
type ModeChangeCallback func(oldMode, newMode models.Mode)

// Tracker keeps the latest robot telemetry and derived counters
type Tracker struct {
	log logger.Logger

	mutex              sync.RWMutex
	latest             *models.RobotState
	updates            int64
	lowestSOC          uint8
	reportedMode       models.Mode
	modeChangeCallback ModeChangeCallback
}

// NewTracker creates an empty tracker
func NewTracker(log logger.Logger) *Tracker {
	return &Tracker{
		log:       log.WithField("component", "tracker"),
		lowestSOC: 100,
	}
}

// SetModeChangeCallback sets the callback for reported mode changes
func (t *Tracker) SetModeChangeCallback(callback ModeChangeCallback) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.modeChangeCallback = callback
}

// Update records state. It has the events.Handler signature so it can be
// registered directly on a session.
func (t *Tracker) Update(state *models.RobotState) error {
	// telemetry carries no sequence number; delivery order is the only order
	t.mutex.Lock()
	previousMode := t.reportedMode
	t.latest = state
	t.updates++
	if state.Battery.SOC < t.lowestSOC {
		t.lowestSOC = state.Battery.SOC
	}
	if state.Mode != "" {
		t.reportedMode = state.Mode
	}
	callback := t.modeChangeCallback
	t.mutex.Unlock()

	if state.Mode != "" && previousMode != state.Mode {
		t.log.Infof("🔄 Reported mode %s -> %s", displayMode(previousMode), state.Mode)
		if callback != nil {
			callback(previousMode, state.Mode)
		}
	}
	return nil
}

// Latest returns a copy of the last state, false before the first update
func (t *Tracker) Latest() (models.RobotState, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.latest == nil {
		return models.RobotState{}, false
	}
	return *t.latest, true
}

// UpdateCount returns the number of accepted updates
func (t *Tracker) UpdateCount() int64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.updates
}


// LowestSOC returns the lowest battery charge seen
func (t *Tracker) LowestSOC() uint8 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lowestSOC
}

// ReportedMode returns the last mode the robot reported
func (t *Tracker) ReportedMode() models.Mode {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.reportedMode
}

// IsLowBattery reports whether the latest charge is below threshold
func (t *Tracker) IsLowBattery(threshold int) bool {
	state, ok := t.Latest()
	return ok && int(state.Battery.SOC) < threshold
}

// ClosestObstacle returns the direction and score of the nearest obstacle
// when it is below threshold
func (t *Tracker) ClosestObstacle(threshold float64) (string, float64, bool) {
	state, ok := t.Latest()
	if !ok {
		return "", 0, false
	}
	dir, score := state.DistanceWarning.Closest()
	return dir, score, score < threshold
}

func displayMode(m models.Mode) string {
	if m == "" {
		return "unknown"
	}
	return string(m)
}
