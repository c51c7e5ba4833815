package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go1-control/internal/config"
	"go1-control/internal/logger"
	"go1-control/internal/models"
)

// LEDSetter sets the robot's head LED
type LEDSetter interface {
	SetLEDColor(r, g, b int) error
}

// StatusFunc reports the connection status
type StatusFunc func() (models.ConnectionStatus, error)

// StatusMonitor logs periodic summaries and drives the battery LED
type StatusMonitor struct {
	tracker *Tracker
	led     LEDSetter
	status  StatusFunc
	config  *config.AppConfig
	log     logger.Logger

	ledMutex sync.Mutex
	ledColor *models.LEDColor
}

// NewStatusMonitor creates a status monitor. led may be nil to disable the
// battery indicator.
func NewStatusMonitor(tracker *Tracker, led LEDSetter, status StatusFunc, cfg *config.AppConfig, log logger.Logger) *StatusMonitor {
	monitor := &StatusMonitor{
		tracker: tracker,
		led:     led,
		status:  status,
		config:  cfg,
		log:     log.WithField("component", "monitor"),
	}

	tracker.SetModeChangeCallback(monitor.handleModeChange)

	return monitor
}

func (sm *StatusMonitor) handleModeChange(oldMode, newMode models.Mode) {
	if newMode == models.ModeDamping {
		sm.log.Warnf("🚨 Robot entered damping mode (was %s)", displayMode(oldMode))
	}
}

// HandleState feeds the tracker and updates the battery LED. It has the
// events.Handler signature.
func (sm *StatusMonitor) HandleState(state *models.RobotState) error {
	if err := sm.tracker.Update(state); err != nil {
		return err
	}
	if sm.led == nil || !sm.config.BatteryLED {
		return nil
	}
	return sm.updateBatteryLED(state.Battery.SOC)
}

// BatteryColor maps a charge level to the indicator color. Between 25 and
// 49 percent the indicator keeps its previous color.
func BatteryColor(soc uint8) (models.LEDColor, bool) {
	switch {
	case soc >= 75:
		return models.LEDColor{G: 255}, true
	case soc >= 50:
		return models.LEDColor{R: 255, G: 127}, true
	case soc < 25:
		return models.LEDColor{R: 255}, true
	default:
		return models.LEDColor{}, false
	}
}

// updateBatteryLED publishes only when the indicator color changes
func (sm *StatusMonitor) updateBatteryLED(soc uint8) error {
	color, ok := BatteryColor(soc)
	if !ok {
		return nil
	}

	sm.ledMutex.Lock()
	defer sm.ledMutex.Unlock()

	if sm.ledColor != nil && *sm.ledColor == color {
		return nil
	}
	if err := sm.led.SetLEDColor(int(color.R), int(color.G), int(color.B)); err != nil {
		return fmt.Errorf("battery LED: %w", err)
	}
	sm.ledColor = &color
	sm.log.Debugf("💡 Battery LED -> (%d,%d,%d) at %d%%", color.R, color.G, color.B, soc)
	return nil
}

// PrintStatusSummary logs connection, battery, proximity and mode
func (sm *StatusMonitor) PrintStatusSummary() {
	if sm.status != nil {
		status, err := sm.status()
		if err != nil {
			sm.log.Infof("MQTT connection: %s (%v)", status, err)
		} else {
			sm.log.Infof("MQTT connection: %s", status)
		}
	}

	state, ok := sm.tracker.Latest()
	if !ok {
		sm.log.Infof("   ⚠️  No telemetry received yet")
		return
	}

	details := []string{
		fmt.Sprintf("battery %d%%", state.Battery.SOC),
		fmt.Sprintf("%.1fV", float64(state.Battery.VoltageMV)/1000),
		fmt.Sprintf("%dmA", state.Battery.CurrentMA),
		fmt.Sprintf("cycles %d", state.Battery.Cycles),
	}
	dir, score := state.DistanceWarning.Closest()
	details = append(details, fmt.Sprintf("closest %s %.2f", dir, score))

	sm.log.Infof("   🤖 Go1 [%s]: %s", displayMode(sm.tracker.ReportedMode()), strings.Join(details, " | "))
	sm.log.Infof("   📊 Updates: %d, lowest charge: %d%%, age: %s",
		sm.tracker.UpdateCount(), sm.tracker.LowestSOC(),
		time.Since(state.ReceivedAt).Truncate(time.Millisecond))
}

// CheckBatteryLevels warns when the charge is below the configured threshold.
// It reports whether a warning was logged.
func (sm *StatusMonitor) CheckBatteryLevels() bool {
	if !sm.tracker.IsLowBattery(sm.config.LowBatteryPercent) {
		return false
	}
	state, _ := sm.tracker.Latest()
	sm.log.Warnf("   🚨 Low battery: %d%% (threshold %d%%)", state.Battery.SOC, sm.config.LowBatteryPercent)
	return true
}

// CheckProximity warns when an obstacle is closer than the configured score.
// It reports whether a warning was logged.
func (sm *StatusMonitor) CheckProximity() bool {
	dir, score, near := sm.tracker.ClosestObstacle(sm.config.ProximityWarning)
	if !near {
		return false
	}
	sm.log.Warnf("   ⚠️  Obstacle %s: %.2f", dir, score)
	return true
}

// Run logs a summary and runs the checks every interval until ctx is done
func (sm *StatusMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.PrintStatusSummary()
			sm.CheckBatteryLevels()
			sm.CheckProximity()
		case <-ctx.Done():
			return
		}
	}
}
