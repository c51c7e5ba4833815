package mode

import (
	"fmt"
	"sync"

	"go1-control/internal/logger"
	"go1-control/internal/models"
	"go1-control/internal/protocol"
)

// Publisher is the part of the channel the state machine needs
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// TransitionCallback is called after the understood mode changes
type TransitionCallback func(from, to models.Mode)

// actionQoS delivers mode changes at least once
const actionQoS byte = 1

// StateMachine tracks the robot's understood operating mode. Any mode may
// be requested from any other; the firmware sequences the physical
// transition itself. The understood mode is updated optimistically after
// a successful publish, without waiting for telemetry to confirm it.
type StateMachine struct {
	publisher Publisher
	topic     string
	log       logger.Logger

	// reqMu serializes Request so publish order matches bookkeeping order.
	// mu is never held across network I/O.
	reqMu sync.Mutex

	mu           sync.RWMutex
	current      models.Mode
	reported     models.Mode
	onTransition TransitionCallback
}

// NewStateMachine creates a state machine starting in STAND_DOWN
func NewStateMachine(publisher Publisher, topic string, log logger.Logger) *StateMachine {
	return &StateMachine{
		publisher: publisher,
		topic:     topic,
		log:       log.WithField("component", "mode"),
		current:   models.ModeStandDown,
	}
}

// OnTransition sets the callback invoked after each successful Request
func (sm *StateMachine) OnTransition(cb TransitionCallback) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onTransition = cb
}

// Current returns the understood mode
func (sm *StateMachine) Current() models.Mode {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Reported returns the last mode seen in telemetry, empty if none
func (sm *StateMachine) Reported() models.Mode {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.reported
}

// Request publishes a mode change and then records target as current.
// On publish failure the current mode is left unchanged.
func (sm *StateMachine) Request(target models.Mode) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown mode %q", models.ErrInvalidTransition, target)
	}

	sm.reqMu.Lock()
	from := sm.Current()
	if err := sm.publisher.Publish(sm.topic, actionQoS, protocol.EncodeMode(target)); err != nil {
		sm.reqMu.Unlock()
		return fmt.Errorf("set mode %s: %w", target, err)
	}

	sm.mu.Lock()
	sm.current = target
	cb := sm.onTransition
	sm.mu.Unlock()
	sm.reqMu.Unlock()

	sm.log.Infof("Mode %s -> %s", from, target)
	if cb != nil {
		cb(from, target)
	}
	return nil
}

// Require fails with ErrPrecondition unless the understood mode is m
func (sm *StateMachine) Require(m models.Mode) error {
	current := sm.Current()
	if current != m {
		return fmt.Errorf("%w: requires %s, current mode is %s", models.ErrPrecondition, m, current)
	}
	return nil
}

// Observe records a mode reported by telemetry. It never changes the
// understood mode; a disagreement is only logged.
func (sm *StateMachine) Observe(reported models.Mode) {
	if reported == "" {
		return
	}

	sm.mu.Lock()
	changed := sm.reported != reported
	sm.reported = reported
	current := sm.current
	sm.mu.Unlock()

	if changed && reported != current {
		sm.log.Warnf("⚠️  Robot reports mode %s while %s was requested", reported, current)
	}
}
