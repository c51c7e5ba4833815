package events

import (
	"fmt"
	"sync"

	"go1-control/internal/logger"
	"go1-control/internal/models"
)

const (
	// EventStateChange fires once per decoded telemetry message
	EventStateChange = "state_change"
	// legacyStateChange is the event name used by older client scripts
	legacyStateChange = "go1_state_change"
)

// Handler observes a robot state. The state is shared between all
// handlers of one dispatch and must not be modified.
type Handler func(state *models.RobotState) error

// Dispatcher fans states out to registered handlers in registration order
type Dispatcher struct {
	log logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log.WithField("component", "events"),
		handlers: make(map[string][]Handler),
	}
}

func canonical(event string) string {
	if event == legacyStateChange {
		return EventStateChange
	}
	return event
}

// On appends handler for event. The same handler may be registered more
// than once and then runs once per registration.
func (d *Dispatcher) On(event string, handler Handler) {
	if handler == nil {
		return
	}
	event = canonical(event)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], handler)
}

// Count returns the number of handlers registered for event
func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[canonical(event)])
}

// Emit runs every handler for event with state. A handler that returns an
// error or panics is logged and the remaining handlers still run. Emit
// returns the number of handlers that failed.
func (d *Dispatcher) Emit(event string, state *models.RobotState) int {
	event = canonical(event)

	d.mu.RLock()
	handlers := d.handlers[event]
	d.mu.RUnlock()

	failed := 0
	for i, h := range handlers {
		if err := d.invoke(h, state); err != nil {
			failed++
			d.log.Errorf("❌ %s handler #%d failed: %v", event, i, err)
		}
	}
	return failed
}

// invoke runs one handler, converting a panic into an error
func (d *Dispatcher) invoke(h Handler, state *models.RobotState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(state)
}
