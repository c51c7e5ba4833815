package models

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrConnection is returned when connecting to the broker times out or is refused
	ErrConnection = errors.New("connection error")
	// ErrConnectionLost is returned when the transport drops mid-session
	ErrConnectionLost = errors.New("connection lost")
	// ErrDecode marks a malformed telemetry payload
	ErrDecode = errors.New("decode error")
	// ErrPublish is returned when an outbound command could not be published
	ErrPublish = errors.New("publish error")
	// ErrNotConnected is wrapped by ErrPublish when the channel is down
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidTransition is returned for an unreachable or unknown mode
	ErrInvalidTransition = errors.New("invalid mode transition")
	// ErrPrecondition is returned when a primitive requires a different mode
	ErrPrecondition = errors.New("mode precondition not met")
	// ErrInvalidArgument is returned for out-of-range speeds, axes or durations
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPreempted is returned to a command interrupted by Stop
	ErrPreempted = errors.New("command preempted")
)
