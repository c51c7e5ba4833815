package models

import (
	"fmt"
	"math"
	"time"
)

// ConnectionStatus represents the MQTT session connection status
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	ConnectionLost
	ConnectionFailed
)

func (cs ConnectionStatus) String() string {
	switch cs {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case ConnectionLost:
		return "CONNECTION_LOST"
	case ConnectionFailed:
		return "CONNECTION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Mode is the robot's coarse operating state. Values are the action
// strings the Go1 firmware accepts on the controller/action topic.
type Mode string

const (
	ModeStandDown     Mode = "standDown"
	ModeStandUp       Mode = "standUp"
	ModeStand         Mode = "stand"
	ModeWalk          Mode = "walk"
	ModeRun           Mode = "run"
	ModeClimb         Mode = "climb"
	ModeDamping       Mode = "damping"
	ModeRecoverStand  Mode = "recoverStand"
	ModeDance1        Mode = "dance1"
	ModeDance2        Mode = "dance2"
	ModeStraightHand1 Mode = "straightHand1"
)

var knownModes = map[Mode]bool{
	ModeStandDown:     true,
	ModeStandUp:       true,
	ModeStand:         true,
	ModeWalk:          true,
	ModeRun:           true,
	ModeClimb:         true,
	ModeDamping:       true,
	ModeRecoverStand:  true,
	ModeDance1:        true,
	ModeDance2:        true,
	ModeStraightHand1: true,
}

// Valid reports whether m is a mode the firmware understands
func (m Mode) Valid() bool {
	return knownModes[m]
}

// ParseMode converts a wire string into a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// BatteryState is the battery management system snapshot
type BatteryState struct {
	SOC       uint8 // state of charge, 0-100
	VoltageMV int
	CurrentMA int
	Cycles    int
}

// DistanceWarning holds normalized proximity scores; lower is closer.
type DistanceWarning struct {
	Front float64
	Left  float64
	Right float64
	Back  float64
}

// Closest returns the smallest proximity score and its direction
func (d DistanceWarning) Closest() (string, float64) {
	dir, min := "front", d.Front
	if d.Left < min {
		dir, min = "left", d.Left
	}
	if d.Right < min {
		dir, min = "right", d.Right
	}
	if d.Back < min {
		dir, min = "back", d.Back
	}
	return dir, min
}

// RobotState is one decoded telemetry snapshot. It is created by the
// decoder and must not be modified afterwards.
type RobotState struct {
	Battery         BatteryState
	DistanceWarning DistanceWarning
	Mode            Mode // empty when the robot did not report one
	ReceivedAt      time.Time
}

// StickCommand carries the four virtual joystick axes of the Go1 remote.
// In walk modes LX/LY translate and RX yaws; in stand mode the same axes
// drive lean, twist, look and extend.
type StickCommand struct {
	LX float32
	RX float32
	RY float32
	LY float32
}

// Neutral is the all-zero stick
var Neutral = StickCommand{}

// IsNeutral reports whether every axis is zero
func (s StickCommand) IsNeutral() bool {
	return s == Neutral
}

// MotionCommand is one timed low-level instruction
type MotionCommand struct {
	Name     string
	Stick    StickCommand
	Duration time.Duration
}

// PoseAxes are the four body posture controls, each in [-1, 1]
type PoseAxes struct {
	Lean   float64
	Twist  float64
	Look   float64
	Extend float64
}

// Validate checks every axis is a finite value in [-1, 1]
func (p PoseAxes) Validate() error {
	axes := []struct {
		name  string
		value float64
	}{
		{"lean", p.Lean},
		{"twist", p.Twist},
		{"look", p.Look},
		{"extend", p.Extend},
	}
	for _, a := range axes {
		if math.IsNaN(a.value) || a.value < -1 || a.value > 1 {
			return fmt.Errorf("%w: %s %v outside [-1, 1]", ErrInvalidArgument, a.name, a.value)
		}
	}
	return nil
}

// IsNeutral reports whether the pose is the reset body pose
func (p PoseAxes) IsNeutral() bool {
	return p == PoseAxes{}
}

// Stick maps the pose onto the stand-mode stick axes
func (p PoseAxes) Stick() StickCommand {
	return StickCommand{
		LX: float32(p.Lean),
		RX: float32(p.Twist),
		RY: float32(p.Look),
		LY: float32(p.Extend),
	}
}

// LEDColor is an RGB triple for the head LED
type LEDColor struct {
	R, G, B uint8
}

// NewLEDColor builds a color, clamping each channel to [0, 255]
func NewLEDColor(r, g, b int) LEDColor {
	return LEDColor{R: clampByte(r), G: clampByte(g), B: clampByte(b)}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
