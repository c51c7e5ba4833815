// Package go1 is a control client for the Unitree Go1 over the robot's
// on-board MQTT broker.
//
// A Session connects to the broker, decodes the robot/state telemetry
// stream into RobotState values for registered handlers and turns motion,
// pose, mode and LED requests into controller topic publishes.
//
//	s := go1.New(cfg)
//	if err := s.Init(ctx); err != nil {
//		return err
//	}
//	defer s.Disconnect()
//	s.SetMode(go1.ModeWalk)
//	s.GoForward(ctx, 0.3, 2*time.Second)
package go1

import (
	"go1-control/internal/config"
	"go1-control/internal/events"
	"go1-control/internal/models"
	"go1-control/internal/mqtt"
)

type (
	Config           = config.Config
	Channel          = mqtt.Channel
	ConnectionStatus = models.ConnectionStatus
	Mode             = models.Mode
	RobotState       = models.RobotState
	BatteryState     = models.BatteryState
	DistanceWarning  = models.DistanceWarning
	PoseAxes         = models.PoseAxes
	StickCommand     = models.StickCommand
	MotionCommand    = models.MotionCommand
	Handler          = events.Handler
)

const (
	ModeStandDown     = models.ModeStandDown
	ModeStandUp       = models.ModeStandUp
	ModeStand         = models.ModeStand
	ModeWalk          = models.ModeWalk
	ModeRun           = models.ModeRun
	ModeClimb         = models.ModeClimb
	ModeDamping       = models.ModeDamping
	ModeRecoverStand  = models.ModeRecoverStand
	ModeDance1        = models.ModeDance1
	ModeDance2        = models.ModeDance2
	ModeStraightHand1 = models.ModeStraightHand1
)

// EventStateChange fires once per decoded telemetry message
const EventStateChange = events.EventStateChange

var (
	ErrConnection        = models.ErrConnection
	ErrConnectionLost    = models.ErrConnectionLost
	ErrDecode            = models.ErrDecode
	ErrPublish           = models.ErrPublish
	ErrNotConnected      = models.ErrNotConnected
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrPrecondition      = models.ErrPrecondition
	ErrInvalidArgument   = models.ErrInvalidArgument
	ErrPreempted         = models.ErrPreempted
)

// DefaultConfig returns the configuration for a Go1 on its own access point
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads configuration from .env, GO1_CONFIG_FILE and the environment
func LoadConfig() (*Config, error) {
	return config.LoadConfig()
}
