package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go1-control/internal/logger"
	"go1-control/internal/models"
	"go1-control/internal/protocol"
)

// stickQoS is fire-and-forget; a late stick frame is worse than a lost one
const stickQoS byte = 0

// ledQoS is fire-and-forget; the next color supersedes a lost one
const ledQoS byte = 0

// Channel is the part of the transport the scheduler needs
type Channel interface {
	Publish(topic string, qos byte, payload []byte) error
	Done() <-chan struct{}
}

// ModeGate checks the understood robot mode
type ModeGate interface {
	Require(m models.Mode) error
}

// Options configures a Scheduler
type Options struct {
	StickTopic string
	LEDTopic   string
	// Refresh re-publishes the active stick at this interval while a
	// command is held. Zero publishes each command once.
	Refresh time.Duration
	// ResetBodyDuration is how long ResetBody holds the neutral pose
	ResetBodyDuration time.Duration
}

// Scheduler turns motion and pose intents into timed stick publishes.
//
// Motion commands are serialized: a second caller blocks until the first
// command's duration has elapsed. Stop and SetLEDColor never wait for the
// running command.
type Scheduler struct {
	channel Channel
	modes   ModeGate
	clock   clockwork.Clock
	opts    Options
	log     logger.Logger

	issueMu sync.Mutex

	// pubMu orders stick publishes between the running command and Stop
	pubMu        sync.Mutex
	last         models.StickCommand
	cancelActive context.CancelFunc
}

// NewScheduler creates a scheduler. A nil clock uses the real clock.
func NewScheduler(channel Channel, modes ModeGate, clock clockwork.Clock, opts Options, log logger.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		channel: channel,
		modes:   modes,
		clock:   clock,
		opts:    opts,
		log:     log.WithField("component", "scheduler"),
	}
}

// Last returns the most recently published stick
func (s *Scheduler) Last() models.StickCommand {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.last
}

// Issue publishes cmd, holds it for cmd.Duration and then publishes a
// neutral stick so the motion ends. It returns ErrConnectionLost as soon
// as the channel drops, ErrPreempted when Stop interrupts it and ctx.Err()
// when the caller cancels. A cancelled command is still released.
func (s *Scheduler) Issue(ctx context.Context, cmd models.MotionCommand) error {
	return s.issue(ctx, cmd, "", true)
}

// issue runs one command. With release set the held stick is replaced by
// neutral when the hold ends; poses keep their posture latched instead.
func (s *Scheduler) issue(ctx context.Context, cmd models.MotionCommand, require models.Mode, release bool) error {
	if cmd.Duration < 0 {
		return fmt.Errorf("%s: %w: negative duration %v", cmd.Name, models.ErrInvalidArgument, cmd.Duration)
	}

	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	// checked under the issue lock so a mode change queued behind the
	// previous command is seen
	if require != "" {
		if err := s.modes.Require(require); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	payload := protocol.EncodeStick(cmd.Stick)

	s.pubMu.Lock()
	err := s.channel.Publish(s.opts.StickTopic, stickQoS, payload)
	if err == nil {
		s.last = cmd.Stick
		s.cancelActive = cancel
	}
	s.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	defer s.clearActive()

	s.log.Debugf("%s: stick=%+v for %v", cmd.Name, cmd.Stick, cmd.Duration)

	if cmd.Duration == 0 {
		return s.end(cmd.Name, release)
	}

	timer := s.clock.NewTimer(cmd.Duration)
	defer timer.Stop()

	var refresh <-chan time.Time
	if s.opts.Refresh > 0 && s.opts.Refresh < cmd.Duration {
		ticker := s.clock.NewTicker(s.opts.Refresh)
		defer ticker.Stop()
		refresh = ticker.Chan()
	}

	for {
		select {
		case <-timer.Chan():
			return s.end(cmd.Name, release)
		case <-refresh:
			if err := s.republish(cmdCtx, payload); err != nil {
				return fmt.Errorf("%s: %w", cmd.Name, err)
			}
		case <-s.channel.Done():
			return fmt.Errorf("%s: %w", cmd.Name, models.ErrConnectionLost)
		case <-cmdCtx.Done():
			if err := ctx.Err(); err != nil {
				if endErr := s.end(cmd.Name, release); endErr != nil {
					return errors.Join(err, endErr)
				}
				return err
			}
			return fmt.Errorf("%s: %w", cmd.Name, models.ErrPreempted)
		}
	}
}

// republish re-sends the held stick unless Stop has taken over
func (s *Scheduler) republish(cmdCtx context.Context, payload []byte) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if cmdCtx.Err() != nil {
		return nil
	}
	return s.channel.Publish(s.opts.StickTopic, stickQoS, payload)
}

// end publishes the neutral stick that releases a motion. It does nothing
// when Stop has already taken over or the held stick is neutral.
func (s *Scheduler) end(name string, release bool) error {
	if !release {
		return nil
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.cancelActive == nil || s.last.IsNeutral() {
		return nil
	}
	if err := s.channel.Publish(s.opts.StickTopic, stickQoS, protocol.EncodeStick(models.Neutral)); err != nil {
		return fmt.Errorf("%s: release: %w", name, err)
	}
	s.last = models.Neutral
	return nil
}

func (s *Scheduler) clearActive() {
	s.pubMu.Lock()
	s.cancelActive = nil
	s.pubMu.Unlock()
}

// Stop is the zero-command safety primitive. It interrupts any running
// command, including a held neutral pose, and publishes a neutral stick
// unless the last published stick is already neutral.
func (s *Scheduler) Stop() error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.cancelActive != nil {
		s.cancelActive()
		s.cancelActive = nil
	}

	if s.last.IsNeutral() {
		return nil
	}

	if err := s.channel.Publish(s.opts.StickTopic, stickQoS, protocol.EncodeStick(models.Neutral)); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	s.last = models.Neutral
	s.log.Infof("🛑 Stop: neutral stick published")
	return nil
}

// speed validates a normalized speed in [0, 1]
func speed(name string, v float64) (float32, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("%s: %w: speed %v outside [0, 1]", name, models.ErrInvalidArgument, v)
	}
	return float32(v), nil
}

func (s *Scheduler) move(ctx context.Context, name string, v float64, d time.Duration, build func(float32) models.StickCommand) error {
	sp, err := speed(name, v)
	if err != nil {
		return err
	}
	return s.issue(ctx, models.MotionCommand{Name: name, Stick: build(sp), Duration: d}, "", true)
}

// GoForward walks forward for d and then releases the stick. Motion
// primitives do not check the mode; in non-walking modes the firmware
// decides how the stick is interpreted.
func (s *Scheduler) GoForward(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "go_forward", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{LY: sp}
	})
}

// GoBackward walks backward
func (s *Scheduler) GoBackward(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "go_backward", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{LY: -sp}
	})
}

// GoLeft strafes left
func (s *Scheduler) GoLeft(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "go_left", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{LX: -sp}
	})
}

// GoRight strafes right
func (s *Scheduler) GoRight(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "go_right", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{LX: sp}
	})
}

// TurnLeft yaws left
func (s *Scheduler) TurnLeft(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "turn_left", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{RX: -sp}
	})
}

// TurnRight yaws right
func (s *Scheduler) TurnRight(ctx context.Context, v float64, d time.Duration) error {
	return s.move(ctx, "turn_right", v, d, func(sp float32) models.StickCommand {
		return models.StickCommand{RX: sp}
	})
}

// Pose sends all four body axes as one stick command and holds it for d.
// The posture stays latched afterwards; ResetBody or Stop returns it to
// neutral. Any non-neutral pose requires STAND; the neutral pose is
// accepted in every mode.
func (s *Scheduler) Pose(ctx context.Context, axes models.PoseAxes, d time.Duration) error {
	return s.pose(ctx, "pose", axes, d)
}

func (s *Scheduler) pose(ctx context.Context, name string, axes models.PoseAxes, d time.Duration) error {
	if err := axes.Validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var require models.Mode
	if !axes.IsNeutral() {
		require = models.ModeStand
	}
	return s.issue(ctx, models.MotionCommand{Name: name, Stick: axes.Stick(), Duration: d}, require, false)
}

func (s *Scheduler) namedPose(ctx context.Context, name string, v float64, d time.Duration, build func(float64) models.PoseAxes) error {
	if _, err := speed(name, v); err != nil {
		return err
	}
	return s.pose(ctx, name, build(v), d)
}

// LeanLeft rolls the body left
func (s *Scheduler) LeanLeft(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "lean_left", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Lean: -x} })
}

// LeanRight rolls the body right
func (s *Scheduler) LeanRight(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "lean_right", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Lean: x} })
}

// TwistLeft yaws the body left in place
func (s *Scheduler) TwistLeft(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "twist_left", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Twist: -x} })
}

// TwistRight yaws the body right in place
func (s *Scheduler) TwistRight(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "twist_right", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Twist: x} })
}

// LookUp pitches the head up
func (s *Scheduler) LookUp(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "look_up", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Look: -x} })
}

// LookDown pitches the head down
func (s *Scheduler) LookDown(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "look_down", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Look: x} })
}

// ExtendUp raises the body
func (s *Scheduler) ExtendUp(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "extend_up", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Extend: x} })
}

// SquatDown lowers the body
func (s *Scheduler) SquatDown(ctx context.Context, v float64, d time.Duration) error {
	return s.namedPose(ctx, "squat_down", v, d, func(x float64) models.PoseAxes { return models.PoseAxes{Extend: -x} })
}

// ResetBody holds the neutral pose for the configured reset duration
func (s *Scheduler) ResetBody(ctx context.Context) error {
	return s.pose(ctx, "reset_body", models.PoseAxes{}, s.opts.ResetBodyDuration)
}

// SetLEDColor publishes a head LED color immediately. Channels are clamped
// to [0, 255].
func (s *Scheduler) SetLEDColor(r, g, b int) error {
	color := models.NewLEDColor(r, g, b)
	if err := s.channel.Publish(s.opts.LEDTopic, ledQoS, protocol.EncodeLED(color)); err != nil {
		return fmt.Errorf("set_led_color: %w", err)
	}
	return nil
}
