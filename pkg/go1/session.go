package go1

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"go1-control/internal/command"
	"go1-control/internal/config"
	"go1-control/internal/events"
	"go1-control/internal/logger"
	"go1-control/internal/models"
	"go1-control/internal/mode"
	"go1-control/internal/mqtt"
	"go1-control/internal/telemetry"
)

// telemetry is high rate; a dropped frame is replaced by the next one
const telemetryQoS byte = 0

// Option configures a Session
type Option func(*Session)

// WithChannel uses ch instead of dialing the configured broker. The
// channel must already be connected when Init is called.
func WithChannel(ch Channel) Option {
	return func(s *Session) {
		s.channel = ch
	}
}

// WithClock sets the clock used for command durations and telemetry
// timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithLogger sets the session logger
func WithLogger(log logger.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// Session is one connection to a Go1 and the mode, command and event
// state derived from it. A Session is not reusable: after Disconnect or
// connection loss create a new one.
type Session struct {
	config *Config
	log    logger.Logger
	clock  clockwork.Clock

	channel Channel
	adapter *mqtt.Adapter // nil when a channel was injected

	decoder    *telemetry.Decoder
	modes      *mode.StateMachine
	dispatcher *events.Dispatcher
	scheduler  *command.Scheduler

	latest atomic.Pointer[models.RobotState]

	initOnce       sync.Once
	initErr        error
	disconnectOnce sync.Once
}

// New creates a session. It does not connect; call Init.
func New(cfg *Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Session{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		log, err := logger.New(logger.Options{
			Level:      cfg.App.LogLevel,
			File:       cfg.App.LogFile,
			MaxSizeMB:  cfg.App.LogMaxSizeMB,
			MaxBackups: cfg.App.LogMaxBackups,
		})
		if err != nil {
			log = logger.NewWriter(os.Stderr, cfg.App.LogLevel)
			log.Warnf("⚠️  Log file unavailable, logging to stderr: %v", err)
		}
		s.log = log
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.channel == nil {
		s.adapter = mqtt.NewAdapter(&cfg.MQTT, s.log)
		s.channel = s.adapter
	}

	s.decoder = telemetry.NewDecoder(s.clock.Now)
	s.modes = mode.NewStateMachine(s.channel, cfg.Robot.ActionTopic, s.log)
	s.dispatcher = events.NewDispatcher(s.log)
	s.scheduler = command.NewScheduler(s.channel, s.modes, s.clock, command.Options{
		StickTopic:        cfg.Robot.StickTopic,
		LEDTopic:          cfg.Robot.LEDTopic,
		Refresh:           cfg.Robot.CommandRefresh(),
		ResetBodyDuration: cfg.Robot.ResetBodyDuration(),
	}, s.log)

	return s
}

// Init connects to the broker and subscribes to telemetry. Calling Init
// again returns the first result.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.init(ctx)
	})
	return s.initErr
}

func (s *Session) init(ctx context.Context) error {
	if s.adapter != nil {
		if err := s.adapter.Connect(ctx); err != nil {
			return err
		}
		if sec := s.config.App.StatusIntervalSeconds; sec > 0 {
			s.adapter.StartConnectionMonitor(time.Duration(sec) * time.Second)
		}
	} else if !s.channel.IsConnected() {
		return fmt.Errorf("%w: %w", models.ErrConnection, models.ErrNotConnected)
	}

	topic := s.config.Robot.TelemetryTopic
	if err := s.channel.Subscribe(topic, telemetryQoS, s.handleTelemetry); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", models.ErrConnection, topic, err)
	}

	s.log.Infof("🚀 Go1 session ready (telemetry: %s)", topic)
	return nil
}

// handleTelemetry runs on the transport's delivery goroutine
func (s *Session) handleTelemetry(topic string, payload []byte) {
	state, err := s.decoder.Decode(payload)
	if err != nil {
		s.log.Warnf("⚠️  Dropping telemetry on %s: %v", topic, err)
		return
	}

	s.modes.Observe(state.Mode)
	s.latest.Store(state)
	s.dispatcher.Emit(events.EventStateChange, state)
}

// Disconnect stops any motion and closes the connection. It is safe to
// call more than once.
func (s *Session) Disconnect() {
	s.disconnectOnce.Do(func() {
		if s.channel.IsConnected() {
			if err := s.scheduler.Stop(); err != nil {
				s.log.Warnf("⚠️  Stop on disconnect failed: %v", err)
			}
		}
		s.channel.Disconnect()
		s.log.Infof("👋 Go1 session closed")
	})
}

// IsConnected reports whether the channel is connected
func (s *Session) IsConnected() bool {
	return s.channel.IsConnected()
}

// Done is closed when the session's connection ends
func (s *Session) Done() <-chan struct{} {
	return s.channel.Done()
}

// Status returns the connection status and the error that caused a loss
func (s *Session) Status() (ConnectionStatus, error) {
	if s.adapter != nil {
		return s.adapter.Status()
	}
	if s.channel.IsConnected() {
		return models.Connected, nil
	}
	return models.Disconnected, nil
}

// Mode returns the understood robot mode
func (s *Session) Mode() Mode {
	return s.modes.Current()
}

// ReportedMode returns the last mode the robot reported, empty if none
func (s *Session) ReportedMode() Mode {
	return s.modes.Reported()
}

// SetMode publishes a mode change
func (s *Session) SetMode(m Mode) error {
	return s.modes.Request(m)
}

// OnModeChange registers a callback run after each successful SetMode
func (s *Session) OnModeChange(cb func(from, to Mode)) {
	s.modes.OnTransition(cb)
}

// LatestState returns the most recent decoded telemetry, nil before the first
func (s *Session) LatestState() *RobotState {
	return s.latest.Load()
}

// TelemetryStats returns decoded and dropped telemetry counts
func (s *Session) TelemetryStats() telemetry.Stats {
	return s.decoder.Stats()
}

// On registers handler for event. Handlers run on the telemetry delivery
// goroutine in registration order and must not block.
func (s *Session) On(event string, handler Handler) {
	s.dispatcher.On(event, handler)
}

// Issue publishes a raw stick command, holds it for its duration and then
// publishes a neutral stick
func (s *Session) Issue(ctx context.Context, cmd MotionCommand) error {
	return s.scheduler.Issue(ctx, cmd)
}

// Stop interrupts the running command and publishes a neutral stick
func (s *Session) Stop() error {
	return s.scheduler.Stop()
}

// GoForward walks forward at speed for d, then releases the stick
func (s *Session) GoForward(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.GoForward(ctx, speed, d)
}

// GoBackward walks backward at speed for d, then releases the stick
func (s *Session) GoBackward(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.GoBackward(ctx, speed, d)
}

// GoLeft strafes left at speed for d, then releases the stick
func (s *Session) GoLeft(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.GoLeft(ctx, speed, d)
}

// GoRight strafes right at speed for d, then releases the stick
func (s *Session) GoRight(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.GoRight(ctx, speed, d)
}

// TurnLeft yaws left at speed for d, then releases the stick
func (s *Session) TurnLeft(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.TurnLeft(ctx, speed, d)
}

// TurnRight yaws right at speed for d, then releases the stick
func (s *Session) TurnRight(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.TurnRight(ctx, speed, d)
}

// Pose holds a body posture for d. Non-neutral poses require ModeStand.
func (s *Session) Pose(ctx context.Context, axes PoseAxes, d time.Duration) error {
	return s.scheduler.Pose(ctx, axes, d)
}

// LeanLeft rolls the body left; requires ModeStand
func (s *Session) LeanLeft(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.LeanLeft(ctx, speed, d)
}

// LeanRight rolls the body right; requires ModeStand
func (s *Session) LeanRight(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.LeanRight(ctx, speed, d)
}

// TwistLeft yaws the body left in place; requires ModeStand
func (s *Session) TwistLeft(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.TwistLeft(ctx, speed, d)
}

// TwistRight yaws the body right in place; requires ModeStand
func (s *Session) TwistRight(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.TwistRight(ctx, speed, d)
}

// LookUp pitches the body up; requires ModeStand
func (s *Session) LookUp(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.LookUp(ctx, speed, d)
}

// LookDown pitches the body down; requires ModeStand
func (s *Session) LookDown(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.LookDown(ctx, speed, d)
}

// ExtendUp raises the body; requires ModeStand
func (s *Session) ExtendUp(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.ExtendUp(ctx, speed, d)
}

// SquatDown lowers the body; requires ModeStand
func (s *Session) SquatDown(ctx context.Context, speed float64, d time.Duration) error {
	return s.scheduler.SquatDown(ctx, speed, d)
}

// ResetBody returns the body to the neutral pose
func (s *Session) ResetBody(ctx context.Context) error {
	return s.scheduler.ResetBody(ctx)
}

// SetLEDColor sets the head LED; values are clamped to [0, 255]
func (s *Session) SetLEDColor(r, g, b int) error {
	return s.scheduler.SetLEDColor(r, g, b)
}
