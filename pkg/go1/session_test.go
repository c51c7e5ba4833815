package go1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"go1-control/internal/logger"
	"go1-control/internal/mqtt/mqtttest"
	"go1-control/internal/protocol"
)

func telemetryPayload(soc int, front float64, mode string) []byte {
	return []byte(fmt.Sprintf(
		`{"bms":{"soc":%d,"voltage":27500,"current":-1200,"cycles":12},"robot":{"distanceWarning":{"front":%v,"left":1,"right":1,"back":1},"mode":%q}}`,
		soc, front, mode))
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *mqtttest.Channel, *Config) {
	t.Helper()
	cfg := DefaultConfig()
	ch := mqtttest.New()
	opts = append([]Option{WithChannel(ch), WithLogger(logger.Nop())}, opts...)
	s := New(cfg, opts...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s, ch, cfg
}

func TestInitSubscribesTelemetry(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	if !ch.Subscribed(cfg.Robot.TelemetryTopic) {
		t.Errorf("Expected subscription to %s", cfg.Robot.TelemetryTopic)
	}
	if s.Mode() != ModeStandDown {
		t.Errorf("Initial mode = %s, want standDown", s.Mode())
	}
	if s.LatestState() != nil {
		t.Error("LatestState should be nil before telemetry")
	}
	// repeated Init is a no-op
	if err := s.Init(context.Background()); err != nil {
		t.Errorf("Second Init failed: %v", err)
	}
}

func TestInitOnDisconnectedChannel(t *testing.T) {
	ch := mqtttest.New()
	ch.Drop()
	s := New(DefaultConfig(), WithChannel(ch), WithLogger(logger.Nop()))

	if err := s.Init(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("Expected ErrConnection, got %v", err)
	}
}

func TestTelemetryDispatch(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	var got []*RobotState
	s.On(EventStateChange, func(state *RobotState) error {
		got = append(got, state)
		return nil
	})
	legacy := 0
	s.On("go1_state_change", func(state *RobotState) error {
		legacy++
		return nil
	})

	ch.Deliver(cfg.Robot.TelemetryTopic, telemetryPayload(80, 0.4, "walk"))
	ch.Deliver(cfg.Robot.TelemetryTopic, telemetryPayload(79, 0.5, "walk"))

	if len(got) != 2 || legacy != 2 {
		t.Fatalf("Dispatched %d/%d states, want 2/2", len(got), legacy)
	}
	if got[0].Battery.SOC != 80 || got[1].Battery.SOC != 79 {
		t.Errorf("Dispatch order: soc %d, %d", got[0].Battery.SOC, got[1].Battery.SOC)
	}
	if s.LatestState() != got[1] {
		t.Error("LatestState is not the last dispatched state")
	}
	if s.ReportedMode() != ModeWalk {
		t.Errorf("ReportedMode = %s, want walk", s.ReportedMode())
	}
	// telemetry never changes the understood mode
	if s.Mode() != ModeStandDown {
		t.Errorf("Mode = %s, want standDown", s.Mode())
	}
}

func TestMalformedTelemetryIsDropped(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	calls := 0
	s.On(EventStateChange, func(state *RobotState) error {
		calls++
		return nil
	})

	ch.Deliver(cfg.Robot.TelemetryTopic, []byte(`{"bms":`))
	ch.Deliver(cfg.Robot.TelemetryTopic, telemetryPayload(150, 0.5, "stand"))

	if calls != 0 {
		t.Fatalf("Malformed telemetry dispatched %d times", calls)
	}
	if s.LatestState() != nil {
		t.Error("Malformed telemetry must not update LatestState")
	}

	ch.Deliver(cfg.Robot.TelemetryTopic, telemetryPayload(60, 0.5, "stand"))
	if calls != 1 {
		t.Errorf("Valid telemetry after errors dispatched %d times, want 1", calls)
	}

	stats := s.TelemetryStats()
	if stats.Decoded != 1 || stats.Dropped != 2 {
		t.Errorf("Stats = %+v, want 1 decoded, 2 dropped", stats)
	}
}

func TestSetModeThenPose(t *testing.T) {
	s, ch, cfg := newTestSession(t)
	ctx := context.Background()

	if err := s.LeanLeft(ctx, 0.5, 0); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Expected ErrPrecondition before stand, got %v", err)
	}

	var transitions int
	s.OnModeChange(func(from, to Mode) { transitions++ })
	if err := s.SetMode(ModeStand); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if transitions != 1 {
		t.Errorf("Transitions = %d, want 1", transitions)
	}
	if err := s.LeanLeft(ctx, 0.5, 0); err != nil {
		t.Fatalf("LeanLeft failed: %v", err)
	}

	actions := ch.PublishedTo(cfg.Robot.ActionTopic)
	if len(actions) != 1 || string(actions[0].Payload) != "stand" {
		t.Errorf("Action publishes = %+v", actions)
	}
	sticks := ch.PublishedTo(cfg.Robot.StickTopic)
	if len(sticks) != 1 {
		t.Fatalf("Expected 1 stick publish, got %d", len(sticks))
	}
	stick, err := protocol.DecodeStick(sticks[0].Payload)
	if err != nil {
		t.Fatalf("DecodeStick failed: %v", err)
	}
	if stick != (StickCommand{LX: -0.5}) {
		t.Errorf("Stick = %+v, want lean left", stick)
	}
}

func TestConnectionLossDuringMotion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, ch, _ := newTestSession(t, WithClock(clock))

	result := make(chan error, 1)
	go func() {
		result <- s.GoForward(context.Background(), 0.3, 5*time.Second)
	}()

	done := make(chan struct{})
	go func() {
		clock.BlockUntil(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GoForward never started its hold timer")
	}

	clock.Advance(time.Second)
	ch.Drop()

	select {
	case err := <-result:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("Expected ErrConnectionLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GoForward did not return after connection loss")
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after connection loss")
	}
	if s.IsConnected() {
		t.Error("IsConnected should be false after connection loss")
	}
	if err := s.SetMode(ModeWalk); !errors.Is(err, ErrPublish) {
		t.Errorf("Expected ErrPublish after loss, got %v", err)
	}
}

func TestDisconnectStopsMotion(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	if err := s.SetMode(ModeStand); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	// a pose stays latched after its hold
	if err := s.ExtendUp(context.Background(), 0.6, 0); err != nil {
		t.Fatalf("ExtendUp failed: %v", err)
	}
	s.Disconnect()
	s.Disconnect()

	sticks := ch.PublishedTo(cfg.Robot.StickTopic)
	if len(sticks) != 2 {
		t.Fatalf("Expected posture and neutral sticks, got %d", len(sticks))
	}
	stick, err := protocol.DecodeStick(sticks[1].Payload)
	if err != nil {
		t.Fatalf("DecodeStick failed: %v", err)
	}
	if !stick.IsNeutral() {
		t.Errorf("Last stick = %+v, want neutral", stick)
	}
	if s.IsConnected() {
		t.Error("Session still connected after Disconnect")
	}
}

func TestSetLEDColorThroughSession(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	if err := s.SetLEDColor(255, 0, 0); err != nil {
		t.Fatalf("SetLEDColor failed: %v", err)
	}
	if err := s.SetLEDColor(0, 0, 0); err != nil {
		t.Fatalf("SetLEDColor failed: %v", err)
	}
	msgs := ch.PublishedTo(cfg.Robot.LEDTopic)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 LED publishes, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != "\xff\x00\x00" || string(msgs[1].Payload) != "\x00\x00\x00" {
		t.Errorf("LED payloads = %x, %x", msgs[0].Payload, msgs[1].Payload)
	}
}

func TestMotionEndsWithNeutralStick(t *testing.T) {
	s, ch, cfg := newTestSession(t)

	if err := s.GoForward(context.Background(), 0.3, 0); err != nil {
		t.Fatalf("GoForward failed: %v", err)
	}
	if err := s.TurnLeft(context.Background(), 0.5, 0); err != nil {
		t.Fatalf("TurnLeft failed: %v", err)
	}

	msgs := ch.PublishedTo(cfg.Robot.StickTopic)
	want := []StickCommand{{LY: 0.3}, {}, {RX: -0.5}, {}}
	if len(msgs) != len(want) {
		t.Fatalf("Expected %d stick publishes, got %d", len(want), len(msgs))
	}
	for i := range want {
		stick, err := protocol.DecodeStick(msgs[i].Payload)
		if err != nil {
			t.Fatalf("DecodeStick %d failed: %v", i, err)
		}
		if stick != want[i] {
			t.Errorf("Stick %d = %+v, want %+v", i, stick, want[i])
		}
	}

	// nothing left to stop
	s.Disconnect()
	if n := len(ch.PublishedTo(cfg.Robot.StickTopic)); n != len(want) {
		t.Errorf("Disconnect after released motion published: %d sticks", n)
	}
}

func TestUnwritableLogFileFallsBackToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg := DefaultConfig()
	cfg.App.LogFile = filepath.Join(blocker, "logs", "go1.log")

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	stderr := os.Stderr
	os.Stderr = w
	s := New(cfg, WithChannel(mqtttest.New()))
	os.Stderr = stderr
	w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if s.log == nil {
		t.Fatal("Session has no logger")
	}
	if !strings.Contains(string(out), "Log file unavailable") {
		t.Errorf("Stderr = %q, want a warning about the log file", out)
	}
}
