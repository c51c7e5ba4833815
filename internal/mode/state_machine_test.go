package mode

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"go1-control/internal/logger"
	"go1-control/internal/models"
	"go1-control/internal/mqtt/mqtttest"
)

const actionTopic = "controller/action"

func TestInitialModeIsStandDown(t *testing.T) {
	sm := NewStateMachine(mqtttest.New(), actionTopic, logger.Nop())
	if sm.Current() != models.ModeStandDown {
		t.Errorf("Initial mode = %s, want standDown", sm.Current())
	}
}

func TestRequestPublishesThenSetsMode(t *testing.T) {
	ch := mqtttest.New()
	sm := NewStateMachine(ch, actionTopic, logger.Nop())

	var transitions []string
	sm.OnTransition(func(from, to models.Mode) {
		transitions = append(transitions, string(from)+">"+string(to))
	})

	// fully connected: every mode reachable from every other
	for _, m := range []models.Mode{models.ModeWalk, models.ModeStand, models.ModeDance1, models.ModeStandDown, models.ModeWalk} {
		if err := sm.Request(m); err != nil {
			t.Fatalf("Request(%s) failed: %v", m, err)
		}
		if sm.Current() != m {
			t.Errorf("Current = %s, want %s", sm.Current(), m)
		}
	}

	msgs := ch.PublishedTo(actionTopic)
	if len(msgs) != 5 {
		t.Fatalf("Expected 5 action publishes, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != "walk" || msgs[0].QoS != 1 {
		t.Errorf("First publish = %q qos %d", msgs[0].Payload, msgs[0].QoS)
	}
	want := "standDown>walk,walk>stand,stand>dance1,dance1>standDown,standDown>walk"
	if strings.Join(transitions, ",") != want {
		t.Errorf("Transitions = %v", transitions)
	}
}

func TestRequestUnknownMode(t *testing.T) {
	ch := mqtttest.New()
	sm := NewStateMachine(ch, actionTopic, logger.Nop())

	err := sm.Request(models.Mode("backflip"))
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if len(ch.Published()) != 0 {
		t.Error("Invalid transition must not publish")
	}
	if sm.Current() != models.ModeStandDown {
		t.Errorf("Mode changed to %s", sm.Current())
	}
}

func TestRequestPublishFailureKeepsMode(t *testing.T) {
	ch := mqtttest.New()
	sm := NewStateMachine(ch, actionTopic, logger.Nop())
	ch.Drop()

	err := sm.Request(models.ModeWalk)
	if !errors.Is(err, models.ErrPublish) {
		t.Fatalf("Expected ErrPublish, got %v", err)
	}
	if sm.Current() != models.ModeStandDown {
		t.Errorf("Mode = %s, want unchanged standDown", sm.Current())
	}
}

func TestRequire(t *testing.T) {
	sm := NewStateMachine(mqtttest.New(), actionTopic, logger.Nop())

	if err := sm.Require(models.ModeStand); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}
	if err := sm.Request(models.ModeStand); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if err := sm.Require(models.ModeStand); err != nil {
		t.Errorf("Require after Request = %v", err)
	}
}

func TestObserveLogsMismatchWithoutChangingMode(t *testing.T) {
	var buf bytes.Buffer
	sm := NewStateMachine(mqtttest.New(), actionTopic, logger.NewWriter(&buf, "warn"))
	if err := sm.Request(models.ModeWalk); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	sm.Observe(models.ModeWalk)
	if buf.Len() != 0 {
		t.Errorf("Matching report should not warn: %q", buf.String())
	}

	sm.Observe(models.ModeStand)
	if sm.Current() != models.ModeWalk {
		t.Errorf("Observe must not change current mode, got %s", sm.Current())
	}
	if sm.Reported() != models.ModeStand {
		t.Errorf("Reported = %s, want stand", sm.Reported())
	}
	if !strings.Contains(buf.String(), "reports mode stand") {
		t.Errorf("Expected mismatch warning, got %q", buf.String())
	}

	// repeated identical reports warn once
	buf.Reset()
	sm.Observe(models.ModeStand)
	if buf.Len() != 0 {
		t.Errorf("Repeated report should not warn again: %q", buf.String())
	}

	sm.Observe("")
	if sm.Reported() != models.ModeStand {
		t.Error("Empty report should be ignored")
	}
}

// slowPublisher holds every publish until release is closed, like a QoS 1
// publish waiting for its PUBACK
type slowPublisher struct {
	started chan struct{}
	release chan struct{}
}

func (p *slowPublisher) Publish(topic string, qos byte, payload []byte) error {
	close(p.started)
	<-p.release
	return nil
}

func TestObserveDoesNotWaitForPendingRequest(t *testing.T) {
	pub := &slowPublisher{started: make(chan struct{}), release: make(chan struct{})}
	sm := NewStateMachine(pub, actionTopic, logger.Nop())

	requested := make(chan error, 1)
	go func() {
		requested <- sm.Request(models.ModeStand)
	}()
	<-pub.started

	observed := make(chan struct{})
	go func() {
		sm.Observe(models.ModeStand)
		close(observed)
	}()
	select {
	case <-observed:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked behind a Request waiting on the broker")
	}
	if sm.Reported() != models.ModeStand {
		t.Errorf("Reported = %s, want stand", sm.Reported())
	}
	// the mode is not recorded until the publish completes
	if sm.Current() != models.ModeStandDown {
		t.Errorf("Current = %s before the publish completed, want standDown", sm.Current())
	}

	close(pub.release)
	select {
	case err := <-requested:
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Request did not return after the publish completed")
	}
	if sm.Current() != models.ModeStand {
		t.Errorf("Current = %s, want stand", sm.Current())
	}
}
