// Package mqtttest provides an in-memory mqtt.Channel for tests.
package mqtttest

import (
	"fmt"
	"sync"
	"time"

	"go1-control/internal/models"
	"go1-control/internal/mqtt"
)

var _ mqtt.Channel = (*Channel)(nil)

// Message is one recorded publish
type Message struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Channel records publishes and lets tests inject inbound messages and
// connection loss
type Channel struct {
	mu         sync.Mutex
	connected  bool
	published  []Message
	handlers   map[string][]mqtt.Handler
	publishErr error

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a connected channel
func New() *Channel {
	return &Channel{
		connected: true,
		handlers:  make(map[string][]mqtt.Handler),
		done:      make(chan struct{}),
	}
}

// Publish records the message
func (c *Channel) Publish(topic string, qos byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := mqtt.ValidatePublishTopic(topic); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPublish, err)
	}
	if !c.connected {
		return fmt.Errorf("%w: %s: %w", models.ErrPublish, topic, models.ErrNotConnected)
	}
	if c.publishErr != nil {
		return fmt.Errorf("%w: %s: %w", models.ErrPublish, topic, c.publishErr)
	}

	c.published = append(c.published, Message{
		Topic:   topic,
		QoS:     qos,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Subscribe registers handler for a topic filter
func (c *Channel) Subscribe(topic string, qos byte, handler mqtt.Handler) error {
	if err := mqtt.ValidateSubscribeTopic(topic); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("subscribe %s: %w", topic, models.ErrNotConnected)
	}
	c.handlers[topic] = append(c.handlers[topic], handler)
	return nil
}

// IsConnected reports the simulated connectivity flag
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed by Drop or Disconnect
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Disconnect marks the channel closed
func (c *Channel) Disconnect() {
	c.Drop()
}

// Drop simulates a transport failure
func (c *Channel) Drop() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// FailPublishes makes every following publish fail with err; nil clears it
func (c *Channel) FailPublishes(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Deliver synchronously hands payload to every handler whose filter
// matches topic
func (c *Channel) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	var handlers []mqtt.Handler
	for filter, hs := range c.handlers {
		if mqtt.TopicMatches(filter, topic) {
			handlers = append(handlers, hs...)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// Subscribed reports whether any handler is registered for the exact filter
func (c *Channel) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[topic]) > 0
}

// Published returns a copy of every recorded publish
func (c *Channel) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}

// PublishedTo returns the recorded publishes for one topic
func (c *Channel) PublishedTo(topic string) []Message {
	var out []Message
	for _, m := range c.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// WaitForPublishes polls until at least n messages were published or the
// timeout passes. It reports whether the count was reached.
func (c *Channel) WaitForPublishes(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(c.Published()) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return len(c.Published()) >= n
}
