package mqtt

// Handler receives one inbound message. Messages for a single topic are
// delivered sequentially in the order the broker sent them.
type Handler func(topic string, payload []byte)

// Channel is the publish/subscribe connection the session runs over
type Channel interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler Handler) error
	IsConnected() bool
	// Done is closed once the connection is lost or disconnected.
	// A closed channel never reopens; a new session is required.
	Done() <-chan struct{}
	Disconnect()
}
