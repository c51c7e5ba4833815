package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"go1-control/internal/config"
	"go1-control/internal/logger"
	"go1-control/internal/models"
)

var _ Channel = (*Adapter)(nil)

// ClientFactory builds the underlying paho client from options
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Adapter owns the MQTT connection to the robot's broker
type Adapter struct {
	client   paho.Client
	config   *config.MQTTConfig
	log      logger.Logger
	clientID string

	// Connection status tracking
	status      models.ConnectionStatus
	lastErr     error
	statusMutex sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once

	deliveredCount int64

	// Graceful shutdown
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	shutdownWG     sync.WaitGroup
}

// NewAdapter creates a new MQTT adapter. It does not connect.
func NewAdapter(cfg *config.MQTTConfig, log logger.Logger) *Adapter {
	return newAdapter(cfg, log, paho.NewClient)
}

func newAdapter(cfg *config.MQTTConfig, log logger.Logger, factory ClientFactory) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Adapter{
		config:         cfg,
		log:            log.WithField("component", "mqtt"),
		clientID:       fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]),
		status:         models.Disconnected,
		done:           make(chan struct{}),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	a.client = factory(a.createClientOptions())

	return a
}

// createClientOptions builds paho options. Reconnection is disabled:
// a lost connection ends the session and callers must start a new one.
func (a *Adapter) createClientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(a.config.BrokerURL)
	opts.SetClientID(a.clientID)

	if a.config.Username != "" {
		opts.SetUsername(a.config.Username)
		opts.SetPassword(a.config.Password)
	}

	opts.SetKeepAlive(time.Duration(a.config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(time.Duration(a.config.ConnectTimeout) * time.Second)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(a.config.CleanSession)
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		// a connect that completes after Connect gave up is not a session
		if !a.transitionStatus(models.Connecting, models.Connected) {
			a.log.Warnf("⚠️  Ignoring late MQTT connect - Broker: %s", a.config.BrokerURL)
			return
		}
		a.log.Infof("✅ MQTT connected - Broker: %s, ClientID: %s", a.config.BrokerURL, a.clientID)
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		a.handleConnectionLost(err)
	})

	return opts
}

func (a *Adapter) handleConnectionLost(err error) {
	a.updateStatus(models.ConnectionLost, err)
	a.closeDone()
	a.log.Errorf("❌ MQTT connection lost - Error: %v", err)
}

func (a *Adapter) closeDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// updateStatus updates connection status and the last transport error
func (a *Adapter) updateStatus(status models.ConnectionStatus, err error) {
	a.statusMutex.Lock()
	defer a.statusMutex.Unlock()
	a.status = status
	if err != nil {
		a.lastErr = err
	}
}

// transitionStatus moves from one status to another only when the current
// status is from
func (a *Adapter) transitionStatus(from, to models.ConnectionStatus) bool {
	a.statusMutex.Lock()
	defer a.statusMutex.Unlock()
	if a.status != from {
		return false
	}
	a.status = to
	return true
}

// Status returns the current connection status and the last transport error
func (a *Adapter) Status() (models.ConnectionStatus, error) {
	a.statusMutex.RLock()
	defer a.statusMutex.RUnlock()
	return a.status, a.lastErr
}

// ClientID returns the unique client ID presented to the broker
func (a *Adapter) ClientID() string {
	return a.clientID
}

// IsConnected checks if the adapter is connected
func (a *Adapter) IsConnected() bool {
	status, _ := a.Status()
	return status == models.Connected && a.client.IsConnected()
}

// Done is closed when the connection is lost or Disconnect is called
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Connect makes a single connection attempt bounded by the configured
// connect timeout. There are no retries.
func (a *Adapter) Connect(ctx context.Context) error {
	select {
	case <-a.done:
		return fmt.Errorf("%w: adapter already closed", models.ErrConnection)
	default:
	}

	a.updateStatus(models.Connecting, nil)
	connectTimeout := time.Duration(a.config.ConnectTimeout) * time.Second
	a.log.Infof("🔌 Connecting to MQTT broker %s (timeout %v)", a.config.BrokerURL, connectTimeout)

	token := a.client.Connect()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		err := fmt.Errorf("timeout after %v", connectTimeout)
		a.abortConnect(err)
		return fmt.Errorf("%w: %s: %v", models.ErrConnection, a.config.BrokerURL, err)
	case <-ctx.Done():
		a.abortConnect(ctx.Err())
		return fmt.Errorf("%w: %w", models.ErrConnection, ctx.Err())
	}

	if err := token.Error(); err != nil {
		a.abortConnect(err)
		a.log.Errorf("❌ MQTT connect failed: %v", err)
		return fmt.Errorf("%w: %s: %v", models.ErrConnection, a.config.BrokerURL, err)
	}

	a.updateStatus(models.Connected, nil)
	return nil
}

// abortConnect marks the attempt failed before stopping the client so a
// late OnConnect cannot revive it
func (a *Adapter) abortConnect(err error) {
	a.updateStatus(models.ConnectionFailed, err)
	a.client.Disconnect(0)
}

// Subscribe registers handler for topic. Paho delivers messages on its
// router goroutine; with order matters set they arrive one at a time.
func (a *Adapter) Subscribe(topic string, qos byte, handler Handler) error {
	if err := ValidateSubscribeTopic(topic); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if !a.IsConnected() {
		return fmt.Errorf("subscribe %s: %w", topic, models.ErrNotConnected)
	}

	token := a.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		atomic.AddInt64(&a.deliveredCount, 1)
		handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(a.publishTimeout()) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	a.log.Infof("✅ Subscribed to %s", topic)
	return nil
}

// Publish publishes payload to topic
func (a *Adapter) Publish(topic string, qos byte, payload []byte) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPublish, err)
	}
	if !a.IsConnected() {
		return fmt.Errorf("%w: %s: %w", models.ErrPublish, topic, models.ErrNotConnected)
	}

	token := a.client.Publish(topic, qos, false, payload)

	if !token.WaitTimeout(a.publishTimeout()) {
		return fmt.Errorf("%w: %s: timeout", models.ErrPublish, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", models.ErrPublish, topic, err)
	}

	return nil
}

func (a *Adapter) publishTimeout() time.Duration {
	return time.Duration(a.config.PublishTimeout) * time.Second
}

// DeliveredCount returns the number of inbound messages handed to handlers
func (a *Adapter) DeliveredCount() int64 {
	return atomic.LoadInt64(&a.deliveredCount)
}

// StartConnectionMonitor logs connection status every interval until
// Disconnect is called or the connection drops
func (a *Adapter) StartConnectionMonitor(interval time.Duration) {
	a.shutdownWG.Add(1)
	go func() {
		defer a.shutdownWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				status, _ := a.Status()
				a.log.Debugf("📊 MQTT status: %s (delivered: %d)", status, a.DeliveredCount())
			case <-a.done:
				status, err := a.Status()
				if status == models.ConnectionLost {
					a.log.Warnf("⚠️  MQTT connection monitor stopping - Status: %s, Error: %v", status, err)
				}
				return
			case <-a.shutdownCtx.Done():
				return
			}
		}
	}()
}

// Disconnect closes the connection and releases the Done channel
func (a *Adapter) Disconnect() {
	a.shutdownCancel()

	if a.client.IsConnected() {
		a.client.Disconnect(250)
		a.log.Infof("✅ MQTT disconnected")
	}

	status, _ := a.Status()
	if status != models.ConnectionLost {
		a.updateStatus(models.Disconnected, nil)
	}
	a.closeDone()

	a.shutdownWG.Wait()
}
