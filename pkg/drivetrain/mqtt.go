package drivetrain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
)

// MQTT publishes Payload JSON to a topic. Commands go out at QoS 0 and are
// never retained, so a robot that reconnects later does not replay an old
// velocity.
type MQTT struct {
	client mqtt.Client
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	closed    bool
	published uint64
	errors    uint64
}

// DialMQTT connects to the broker and clears any retained command on the topic.
func DialMQTT(ctx context.Context, cfg Config, logger *slog.Logger) (*MQTT, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "drivetrain.mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("mqtt connect: %w", ctx.Err())
	case <-time.After(cfg.ConnectTimeout):
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	m := newMQTT(client, cfg, logger)
	if err := m.flush(); err != nil {
		logger.Warn("could not clear retained commands", "topic", cfg.Topic, "error", err)
	}
	return m, nil
}

func newMQTT(client mqtt.Client, cfg Config, logger *slog.Logger) *MQTT {
	return &MQTT{client: client, cfg: cfg, logger: logger}
}

// SetVelocity publishes one command.
func (m *MQTT) SetVelocity(ctx context.Context, linear, angular r3.Vector) error {
	payload, err := json.Marshal(NewPayload(linear, angular, m.cfg.AngularScale, m.cfg.MaxAngular))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return m.publish(ctx, payload, false)
}

// Stop publishes a zero command.
func (m *MQTT) Stop(ctx context.Context) error {
	return m.SetVelocity(ctx, r3.Vector{}, r3.Vector{})
}

func (m *MQTT) publish(ctx context.Context, payload []byte, retained bool) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !m.client.IsConnectionOpen() {
		m.countError()
		return ErrNotConnected
	}

	token := m.client.Publish(m.cfg.Topic, 0, retained, payload)

	timeout := sendTimeout(ctx, m.cfg.SendTimeout)
	select {
	case <-token.Done():
	case <-ctx.Done():
		m.countError()
		return ctx.Err()
	case <-time.After(timeout):
		m.countError()
		return ErrSendTimeout
	}
	if err := token.Error(); err != nil {
		m.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	m.mu.Lock()
	m.published++
	m.mu.Unlock()

	m.logger.Debug("drive command published", "topic", m.cfg.Topic, "size", len(payload))
	return nil
}

// flush clears the retained message on the topic.
func (m *MQTT) flush() error {
	token := m.client.Publish(m.cfg.Topic, 0, true, []byte{})
	if !token.WaitTimeout(m.cfg.SendTimeout) {
		return ErrSendTimeout
	}
	return token.Error()
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns publish counters.
func (m *MQTT) Stats() (published, errors uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published, m.errors
}

// Close sends a final stop, clears retained messages and disconnects.
func (m *MQTT) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SendTimeout)
	defer cancel()
	stopErr := m.Stop(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.flush(); err != nil {
		m.logger.Warn("could not clear retained commands", "error", err)
	}
	if m.client.IsConnected() {
		m.client.Disconnect(250) // 250ms grace period
		m.logger.Info("mqtt disconnected")
	}
	if stopErr != nil && stopErr != ErrClosed {
		return fmt.Errorf("final stop: %w", stopErr)
	}
	return nil
}

var _ Drivetrain = (*MQTT)(nil)
