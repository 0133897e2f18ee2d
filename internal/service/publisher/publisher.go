package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/andremotz/katzenschreck/internal/backoff"
	"github.com/andremotz/katzenschreck/internal/dto"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/model"
)

// PingSubtopic receives the heartbeat payload.
const PingSubtopic = "ping"

// Broker is the message broker capability.
type Broker interface {
	Connect(timeout time.Duration) error
	Publish(topic string, payload []byte, timeout time.Duration) error
	Disconnect()
	// OnConnectionLost registers fn to be called when an established
	// connection drops.
	OnConnectionLost(fn func(error))
}

// Options configures a Publisher.
type Options struct {
	Topic             string
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// Publisher tracks the broker connection state and delivers messages on a
// best-effort basis, reconnecting on demand.
type Publisher struct {
	broker  Broker
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	state model.ConnectionState

	// breaker classifies connect failures; reconnects are never delayed by it.
	breaker *backoff.Breaker

	// connectMu admits a single connect attempt at a time.
	connectMu sync.Mutex
}

// New creates a Publisher in the Disconnected state.
func New(broker Broker, opts Options, logger *logger.Logger, m *metrics.Metrics) *Publisher {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	p := &Publisher{
		broker:  broker,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		state:   model.Disconnected,
		breaker: backoff.NewBreaker(),
	}
	broker.OnConnectionLost(p.handleConnectionLost)
	return p
}

// State returns the current connection state.
func (p *Publisher) State() model.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Publisher) setState(state model.ConnectionState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.metrics.SetBrokerConnected(state == model.Connected)
}

// Connect makes one connection attempt unless already connected.
func (p *Publisher) Connect() error {
	if !p.ensureConnected() {
		return fmt.Errorf("%w: broker unreachable", model.ErrConnection)
	}
	return nil
}

// ensureConnected reports whether the publisher is connected after at most one
// connect attempt. A caller arriving while another attempt is in flight waits
// for it and takes its outcome without trying again.
func (p *Publisher) ensureConnected() bool {
	if p.State() == model.Connected {
		return true
	}

	if !p.connectMu.TryLock() {
		p.connectMu.Lock()
		p.connectMu.Unlock()
		return p.State() == model.Connected
	}
	defer p.connectMu.Unlock()

	if p.State() == model.Connected {
		return true
	}

	p.setState(model.Connecting)
	p.logger.Info("Connecting to MQTT broker...")
	if err := p.broker.Connect(p.opts.ConnectTimeout); err != nil {
		p.setState(model.Disconnected)
		if _, tripped := p.breaker.Failure(); tripped {
			p.logger.Error("MQTT broker unreachable for %d consecutive attempts: %v", p.breaker.TripThreshold, err)
		} else {
			p.logger.Warning("MQTT connection failed: %v", err)
		}
		return false
	}
	p.breaker.Success()
	p.setState(model.Connected)
	p.logger.Info("Connected to MQTT broker")
	return true
}

// Publish sends event to <topic>/<className>. When disconnected it makes one
// reconnect attempt first; if that fails the event is dropped. A transport
// error marks the connection Disconnected and is not retried. Returned errors
// wrap model.ErrConnection and are informational only.
func (p *Publisher) Publish(ctx context.Context, className string, event model.DetectionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !p.ensureConnected() {
		p.metrics.Publish(false)
		p.logger.Warning("Could not send MQTT message, dropping %s detection", className)
		return fmt.Errorf("%w: not connected, %s detection dropped", model.ErrConnection, className)
	}

	payload, err := json.Marshal(dto.NewDetectionMessage(event))
	if err != nil {
		p.metrics.Publish(false)
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	if err := p.send(p.topic(className), payload); err != nil {
		p.metrics.Publish(false)
		return err
	}
	p.metrics.Publish(true)
	return nil
}

// Ping runs one heartbeat: reconnect if needed, then publish the liveness payload.
func (p *Publisher) Ping() error {
	if !p.ensureConnected() {
		return fmt.Errorf("%w: cannot send ping, not connected", model.ErrConnection)
	}

	payload, err := json.Marshal(dto.PingMessage{Timestamp: p.now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal ping: %w", err)
	}
	return p.send(p.topic(PingSubtopic), payload)
}

// RunHeartbeat pings the broker every heartbeat interval until ctx is done.
// Failures are logged only.
func (p *Publisher) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logger.Debug("Ping check, broker state: %s", p.State())
			if err := p.Ping(); err != nil {
				p.logger.Warning("Heartbeat failed: %v", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	if p.State() != model.Disconnected {
		p.broker.Disconnect()
	}
	p.setState(model.Disconnected)
}

func (p *Publisher) send(topic string, payload []byte) error {
	if err := p.broker.Publish(topic, payload, p.opts.PublishTimeout); err != nil {
		// drop the client connection too, otherwise the next Connect is refused
		p.broker.Disconnect()
		p.setState(model.Disconnected)
		p.logger.Error("Error sending MQTT message to %s: %v", topic, err)
		return fmt.Errorf("%w: publish to %s: %v", model.ErrConnection, topic, err)
	}
	p.logger.Debug("Published %d bytes to %s", len(payload), topic)
	return nil
}

func (p *Publisher) topic(subtopic string) string {
	return p.opts.Topic + "/" + subtopic
}

func (p *Publisher) handleConnectionLost(err error) {
	p.setState(model.Disconnected)
	p.logger.Warning("Disconnected from MQTT broker: %v", err)
}
