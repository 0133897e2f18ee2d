package publisher

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// PahoConfig holds the connection settings of a PahoBroker.
type PahoConfig struct {
	Address        string // scheme://host:port
	Username       string
	Password       string
	CameraName     string
	ConnectTimeout time.Duration
}

// PahoBroker implements Broker on top of the Eclipse Paho MQTT client.
// Automatic reconnects are disabled; the Publisher owns reconnect policy.
type PahoBroker struct {
	client mqtt.Client

	mu     sync.Mutex
	onLost func(error)
}

// ClientID returns a unique MQTT client id for camera.
func ClientID(camera string) string {
	return fmt.Sprintf("katzenschreck-%s-%s", camera, uuid.NewString()[:8])
}

// NewPahoBroker creates a broker client. No connection is made until Connect.
func NewPahoBroker(cfg PahoConfig) *PahoBroker {
	b := &PahoBroker{}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Address)
	opts.SetClientID(ClientID(cfg.CameraName))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(60 * time.Second)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.mu.Lock()
		fn := b.onLost
		b.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})

	b.client = mqtt.NewClient(opts)
	return b
}

// Connect dials the broker. A client that is still connected, for example
// after a CONNACK that arrived past an earlier timeout, is reused as is.
func (b *PahoBroker) Connect(timeout time.Duration) error {
	if b.client.IsConnected() {
		return nil
	}
	token := b.client.Connect()
	if !token.WaitTimeout(timeout) {
		// abort the attempt still running in the background
		b.client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout after %v", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (b *PahoBroker) Publish(topic string, payload []byte, timeout time.Duration) error {
	token := b.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish timeout after %v", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Disconnect waits up to 250ms for in-flight work before closing.
func (b *PahoBroker) Disconnect() {
	if b.client.IsConnectionOpen() {
		b.client.Disconnect(250)
	}
}

func (b *PahoBroker) OnConnectionLost(fn func(error)) {
	b.mu.Lock()
	b.onLost = fn
	b.mu.Unlock()
}
