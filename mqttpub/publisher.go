package mqttpub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/rfstick/client"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	defaultTopicPrefix = "rfstick"
	maxQoS             = 2

	// clientIDSuffixLen is the number of uuid characters appended to the
	// configured client id, so several publishers can share a config.
	clientIDSuffixLen = 8
)

// Config contains broker connection options.
type Config struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string

	// ClientID identifies this publisher to the broker. A random
	// suffix is appended to keep concurrent publishers distinct.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the quality of service for event publishes (0, 1, or 2).
	QoS int

	// TopicPrefix is the root of the published topic tree.
	// Default: "rfstick".
	TopicPrefix string
}

// Logger is the optional logging interface for publish failures.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// deviceEnvelope is the JSON payload for device state events.
type deviceEnvelope struct {
	EventID   string `json:"event_id"`
	DeviceID  int    `json:"device_id"`
	Method    int    `json:"method"`
	Value     string `json:"value,omitempty"`
	Timestamp string `json:"ts"`
}

// rawEnvelope is the JSON payload for raw transceiver data.
type rawEnvelope struct {
	EventID      string `json:"event_id"`
	Data         string `json:"data"`
	ControllerID int    `json:"controller_id"`
	Timestamp    string `json:"ts"`
}

// changeEnvelope is the JSON payload for registry changes.
type changeEnvelope struct {
	EventID     string `json:"event_id"`
	DeviceID    int    `json:"device_id"`
	ChangeEvent int    `json:"change_event"`
	ChangeType  int    `json:"change_type,omitempty"`
	Timestamp   string `json:"ts"`
}

// Publisher forwards client events to an MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Publishes from event callbacks are fire-and-forget; delivery
//     failures are logged, never propagated back to the listener.
type Publisher struct {
	client pahomqtt.Client
	cfg    Config

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect establishes the broker connection.
//
// The connection auto-reconnects with the paho client's backoff; an
// online status is retained on <prefix>/status, with a last-will
// "offline" payload for crash detection.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: invalid qos %d", ErrConnectionFailed, cfg.QoS)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "rfstick-pub"
	}
	clientID += "-" + uuid.NewString()[:clientIDSuffixLen]

	statusTopic := cfg.TopicPrefix + "/status"

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(statusTopic, "offline", byte(cfg.QoS), true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p := &Publisher{cfg: cfg, logger: noopLogger{}}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.connMu.Lock()
		p.connected = true
		p.connMu.Unlock()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.connMu.Lock()
		p.connected = false
		p.connMu.Unlock()
		p.logWarn("broker connection lost", "error", err)
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p.connMu.Lock()
	p.connected = true
	p.connMu.Unlock()

	if err := p.publish(statusTopic, []byte("online"), true); err != nil {
		p.logWarn("publishing online status failed", "error", err)
	}

	return p, nil
}

// SetLogger sets the logger for publish failures.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
	p.loggerMu.Unlock()
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected
}

// Attach registers forwarding callbacks with the client. The returned
// function unregisters them.
//
// Topics:
//   - <prefix>/device/<id>/event  (state changes)
//   - <prefix>/raw                (raw transceiver data)
//   - <prefix>/device/<id>/change (registry changes)
func (p *Publisher) Attach(c *client.Client) func() {
	devReg := c.RegisterDeviceEvent(func(deviceID int, method client.Method, value string) {
		p.forward(
			p.deviceTopic(deviceID, "event"),
			deviceEnvelope{
				EventID:   uuid.NewString(),
				DeviceID:  deviceID,
				Method:    int(method),
				Value:     value,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		)
	})

	rawReg := c.RegisterRawDeviceEvent(func(data string, controllerID int) {
		p.forward(
			p.cfg.TopicPrefix+"/raw",
			rawEnvelope{
				EventID:      uuid.NewString(),
				Data:         data,
				ControllerID: controllerID,
				Timestamp:    time.Now().UTC().Format(time.RFC3339),
			},
		)
	})

	changeReg := c.RegisterDeviceChangeEvent(func(deviceID, changeEvent, changeType int) {
		p.forward(
			p.deviceTopic(deviceID, "change"),
			changeEnvelope{
				EventID:     uuid.NewString(),
				DeviceID:    deviceID,
				ChangeEvent: changeEvent,
				ChangeType:  changeType,
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
			},
		)
	})

	return func() {
		c.Unregister(devReg)
		c.Unregister(rawReg)
		c.Unregister(changeReg)
	}
}

func (p *Publisher) deviceTopic(deviceID int, leaf string) string {
	return p.cfg.TopicPrefix + "/device/" + strconv.Itoa(deviceID) + "/" + leaf
}

// forward marshals and publishes an envelope without blocking the
// caller on broker acknowledgment.
func (p *Publisher) forward(topic string, envelope any) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logError("marshalling event envelope", err)
		return
	}

	if !p.IsConnected() {
		p.logWarn("dropping event, broker not connected", "topic", topic)
		return
	}

	token := p.client.Publish(topic, byte(p.cfg.QoS), false, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			p.logWarn("publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.logError("publish failed", err)
		}
	}()
}

// publish sends one payload and waits for completion.
func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, byte(p.cfg.QoS), retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}

	if p.IsConnected() {
		if err := p.publish(p.cfg.TopicPrefix+"/status", []byte("offline"), true); err != nil {
			p.logWarn("publishing offline status failed", "error", err)
		}
	}

	p.connMu.Lock()
	p.connected = false
	p.connMu.Unlock()

	p.client.Disconnect(uint(defaultPublishTimeout.Milliseconds()))
	return nil
}

func (p *Publisher) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}

func (p *Publisher) logError(msg string, err error) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
