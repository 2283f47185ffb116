package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/pkg/log"
	"github.com/rideline-io/rideline/pkg/mqtt"
	"github.com/rideline-io/rideline/pkg/mqtt/topic"
)

var errMQTTNotConnected = errors.New("mqtt channel not connected")

// MQTTConfig configures the MQTT channel. Client holds the broker settings; empty
// credentials default to the driver id and the bearer token.
type MQTTConfig struct {
	Client    mqtt.ClientConfig
	TopicRoot string
	QoS       int
}

type presence struct {
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
}

// mqttTransport carries the driver events over MQTT:
// downstream {root}/driver/{id}/down/{event}, upstream {root}/driver/{id}/up/{event}.
type mqttTransport struct {
	cfg      MQTTConfig
	topics   *topic.TopicBuilder
	h        core.Handshake
	listener core.Listener

	mu     sync.Mutex
	client mqtt.Client

	// gen invalidates hooks of a replaced or retired client. It changes under mu.
	gen atomic.Uint64
}

// NewMQTTFactory returns a factory that opens one MQTT session per handshake.
func NewMQTTFactory(cfg MQTTConfig) core.TransportFactory {
	return func(h core.Handshake, l core.Listener) (core.Transport, error) {
		if cfg.TopicRoot == "" {
			return nil, &core.ConfigurationError{Err: errors.New("mqtt topic root is required")}
		}
		t := &mqttTransport{cfg: cfg, topics: topic.NewTopicBuilder(cfg.TopicRoot), h: h, listener: l}
		// Validate the broker settings up front so misconfiguration surfaces from Connect.
		if _, err := mqtt.NewClient(t.clientConfig(0)); err != nil {
			return nil, &core.ConfigurationError{Err: err}
		}
		return t, nil
	}
}

func (t *mqttTransport) clientConfig(gen uint64) *mqtt.ClientConfig {
	cc := t.cfg.Client
	if cc.Username == "" {
		cc.Username = t.h.DriverID
	}
	if cc.Password == "" {
		cc.Password = t.h.Token
	}
	if t.h.ConnectTimeout > 0 {
		cc.ConnectTimeout = t.h.ConnectTimeout
	}
	if cc.ClientID == "" {
		cc.ClientID = fmt.Sprintf("driver-%s-%s", t.h.DriverID, uuid.NewString()[:8])
	}
	offline, _ := json.Marshal(presence{DriverID: t.h.DriverID, Status: "offline"})
	cc.WillTopic = t.topics.Presence(t.h.DriverID)
	cc.WillPayload = offline
	cc.WillQoS = byte(t.cfg.QoS)
	cc.WillRetain = true

	cc.OnConnectionUp = func() {
		if t.gen.Load() != gen {
			return
		}
		go t.announce(gen)
	}
	cc.OnConnectionDown = func(reason string) {
		if t.retire(gen) {
			t.listener.OnDisconnect(reason)
		}
	}
	cc.OnConnectError = func(err error) {
		if t.retire(gen) {
			t.listener.OnConnectError(err)
		}
	}
	return &cc
}

// retire stops the client of gen once its session failed, before autopaho dials again.
// Retries belong to the connection manager, which calls Reconnect.
func (t *mqttTransport) retire(gen uint64) bool {
	t.mu.Lock()
	if t.gen.Load() != gen {
		t.mu.Unlock()
		return false
	}
	t.gen.Add(1)
	c := t.client
	t.client = nil
	t.mu.Unlock()

	if c != nil {
		go c.Disconnect(context.Background())
	}
	return true
}

// announce publishes the retained online presence, then reports the connection.
func (t *mqttTransport) announce(gen uint64) {
	online, _ := json.Marshal(presence{DriverID: t.h.DriverID, Status: "online", Platform: t.h.Platform, Version: t.h.Version})
	if c := t.current(); c != nil {
		if err := c.Publish(context.Background(), t.topics.Presence(t.h.DriverID), t.cfg.QoS, true, online); err != nil {
			log.Warn("Failed to publish presence", "driverID", t.h.DriverID, "error", err.Error())
		}
	}
	if t.gen.Load() == gen {
		t.listener.OnConnect()
	}
}

func (t *mqttTransport) current() mqtt.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *mqttTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}
	return t.startLocked(ctx)
}

func (t *mqttTransport) startLocked(ctx context.Context) error {
	gen := t.gen.Add(1)
	c, err := mqtt.NewClient(t.clientConfig(gen))
	if err != nil {
		return err
	}
	// Recorded now, sent on every connection up.
	if err := c.Subscribe(ctx, t.topics.DownWildcard(t.h.DriverID), t.cfg.QoS, t.onMessage); err != nil {
		return err
	}
	t.client = c
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		t.client = nil
		return err
	}
	return nil
}

func (t *mqttTransport) onMessage(_ context.Context, tp string, payload []byte) {
	name, ok := t.topics.EventName(tp)
	if !ok {
		return
	}
	t.listener.OnEvent(name, json.RawMessage(payload))
}

// Reconnect replaces the session without reporting the old one. After a retired
// session it simply starts a new client.
func (t *mqttTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old := t.client; old != nil {
		t.gen.Add(1)
		t.client = nil
		go old.Disconnect(context.Background())
	}
	return t.startLocked(ctx)
}

func (t *mqttTransport) Close() error {
	t.mu.Lock()
	c := t.client
	t.client = nil
	t.gen.Add(1)
	t.mu.Unlock()

	if c == nil {
		return nil
	}
	wasConnected := c.IsConnected()
	if wasConnected {
		ctx := context.Background()
		_ = c.Unsubscribe(ctx, t.topics.DownWildcard(t.h.DriverID))
		offline, _ := json.Marshal(presence{DriverID: t.h.DriverID, Status: "offline"})
		_ = c.Publish(ctx, t.topics.Presence(t.h.DriverID), t.cfg.QoS, true, offline)
	}
	c.Disconnect(context.Background())
	if wasConnected {
		t.listener.OnDisconnect(core.ReasonClientDisconnect)
	}
	return nil
}

func (t *mqttTransport) Emit(ctx context.Context, event string, payload any) error {
	c := t.current()
	if c == nil || !c.IsConnected() {
		return errMQTTNotConnected
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.Publish(ctx, t.topics.Up(t.h.DriverID, event), t.cfg.QoS, false, b)
}

func (t *mqttTransport) Connected() bool {
	c := t.current()
	return c != nil && c.IsConnected()
}
