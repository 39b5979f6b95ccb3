// Package mqtt forwards lifecycle events to an MQTT broker so that other
// services can follow what the host loads and unloads.
//
// Every event is published as JSON to <prefix>/events/<type>. The host's
// own availability is kept retained on <prefix>/status, with a last will
// that marks it offline if the connection drops.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"automata/internal/events"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

// ErrConnectionFailed is returned when the initial broker connection fails.
var ErrConnectionFailed = errors.New("mqtt connection failed")

// Config describes the broker connection.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// EventTopic returns the topic events of type t are published on.
func EventTopic(prefix string, t events.Type) string {
	return prefix + "/events/" + string(t)
}

// StatusTopic returns the retained availability topic.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// statusPayload builds the JSON body for the availability topic.
func statusPayload(clientID, status string, at time.Time) []byte {
	data, _ := json.Marshal(map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": at.UTC().Format(time.RFC3339),
	})
	return data
}

// client is the subset of the paho client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher implements events.Publisher on top of an MQTT connection.
type Publisher struct {
	client  client
	cfg     Config
	logger  *zap.Logger
	timeout time.Duration
}

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), string(statusPayload(cfg.ClientID, "offline", time.Now())), 1, true)
	return opts
}

// Connect dials the broker and announces the host as online.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.QoS > maxQoS {
		return nil, fmt.Errorf("invalid qos %d", cfg.QoS)
	}
	logger = logger.Named("mqtt")

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
		c.Publish(StatusTopic(cfg.TopicPrefix), 1, true, statusPayload(cfg.ClientID, "online", time.Now()))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newPublisher(c, cfg, logger), nil
}

func newPublisher(c client, cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  c,
		cfg:     cfg,
		logger:  logger,
		timeout: defaultPublishTimeout,
	}
}

// Publish sends e without waiting for the broker. Events raised while the
// connection is down are dropped and logged.
func (p *Publisher) Publish(e events.Event) {
	if !p.client.IsConnected() {
		p.logger.Debug("Dropping event while disconnected", zap.String("type", string(e.Type)))
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	topic := EventTopic(p.cfg.TopicPrefix, e.Type)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	go p.await(token, topic)
}

func (p *Publisher) await(token pahomqtt.Token, topic string) {
	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("MQTT publish timed out", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Close marks the host offline and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		token := p.client.Publish(StatusTopic(p.cfg.TopicPrefix), 1, true,
			statusPayload(p.cfg.ClientID, "offline", time.Now()))
		token.WaitTimeout(p.timeout)
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
}
