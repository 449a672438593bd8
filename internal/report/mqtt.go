package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/dip-sweep/internal/spectrum"
)

const (
	DefaultTopic          = "dipsweep/dip"
	DefaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // ms
)

// ErrPublishTimeout is returned when the broker did not acknowledge in time
var ErrPublishTimeout = errors.New("publish not acknowledged")

// Publisher is the subset of an MQTT client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientID"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// ConnectMQTT connects to the broker. The returned function disconnects.
func ConnectMQTT(config MQTTConfig) (mqtt.Client, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(DefaultPublishTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT broker %s: %w", config.Broker, token.Error())
	}

	return client, func() { client.Disconnect(disconnectQuiesce) }, nil
}

// MQTTPublisher publishes the dips of each sweep as JSON.
type MQTTPublisher struct {
	client   Publisher
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
}

func NewMQTTPublisher(client Publisher, config MQTTConfig) *MQTTPublisher {
	topic := config.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTPublisher{
		client:   client,
		topic:    topic,
		qos:      config.QoS,
		retained: config.Retained,
		timeout:  DefaultPublishTimeout,
	}
}

func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

func (p *MQTTPublisher) Send(_ context.Context, result *spectrum.SweepResult) error {
	payload, err := json.Marshal(newDetailedUpdate(result))
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("topic %s: %w", p.topic, ErrPublishTimeout)
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return nil
}
