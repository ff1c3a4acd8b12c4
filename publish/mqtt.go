package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mklimuk/gyro"
	"github.com/mklimuk/gyro/itg3200"
)

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Source is a device producing gyro readings.
type Source interface {
	Subscribe(sig gyro.Signal, h gyro.Handler)
	Reading() itg3200.Reading
}

type Message struct {
	itg3200.Reading
	Timestamp time.Time `json:"ts"`
}

type Opts struct {
	QoS      byte
	Retained bool
	Every    int
	Logger   *slog.Logger
	Now      func() time.Time
}

type Opt func(*Opts)

func WithQoS(qos byte) Opt {
	return func(o *Opts) {
		o.QoS = qos
	}
}

func WithRetained(retained bool) Opt {
	return func(o *Opts) {
		o.Retained = retained
	}
}

// WithEvery publishes only every n-th reading.
func WithEvery(n int) Opt {
	return func(o *Opts) {
		if n < 1 {
			n = 1
		}
		o.Every = n
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// Publisher sends a JSON message on every gyro update. Publishing happens on
// the control loop and never waits for the broker.
type Publisher struct {
	config Opts
	client Client
	topic  string
	source Source
	count  int
}

func NewPublisher(client Client, topic string, opts ...Opt) *Publisher {
	config := Opts{
		Every:  1,
		Logger: slog.Default(),
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Publisher{config: config, client: client, topic: topic}
}

// Attach subscribes the publisher to the source's updates.
func (p *Publisher) Attach(src Source) {
	p.source = src
	src.Subscribe(gyro.SignalUpdate, p.onUpdate)
}

func (p *Publisher) onUpdate() {
	p.count++
	if p.count%p.config.Every != 0 {
		return
	}
	payload, err := json.Marshal(Message{Reading: p.source.Reading(), Timestamp: p.config.Now()})
	if err != nil {
		p.config.Logger.Error("json marshal error", "error", err)
		return
	}
	token := p.client.Publish(p.topic, p.config.QoS, p.config.Retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.config.Logger.Error("MQTT publish error", "topic", p.topic, "error", token.Error())
		}
	}()
}

// Connect dials the broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	return client, nil
}
