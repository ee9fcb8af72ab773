// Package mqttrelay publishes every snapshot as a retained JSON message.
package mqttrelay

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/weatherstation/sensors"
	"github.com/alepar/weatherstation/station"
)

const DefaultTopic = "weatherstation/readings"

const publishTimeout = 5 * time.Second

type Publisher struct {
	client mqtt.Client
	topic  string
}

// DefaultClientID returns a client id that is unique per process.
func DefaultClientID() string {
	return "weatherstation-" + uuid.New().String()
}

// NewPublisher connects to broker, e.g. "tcp://localhost:1883", and waits
// for the connection to be established.
func NewPublisher(broker string, clientID string, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnf("mqtt connection lost: %s", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "couldn't connect to mqtt broker %s", broker)
	}
	log.Infof("connected to mqtt broker %s as %s", broker, clientID)

	return newPublisher(client, topic), nil
}

func newPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Name() string {
	return "mqtt"
}

func (p *Publisher) Send(s station.Snapshot) error {
	payload, err := json.Marshal(newMessage(s))
	if err != nil {
		return errors.Wrap(err, "couldn't marshal readings")
	}

	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to %s failed", p.topic)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

type message struct {
	Time    time.Time          `json:"time"`
	Sensors map[string]reading `json:"sensors"`
}

type reading struct {
	TemperatureC float32  `json:"temperature_c"`
	TemperatureF float32  `json:"temperature_f"`
	Humidity     *float32 `json:"humidity_percent,omitempty"`
	Pressure     *float32 `json:"pressure_atm,omitempty"`
}

func newMessage(s station.Snapshot) message {
	return message{
		Time: s.Time.UTC(),
		Sensors: map[string]reading{
			"bme280":  newReading(s.Barometric),
			"mcp9808": newReading(s.Precision),
			"sht31":   newReading(s.Secondary),
		},
	}
}

func newReading(r sensors.Reading) reading {
	out := reading{
		TemperatureC: r.Temperature,
		TemperatureF: r.Fahrenheit(),
	}
	if r.Fields.Has(sensors.Humidity) {
		h := r.Humidity
		out.Humidity = &h
	}
	if r.Fields.Has(sensors.Pressure) {
		p := r.Pressure
		out.Pressure = &p
	}
	return out
}
