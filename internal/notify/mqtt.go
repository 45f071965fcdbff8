package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"linewatch/internal/domain"
)

// MQTT publishes notifications as JSON to a broker topic, for home
// automation setups that want to react to disruptions themselves. Each
// publish opens a short-lived session; the monitor is a batch job, not a
// long-lived bus client.
type MQTT struct {
	Broker   string
	Topic    string
	ClientID string
}

func (m *MQTT) Kind() Kind { return KindMQTT }

func (m *MQTT) Notify(ctx context.Context, n domain.Notification) error {
	wait := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}
	clientID := m.ClientID
	if clientID == "" {
		clientID = "linewatch"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.Broker).
		SetClientID(clientID).
		SetConnectTimeout(wait)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("mqtt: connect to %s timed out", m.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	defer client.Disconnect(250)

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}
	pub := client.Publish(m.Topic, 1, false, payload)
	if !pub.WaitTimeout(wait) {
		return fmt.Errorf("mqtt: publish to %s timed out", m.Topic)
	}
	if err := pub.Error(); err != nil {
		return fmt.Errorf("mqtt: publish: %w", err)
	}
	return nil
}
