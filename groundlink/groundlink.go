// Package groundlink publishes completed session summaries to an MQTT
// broker so a ground station can keep long-term pack statistics. Publishing
// is best-effort: the monitor never waits on it and a broker outage only
// costs the summary, never flight alerts.
package groundlink

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/fdm225/mahRe2/battery"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher sends session records to a broker topic.
type Publisher struct {
	client paho.Client
	topic  string
	log    *logrus.Logger
}

// Connect dials the broker and returns a publisher for topic. The client
// reconnects on its own after transient failures.
func Connect(broker, clientID, topic string, log *logrus.Logger) (*Publisher, error) {
	if log == nil {
		log = logrus.New()
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return &Publisher{client: client, topic: topic, log: log}, nil
}

// Publish sends one session record as JSON at QoS 1; a session summary is
// worth a delivery guarantee.
func (p *Publisher) Publish(rec battery.SessionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	token := p.client.Publish(p.topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish session record: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish session record: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
}

// Sink adapts a Publisher into a battery.RecordSink that also forwards to
// an underlying sink, so the flight log write and the ground link share one
// flush.
type Sink struct {
	Next      battery.RecordSink
	Publisher *Publisher
	Log       *logrus.Logger
}

func (s *Sink) Append(rec battery.SessionRecord) error {
	if s.Publisher != nil {
		if err := s.Publisher.Publish(rec); err != nil && s.Log != nil {
			s.Log.Errorf("ground link publish: %v", err)
		}
	}
	if s.Next == nil {
		return nil
	}
	return s.Next.Append(rec)
}
