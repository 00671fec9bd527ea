// Package events implements an optional out-of-process analytics publisher:
// DialogueStarted, DialogueEnded, and DaySummaryUpdated, emitted to Kafka for
// external consumers. Grounded on core/multiagent/protocol_kafka.go's
// KafkaProtocol: a single *kafka.Writer for one topic, built by
// NewPublisher, with JSON-marshaled payloads; sends record no metrics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/skumyol/npcworld/simmodel"
)

// Kind names one of the three published event types.
type Kind string

const (
	DialogueStarted   Kind = "dialogue_started"
	DialogueEnded     Kind = "dialogue_ended"
	DaySummaryUpdated Kind = "day_summary_updated"
)

// Event is the JSON envelope written to the configured topic.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Day       int       `json:"day,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogueStartedPayload is the Payload for a DialogueStarted event.
type DialogueStartedPayload struct {
	DialogueID int64               `json:"dialogue_id"`
	Initiator  string              `json:"initiator"`
	Receiver   string              `json:"receiver"`
	Phase      simmodel.TimePeriod `json:"phase"`
	Location   string              `json:"location"`
}

// DialogueEndedPayload is the Payload for a DialogueEnded event.
type DialogueEndedPayload struct {
	DialogueID   int64  `json:"dialogue_id"`
	MessageCount int    `json:"message_count"`
	Summary      string `json:"summary,omitempty"`
}

// DaySummaryUpdatedPayload is the Payload for a DaySummaryUpdated event.
type DaySummaryUpdatedPayload struct {
	Summary string `json:"summary"`
}

// Publisher publishes Events to a single Kafka topic. A nil *Publisher is
// valid and every method becomes a no-op, so callers can wire events
// optionally without branching at every call site.
type Publisher struct {
	mu     sync.Mutex
	writer *kafka.Writer
	topic  string
}

// NewPublisher dials brokers eagerly (mirroring protocol_kafka.go's
// connection check in NewKafkaProtocol) and returns a Publisher bound to
// topic. Returns an error if no broker is reachable.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("events: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("events: failed to connect to kafka: %w", err)
	}
	conn.Close()

	return &Publisher{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}, nil
}

// Close releases the underlying Kafka writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Publish marshals and writes one event. Failures are returned to the
// caller, who is expected to treat publishing as best-effort and log,
// not abort, on error: events are an optional analytics side channel
// with no bearing on simulation state.
func (p *Publisher) Publish(ctx context.Context, kind Kind, sessionID string, day int, payload any) error {
	if p == nil || p.writer == nil {
		return nil
	}

	evt := Event{Kind: kind, SessionID: sessionID, Day: day, Payload: payload, Timestamp: time.Now()}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", sessionID, day)),
		Value: data,
		Time:  evt.Timestamp,
	})
}
