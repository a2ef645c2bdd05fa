package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/goliatone/go-payments/core"
)

const (
	DefaultTopic     = "payments.transitions"
	EventTypeHeader  = "event_type"
	TransitionedType = "payment.transitioned"
)

// TransitionMessage is the wire form of a committed payment transition.
type TransitionMessage struct {
	Type          string    `json:"type"`
	PaymentID     string    `json:"payment_id"`
	ReservationID string    `json:"reservation_id"`
	Stage         string    `json:"stage"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        int64     `json:"amount"`
	RefundAmount  int64     `json:"refund_amount"`
	Version       int64     `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewTransitionMessage(event core.PaymentTransitionedEvent) TransitionMessage {
	return TransitionMessage{
		Type:          TransitionedType,
		PaymentID:     event.PaymentID,
		ReservationID: event.ReservationID,
		Stage:         string(event.Stage),
		From:          string(event.From),
		To:            string(event.To),
		Amount:        event.Amount,
		RefundAmount:  event.RefundAmount,
		Version:       event.Version,
		OccurredAt:    event.OccurredAt.UTC(),
	}
}

// Publisher writes transition events to a topic keyed by reservation id, so
// every payment of a reservation lands on the same partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka: sync producer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

// NewSyncProducer builds a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	config := sarama.NewConfig()
	if clientID = strings.TrimSpace(clientID); clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, core.NewTransientError(core.TransientConnection, "kafka.connect", err)
	}
	return producer, nil
}

func (p *Publisher) Topic() string {
	if p == nil {
		return ""
	}
	return p.topic
}

func (p *Publisher) PublishTransition(_ context.Context, event core.PaymentTransitionedEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka: publisher is not configured")
	}
	payload, err := json.Marshal(NewTransitionMessage(event))
	if err != nil {
		return fmt.Errorf("kafka: encode transition: %w", err)
	}
	key := event.ReservationID
	if strings.TrimSpace(key) == "" {
		key = event.PaymentID
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(EventTypeHeader), Value: []byte(TransitionedType)},
		},
		Timestamp: event.OccurredAt.UTC(),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return core.NewTransientError(core.TransientConnection, "kafka.publish", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

var _ core.TransitionEventPublisher = (*Publisher)(nil)
