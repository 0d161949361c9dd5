// Package kafka publishes audit events to a Kafka topic. Records are keyed
// by token identifier so one entry's history stays ordered in a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"hashplanet/pkg/platform/audit"
)

// DefaultTopic receives registry audit events when no topic is configured.
const DefaultTopic = "hashplanet.registry.audit"

// payload is the wire form of audit.Event.
type payload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	TokenID   string `json:"token_id"`
	Source    string `json:"source,omitempty"`
	Index     int    `json:"index"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func encode(event audit.Event) ([]byte, error) {
	return json.Marshal(payload{
		ID:        event.ID.String(),
		Type:      string(event.Type),
		TokenID:   event.TokenID.String(),
		Source:    event.Source,
		Index:     event.Index,
		From:      event.From,
		To:        event.To,
		RequestID: event.RequestID,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store implements audit.Store on a Kafka topic.
type Store struct {
	producer Producer
	topic    string
}

// New creates a Kafka audit store. An empty topic selects DefaultTopic.
func New(producer Producer, topic string) *Store {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Store{producer: producer, topic: topic}
}

// NewClient dials the brokers with settings suited to an audit log: every
// record is acknowledged by all in-sync replicas and retried idempotently.
func NewClient(brokers []string, extra ...kgo.Opt) (*kgo.Client, error) {
	opts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}, extra...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Append produces one record and waits for the broker acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.TokenID.Hex()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicas int16) error {
	if topic == "" {
		topic = DefaultTopic
	}
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, replicas, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
