// Package outbox relays persisted audit events from the outbox table to Kafka.
// Delivery is at least once: rows are marked published only after the broker
// acknowledges them, keyed by event id so consumers can deduplicate.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "lineageforge/pkg/platform/audit"
)

// Store is the outbox side the relay drains.
type Store interface {
	Pending(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	store     Store
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		r.batchSize = n
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		r.interval = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func New(store Store, producer Producer, topic string, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	r := &Relay{
		store:     store,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RelayOnce publishes one batch and returns how many rows it marked.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: r.topic,
			Key:   []byte(e.ID.String()),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "run_id", Value: []byte(e.AggregateID)},
			},
		}
	}

	results := r.producer.ProduceSync(ctx, records...)
	published := make([]uuid.UUID, 0, len(entries))
	var firstErr error
	for i, res := range results {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		published = append(published, entries[i].ID)
	}
	if err := r.store.MarkPublished(ctx, published); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if firstErr != nil {
		return len(published), fmt.Errorf("produce audit records: %w", firstErr)
	}
	return len(published), nil
}

// Run relays until ctx is cancelled. Failed batches are retried on the next
// tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "outbox relay batch failed", "topic", r.topic, "error", err)
		} else if n > 0 {
			r.logger.DebugContext(ctx, "outbox relay batch published", "topic", r.topic, "count", n)
		}
		// drain without waiting while full batches keep coming
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewClient builds a franz-go client for the audit topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return cl, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func EnsureTopic(ctx context.Context, cl *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
