// Package consumer reads relayed audit events back off the Kafka topic.
// The relay delivers at least once, so events are deduplicated by id over a
// bounded window before reaching the handler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "lineageforge/pkg/platform/audit"
)

// Handler receives decoded audit events. Returning an error stops the
// consumer before offsets are committed.
type Handler interface {
	Handle(ctx context.Context, event audit.Event) error
}

type HandlerFunc func(ctx context.Context, event audit.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event audit.Event) error { return f(ctx, event) }

// Fetcher is the subset of *kgo.Client the consumer needs.
type Fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

type Consumer struct {
	client  Fetcher
	handler Handler
	logger  *slog.Logger
	seen    *window
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithDedupeWindow sets how many recent event ids are remembered.
func WithDedupeWindow(n int) Option {
	return func(c *Consumer) {
		c.seen = newWindow(n)
	}
}

func New(client Fetcher, handler Handler, opts ...Option) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("kafka client is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	c := &Consumer{
		client:  client,
		handler: handler,
		logger:  slog.Default(),
		seen:    newWindow(10000),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PollOnce handles one fetch and commits its offsets. It returns the number
// of events handed to the handler.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return 0, kgo.ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fetches.EachError(func(topic string, partition int32, err error) {
		c.logger.WarnContext(ctx, "audit fetch error", "topic", topic, "partition", partition, "error", err)
	})

	handled := 0
	iter := fetches.RecordIter()
	for !iter.Done() {
		rec := iter.Next()
		event, err := audit.UnmarshalPayload(rec.Value)
		if err != nil {
			// malformed records are committed past
			c.logger.ErrorContext(ctx, "dropping malformed audit record",
				"key", string(rec.Key),
				"offset", rec.Offset,
				"error", err,
			)
			continue
		}
		if event.ID == uuid.Nil {
			if parsed, err := uuid.Parse(string(rec.Key)); err == nil {
				event.ID = parsed
			}
		}
		if !c.seen.add(event.ID) {
			c.logger.DebugContext(ctx, "skipping redelivered audit event", "event_id", event.ID)
			continue
		}
		if err := c.handler.Handle(ctx, event); err != nil {
			return handled, fmt.Errorf("handle audit event %s: %w", event.ID, err)
		}
		handled++
	}

	if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
		return handled, fmt.Errorf("commit audit offsets: %w", err)
	}
	return handled, nil
}

// Run consumes until ctx is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// NewClient builds a consumer-group client for the audit topic. Offsets are
// committed by the consumer after handling, never automatically.
func NewClient(brokers []string, topic, group string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return cl, nil
}

// StoreHandler appends every event to an audit store.
func StoreHandler(store audit.Store) Handler {
	return HandlerFunc(func(ctx context.Context, event audit.Event) error {
		return store.Append(ctx, event)
	})
}

// WriterHandler writes one JSON document per event.
func WriterHandler(w io.Writer) Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return HandlerFunc(func(_ context.Context, event audit.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(event)
	})
}

// window remembers the last n ids in insertion order.
type window struct {
	ids  map[uuid.UUID]struct{}
	ring []uuid.UUID
	next int
}

func newWindow(n int) *window {
	if n < 1 {
		n = 1
	}
	return &window{ids: make(map[uuid.UUID]struct{}, n), ring: make([]uuid.UUID, 0, n)}
}

// add reports whether id was not already in the window.
func (w *window) add(id uuid.UUID) bool {
	if _, ok := w.ids[id]; ok {
		return false
	}
	if len(w.ring) < cap(w.ring) {
		w.ring = append(w.ring, id)
	} else {
		delete(w.ids, w.ring[w.next])
		w.ring[w.next] = id
		w.next = (w.next + 1) % len(w.ring)
	}
	w.ids[id] = struct{}{}
	return true
}
