package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "lineageforge/pkg/domain"
	audit "lineageforge/pkg/platform/audit"
	auditmemory "lineageforge/pkg/platform/audit/store/memory"
)

type fakeFetcher struct {
	batches   []kgo.Fetches
	commits   int
	commitErr error
}

func (f *fakeFetcher) PollFetches(_ context.Context) kgo.Fetches {
	if len(f.batches) == 0 {
		return nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next
}

func (f *fakeFetcher) CommitUncommittedOffsets(_ context.Context) error {
	f.commits++
	return f.commitErr
}

func fetchOf(records ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic:      "lineageforge.audit",
			Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
		}},
	}}
}

func recordFor(t *testing.T, event audit.Event) *kgo.Record {
	t.Helper()
	raw, err := audit.MarshalPayload(event)
	require.NoError(t, err)
	return &kgo.Record{Key: []byte(event.ID.String()), Value: raw}
}

func mergeEvent(runID id.RunID) audit.Event {
	return audit.Event{
		ID:        uuid.New(),
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RunID:     runID,
		Subject:   "person",
		Action:    string(audit.EventMergeExecuted),
		Decision:  "merged",
		Details:   map[string]string{"score": "0.75"},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, StoreHandler(auditmemory.NewInMemoryStore()))
	assert.Error(t, err)
	_, err = New(&fakeFetcher{}, nil)
	assert.Error(t, err)
}

func TestPollOnce(t *testing.T) {
	ctx := context.Background()
	runID := id.NewRunID()

	t.Run("stores events and commits", func(t *testing.T) {
		store := auditmemory.NewInMemoryStore()
		first, second := mergeEvent(runID), mergeEvent(runID)
		fetcher := &fakeFetcher{batches: []kgo.Fetches{fetchOf(recordFor(t, first), recordFor(t, second))}}
		c, err := New(fetcher, StoreHandler(store))
		require.NoError(t, err)

		n, err := c.PollOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, fetcher.commits)

		events, err := store.ListByRun(ctx, runID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, first.ID, events[0].ID)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
		assert.Equal(t, "0.75", events[0].Details["score"])
	})

	t.Run("redelivered events are skipped", func(t *testing.T) {
		store := auditmemory.NewInMemoryStore()
		event := mergeEvent(runID)
		rec := recordFor(t, event)
		fetcher := &fakeFetcher{batches: []kgo.Fetches{fetchOf(rec), fetchOf(rec)}}
		c, err := New(fetcher, StoreHandler(store))
		require.NoError(t, err)

		n, err := c.PollOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = c.PollOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 2, fetcher.commits)
	})

	t.Run("malformed records are dropped", func(t *testing.T) {
		store := auditmemory.NewInMemoryStore()
		fetcher := &fakeFetcher{batches: []kgo.Fetches{fetchOf(
			&kgo.Record{Key: []byte("junk"), Value: []byte("{not json")},
			recordFor(t, mergeEvent(runID)),
		)}}
		c, err := New(fetcher, StoreHandler(store))
		require.NoError(t, err)

		n, err := c.PollOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, fetcher.commits)
	})

	t.Run("handler failure skips commit", func(t *testing.T) {
		fetcher := &fakeFetcher{batches: []kgo.Fetches{fetchOf(recordFor(t, mergeEvent(runID)))}}
		c, err := New(fetcher, HandlerFunc(func(context.Context, audit.Event) error {
			return errors.New("disk full")
		}))
		require.NoError(t, err)

		_, err = c.PollOnce(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 0, fetcher.commits)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c, err := New(&fakeFetcher{}, StoreHandler(auditmemory.NewInMemoryStore()))
		require.NoError(t, err)

		_, err = c.PollOnce(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWriterHandler(t *testing.T) {
	var buf bytes.Buffer
	event := mergeEvent(id.NewRunID())
	require.NoError(t, WriterHandler(&buf).Handle(context.Background(), event))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "merge_executed", got["Action"])
}

func TestWindow(t *testing.T) {
	w := newWindow(2)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	assert.True(t, w.add(a))
	assert.True(t, w.add(b))
	assert.False(t, w.add(a))
	assert.True(t, w.add(c))
	// a was evicted by c
	assert.True(t, w.add(a))
	assert.False(t, w.add(c))
}
