package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
	lockErr error
}

func newFakeStore(events ...Event) *fakeStore {
	return &fakeStore{pending: events, failed: map[int64]string{}}
}

func (f *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	n := min(batchSize, len(f.pending))
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ids...)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

func (f *fakeStore) ExtendLease(_ context.Context, _ string, _ []int64, _ time.Duration) error {
	return nil
}

func (f *fakeStore) snapshot() ([]int64, map[int64]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := append([]int64(nil), f.sent...)
	failed := make(map[int64]string, len(f.failed))
	for k, v := range f.failed {
		failed[k] = v
	}
	return sent, failed
}

func TestRelay_SendsPendingBatch(t *testing.T) {
	store := newFakeStore(
		Event{ID: 1, AggregateID: "bk-1", Type: "booking.confirmed"},
		Event{ID: 2, AggregateID: "bk-2", Type: "booking.failed"},
	)
	producer := &fakeProducer{}
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), producer, "bookings", "billing-service"), "relay-1",
		WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = relay.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sent, _ := store.snapshot()
		return len(sent) == 2
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	sent, failed := store.snapshot()
	assert.ElementsMatch(t, []int64{1, 2}, sent)
	assert.Empty(t, failed)
	assert.Len(t, producer.messages, 2)
}

func TestRelay_MarksFailedAndKeepsGoing(t *testing.T) {
	store := newFakeStore(
		Event{ID: 1, AggregateID: "bk-1"},
		Event{ID: 2, AggregateID: "bk-2"},
	)
	wantErr := errors.New("broker unavailable")
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), &fakeProducer{err: wantErr}, "bookings", "svc"), "relay-1")

	relay.tick(context.Background())

	sent, failed := store.snapshot()
	assert.Empty(t, sent)
	require.Len(t, failed, 2, "every row in the batch is attempted")
	assert.Equal(t, wantErr.Error(), failed[1])
	assert.Equal(t, wantErr.Error(), failed[2])
}

func TestRelay_RespectsBatchSize(t *testing.T) {
	store := newFakeStore(
		Event{ID: 1, AggregateID: "a"},
		Event{ID: 2, AggregateID: "b"},
		Event{ID: 3, AggregateID: "c"},
	)
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), &fakeProducer{}, "bookings", "svc"), "relay-1",
		WithBatchSize(2))

	relay.tick(context.Background())
	sent, _ := store.snapshot()
	assert.Equal(t, []int64{1, 2}, sent)

	relay.tick(context.Background())
	sent, _ = store.snapshot()
	assert.Equal(t, []int64{1, 2, 3}, sent)
}

func TestRelay_LockErrorIsRetriedNextTick(t *testing.T) {
	store := newFakeStore(Event{ID: 1, AggregateID: "a"})
	store.lockErr = errors.New("connection reset")
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), &fakeProducer{}, "bookings", "svc"), "relay-1")

	relay.tick(context.Background())
	sent, failed := store.snapshot()
	assert.Empty(t, sent)
	assert.Empty(t, failed)

	store.mu.Lock()
	store.lockErr = nil
	store.mu.Unlock()

	relay.tick(context.Background())
	sent, _ = store.snapshot()
	assert.Equal(t, []int64{1}, sent)
}
