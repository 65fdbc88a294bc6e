package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionForPartitionsPHIMonthlyAndSessionDaily(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "audit_phi_access_2026_07", collectionFor(Record{Kind: KindPHIAccess, Timestamp: ts}))
	assert.Equal(t, "audit_session_2026_07_31", collectionFor(Record{Kind: KindSession, Timestamp: ts}))
}

type fakeSink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (f *fakeSink) Write(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.records = append(f.records, r)

	return nil
}

func (f *fakeSink) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.records)
}

func TestQueueEnqueueDrainsToSink(t *testing.T) {
	sink := &fakeSink{}
	q := NewQueue(sink, 4, nil)
	defer q.Close()

	require.NoError(t, q.Enqueue(Record{TenantID: "tenant-a", RecordID: "rec-1"}))

	assert.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, time.Millisecond)
}

func TestQueueEnqueueFailsClosedWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	sink := blockingSink{unblock: block}

	q := NewQueue(sink, 1, nil)
	defer func() {
		close(block)
		q.Close()
	}()

	// First record is immediately pulled by the worker and blocks inside
	// Write; the buffer (capacity 1) absorbs a second. A third must see
	// a full buffer and fail closed.
	require.NoError(t, q.Enqueue(Record{RecordID: "rec-1"}))

	// Give the worker a moment to pull rec-1 out of the channel into Write.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, q.Enqueue(Record{RecordID: "rec-2"}))

	err := q.Enqueue(Record{RecordID: "rec-3"})
	require.Error(t, err)
}

type blockingSink struct {
	unblock chan struct{}
}

func (b blockingSink) Write(_ context.Context, _ Record) error {
	<-b.unblock
	return nil
}

func TestQueueLogsAsyncWriteFailures(t *testing.T) {
	var mu sync.Mutex
	var gotErr error

	sink := &fakeSink{err: errors.New("mongo down")}
	q := NewQueue(sink, 4, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
	})
	defer q.Close()

	require.NoError(t, q.Enqueue(Record{RecordID: "rec-1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	}, time.Second, time.Millisecond)
}

type fakeAMQPChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	err       error
}

func (f *fakeAMQPChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.published = append(f.published, msg)

	return nil
}

func TestFanoutPublishesAfterPrimaryWriteSucceeds(t *testing.T) {
	primary := &fakeSink{}
	ch := &fakeAMQPChannel{}

	sink := &FanoutSink{primary: primary, channel: ch, exchange: "audit.events", logErr: func(error) {}}

	err := sink.Write(context.Background(), Record{TenantID: "tenant-a", Kind: KindPHIAccess, RecordID: "rec-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, primary.len())
	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.published, 1)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
}

func TestFanoutSwallowsBrokerFailureWithoutFailingWrite(t *testing.T) {
	primary := &fakeSink{}
	ch := &fakeAMQPChannel{err: errors.New("broker unreachable")}

	var loggedErr error
	sink := &FanoutSink{primary: primary, channel: ch, exchange: "audit.events", logErr: func(err error) { loggedErr = err }}

	err := sink.Write(context.Background(), Record{TenantID: "tenant-a", RecordID: "rec-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.len())
	assert.Error(t, loggedErr)
}

func TestFanoutDoesNotPublishWhenPrimaryWriteFails(t *testing.T) {
	primary := &fakeSink{err: errors.New("mongo down")}
	ch := &fakeAMQPChannel{}

	sink := &FanoutSink{primary: primary, channel: ch, exchange: "audit.events", logErr: func(error) {}}

	err := sink.Write(context.Background(), Record{TenantID: "tenant-a", RecordID: "rec-1"})
	require.Error(t, err)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Empty(t, ch.published)
}
