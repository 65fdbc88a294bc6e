package audit

import (
	"context"
	"sync"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// Sink persists a Record. Implementations (store_mongo.go) must treat the
// write as authoritative: the Masking Engine and Security Context Pipeline
// depend on Enqueue succeeding to avoid silently serving unmasked data.
type Sink interface {
	Write(ctx context.Context, record Record) error
}

// Queue is a bounded, fire-and-forget dispatcher in front of a Sink. The
// caller enqueues and returns immediately; a background worker drains the
// buffer into the Sink. Per spec §4.D "on queue saturation, the decision
// fails closed" — Enqueue returns an error the instant the buffer is full
// rather than blocking or dropping the record silently.
type Queue struct {
	sink   Sink
	buf    chan Record
	logErr func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue builds a Queue with the given buffer capacity. logErr receives
// async write failures (from the background worker) for observability;
// it may be nil.
func NewQueue(sink Sink, capacity int, logErr func(error)) *Queue {
	if logErr == nil {
		logErr = func(error) {}
	}

	q := &Queue{
		sink:   sink,
		buf:    make(chan Record, capacity),
		logErr: logErr,
		done:   make(chan struct{}),
	}

	go q.run()

	return q
}

func (q *Queue) run() {
	defer close(q.done)

	for record := range q.buf {
		if err := q.sink.Write(context.Background(), record); err != nil {
			q.logErr(err)
		}
	}
}

// Enqueue submits a record for async persistence. It returns
// rcerrors.Internal("audit.queue_saturated", ...) immediately if the
// buffer is full — callers on the PHI access path must treat that as a
// fail-closed signal (spec §4.D: "audit must not be silently dropped for
// PHI").
func (q *Queue) Enqueue(record Record) error {
	select {
	case q.buf <- record:
		return nil
	default:
		return rcerrors.Internal("audit.queue_saturated", nil)
	}
}

// Close stops accepting new records and waits for the buffer to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.buf) })
	<-q.done
}
