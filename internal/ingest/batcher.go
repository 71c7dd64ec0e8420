// Package ingest provides the multi-producer/single-consumer channel and
// batching policy that sits between the wire decoders and the applier
// (§4.3, §4.4): connection handlers push decoded messages in, and a
// single goroutine drains them into size- or timeout-bounded batches.
package ingest

import (
	"context"
	"time"

	"tradingengine/internal/domain"
)

// DefaultBatchSize and DefaultBatchTimeout are the batching policy
// defaults (§4.4, §6): a batch is released when it reaches
// DefaultBatchSize messages, or DefaultBatchTimeout elapses since the
// first message in the batch arrived, whichever happens first.
const (
	DefaultBatchSize    = 1000
	DefaultBatchTimeout = 100 * time.Millisecond
)

// Channel is the MPSC ingest point: any number of connection handlers
// call Send concurrently; a single Batcher goroutine calls Recv.
type Channel struct {
	ch chan *domain.DataMessage
}

// NewChannel creates a buffered ingest channel. A capacity a few
// multiples of the batch size keeps producers from blocking on a
// momentarily slow consumer without unbounding memory.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan *domain.DataMessage, capacity)}
}

// Send enqueues a decoded message, stamping QueueTsMs at the moment of
// enqueue (§4.4: "on each enqueue, queue_ts = now_ms is stamped") so the
// batcher's later dequeue does not understate how long a message waited
// in the channel. It blocks if the channel is full, applying
// backpressure to the connection handler that called it.
func (c *Channel) Send(ctx context.Context, m *domain.DataMessage) error {
	m.QueueTsMs = domain.TimestampMs(time.Now().UnixMilli())
	select {
	case c.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Batcher drains a Channel into batches of up to size messages,
// releasing a batch early if timeout elapses since the first message of
// the (non-empty) in-progress batch arrived (§4.4).
type Batcher struct {
	ch      *Channel
	size    int
	timeout time.Duration
}

// NewBatcher creates a Batcher with the given policy. Zero values fall
// back to the documented defaults.
func NewBatcher(ch *Channel, size int, timeout time.Duration) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &Batcher{ch: ch, size: size, timeout: timeout}
}

// Run drains batches until ctx is cancelled, calling emit once per
// batch. A batch is never empty: the timer only starts once the first
// message of a new batch arrives, so Run never emits on a bare timeout
// with nothing collected (§4.4). On cancellation it drains whatever is
// still sitting in the channel buffer into the in-progress batch and
// emits that as one final batch before returning, so a message a
// connection handler already enqueued is never silently dropped by
// shutdown (§5).
func (b *Batcher) Run(ctx context.Context, emit func([]*domain.DataMessage)) {
	batch := make([]*domain.DataMessage, 0, b.size)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		emit(batch)
		batch = make([]*domain.DataMessage, 0, b.size)
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			b.drainRemaining(&batch)
			flush()
			return
		case m := <-b.ch.ch:
			if len(batch) == 0 {
				timer = time.NewTimer(b.timeout)
				timerC = timer.C
			}
			batch = append(batch, m)
			if len(batch) >= b.size {
				flush()
			}
		case <-timerC:
			flush()
		}
	}
}

// drainRemaining appends every message already sitting in the channel
// buffer into batch. Non-blocking: it only picks up what a producer has
// already enqueued (QueueTsMs already stamped by Send), not anything
// that might arrive a moment later.
func (b *Batcher) drainRemaining(batch *[]*domain.DataMessage) {
	for {
		select {
		case m := <-b.ch.ch:
			*batch = append(*batch, m)
		default:
			return
		}
	}
}
