package transport

import (
	"context"
	"sync"

	"github.com/roach88/mixsync/internal/wire"
)

// Queue is an unbounded FIFO of outbound messages.
//
// Enqueue never blocks, so the propagation layer can hand a whole changeset
// to the transport while a slow link drains it. A size-1 signal channel
// lets consumers wait with a select alongside ctx.Done().
type Queue struct {
	mu     sync.Mutex
	msgs   []wire.Message
	closed bool
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		msgs:   make([]wire.Message, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends msg. Messages enqueued after Close are dropped.
func (q *Queue) Enqueue(msg wire.Message) {
	q.Push(msg)
}

// Push appends msg and reports whether the queue accepted it.
func (q *Queue) Push(msg wire.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.msgs = append(q.msgs, msg)

	// Coalesce: one pending signal is enough to wake the consumer.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front message without blocking.
func (q *Queue) TryDequeue() (wire.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) == 0 {
		return wire.Message{}, false
	}
	msg := q.msgs[0]
	// Drop the payload reference so the backing array does not pin it.
	q.msgs[0] = wire.Message{}
	if len(q.msgs) == 1 {
		q.msgs = q.msgs[:0]
	} else {
		q.msgs = q.msgs[1:]
	}
	return msg, true
}

// Dequeue blocks until a message is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (wire.Message, error) {
	for {
		if msg, ok := q.TryDequeue(); ok {
			return msg, nil
		}
		if q.Closed() {
			return wire.Message{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return wire.Message{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Wait returns a channel that receives when messages may be available.
// It is closed by Close.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Drain removes and returns every queued message.
func (q *Queue) Drain() []wire.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = make([]wire.Message, 0, 64)
	return out
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting messages and wakes waiters. Queued messages can
// still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Chan pumps the queue into a channel until ctx is done or the queue is
// closed and drained. The returned channel is closed when the pump stops.
func (q *Queue) Chan(ctx context.Context) <-chan wire.Message {
	out := make(chan wire.Message)
	go func() {
		defer close(out)
		for {
			msg, err := q.Dequeue(ctx)
			if err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
