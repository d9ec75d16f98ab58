package testutil

import (
	"sync"

	"github.com/roach88/mixsync/internal/wire"
)

// Outbox records every enqueued message.
type Outbox struct {
	mu   sync.Mutex
	msgs []wire.Message
}

// Enqueue records msg.
func (o *Outbox) Enqueue(msg wire.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
}

// Messages returns a copy of the recorded messages.
func (o *Outbox) Messages() []wire.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]wire.Message(nil), o.msgs...)
}

// Types returns the type of each recorded message, in order.
func (o *Outbox) Types() []wire.MessageType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]wire.MessageType, len(o.msgs))
	for i, m := range o.msgs {
		out[i] = m.Type
	}
	return out
}

// Len returns the number of recorded messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// Reset forgets recorded messages.
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = nil
}
