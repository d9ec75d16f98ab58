package transport

import (
	"fmt"

	"github.com/roach88/mixsync/internal/wire"
)

// Pipe connects two in-process endpoints. Messages are marshaled into
// frames exactly as a Link would send them, so a Pipe exercises the frame
// encoding without a network.
type Pipe struct {
	A, B *Endpoint
}

// NewPipe returns two connected endpoints.
func NewPipe() *Pipe {
	ab, ba := NewQueue(), NewQueue()
	return &Pipe{
		A: &Endpoint{name: "a", out: ab, in: ba},
		B: &Endpoint{name: "b", out: ba, in: ab},
	}
}

// Close closes both directions.
func (p *Pipe) Close() {
	p.A.out.Close()
	p.B.out.Close()
}

// Endpoint is one side of a Pipe.
type Endpoint struct {
	name string
	out  *Queue
	in   *Queue
}

// Enqueue sends msg to the other side.
func (e *Endpoint) Enqueue(msg wire.Message) {
	frame := wire.MarshalMessage(msg)
	// A frame is carried as the payload of a holder message and decoded
	// again in Receive.
	e.out.Enqueue(wire.Message{Payload: frame})
}

// Receive returns the next inbound message without blocking.
func (e *Endpoint) Receive() (wire.Message, bool, error) {
	holder, ok := e.in.TryDequeue()
	if !ok {
		return wire.Message{}, false, nil
	}
	msg, err := wire.UnmarshalMessage(holder.Payload)
	if err != nil {
		return wire.Message{}, true, fmt.Errorf("pipe %s: %w", e.name, err)
	}
	return msg, true, nil
}

// Pending returns the number of inbound messages waiting.
func (e *Endpoint) Pending() int {
	return e.in.Len()
}
