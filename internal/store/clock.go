package store

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Clock stamps every write with a strictly increasing seq. All ordering in
// the store uses seq, never wall time.
type Clock interface {
	Next() int64
}

// LogicalClock is the default Clock. Safe for concurrent use.
type LogicalClock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
// Used on open to resume after the last write on disk.
func NewClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}

// IDGenerator creates ids for locally created entities.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
type UUIDv7Generator struct{}

// Generate panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
