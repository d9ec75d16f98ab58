package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out UUID-shaped ids with an increasing suffix:
// 00000000-0000-0000-0000-000000000001, ...000002, and so on.
//
// An optional prefix replaces the first group so two peers in one test
// produce disjoint ids.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. prefix must be 8 hex digits or empty.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "00000000"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-0000-0000-0000-%012d", g.prefix, g.n)
}

// FixedIDs returns predetermined ids in order and panics when they run out,
// which catches a test creating more entities than it declared.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator returning ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
