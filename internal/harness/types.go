package harness

import (
	"github.com/roach88/mixsync/internal/store"
	"github.com/roach88/mixsync/internal/value"
)

// TraceEvent is one message delivered from one peer to the other.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`

	// UUID and Label identify the entity when the payload could be read.
	UUID  string `json:"uuid,omitempty"`
	Label string `json:"label,omitempty"`
	// NewName is set for renames.
	NewName string `json:"new_name,omitempty"`

	// Outcome is "applied", "ignored" when the receiver's gate was off, or
	// the error code the message was discarded with.
	Outcome string `json:"outcome"`
}

// Trace outcomes other than error codes.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
)

// EntityState is one entity in a peer's final state.
type EntityState struct {
	UUID       string       `json:"uuid"`
	Collection string       `json:"collection"`
	Name       string       `json:"name"`
	Fields     value.Object `json:"fields"`
	Version    int64        `json:"version"`
}

func entityState(e store.Entity) EntityState {
	return EntityState{
		UUID:       e.UUID,
		Collection: e.Collection,
		Name:       e.Name,
		Fields:     e.Fields,
		Version:    e.Version,
	}
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every delivered message in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// State maps peer name to its entities, ordered by seq.
	State map[string][]EntityState `json:"state"`

	// Aliases maps scenario aliases to entity uuids.
	Aliases map[string]string `json:"aliases"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		State:   make(map[string][]EntityState),
		Aliases: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
