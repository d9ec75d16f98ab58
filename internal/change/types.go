package change

import (
	"fmt"
	"slices"

	"github.com/roach88/mixsync/internal/value"
)

// Kind identifies one of the four mutation kinds.
type Kind int

const (
	KindCreation Kind = iota + 1
	KindUpdate
	KindRemoval
	KindRename
)

// String returns the lower-case kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindCreation:
		return "creation"
	case KindUpdate:
		return "update"
	case KindRemoval:
		return "removal"
	case KindRename:
		return "rename"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record is a change record that goes through the codec.
// Only Snapshot and Delta implement it; removals and renames are framed
// directly as strings.
type Record interface {
	Kind() Kind
	ID() string
	Label() string
	record()
}

// Snapshot is the full encodable representation of a newly created entity.
type Snapshot struct {
	UUID       string
	Collection string
	Name       string
	Fields     value.Object
}

func (Snapshot) record() {}

func (Snapshot) Kind() Kind { return KindCreation }

func (s Snapshot) ID() string { return s.UUID }

// Label is a human-readable "collection/name" used in logs.
func (s Snapshot) Label() string { return s.Collection + "/" + s.Name }

func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot(%s %s, %d fields)", s.UUID, s.Label(), len(s.Fields))
}

// Delta is a partial update of an existing entity: Set fields are written,
// Unset fields are removed. Name is informational; renames travel as Rename.
type Delta struct {
	UUID       string
	Collection string
	Name       string
	Set        value.Object
	Unset      []string
}

func (Delta) record() {}

func (Delta) Kind() Kind { return KindUpdate }

func (d Delta) ID() string { return d.UUID }

func (d Delta) Label() string { return d.Collection + "/" + d.Name }

func (d Delta) String() string {
	return fmt.Sprintf("Delta(%s %s, set=%d unset=%d)", d.UUID, d.Label(), len(d.Set), len(d.Unset))
}

// Empty reports whether applying the delta would change nothing.
func (d Delta) Empty() bool {
	return len(d.Set) == 0 && len(d.Unset) == 0
}

// Compose returns a delta equivalent to applying d and then next.
// Both must target the same entity.
func (d Delta) Compose(next Delta) (Delta, error) {
	if d.UUID != next.UUID {
		return Delta{}, fmt.Errorf("compose deltas for different entities: %s and %s", d.UUID, next.UUID)
	}
	out := Delta{
		UUID:       d.UUID,
		Collection: d.Collection,
		Name:       next.Name,
		Set:        d.Set.Clone(),
	}
	if out.Set == nil {
		out.Set = value.Object{}
	}
	if out.Name == "" {
		out.Name = d.Name
	}

	unset := make(map[string]bool, len(d.Unset)+len(next.Unset))
	for _, k := range d.Unset {
		unset[k] = true
	}
	for _, k := range next.Unset {
		delete(out.Set, k)
		unset[k] = true
	}
	for k, v := range next.Set {
		out.Set[k] = v
		delete(unset, k)
	}
	for k := range unset {
		out.Unset = append(out.Unset, k)
	}
	slices.Sort(out.Unset)
	return out, nil
}

// Apply returns fields with the delta applied. fields is not modified.
func (d Delta) Apply(fields value.Object) value.Object {
	out := fields.Clone()
	if out == nil {
		out = value.Object{}
	}
	for _, k := range d.Unset {
		delete(out, k)
	}
	for k, v := range d.Set {
		out[k] = v
	}
	return out
}

// Removal identifies an entity to remove.
type Removal struct {
	UUID       string
	DebugLabel string
}

// Rename carries the new name of an entity.
type Rename struct {
	UUID       string
	NewName    string
	DebugLabel string
}

// Identity is what the store reports for an entity it created.
type Identity struct {
	UUID       string
	Collection string
	Name       string
}

// Changesets are ordered batches of one kind. The producer chooses the order
// (dependencies first) and it is preserved end to end.
type (
	CreationChangeset []Snapshot
	UpdateChangeset   []Delta
	RemovalChangeset  []Removal
	RenameChangeset   []Rename
)
