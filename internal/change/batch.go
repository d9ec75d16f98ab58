package change

// Batch collects the changes produced by one local mutation pass.
//
// Changes to the same entity are folded together: an update after a
// creation in the same batch is merged into the snapshot, consecutive
// updates are composed, and a removal of an entity created in the batch
// cancels both. Within each changeset, first-touch order is kept, except
// for renames, which keep local order.
type Batch struct {
	Creations CreationChangeset
	Updates   UpdateChangeset
	Renames   RenameChangeset
	Removals  RemovalChangeset
}

// Create records a creation.
func (b *Batch) Create(s Snapshot) {
	b.Creations = append(b.Creations, s)
}

// Update records an update, composing with earlier changes to the entity.
// An empty delta is dropped.
func (b *Batch) Update(d Delta) error {
	if d.Empty() {
		return nil
	}
	if i := b.creationIndex(d.UUID); i >= 0 {
		b.Creations[i].Fields = d.Apply(b.Creations[i].Fields)
		return nil
	}
	for i := range b.Updates {
		if b.Updates[i].UUID == d.UUID {
			merged, err := b.Updates[i].Compose(d)
			if err != nil {
				return err
			}
			b.Updates[i] = merged
			return nil
		}
	}
	b.Updates = append(b.Updates, d)
	return nil
}

// Rename records a rename. A rename of an entity created in this batch is
// folded into its snapshot. Back-to-back renames of one entity keep only
// the last name; otherwise renames keep their local order, since a later
// rename may depend on a name an earlier one freed.
func (b *Batch) Rename(r Rename) {
	if i := b.creationIndex(r.UUID); i >= 0 {
		b.Creations[i].Name = r.NewName
		return
	}
	if n := len(b.Renames); n > 0 && b.Renames[n-1].UUID == r.UUID {
		b.Renames[n-1].NewName = r.NewName
		return
	}
	b.Renames = append(b.Renames, r)
}

// Remove records a removal and drops pending changes to the entity.
func (b *Batch) Remove(r Removal) {
	created := false
	if i := b.creationIndex(r.UUID); i >= 0 {
		b.Creations = append(b.Creations[:i], b.Creations[i+1:]...)
		created = true
	}
	b.Updates = filter(b.Updates, func(d Delta) bool { return d.UUID != r.UUID })
	b.Renames = filter(b.Renames, func(rn Rename) bool { return rn.UUID != r.UUID })
	if created {
		return
	}
	b.Removals = append(b.Removals, r)
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Creations) + len(b.Updates) + len(b.Renames) + len(b.Removals)
}

// Reset empties the batch.
func (b *Batch) Reset() {
	*b = Batch{}
}

func (b *Batch) creationIndex(uuid string) int {
	for i := range b.Creations {
		if b.Creations[i].UUID == uuid {
			return i
		}
	}
	return -1
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
