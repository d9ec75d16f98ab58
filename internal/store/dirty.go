package store

// MarkDirty records that inbound changes modified the store and notifies
// observers. Observers run on the caller's goroutine.
func (s *Store) MarkDirty() {
	s.dirtyMu.Lock()
	s.dirty = true
	observers := append([]func(){}, s.observers...)
	s.dirtyMu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Dirty reports whether MarkDirty was called since the last ClearDirty.
func (s *Store) Dirty() bool {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return s.dirty
}

// ClearDirty resets the flag and returns its previous value.
func (s *Store) ClearDirty() bool {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	was := s.dirty
	s.dirty = false
	return was
}

// OnDirty registers fn to be called on every MarkDirty.
func (s *Store) OnDirty(fn func()) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	s.observers = append(s.observers, fn)
}
