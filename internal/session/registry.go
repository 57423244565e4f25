package session

import "sync"

// Registry is a sequence of optional session slots: insert reuses the
// first null slot or appends; removal nulls the slot and trims
// trailing nulls; iteration skips nulls. Registry guards its slots
// with its own mutex rather than the pool's lock, and Each iterates
// over a snapshot, so inserts and removals may run while a broadcast
// is in progress (and health checks can read it at any time).
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert adds s to the first null slot, or appends it, and returns the
// slot index.
func (r *Registry) Insert(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.sessions {
		if existing == nil {
			r.sessions[i] = s
			return i
		}
	}
	r.sessions = append(r.sessions, s)
	return len(r.sessions) - 1
}

// Remove nulls the slot at index, then trims any trailing nulls.
func (r *Registry) Remove(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.sessions) {
		return
	}
	r.sessions[index] = nil
	for len(r.sessions) > 0 && r.sessions[len(r.sessions)-1] == nil {
		r.sessions = r.sessions[:len(r.sessions)-1]
	}
}

// Each calls fn for every non-null session. fn must not call Insert or
// Remove on this registry.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.Lock()
	snapshot := make([]*Session, len(r.sessions))
	copy(snapshot, r.sessions)
	r.mu.Unlock()

	for _, s := range snapshot {
		if s != nil {
			fn(s)
		}
	}
}

// Len reports the number of non-null sessions, for health/metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s != nil {
			n++
		}
	}
	return n
}
