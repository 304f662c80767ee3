package script

import "sync"

// listenerSet is an ordered set of callbacks keyed by subscription id.
type listenerSet[F any] struct {
	mu      sync.Mutex
	entries []listener[F]
}

type listener[F any] struct {
	id uint64
	fn F
}

func (s *listenerSet[F]) add(id uint64, fn F) {
	s.mu.Lock()
	s.entries = append(s.entries, listener[F]{id: id, fn: fn})
	s.mu.Unlock()
}

// remove drops the listener with the given id. Unknown ids are ignored.
func (s *listenerSet[F]) remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.entries {
		if l.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the callbacks in registration order.
func (s *listenerSet[F]) snapshot() []F {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]F, len(s.entries))
	for i, l := range s.entries {
		out[i] = l.fn
	}
	return out
}

func (s *listenerSet[F]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
