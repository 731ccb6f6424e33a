package switchboard

import (
	"errors"
	"sync"
)

// Errors returned by Registry.lookup (§4.3, §7 "Resolution failure").
var (
	ErrNotFound = errors.New("slave not found")
	ErrBadIndex = errors.New("invalid index for slave")
)

// Registry is the process-wide mapping from an advertised name to its
// ordered list of publishing sessions (C3, "Daemon" in spec.md). All
// operations are serialized by mu: spec.md §5 requires every read and write
// of the registry to be serialized, and this implementation dispatches
// connection callbacks concurrently (one goroutine per connection) rather
// than funneling through a single event loop, so the mutex carries that
// discipline instead.
type Registry struct {
	mu   sync.Mutex
	byName map[string][]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string][]*Session)}
}

// register prepends s to the list for every name in s.names(), making s the
// newest (index 0) publisher for each. createListener calls it when s
// publishes its first listener, just before inserting that listener (I4).
func (r *Registry) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range s.names() {
		r.byName[n] = append([]*Session{s}, r.byName[n]...)
	}
}

// unregister removes s from every name list it appears in, preserving the
// relative order of the remaining entries.
func (r *Registry) unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range s.names() {
		list := r.byName[n]
		out := list[:0]
		for _, candidate := range list {
			if candidate != s {
				out = append(out, candidate)
			}
		}
		if len(out) == 0 {
			delete(r.byName, n)
		} else {
			r.byName[n] = out
		}
	}
}

// lookup resolves a designator's (name, index) pair to a publishing
// session, per §4.3's ordering policy (index 0 = most recently registered).
func (r *Registry) lookup(name string, index int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byName[name]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	if index < 0 || index >= len(list) {
		return nil, ErrBadIndex
	}
	return list[index], nil
}

// publishers returns the set of distinct sessions currently registered
// under any name, for the "list" admin command (C7).
func (r *Registry) publishers() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Session]struct{})
	var out []*Session
	for _, list := range r.byName {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}
