package playback

import (
	"sync"

	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// Registry holds the live sessions behind a single mutex. Channel
// callbacks carry only the raw numeric session identity; the dispatcher
// resolves it here, so no Channel ever holds a strong reference to a
// Session (the weak-handle rule from the cyclic-ownership design note).
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	nextID   uint64
	max      int
}

// NewRegistry creates a registry admitting at most max concurrent sessions.
func NewRegistry(max int) *Registry {
	return &Registry{sessions: make(map[uint64]*Session), max: max}
}

// NextID allocates the next session id; ids are unique per Session Server
// lifetime and never reused.
func (r *Registry) NextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Add admits s, enforcing the maxPlaybacks capacity budget.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.max {
		return rierr.Wrap(rierr.ResourceExhausted, "max playbacks exceeded")
	}
	r.sessions[s.ID()] = s
	return nil
}

// Get resolves id to a live session, or nil.
func (r *Registry) Get(id uint64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove detaches id from the registry and returns the session for the
// caller to Destroy outside the lock. Returns nil if id is unknown.
func (r *Registry) Remove(id uint64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	delete(r.sessions, id)
	return s
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
