package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hampager/pagegate/internal/message"
)

// ErrAlreadyAttached is returned when a second session attaches under a name
// that already has a live session.
var ErrAlreadyAttached = errors.New("session: transmitter already attached")

// Registry maps transmitter names to their live sessions. Upstream producers
// use it to route messages to a destination transmitter; the network layer
// attaches and detaches sessions as connections come and go.
//
// Names are case-insensitive. All methods are safe for concurrent use, and
// operations on the sessions themselves happen outside the registry lock so
// different transmitters never contend with each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Attach registers s as the live session for name. A name can have only one
// session; a duplicate attach is refused and the caller decides whether to
// drop the old connection first.
func (r *Registry) Attach(name string, s *Session) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, name)
	}
	r.sessions[key] = s
	return nil
}

// Detach removes the registration for name, but only when it still points at
// s; a reconnect may have already replaced the session.
func (r *Registry) Detach(name string, s *Session) {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, exists := r.sessions[key]; exists && cur == s {
		delete(r.sessions, key)
	}
}

// Get returns the live session for name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[strings.ToLower(name)]
	return s, ok
}

// Deliver enqueues msgs on the session owning name's live connection.
// Returns false when the destination is unknown; the producer decides
// whether that is log-and-drop or an error.
func (r *Registry) Deliver(msgs []message.Message, name string) bool {
	s, ok := r.Get(name)
	if !ok {
		return false
	}
	s.EnqueueAll(msgs)
	return true
}

// Broadcast enqueues msgs on every attached session and returns the number
// of sessions reached. Used by the time beacon.
func (r *Registry) Broadcast(msgs []message.Message) int {
	sessions := r.snapshot()
	for _, s := range sessions {
		s.EnqueueAll(msgs)
	}
	return len(sessions)
}

// List returns the attached transmitter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Sessions returns a snapshot of all attached sessions.
func (r *Registry) Sessions() []*Session {
	return r.snapshot()
}

// Count returns the number of attached sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
