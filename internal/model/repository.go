package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned when the repository is used after Close.
var ErrClosed = errors.New("model: repository closed")

// ErrNotFound is returned when a named record does not exist.
var ErrNotFound = errors.New("model: not found")

// Reader is the consistent read view handed to a View callback. Lookups are
// case-insensitive. The pointers returned are live repository records and
// must not be mutated or retained past the callback.
type Reader interface {
	CallSign(name string) (*CallSign, bool)
	Transmitter(name string) (*Transmitter, bool)
}

// Repository is the shared store of callsigns and transmitters.
//
// Many message-factory invocations may read concurrently; a record mutation
// takes the exclusive side of the lock and waits for in-progress reads to
// finish. Readers must hold the lock only for the span of one View call and
// must not perform slow work (network hand-off) inside the callback.
//
// When a Store is attached, every mutation is written through to disk before
// the in-memory map is updated.
type Repository struct {
	mu           sync.RWMutex
	callsigns    map[string]*CallSign
	transmitters map[string]*Transmitter
	store        *Store // nil = in-memory only (tests)
	closed       bool
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		callsigns:    make(map[string]*CallSign),
		transmitters: make(map[string]*Transmitter),
	}
}

// OpenRepository creates a repository backed by the given store and loads
// all persisted records into memory.
func OpenRepository(store *Store) (*Repository, error) {
	r := NewRepository()
	r.store = store

	callsigns, transmitters, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("model: load repository: %w", err)
	}
	for _, c := range callsigns {
		r.callsigns[keyFor(c.Name)] = c
	}
	for _, t := range transmitters {
		r.transmitters[keyFor(t.Name)] = t
	}
	return r, nil
}

func keyFor(name string) string { return strings.ToLower(name) }

type reader struct{ r *Repository }

func (v reader) CallSign(name string) (*CallSign, bool) {
	c, ok := v.r.callsigns[keyFor(name)]
	return c, ok
}

func (v reader) Transmitter(name string) (*Transmitter, bool) {
	t, ok := v.r.transmitters[keyFor(name)]
	return t, ok
}

// View runs fn under the shared read lock, giving it a consistent snapshot
// of the repository for the duration of the callback. Returns ErrClosed if
// the repository has been closed; otherwise returns fn's error.
func (r *Repository) View(fn func(Reader) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return fn(reader{r})
}

// GetTransmitter returns a copy of the named transmitter record.
func (r *Repository) GetTransmitter(name string) (Transmitter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return Transmitter{}, ErrClosed
	}
	t, ok := r.transmitters[keyFor(name)]
	if !ok {
		return Transmitter{}, fmt.Errorf("%w: transmitter %s", ErrNotFound, name)
	}
	return *t, nil
}

// GetCallSign returns a copy of the named callsign record.
func (r *Repository) GetCallSign(name string) (CallSign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return CallSign{}, ErrClosed
	}
	c, ok := r.callsigns[keyFor(name)]
	if !ok {
		return CallSign{}, fmt.Errorf("%w: callsign %s", ErrNotFound, name)
	}
	return copyCallSign(c), nil
}

// copyCallSign clones a record including its pager slice, so callers can
// mutate the result without reaching into the repository.
func copyCallSign(c *CallSign) CallSign {
	out := *c
	out.Pagers = append([]Pager(nil), c.Pagers...)
	return out
}

// PutCallSign validates and upserts a callsign record.
func (r *Repository) PutCallSign(c CallSign) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.store != nil {
		if err := r.store.PutCallSign(&c); err != nil {
			return fmt.Errorf("model: persist callsign %s: %w", c.Name, err)
		}
	}
	stored := copyCallSign(&c)
	r.callsigns[keyFor(c.Name)] = &stored
	return nil
}

// DeleteCallSign removes a callsign record.
func (r *Repository) DeleteCallSign(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	key := keyFor(name)
	if _, ok := r.callsigns[key]; !ok {
		return fmt.Errorf("%w: callsign %s", ErrNotFound, name)
	}
	if r.store != nil {
		if err := r.store.DeleteCallSign(name); err != nil {
			return fmt.Errorf("model: delete callsign %s: %w", name, err)
		}
	}
	delete(r.callsigns, key)
	return nil
}

// PutTransmitter validates and upserts a transmitter record.
func (r *Repository) PutTransmitter(t Transmitter) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.store != nil {
		if err := r.store.PutTransmitter(&t); err != nil {
			return fmt.Errorf("model: persist transmitter %s: %w", t.Name, err)
		}
	}
	r.transmitters[keyFor(t.Name)] = &t
	return nil
}

// DeleteTransmitter removes a transmitter record.
func (r *Repository) DeleteTransmitter(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	key := keyFor(name)
	if _, ok := r.transmitters[key]; !ok {
		return fmt.Errorf("%w: transmitter %s", ErrNotFound, name)
	}
	if r.store != nil {
		if err := r.store.DeleteTransmitter(name); err != nil {
			return fmt.Errorf("model: delete transmitter %s: %w", name, err)
		}
	}
	delete(r.transmitters, key)
	return nil
}

// ListCallSigns returns copies of every callsign record, sorted by name.
func (r *Repository) ListCallSigns() []CallSign {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CallSign, 0, len(r.callsigns))
	for _, c := range r.callsigns {
		out = append(out, copyCallSign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListTransmitters returns copies of every transmitter record, sorted by name.
func (r *Repository) ListTransmitters() []Transmitter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transmitter, 0, len(r.transmitters))
	for _, t := range r.transmitters {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close marks the repository closed and closes the attached store, if any.
// All subsequent operations return ErrClosed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
