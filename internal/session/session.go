package session

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hampager/pagegate/internal/message"
	"github.com/hampager/pagegate/internal/model"
)

// maxRetries is how many RETRY acknowledgements an envelope survives before
// it is dropped. Paging is best-effort: exhaustion is a silent drop, not an
// error surfaced upward.
const maxRetries = 5

// AckType is the logical outcome carried by a session-level acknowledgement.
type AckType uint8

const (
	AckOK AckType = iota
	AckRetry
	AckError
)

// String returns a human-readable representation of the ack type.
func (a AckType) String() string {
	switch a {
	case AckOK:
		return "ok"
	case AckRetry:
		return "retry"
	case AckError:
		return "error"
	default:
		return "unknown"
	}
}

// Conn is the transport contract a Session sends through. Send must be
// fire-and-forget: it hands the envelope to an asynchronous writer and
// returns without waiting for the network. ID is a short opaque connection
// label used as the session name until transmitter identity is attached.
type Conn interface {
	ID() string
	RemoteAddr() net.Addr
	Send(env Envelope) error
	Close() error
}

// Envelope wraps exactly one message with its session-assigned sequence
// number and retry counter: the unit actually transmitted and acknowledged.
// At most one Envelope exists per session at any time; that invariant is
// what makes the protocol stop-and-wait.
type Envelope struct {
	Sequence uint8
	Message  message.Message

	retries int
}

// ExpectedSequence is the sequence number a success acknowledgement carries:
// the acknowledger echoes the next sequence it expects, not the one it
// received. Wraps modulo 256.
func (e *Envelope) ExpectedSequence() uint8 { return e.Sequence + 1 }

// retry counts one more transmission attempt and reports whether the
// envelope may still be retransmitted.
func (e *Envelope) retry() bool {
	e.retries++
	return e.retries < maxRetries
}

// Observer receives session delivery events. All methods are called with the
// session name while the session lock is held; implementations must be fast
// and must not call back into the session.
type Observer interface {
	Sent(session string)
	Retransmitted(session string)
	Dropped(session string)
}

// Session is the live, stateful protocol endpoint for one connected
// transmitter. Its identity is the network connection; transmitter metadata
// may be attached, replaced, or absent.
//
// Enqueue, EnqueueAll, and Ack are mutually exclusive per session: the queue
// pop, envelope mutation, and transport hand-off appear atomic with respect
// to other operations on the same session. Operations on different sessions
// never contend.
type Session struct {
	conn     Conn
	observer Observer

	// transmitter is a back-reference to externally-owned identity data,
	// used only for lookup and display. Stored atomically so Name() can be
	// read without taking the session lock.
	transmitter atomic.Pointer[model.Transmitter]

	mu      sync.Mutex
	queue   *messageQueue
	current *Envelope
	nextSeq uint8
	closed  bool
}

// Option configures a Session.
type Option func(*Session)

// WithObserver attaches an Observer for delivery events.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// New creates a session bound to conn.
func New(conn Conn, opts ...Option) *Session {
	s := &Session{
		conn:  conn,
		queue: newMessageQueue(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the transmitter name when identity is attached, falling back
// to the connection's short ID.
func (s *Session) Name() string {
	if t := s.transmitter.Load(); t != nil {
		return t.Name
	}
	return s.conn.ID()
}

// Transmitter returns the attached transmitter metadata, or nil.
func (s *Session) Transmitter() *model.Transmitter {
	return s.transmitter.Load()
}

// SetTransmitter attaches (or replaces) the transmitter identity. The record
// is copied and its network address populated from the connection peer; the
// session never mutates the repository-owned record.
func (s *Session) SetTransmitter(t *model.Transmitter) {
	if t == nil {
		s.transmitter.Store(nil)
		return
	}
	c := *t
	if addr := s.conn.RemoteAddr(); addr != nil {
		c.Address = addr.String()
	}
	s.transmitter.Store(&c)
}

// Enqueue inserts one message into the pending queue and, if the session is
// idle, immediately begins sending it.
func (s *Session) Enqueue(msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue.push(msg)
	s.advance(false)
}

// EnqueueAll inserts a batch of messages and attempts to advance once.
func (s *Session) EnqueueAll(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, m := range msgs {
		s.queue.push(m)
	}
	s.advance(false)
}

// Ack processes a session-level acknowledgement for seq and reports whether
// the sequence number matched expectations. The boolean is diagnostics only:
// the envelope lifecycle proceeds regardless of a mismatch, a deliberate
// leniency that favours protocol liveness over strict validation.
//
// With no envelope outstanding, Ack returns false and changes nothing.
func (s *Session) Ack(seq uint8, ack AckType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.current == nil {
		return false
	}

	var valid, retransmit bool
	switch ack {
	case AckOK:
		valid = seq == s.current.ExpectedSequence()
		s.current = nil
	case AckRetry:
		valid = seq == s.current.Sequence
		if !s.current.retry() {
			// Too many retries, give up on this message.
			slog.Warn("message dropped after retry limit",
				"session", s.Name(),
				"sequence", s.current.Sequence,
				"address", s.current.Message.Address)
			if s.observer != nil {
				s.observer.Dropped(s.Name())
			}
			s.current = nil
		} else {
			retransmit = true
		}
	case AckError:
		valid = seq == s.current.Sequence
		s.current = nil
	}

	s.advance(retransmit)
	return valid
}

// PendingCount returns the number of queued messages, excluding any
// in-flight envelope.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// InFlight reports whether an envelope is awaiting acknowledgement.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close discards the queue and the in-flight envelope and releases the
// connection. Pending messages are not flushed; a reconnecting transmitter
// starts with an empty queue. All further operations are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.current = nil
	s.queue.clear()
	s.mu.Unlock()

	return s.conn.Close()
}

// advance is the send decision, called with the lock held. Idle with a
// non-empty queue: pop the most urgent message, mint the next sequence
// number, and hand the new envelope to the transport, the only place new
// sequence numbers are issued. Awaiting an ack with retransmit requested:
// resend the identical envelope. Otherwise: wait.
func (s *Session) advance(retransmit bool) {
	if s.current == nil {
		msg, ok := s.queue.pop()
		if !ok {
			return
		}
		s.current = &Envelope{Sequence: s.takeSequence(), Message: msg}
		s.send(*s.current)
		if s.observer != nil {
			s.observer.Sent(s.Name())
		}
	} else if retransmit {
		s.send(*s.current)
		if s.observer != nil {
			s.observer.Retransmitted(s.Name())
		}
	}
}

// takeSequence returns the next sequence number, post-incrementing the
// counter. uint8 arithmetic wraps modulo 256 on its own.
func (s *Session) takeSequence() uint8 {
	sn := s.nextSeq
	s.nextSeq++
	return sn
}

func (s *Session) send(env Envelope) {
	if err := s.conn.Send(env); err != nil {
		slog.Warn("session send failed",
			"session", s.Name(),
			"sequence", env.Sequence,
			"err", err)
	}
}
