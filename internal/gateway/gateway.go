// Package gateway is the central orchestrator for PageGate.
//
// All application code (HTTP handlers, the TCP transmitter server, the
// legacy bridge, the time beacon) talks to the Gateway, never directly to
// the factories, the repository, or the session registry. This keeps the
// layering flat and the coupling low.
//
// Data flow:
//
//	Producer → Gateway.PlaceCall → message.CallFactory → session.Session
//	Beacon   → Gateway.BroadcastTime → message.TimeFactory → all sessions
//	Network  → Gateway.Connect / Disconnect → session.Registry
package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hampager/pagegate/internal/message"
	"github.com/hampager/pagegate/internal/metrics"
	"github.com/hampager/pagegate/internal/model"
	"github.com/hampager/pagegate/internal/session"
)

// ─── Error sentinels ──────────────────────────────────────────────────────────

var (
	// ErrUnknownTransmitter is returned when a connection authenticates with
	// a name that has no repository record.
	ErrUnknownTransmitter = errors.New("gateway: unknown transmitter")

	// ErrAuthFailed is returned when the presented auth key does not match
	// the transmitter record.
	ErrAuthFailed = errors.New("gateway: authentication failed")
)

// ─── Request / Response types ─────────────────────────────────────────────────

// CallResult summarises what happened to one placed call.
type CallResult struct {
	// MessagesQueued is the total number of pager messages enqueued across
	// all destination transmitters.
	MessagesQueued int `json:"messages_queued"`

	// UnknownDestinations lists the named transmitters that had no live
	// session; messages for them were dropped.
	UnknownDestinations []string `json:"unknown_destinations,omitempty"`
}

// SessionInfo is a point-in-time view of one live session, used by the
// monitor endpoints.
type SessionInfo struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Pending  int    `json:"pending"`
	InFlight bool   `json:"in_flight"`
}

// ─── Option / functional options ─────────────────────────────────────────────

// Option is a functional option for the Gateway.
type Option func(*Gateway)

// WithMetrics attaches a metrics.Registry so that delivery events and call
// routing increment the relevant counters.
func WithMetrics(reg *metrics.Registry) Option {
	return func(g *Gateway) { g.metrics = reg }
}

// ─── Gateway ─────────────────────────────────────────────────────────────────

// Gateway wires the repository, the session registry, and the per-protocol
// message factories into a single façade. All methods are safe for
// concurrent use.
type Gateway struct {
	repo     *model.Repository
	registry *session.Registry
	metrics  *metrics.Registry

	timeFactory   *message.TimeFactory
	identFactory  *message.IdentificationFactory
	callFactories map[model.Protocol]*message.CallFactory
}

// New creates a Gateway around repo. One call factory is built per protocol
// family: Skyper with its charset encoder, Alphapoc with a pass-through.
func New(repo *model.Repository, opts ...Option) (*Gateway, error) {
	if repo == nil {
		return nil, errors.New("gateway: repository must not be nil")
	}

	skyper, err := message.NewCallFactory(repo, model.ProtocolSkyper, message.SkyperEncoder)
	if err != nil {
		return nil, fmt.Errorf("gateway: skyper factory: %w", err)
	}
	alphapoc, err := message.NewCallFactory(repo, model.ProtocolAlphapoc, message.NopEncoder)
	if err != nil {
		return nil, fmt.Errorf("gateway: alphapoc factory: %w", err)
	}

	g := &Gateway{
		repo:         repo,
		registry:     session.NewRegistry(),
		timeFactory:  message.NewTimeFactory(),
		identFactory: message.NewIdentificationFactory(),
		callFactories: map[model.Protocol]*message.CallFactory{
			model.ProtocolSkyper:   skyper,
			model.ProtocolAlphapoc: alphapoc,
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Repository returns the shared record repository.
func (g *Gateway) Repository() *model.Repository { return g.repo }

// NewSession builds a session on conn, wired to the gateway's metrics.
func (g *Gateway) NewSession(conn session.Conn) *session.Session {
	if g.metrics == nil {
		return session.New(conn)
	}
	return session.New(conn, session.WithObserver(sessionObserver{g.metrics}))
}

// ─── Connect / Disconnect ─────────────────────────────────────────────────────

// Connect authenticates a fresh session as the named transmitter, attaches
// it to the registry, and queues the welcome traffic (identification plus an
// immediate time broadcast). The auth key comparison is constant-time.
// Device identity reported in the handshake, when present, overrides the
// stored record for the lifetime of the session.
func (g *Gateway) Connect(s *session.Session, name, authKey, deviceType, deviceVersion string) error {
	tx, err := g.repo.GetTransmitter(name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownTransmitter, name)
		}
		return fmt.Errorf("gateway: connect %s: %w", name, err)
	}

	if subtle.ConstantTimeCompare([]byte(authKey), []byte(tx.AuthKey)) != 1 {
		return fmt.Errorf("%w: %s", ErrAuthFailed, name)
	}

	if deviceType != "" {
		tx.DeviceType = deviceType
		tx.DeviceVersion = deviceVersion
	}
	tx.ConnectedSince = time.Now()
	s.SetTransmitter(&tx)

	if err := g.registry.Attach(tx.Name, s); err != nil {
		return err
	}

	var welcome []message.Message
	if idents, err := g.identFactory.CreateMessages(tx); err == nil {
		welcome = append(welcome, idents...)
	}
	if times, err := g.timeFactory.CreateMessages(time.Now()); err == nil {
		welcome = append(welcome, times...)
	}
	s.EnqueueAll(welcome)
	if g.metrics != nil {
		g.metrics.Enqueued.Add(tx.Name, int64(len(welcome)))
	}

	addr := ""
	if t := s.Transmitter(); t != nil {
		addr = t.Address
	}
	slog.Info("transmitter connected",
		"transmitter", tx.Name,
		"protocol", tx.Protocol.String(),
		"address", addr)
	return nil
}

// Disconnect detaches the session and discards it with its queued work.
func (g *Gateway) Disconnect(s *session.Session) {
	name := s.Name()
	g.registry.Detach(name, s)
	if err := s.Close(); err != nil {
		slog.Warn("session close failed", "session", name, "err", err)
	}
	slog.Info("transmitter disconnected", "transmitter", name)
}

// ─── PlaceCall ───────────────────────────────────────────────────────────────

// PlaceCall validates the call, converts it once per destination protocol
// family, and enqueues the resulting messages on each destination
// transmitter's session. Unknown destinations are reported in the result,
// not treated as errors; a factory/repository failure aborts the call.
func (g *Gateway) PlaceCall(call model.Call) (*CallResult, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	call.Timestamp = time.Now()

	// One conversion per protocol family, shared by all destinations of
	// that family.
	byProtocol := make(map[model.Protocol][]message.Message, 2)

	result := &CallResult{}
	for _, name := range call.TransmitterNames {
		s, ok := g.registry.Get(name)
		if !ok {
			slog.Warn("call destination has no live session", "transmitter", name)
			result.UnknownDestinations = append(result.UnknownDestinations, name)
			if g.metrics != nil {
				g.metrics.UnknownDestination.Inc(name)
			}
			continue
		}

		protocol := model.ProtocolSkyper
		if t := s.Transmitter(); t != nil {
			protocol = t.Protocol
		}

		msgs, cached := byProtocol[protocol]
		if !cached {
			factory, ok := g.callFactories[protocol]
			if !ok {
				return nil, fmt.Errorf("gateway: no call factory for protocol %s", protocol)
			}
			var err error
			msgs, err = factory.CreateMessages(call)
			if err != nil {
				return nil, err
			}
			byProtocol[protocol] = msgs
		}

		if len(msgs) == 0 {
			continue
		}
		s.EnqueueAll(msgs)
		result.MessagesQueued += len(msgs)
		if g.metrics != nil {
			g.metrics.CallsPlaced.Inc(s.Name())
			g.metrics.Enqueued.Add(s.Name(), int64(len(msgs)))
		}
	}

	return result, nil
}

// ─── Broadcasts ──────────────────────────────────────────────────────────────

// BroadcastTime sends the two time broadcast messages for t to every
// attached session. Returns the number of sessions reached.
func (g *Gateway) BroadcastTime(t time.Time) (int, error) {
	msgs, err := g.timeFactory.CreateMessages(t)
	if err != nil {
		return 0, err
	}
	n := g.registry.Broadcast(msgs)
	if g.metrics != nil {
		g.metrics.TimeBroadcasts.Inc("")
	}
	return n, nil
}

// Identify queues the session's transmitter identification broadcast.
// A session with no attached transmitter identity is skipped silently.
func (g *Gateway) Identify(s *session.Session) error {
	t := s.Transmitter()
	if t == nil {
		return nil
	}
	msgs, err := g.identFactory.CreateMessages(*t)
	if err != nil {
		return err
	}
	s.EnqueueAll(msgs)
	if g.metrics != nil {
		g.metrics.Enqueued.Add(s.Name(), int64(len(msgs)))
	}
	return nil
}

// ─── Introspection ───────────────────────────────────────────────────────────

// SessionStats returns a snapshot of every live session for the monitor
// endpoints.
func (g *Gateway) SessionStats() []SessionInfo {
	sessions := g.registry.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{
			Name:     s.Name(),
			Pending:  s.PendingCount(),
			InFlight: s.InFlight(),
		}
		if t := s.Transmitter(); t != nil {
			info.Address = t.Address
			info.Protocol = t.Protocol.String()
		}
		out = append(out, info)
	}
	return out
}

// SessionCount returns the number of attached sessions.
func (g *Gateway) SessionCount() int { return g.registry.Count() }

// ─── session.Observer glue ───────────────────────────────────────────────────

// sessionObserver forwards session delivery events into the metrics registry.
type sessionObserver struct {
	reg *metrics.Registry
}

func (o sessionObserver) Sent(name string)          { o.reg.Sent.Inc(name) }
func (o sessionObserver) Retransmitted(name string) { o.reg.Retransmitted.Inc(name) }
func (o sessionObserver) Dropped(name string)       { o.reg.Dropped.Inc(name) }
