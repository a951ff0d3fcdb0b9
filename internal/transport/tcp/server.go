// Package tcp is the transmitter-facing server. Each accepted connection
// performs a one-line handshake, becomes a gateway session, and then feeds
// acknowledgement lines into that session until it disconnects. Outbound
// frames travel through a per-connection writer goroutine so acknowledging
// never waits on the network.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hampager/pagegate/internal/gateway"
)

// maxLineLen bounds inbound lines. Handshake and ack lines are short; a
// longer line means a confused or hostile peer.
const maxLineLen = 256

// Server accepts transmitter connections and drives their sessions.
type Server struct {
	gw               *gateway.Gateway
	addr             string
	handshakeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool

	wg sync.WaitGroup
}

// NewServer creates a server that will listen on addr. Connections must
// complete their handshake within handshakeTimeout.
func NewServer(gw *gateway.Gateway, addr string, handshakeTimeout time.Duration) *Server {
	return &Server{
		gw:               gw,
		addr:             addr,
		handshakeTimeout: handshakeTimeout,
		conns:            make(map[net.Conn]struct{}),
	}
}

// ListenAndServe accepts connections until ctx is cancelled, then closes the
// listener and every established connection and waits for per-connection
// goroutines to drain.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("transmitter server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("tcp: accept failed", "err", err)
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}

	s.wg.Wait()
	return nil
}

// track registers an accepted connection so shutdown can close it; a
// connection handler blocked in a read returns only when its socket closes.
// A connection accepted after shutdown began is closed on the spot.
func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// Addr returns the bound listener address, or "" before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConn runs one connection from handshake to disconnect.
func (s *Server) handleConn(raw net.Conn) {
	remote := raw.RemoteAddr().String()

	_ = raw.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, maxLineLen), maxLineLen)

	if !scanner.Scan() {
		slog.Warn("tcp: no handshake", "remote", remote, "err", scanner.Err())
		_ = raw.Close()
		return
	}
	hs, err := parseHandshake(scanner.Text())
	if err != nil {
		slog.Warn("tcp: handshake rejected", "remote", remote, "err", err)
		_ = raw.Close()
		return
	}
	_ = raw.SetReadDeadline(time.Time{})

	pc := newPagerConn(raw)
	sess := s.gw.NewSession(pc)
	if err := s.gw.Connect(sess, hs.Name, hs.AuthKey, hs.DeviceType, hs.DeviceVersion); err != nil {
		slog.Warn("tcp: connect rejected",
			"remote", remote,
			"transmitter", hs.Name,
			"err", err)
		_ = pc.Close()
		return
	}
	defer s.gw.Disconnect(sess)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		seq, ack, err := parseAck(line)
		if err != nil {
			slog.Warn("tcp: bad ack line",
				"transmitter", sess.Name(),
				"line", line,
				"err", err)
			continue
		}
		sess.Ack(seq, ack)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Info("tcp: connection read ended",
			"transmitter", sess.Name(),
			"err", err)
	}
}
