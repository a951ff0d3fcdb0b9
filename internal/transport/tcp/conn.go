package tcp

import (
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/hampager/pagegate/internal/node"
	"github.com/hampager/pagegate/internal/session"
)

// sendBuffer bounds the outbound frame channel. Stop-and-wait means at most
// one envelope is in flight, so the buffer only absorbs the retransmit that
// can race a close.
const sendBuffer = 8

// ErrConnClosed is returned by Send after the connection is closed.
var ErrConnClosed = errors.New("tcp: connection closed")

// pagerConn adapts one accepted net.Conn to the session transport contract.
// Send is fire-and-forget: frames go onto a channel drained by a single
// writer goroutine, so the ack path never blocks on the network.
type pagerConn struct {
	id   string
	conn net.Conn

	sendCh chan session.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func newPagerConn(c net.Conn) *pagerConn {
	pc := &pagerConn{
		id:     node.MustNewID(),
		conn:   c,
		sendCh: make(chan session.Envelope, sendBuffer),
		done:   make(chan struct{}),
	}
	go pc.writeLoop()
	return pc
}

func (pc *pagerConn) ID() string           { return pc.id }
func (pc *pagerConn) RemoteAddr() net.Addr { return pc.conn.RemoteAddr() }

// Send hands the envelope to the writer goroutine. It fails only when the
// connection is closed or the writer has fallen impossibly far behind.
func (pc *pagerConn) Send(env session.Envelope) error {
	select {
	case <-pc.done:
		return ErrConnClosed
	default:
	}
	select {
	case pc.sendCh <- env:
		return nil
	case <-pc.done:
		return ErrConnClosed
	}
}

// Close shuts down the writer and the underlying connection. Idempotent.
func (pc *pagerConn) Close() error {
	var err error
	pc.closeOnce.Do(func() {
		close(pc.done)
		err = pc.conn.Close()
	})
	return err
}

// writeLoop serializes outbound frames onto the socket until Close.
func (pc *pagerConn) writeLoop() {
	for {
		select {
		case env := <-pc.sendCh:
			if _, err := pc.conn.Write([]byte(encodeFrame(env) + "\n")); err != nil {
				slog.Warn("tcp: write failed",
					"conn", pc.id,
					"remote", pc.conn.RemoteAddr().String(),
					"err", err)
				_ = pc.Close()
				return
			}
		case <-pc.done:
			return
		}
	}
}
