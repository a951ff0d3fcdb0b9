package session_test

import (
	"net"
	"sync"
	"testing"

	"github.com/hampager/pagegate/internal/message"
	"github.com/hampager/pagegate/internal/model"
	"github.com/hampager/pagegate/internal/session"
)

// ─── fake transport ──────────────────────────────────────────────────────────

// fakeConn records every envelope handed to it.
type fakeConn struct {
	mu     sync.Mutex
	sent   []session.Envelope
	closed bool
}

func (c *fakeConn) ID() string { return "conn-test" }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4321}
}

func (c *fakeConn) Send(env session.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastSent(t *testing.T) session.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no envelope sent")
	}
	return c.sent[len(c.sent)-1]
}

func newSession(t *testing.T) (*session.Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := session.New(conn)
	t.Cleanup(func() { _ = s.Close() })
	return s, conn
}

func msg(prio message.Priority, text string) message.Message {
	return message.Message{Priority: prio, Address: 100, Text: text}
}

// ackOK acknowledges the current envelope with the expected-next convention.
func ackOK(t *testing.T, s *session.Session, c *fakeConn) {
	t.Helper()
	env := c.lastSent(t)
	if !s.Ack(env.Sequence+1, session.AckOK) {
		t.Fatalf("Ack(seq %d + 1, OK): want valid", env.Sequence)
	}
}

// ─── delivery tests ──────────────────────────────────────────────────────────

func TestSession_SendsImmediatelyWhenIdle(t *testing.T) {
	s, conn := newSession(t)

	s.Enqueue(msg(message.PriorityCall, "first"))

	if got := conn.sentCount(); got != 1 {
		t.Fatalf("sent count: want 1, got %d", got)
	}
	if !s.InFlight() {
		t.Error("expected in-flight envelope after enqueue")
	}
	if got := s.PendingCount(); got != 0 {
		t.Errorf("pending: want 0, got %d", got)
	}
}

func TestSession_SingleEnvelopeInFlight(t *testing.T) {
	s, conn := newSession(t)

	s.Enqueue(msg(message.PriorityCall, "a"))
	s.Enqueue(msg(message.PriorityCall, "b"))
	s.Enqueue(msg(message.PriorityCall, "c"))

	// Stop-and-wait: the two later messages must queue behind the envelope.
	if got := conn.sentCount(); got != 1 {
		t.Fatalf("sent count with envelope outstanding: want 1, got %d", got)
	}
	if got := s.PendingCount(); got != 2 {
		t.Fatalf("pending: want 2, got %d", got)
	}

	ackOK(t, s, conn)
	if got := conn.sentCount(); got != 2 {
		t.Fatalf("sent count after ack: want 2, got %d", got)
	}
}

func TestSession_PriorityOrderFIFOWithinClass(t *testing.T) {
	s, conn := newSession(t)

	// Occupy the wire so everything else accumulates in the queue.
	s.Enqueue(msg(message.PriorityTime, "blocker"))

	s.Enqueue(msg(message.PriorityNews, "news-1"))
	s.Enqueue(msg(message.PriorityCall, "call-1"))
	s.Enqueue(msg(message.PriorityCall, "call-2"))
	s.Enqueue(msg(message.PriorityEmergency, "sos"))
	s.Enqueue(msg(message.PriorityNews, "news-2"))

	want := []string{"sos", "call-1", "call-2", "news-1", "news-2"}
	for _, text := range want {
		ackOK(t, s, conn)
		if got := conn.lastSent(t).Message.Text; got != text {
			t.Fatalf("delivery order: want %q, got %q", text, got)
		}
	}
}

func TestSession_SequenceNumbersAdvanceAndWrap(t *testing.T) {
	s, conn := newSession(t)

	for i := 0; i < 300; i++ {
		s.Enqueue(msg(message.PriorityCall, "m"))
		env := conn.lastSent(t)
		if want := uint8(i); env.Sequence != want {
			t.Fatalf("sequence at %d: want %d, got %d", i, want, env.Sequence)
		}
		ackOK(t, s, conn)
	}
}

func TestSession_ExpectedSequenceWrapsAt255(t *testing.T) {
	env := session.Envelope{Sequence: 255}
	if got := env.ExpectedSequence(); got != 0 {
		t.Errorf("ExpectedSequence(255): want 0, got %d", got)
	}
}

// ─── acknowledgement state machine ───────────────────────────────────────────

func TestSession_AckOKMismatchStillCompletes(t *testing.T) {
	s, conn := newSession(t)
	s.Enqueue(msg(message.PriorityCall, "a"))
	s.Enqueue(msg(message.PriorityCall, "b"))

	// Wrong sequence: reported invalid, but the envelope completes and the
	// next message goes out anyway.
	if s.Ack(250, session.AckOK) {
		t.Error("mismatched OK ack reported valid")
	}
	if got := conn.sentCount(); got != 2 {
		t.Fatalf("sent count after lenient ack: want 2, got %d", got)
	}
}

func TestSession_RetryRetransmitsSameEnvelope(t *testing.T) {
	s, conn := newSession(t)
	s.Enqueue(msg(message.PriorityCall, "again"))

	first := conn.lastSent(t)
	if !s.Ack(first.Sequence, session.AckRetry) {
		t.Fatal("matching RETRY ack reported invalid")
	}

	second := conn.lastSent(t)
	if second.Sequence != first.Sequence {
		t.Errorf("retransmit sequence: want %d, got %d", first.Sequence, second.Sequence)
	}
	if second.Message.Text != first.Message.Text {
		t.Errorf("retransmit payload changed: %q vs %q", second.Message.Text, first.Message.Text)
	}
	if got := conn.sentCount(); got != 2 {
		t.Errorf("sent count: want 2, got %d", got)
	}
}

func TestSession_RetryExhaustionDropsSilently(t *testing.T) {
	s, conn := newSession(t)
	s.Enqueue(msg(message.PriorityCall, "doomed"))
	s.Enqueue(msg(message.PriorityCall, "next"))

	env := conn.lastSent(t)

	// Four retries retransmit; the fifth exhausts the budget.
	for i := 0; i < 4; i++ {
		if !s.Ack(env.Sequence, session.AckRetry) {
			t.Fatalf("retry %d reported invalid", i+1)
		}
		if got := conn.lastSent(t).Message.Text; got != "doomed" {
			t.Fatalf("retry %d: wrong envelope %q", i+1, got)
		}
	}
	s.Ack(env.Sequence, session.AckRetry)

	if got := conn.lastSent(t).Message.Text; got != "next" {
		t.Fatalf("after exhaustion: want next message, got %q", got)
	}
	if got := conn.lastSent(t).Sequence; got != env.Sequence+1 {
		t.Errorf("new envelope sequence: want %d, got %d", env.Sequence+1, got)
	}
}

func TestSession_ErrorAckDiscards(t *testing.T) {
	s, conn := newSession(t)
	s.Enqueue(msg(message.PriorityCall, "bad"))
	s.Enqueue(msg(message.PriorityCall, "good"))

	env := conn.lastSent(t)
	if !s.Ack(env.Sequence, session.AckError) {
		t.Error("matching ERROR ack reported invalid")
	}
	if got := conn.lastSent(t).Message.Text; got != "good" {
		t.Fatalf("after error ack: want next message, got %q", got)
	}
}

func TestSession_AckWhileIdleIsFalse(t *testing.T) {
	s, _ := newSession(t)
	if s.Ack(0, session.AckOK) {
		t.Error("ack with nothing outstanding reported valid")
	}
}

// ─── identity and lifecycle ──────────────────────────────────────────────────

func TestSession_NameFallsBackToConnID(t *testing.T) {
	s, _ := newSession(t)
	if got := s.Name(); got != "conn-test" {
		t.Errorf("Name without transmitter: want conn-test, got %s", got)
	}

	s.SetTransmitter(&model.Transmitter{Name: "tx-north"})
	if got := s.Name(); got != "tx-north" {
		t.Errorf("Name with transmitter: want tx-north, got %s", got)
	}
}

func TestSession_SetTransmitterCopiesAndSetsAddress(t *testing.T) {
	s, _ := newSession(t)
	rec := model.Transmitter{Name: "tx-north"}
	s.SetTransmitter(&rec)

	got := s.Transmitter()
	if got == &rec {
		t.Fatal("SetTransmitter must copy the record")
	}
	if got.Address != "10.0.0.1:4321" {
		t.Errorf("address: want 10.0.0.1:4321, got %s", got.Address)
	}
	if rec.Address != "" {
		t.Error("caller's record must not be mutated")
	}
}

func TestSession_CloseDiscardsEverything(t *testing.T) {
	s, conn := newSession(t)
	s.Enqueue(msg(message.PriorityCall, "a"))
	s.Enqueue(msg(message.PriorityCall, "b"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conn.closed {
		t.Error("underlying connection not closed")
	}
	if s.InFlight() {
		t.Error("envelope survived close")
	}
	if got := s.PendingCount(); got != 0 {
		t.Errorf("pending after close: want 0, got %d", got)
	}

	// Everything is a no-op now.
	s.Enqueue(msg(message.PriorityCall, "late"))
	if got := conn.sentCount(); got != 1 {
		t.Errorf("sent after close: want 1, got %d", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSession_ConcurrentEnqueue(t *testing.T) {
	s, conn := newSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Enqueue(msg(message.PriorityCall, "x"))
			}
		}()
	}
	wg.Wait()

	// One envelope in flight, the rest pending; nothing lost.
	if got := s.PendingCount(); got != 399 {
		t.Fatalf("pending: want 399, got %d", got)
	}
	if got := conn.sentCount(); got != 1 {
		t.Fatalf("sent: want 1, got %d", got)
	}
}
