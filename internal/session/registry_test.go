package session_test

import (
	"testing"

	"github.com/hampager/pagegate/internal/message"
	"github.com/hampager/pagegate/internal/session"
)

func TestRegistry_AttachDetach(t *testing.T) {
	r := session.NewRegistry()
	s, _ := newSession(t)

	if err := r.Attach("TX-North", s); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count: want 1, got %d", got)
	}

	// Lookup is case-insensitive.
	if _, ok := r.Get("tx-north"); !ok {
		t.Error("Get lowercase: session not found")
	}

	other, _ := newSession(t)
	if err := r.Attach("tx-north", other); err == nil {
		t.Error("Attach duplicate name: expected error")
	}

	// Detach of a different session is a no-op.
	r.Detach("tx-north", other)
	if got := r.Count(); got != 1 {
		t.Fatalf("Count after foreign detach: want 1, got %d", got)
	}

	r.Detach("tx-north", s)
	if got := r.Count(); got != 0 {
		t.Fatalf("Count after detach: want 0, got %d", got)
	}
}

func TestRegistry_DeliverToNamedSession(t *testing.T) {
	r := session.NewRegistry()
	s, conn := newSession(t)
	if err := r.Attach("tx-a", s); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	msgs := []message.Message{msg(message.PriorityCall, "hello")}
	if !r.Deliver(msgs, "TX-A") {
		t.Fatal("Deliver to attached session: want true")
	}
	if got := conn.sentCount(); got != 1 {
		t.Errorf("sent: want 1, got %d", got)
	}
	if r.Deliver(msgs, "tx-missing") {
		t.Error("Deliver to unknown name: want false")
	}
}

func TestRegistry_BroadcastReachesEverySession(t *testing.T) {
	r := session.NewRegistry()
	s1, c1 := newSession(t)
	s2, c2 := newSession(t)
	if err := r.Attach("tx-a", s1); err != nil {
		t.Fatalf("Attach a: %v", err)
	}
	if err := r.Attach("tx-b", s2); err != nil {
		t.Fatalf("Attach b: %v", err)
	}

	n := r.Broadcast([]message.Message{msg(message.PriorityTime, "tick")})
	if n != 2 {
		t.Fatalf("Broadcast: want 2 sessions, got %d", n)
	}
	if c1.sentCount() != 1 || c2.sentCount() != 1 {
		t.Errorf("sent counts: want 1/1, got %d/%d", c1.sentCount(), c2.sentCount())
	}
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := session.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		s, _ := newSession(t)
		if err := r.Attach(name, s); err != nil {
			t.Fatalf("Attach %s: %v", name, err)
		}
	}
	got := r.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("List length: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d]: want %s, got %s", i, want[i], got[i])
		}
	}
}
