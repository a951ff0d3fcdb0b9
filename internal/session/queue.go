// Package session implements the per-transmitter protocol endpoint: a
// priority-ordered outbound queue, a single sequence-numbered in-flight
// envelope, and the stop-and-wait acknowledgement state machine, plus the
// registry that routes messages to the session owning a transmitter's live
// connection.
package session

import (
	"container/heap"

	"github.com/hampager/pagegate/internal/message"
)

// entry is one queued message plus its insertion sequence.
type entry struct {
	msg message.Message

	// order is a monotone insertion counter used as the secondary heap key.
	// A bare priority heap does not preserve FIFO among equal priorities;
	// the counter makes the ordering stable.
	order uint64
}

// messageHeap is a Min-Heap of entries keyed on (priority, insertion order).
// The most urgent, earliest-enqueued message sits at index 0.
type messageHeap []*entry

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority < h[j].msg.Priority
	}
	return h[i].order < h[j].order
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // allow GC
	*h = old[:n-1]
	return e
}

// messageQueue is the session's pending-message queue. Not safe for
// concurrent use on its own; the owning Session serialises access.
type messageQueue struct {
	h         messageHeap
	nextOrder uint64
}

func newMessageQueue() *messageQueue {
	h := make(messageHeap, 0, 16)
	heap.Init(&h)
	return &messageQueue{h: h}
}

func (q *messageQueue) push(msg message.Message) {
	heap.Push(&q.h, &entry{msg: msg, order: q.nextOrder})
	q.nextOrder++
}

// pop removes and returns the most urgent pending message.
func (q *messageQueue) pop() (message.Message, bool) {
	if len(q.h) == 0 {
		return message.Message{}, false
	}
	e := heap.Pop(&q.h).(*entry)
	return e.msg, true
}

func (q *messageQueue) len() int { return len(q.h) }

func (q *messageQueue) clear() { q.h = q.h[:0] }
