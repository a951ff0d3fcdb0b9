// Package message defines the pager message value and the factories that
// convert domain events (calls, time broadcasts, transmitter identification)
// into protocol-correct messages.
//
// A Message describes one page logically: priority class, destination RIC,
// sub-address mode, content type, and payload text. The byte-level air
// encoding is the transport's concern; this package fixes only the logical
// attributes every encoder consumes.
package message

import "time"

// Priority is the urgency class of a message. Lower ordinal means more
// urgent: emergency and call traffic preempts the broadcast classes (time,
// identification) that accumulate in a session queue during congestion.
type Priority uint8

const (
	PriorityEmergency Priority = iota
	PriorityCall
	PriorityNews
	PriorityTime
	PriorityIdentification
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityCall:
		return "call"
	case PriorityNews:
		return "news"
	case PriorityTime:
		return "time"
	case PriorityIdentification:
		return "identification"
	default:
		return "unknown"
	}
}

// SubAddress selects one of the four POCSAG functional sub-addresses.
type SubAddress uint8

const (
	SubAddressA SubAddress = iota
	SubAddressB
	SubAddressC
	SubAddressD
)

// ContentType is the payload encoding class of a message.
type ContentType uint8

const (
	ContentNumeric ContentType = iota
	ContentAlphanumeric
)

// String returns a human-readable representation of the content type.
func (c ContentType) String() string {
	switch c {
	case ContentNumeric:
		return "numeric"
	case ContentAlphanumeric:
		return "alphanumeric"
	default:
		return "unknown"
	}
}

// Message is the immutable description of one page to be sent. Values are
// copied freely; once constructed a Message is never mutated.
type Message struct {
	// Timestamp is the instant the message was created by its factory.
	Timestamp time.Time

	Priority   Priority
	Address    uint32 // destination RIC, 21 bits
	SubAddress SubAddress
	Content    ContentType
	Text       string
}

// MoreUrgent reports whether m outranks other. Equal priorities are not
// ordered here; FIFO among equals is the session queue's responsibility via
// its insertion counter.
func (m Message) MoreUrgent(other Message) bool {
	return m.Priority < other.Priority
}
