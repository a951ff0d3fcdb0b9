package message

import (
	"errors"
	"time"
)

// Broadcast RICs for the time service. Every device listens on the UTC
// address; devices configured with a local zone additionally decode the
// local address.
const (
	TimeAddressUTC   = 216
	TimeAddressLocal = 224
)

// timeHeader is the literal protocol token preceding the digit fields.
// The wire format is the header followed by a 10-digit yymmddhhmm field and
// a literal "00" seconds suffix.
const timeHeader = "YYYYMMDDHHMMSS"

// TimeFactory converts a zone-aware instant into the pair of time broadcast
// messages: one for the UTC broadcast address, one for the local broadcast
// address in the instant's own zone. Deterministic; it consults no shared
// state.
type TimeFactory struct{}

// NewTimeFactory creates a time broadcast factory.
func NewTimeFactory() *TimeFactory { return &TimeFactory{} }

// CreateMessages returns exactly two ALPHANUMERIC sub-address D messages of
// priority TIME. The zero instant is rejected.
func (f *TimeFactory) CreateMessages(t time.Time) ([]Message, error) {
	if t.IsZero() {
		return nil, errors.New("message: time broadcast instant must not be zero")
	}

	return []Message{
		{
			Timestamp:  t,
			Priority:   PriorityTime,
			Address:    TimeAddressUTC,
			SubAddress: SubAddressD,
			Content:    ContentAlphanumeric,
			Text:       formatBroadcastTime(t.UTC()),
		},
		{
			Timestamp:  t,
			Priority:   PriorityTime,
			Address:    TimeAddressLocal,
			SubAddress: SubAddressD,
			Content:    ContentAlphanumeric,
			Text:       formatBroadcastTime(t),
		},
	}, nil
}

// formatBroadcastTime renders an instant in the fixed wire format, e.g.
// "YYYYMMDDHHMMSS250103142500" for 2025-01-03 14:25.
func formatBroadcastTime(t time.Time) string {
	return timeHeader + t.Format("0601021504") + "00"
}
