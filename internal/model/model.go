// Package model contains the domain records shared across all PageGate
// internal packages: transmitters, callsigns, pagers, and calls. It
// deliberately has zero imports of other PageGate packages so that the
// message factories, the session layer, and the storage layer can all
// import from it without creating import cycles.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxRIC is the largest pager address (RIC) the POCSAG address space allows.
// Addresses are limited to 21 bits.
const MaxRIC = 1<<21 - 1

// Protocol identifies the paging protocol family a pager device speaks.
// A call message factory is specialised per protocol family; only pagers of
// the matching family receive a message for a given call.
type Protocol uint8

const (
	// ProtocolSkyper is the Skyper pager family.
	ProtocolSkyper Protocol = iota
	// ProtocolAlphapoc is the Alphapoc pager family.
	ProtocolAlphapoc
)

// String returns a human-readable representation of the protocol family.
func (p Protocol) String() string {
	switch p {
	case ProtocolSkyper:
		return "skyper"
	case ProtocolAlphapoc:
		return "alphapoc"
	default:
		return "unknown"
	}
}

// ParseProtocol converts a config/API string into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skyper":
		return ProtocolSkyper, nil
	case "alphapoc":
		return ProtocolAlphapoc, nil
	default:
		return 0, fmt.Errorf("model: unknown protocol %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so Protocol round-trips
// through JSON as its string form.
func (p Protocol) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Pager is one physical pager device registered under a callsign.
type Pager struct {
	// Number is the device's RIC address (21 bits).
	Number uint32 `json:"number"`

	// Protocol is the paging protocol family the device speaks.
	Protocol Protocol `json:"protocol"`
}

// CallSign is a named addressee owning one or more pager devices, possibly
// across multiple protocol families.
type CallSign struct {
	Name string `json:"name"`

	// Numeric marks a callsign whose devices can only display numeric
	// content. Alphanumeric-capable callsigns have Numeric == false.
	Numeric bool `json:"numeric"`

	Pagers []Pager `json:"pagers"`
}

// Validate returns the first problem found with the callsign record.
func (c *CallSign) Validate() error {
	if c.Name == "" {
		return errors.New("model: callsign name must not be empty")
	}
	if len(c.Pagers) == 0 {
		return fmt.Errorf("model: callsign %s must own at least one pager", c.Name)
	}
	for _, p := range c.Pagers {
		if p.Number > MaxRIC {
			return fmt.Errorf("model: callsign %s: pager address %d exceeds 21 bits", c.Name, p.Number)
		}
	}
	return nil
}

// Transmitter is the persisted record for one paging transmitter.
// The live network session keeps only a back-reference to this record;
// ownership stays with the repository.
type Transmitter struct {
	Name    string `json:"name"`
	AuthKey string `json:"auth_key"`

	// Protocol is the protocol family of the pagers this transmitter serves.
	Protocol Protocol `json:"protocol"`

	DeviceType    string `json:"device_type,omitempty"`
	DeviceVersion string `json:"device_version,omitempty"`

	// IdentificationAddress is the RIC used for the transmitter's periodic
	// self-identification broadcast (21 bits).
	IdentificationAddress uint32 `json:"identification_address"`

	// Address is the peer network address of the live connection. Populated
	// by the session layer when the transmitter connects; not persisted as
	// a source of truth.
	Address string `json:"address,omitempty"`

	ConnectedSince time.Time `json:"connected_since,omitempty"`
}

// Validate returns the first problem found with the transmitter record.
func (t *Transmitter) Validate() error {
	if len(t.Name) < 3 || len(t.Name) > 20 {
		return errors.New("model: transmitter name must be 3-20 characters")
	}
	if t.AuthKey == "" {
		return errors.New("model: transmitter auth key must not be empty")
	}
	if t.IdentificationAddress > MaxRIC {
		return fmt.Errorf("model: transmitter %s: identification address %d exceeds 21 bits", t.Name, t.IdentificationAddress)
	}
	return nil
}

// Call is one page request: free text addressed to a set of callsigns,
// transmitted over a set of transmitters.
type Call struct {
	Text      string `json:"text"`
	Emergency bool   `json:"emergency"`

	CallSignNames    []string `json:"callsign_names"`
	TransmitterNames []string `json:"transmitter_names"`

	// OwnerName is the account that placed the call. Informational only.
	OwnerName string `json:"owner_name,omitempty"`

	// Timestamp is set by the gateway when the call is accepted.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MaxCallTextLen caps the free-text length of one call.
const MaxCallTextLen = 80

// Validate returns the first problem found with the call.
func (c *Call) Validate() error {
	if c.Text == "" || len(c.Text) > MaxCallTextLen {
		return fmt.Errorf("model: call text must be 1-%d characters", MaxCallTextLen)
	}
	if len(c.CallSignNames) == 0 {
		return errors.New("model: call must name at least one callsign")
	}
	if len(c.TransmitterNames) == 0 {
		return errors.New("model: call must name at least one transmitter")
	}
	return nil
}
