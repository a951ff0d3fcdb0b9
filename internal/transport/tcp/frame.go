package tcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hampager/pagegate/internal/session"
)

// Wire grammar, one frame per line:
//
//	handshake  [<device> v<version> <name> <authkey>]
//	outbound   #SS prio:addr:sub:content:text
//	ack        #SS +      success, SS echoes the next expected sequence
//	ack        #SS %      retry request, SS echoes the received sequence
//	ack        #SS -      error, envelope is unrecoverable
//
// SS is the sequence number as two uppercase hex digits.

var (
	ErrMalformedHandshake = errors.New("tcp: malformed handshake")
	ErrMalformedAck       = errors.New("tcp: malformed ack")
)

// handshake is the parsed identification line a transmitter sends first.
type handshake struct {
	DeviceType    string
	DeviceVersion string
	Name          string
	AuthKey       string
}

// parseHandshake parses the bracketed identification line.
func parseHandshake(line string) (handshake, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return handshake{}, ErrMalformedHandshake
	}
	fields := strings.Fields(line[1 : len(line)-1])
	if len(fields) != 4 {
		return handshake{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedHandshake, len(fields))
	}
	version, ok := strings.CutPrefix(fields[1], "v")
	if !ok || version == "" {
		return handshake{}, fmt.Errorf("%w: bad version %q", ErrMalformedHandshake, fields[1])
	}
	return handshake{
		DeviceType:    fields[0],
		DeviceVersion: version,
		Name:          fields[2],
		AuthKey:       fields[3],
	}, nil
}

// encodeFrame renders one envelope as an outbound line, without the trailing
// newline.
func encodeFrame(env session.Envelope) string {
	m := env.Message
	return fmt.Sprintf("#%02X %d:%d:%d:%d:%s",
		env.Sequence, m.Priority, m.Address, m.SubAddress, m.Content, m.Text)
}

// parseAck parses an inbound acknowledgement line.
func parseAck(line string) (uint8, session.AckType, error) {
	line = strings.TrimSpace(line)
	if len(line) < 5 || line[0] != '#' || line[3] != ' ' {
		return 0, 0, ErrMalformedAck
	}
	seq64, err := strconv.ParseUint(line[1:3], 16, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad sequence %q", ErrMalformedAck, line[1:3])
	}
	seq := uint8(seq64)
	switch line[4:] {
	case "+":
		return seq, session.AckOK, nil
	case "%":
		return seq, session.AckRetry, nil
	case "-":
		return seq, session.AckError, nil
	default:
		return 0, 0, fmt.Errorf("%w: bad code %q", ErrMalformedAck, line[4:])
	}
}
