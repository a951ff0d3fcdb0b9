package message

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hampager/pagegate/internal/model"
)

// numericPattern is the character class a call text must match entirely to
// be sendable to numeric-only pagers: digits, space, parentheses, hyphen,
// and U/u (the placeholder glyph in numeric paging).
var numericPattern = regexp.MustCompile(`^[-Uu0-9() ]+$`)

// CallFactory converts a call into one message per destination pager of its
// protocol family. Destination capability (numeric-only vs alphanumeric) is
// read from the repository under a single read lock per conversion, so the
// enumerated pager set is a consistent snapshot.
type CallFactory struct {
	repo     *model.Repository
	protocol model.Protocol
	encoder  Encoder
}

// NewCallFactory creates a call factory specialised for one protocol family.
// encoder is applied to alphanumeric content; it must not be nil.
func NewCallFactory(repo *model.Repository, protocol model.Protocol, encoder Encoder) (*CallFactory, error) {
	if repo == nil {
		return nil, errors.New("message: repository must not be nil")
	}
	if encoder == nil {
		return nil, errors.New("message: encoder must not be nil")
	}
	return &CallFactory{repo: repo, protocol: protocol, encoder: encoder}, nil
}

// Protocol returns the protocol family this factory emits messages for.
func (f *CallFactory) Protocol() model.Protocol { return f.protocol }

// CreateMessages resolves the call's callsigns and emits one message per
// matching pager. An unresolved callsign is logged and skipped; a
// numeric-only callsign paired with non-numeric text is logged and skipped.
// A repository failure aborts the whole conversion; no partial result is
// returned as success.
func (f *CallFactory) CreateMessages(call model.Call) ([]Message, error) {
	priority := PriorityCall
	if call.Emergency {
		priority = PriorityEmergency
	}
	now := time.Now()

	var messages []Message
	err := f.repo.View(func(r model.Reader) error {
		// Classified once per call, not per destination.
		numeric := numericPattern.MatchString(call.Text)

		for _, name := range call.CallSignNames {
			callsign, ok := r.CallSign(name)
			if !ok {
				slog.Error("callsign does not exist", "callsign", name)
				continue
			}

			var (
				mode    SubAddress
				content ContentType
				text    string
			)
			switch {
			case !callsign.Numeric:
				// Alphanumeric-capable destination: always send the
				// encoded text, even when it classified as numeric.
				mode = SubAddressD
				content = ContentAlphanumeric
				text = f.encoder(call.Text)
			case numeric:
				mode = SubAddressA
				content = ContentNumeric
				text = strings.ToUpper(call.Text)
			default:
				slog.Warn("callsign does not support alphanumeric messages",
					"callsign", callsign.Name)
				continue
			}

			for _, pager := range callsign.Pagers {
				if pager.Protocol != f.protocol {
					continue
				}
				messages = append(messages, Message{
					Timestamp:  now,
					Priority:   priority,
					Address:    pager.Number,
					SubAddress: mode,
					Content:    content,
					Text:       text,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("message: call factory: %w", err)
	}

	return messages, nil
}
