package message

import (
	"errors"
	"strings"
	"time"

	"github.com/hampager/pagegate/internal/model"
)

// IdentificationFactory converts a transmitter record into its periodic
// self-identification broadcast: one alphanumeric message addressed to the
// transmitter's identification RIC carrying its upper-cased name.
type IdentificationFactory struct{}

// NewIdentificationFactory creates an identification factory.
func NewIdentificationFactory() *IdentificationFactory {
	return &IdentificationFactory{}
}

// CreateMessages returns exactly one message of priority IDENTIFICATION.
// A transmitter without a name is rejected.
func (f *IdentificationFactory) CreateMessages(t model.Transmitter) ([]Message, error) {
	if t.Name == "" {
		return nil, errors.New("message: transmitter name must not be empty")
	}

	return []Message{
		{
			Timestamp:  time.Now(),
			Priority:   PriorityIdentification,
			Address:    t.IdentificationAddress,
			SubAddress: SubAddressD,
			Content:    ContentAlphanumeric,
			Text:       strings.ToUpper(t.Name),
		},
	}, nil
}
