// Package bridge connects PageGate to the legacy RabbitMQ fan-out: one
// broker queue per transmitter, bound to a pre-existing exchange by the
// transmitter's name as routing key. Consumed bodies are decoded into call
// payloads and placed through the gateway like any other producer traffic.
//
// Queues are declared with a 30 minute x-expires so an abandoned
// transmitter's queue disappears from the broker on its own. Pausing a
// subscription is an administrative action exposed for the operator API.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hampager/pagegate/internal/gateway"
	"github.com/hampager/pagegate/internal/model"
)

// queueExpiryMs is the broker-side idle TTL applied to every per-transmitter
// queue (x-expires, milliseconds).
const queueExpiryMs = 1_800_000

// ErrAlreadySubscribed is returned when Subscribe is called twice for the
// same transmitter.
var ErrAlreadySubscribed = errors.New("bridge: transmitter already subscribed")

// ErrNotSubscribed is returned when Pause is called for a transmitter that
// has no subscription.
var ErrNotSubscribed = errors.New("bridge: transmitter not subscribed")

// callPayload is the JSON body the legacy side publishes per call.
type callPayload struct {
	Text      string   `json:"text"`
	Emergency bool     `json:"emergency"`
	CallSigns []string `json:"callsign_names"`
	Owner     string   `json:"owner_name,omitempty"`
}

// Bridge owns one AMQP connection and channel, plus the set of active
// per-transmitter consumers. All methods are safe for concurrent use.
type Bridge struct {
	gw       *gateway.Gateway
	exchange string

	conn *amqp.Connection
	ch   *amqp.Channel

	mu        sync.Mutex
	consumers map[string]string // transmitter name → consumer tag
}

// Dial connects to the broker at url and verifies that exchange exists
// (passive declare; the legacy side owns the exchange).
func Dial(url, exchange string, gw *gateway.Gateway) (*Bridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", url, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bridge: open channel: %w", err)
	}

	if err := ch.ExchangeDeclarePassive(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bridge: exchange %s: %w", exchange, err)
	}

	return &Bridge{
		gw:        gw,
		exchange:  exchange,
		conn:      conn,
		ch:        ch,
		consumers: make(map[string]string),
	}, nil
}

// Subscribe declares and binds the queue for transmitterName and starts
// consuming it. Deliveries are decoded and placed as calls addressed to
// that transmitter.
func (b *Bridge) Subscribe(transmitterName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.consumers[transmitterName]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, transmitterName)
	}

	q, err := b.ch.QueueDeclare(transmitterName, false, false, false, false, amqp.Table{
		"x-expires": int32(queueExpiryMs),
	})
	if err != nil {
		return fmt.Errorf("bridge: declare queue %s: %w", transmitterName, err)
	}
	if err := b.ch.QueueBind(q.Name, transmitterName, b.exchange, false, nil); err != nil {
		return fmt.Errorf("bridge: bind queue %s: %w", transmitterName, err)
	}

	tag := "pagegate-" + transmitterName
	deliveries, err := b.ch.Consume(q.Name, tag, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("bridge: consume %s: %w", q.Name, err)
	}
	b.consumers[transmitterName] = tag

	go b.consumeLoop(transmitterName, deliveries)

	slog.Info("bridge subscription started", "transmitter", transmitterName, "queue", q.Name)
	return nil
}

// Pause cancels the consumer for transmitterName. The queue and its binding
// stay on the broker; Subscribe starts a fresh consumer later.
func (b *Bridge) Pause(transmitterName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tag, exists := b.consumers[transmitterName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, transmitterName)
	}
	delete(b.consumers, transmitterName)

	if err := b.ch.Cancel(tag, false); err != nil {
		return fmt.Errorf("bridge: cancel %s: %w", tag, err)
	}
	slog.Info("bridge subscription paused", "transmitter", transmitterName)
	return nil
}

// Subscribed returns the transmitters with an active consumer.
func (b *Bridge) Subscribed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.consumers))
	for name := range b.consumers {
		out = append(out, name)
	}
	return out
}

// Close tears down the channel and connection. Consumer goroutines exit
// when their delivery channels close.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.consumers = make(map[string]string)
	b.mu.Unlock()

	if err := b.ch.Close(); err != nil {
		_ = b.conn.Close()
		return fmt.Errorf("bridge: close channel: %w", err)
	}
	return b.conn.Close()
}

// consumeLoop processes deliveries for one transmitter until the channel
// closes. Malformed bodies are logged and dropped; a placement failure is
// logged but never stops the loop.
func (b *Bridge) consumeLoop(transmitterName string, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		var p callPayload
		if err := json.Unmarshal(d.Body, &p); err != nil {
			slog.Warn("bridge: malformed call payload",
				"transmitter", transmitterName,
				"routing_key", d.RoutingKey,
				"err", err)
			continue
		}

		call := model.Call{
			Text:             p.Text,
			Emergency:        p.Emergency,
			CallSignNames:    p.CallSigns,
			TransmitterNames: []string{transmitterName},
			OwnerName:        p.Owner,
		}
		res, err := b.gw.PlaceCall(call)
		if err != nil {
			slog.Error("bridge: place call failed",
				"transmitter", transmitterName,
				"err", err)
			continue
		}
		slog.Debug("bridge: call placed",
			"transmitter", transmitterName,
			"messages", res.MessagesQueued)
	}
}
