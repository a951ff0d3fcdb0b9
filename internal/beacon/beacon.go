// Package beacon drives the periodic time broadcast: on every tick it asks
// the gateway to send the UTC and local time messages to all attached
// transmitter sessions.
package beacon

import (
	"context"
	"log/slog"
	"time"

	"github.com/hampager/pagegate/internal/gateway"
)

// Beacon broadcasts the time service at a fixed interval.
type Beacon struct {
	gw       *gateway.Gateway
	interval time.Duration
	loc      *time.Location
}

// New creates a Beacon. loc is the zone used for the local-time broadcast;
// nil means the host zone.
func New(gw *gateway.Gateway, interval time.Duration, loc *time.Location) *Beacon {
	if loc == nil {
		loc = time.Local
	}
	return &Beacon{gw: gw, interval: interval, loc: loc}
}

// Run broadcasts once immediately, then on every interval tick until ctx is
// cancelled. It always returns nil after cancellation.
func (b *Beacon) Run(ctx context.Context) error {
	b.tick()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Beacon) tick() {
	n, err := b.gw.BroadcastTime(time.Now().In(b.loc))
	if err != nil {
		slog.Error("time broadcast failed", "err", err)
		return
	}
	slog.Debug("time broadcast", "sessions", n)
}
