// Package websocket pushes live session statistics to monitoring clients.
//
// Clients open a WebSocket connection to:
//
//	GET /monitor/ws
//
// The server pushes a stats frame every two seconds:
//
//	{"type":"sessions","at":<unix ms>,"sessions":[{"name":...,"address":...,"protocol":...,"pending":...,"in_flight":...}]}
//
// Clients send nothing; the read side exists only to detect disconnects.
package websocket

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/hampager/pagegate/internal/gateway"
)

// pushInterval is how often a stats frame is sent.
const pushInterval = 2 * time.Second

var upgrader = gorillaws.Upgrader{
	// Same-origin check, scheme-agnostic. Requests without an Origin header
	// (native clients, curl) are allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host, err := parseHost(origin)
		if err != nil {
			return false
		}
		return host == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// Handler serves the monitor WebSocket endpoint.
type Handler struct {
	Gateway *gateway.Gateway
}

// statsFrame is the JSON structure pushed to monitor clients.
type statsFrame struct {
	Type     string                `json:"type"` // "sessions"
	At       int64                 `json:"at"`   // unix ms
	Sessions []gateway.SessionInfo `json:"sessions"`
}

// ServeHTTP upgrades the connection and pushes stats until the client leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Drain the read side so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		frame := statsFrame{
			Type:     "sessions",
			At:       time.Now().UnixMilli(),
			Sessions: h.Gateway.SessionStats(),
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-done:
			return
		}
	}
}
