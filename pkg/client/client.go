// Package client is the Go SDK for the PageGate REST API.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	// Page a callsign
//	res, err := c.PlaceCall(ctx, client.Call{
//	    Text:             "RUBRIC TEST",
//	    CallSignNames:    []string{"dl1abc"},
//	    TransmitterNames: []string{"tx-north"},
//	})
//
//	// Inspect live sessions
//	sessions, err := c.Sessions(ctx)
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Use errors.As to inspect the HTTP status and server message.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client
// internally so connections are reused across goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the PageGate server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pagegate: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the PageGate API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client that connects to the PageGate server at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://pagegate.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Domain types ─────────────────────────────────────────────────────────────

// Call is a paging request.
type Call struct {
	Text             string   `json:"text"`
	Emergency        bool     `json:"emergency"`
	CallSignNames    []string `json:"callsign_names"`
	TransmitterNames []string `json:"transmitter_names"`
	OwnerName        string   `json:"owner_name,omitempty"`
}

// CallResult reports what happened to a placed call.
type CallResult struct {
	MessagesQueued      int      `json:"messages_queued"`
	UnknownDestinations []string `json:"unknown_destinations,omitempty"`
}

// Session is a point-in-time view of one connected transmitter.
type Session struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Pending  int    `json:"pending"`
	InFlight bool   `json:"in_flight"`
}

// Pager is one paging device owned by a callsign.
type Pager struct {
	Number   uint32 `json:"number"`
	Protocol string `json:"protocol"`
}

// CallSign is a named addressee record.
type CallSign struct {
	Name    string  `json:"name"`
	Numeric bool    `json:"numeric"`
	Pagers  []Pager `json:"pagers"`
}

// Transmitter is a transmitter record. AuthKey is write-only: the server
// never returns it.
type Transmitter struct {
	Name                  string `json:"name"`
	AuthKey               string `json:"auth_key,omitempty"`
	Protocol              string `json:"protocol"`
	IdentificationAddress uint32 `json:"identification_address"`
}

// HealthInfo contains the data returned by the /health endpoint.
type HealthInfo struct {
	Status   string `json:"status"`
	NodeID   string `json:"node_id"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

// ─── Operations ───────────────────────────────────────────────────────────────

// PlaceCall submits a call for transmission.
func (c *Client) PlaceCall(ctx context.Context, call Call) (*CallResult, error) {
	var res CallResult
	if err := c.do(ctx, http.MethodPost, "/calls", call, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sessions returns the currently connected transmitter sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// BroadcastTime triggers an immediate time broadcast to all sessions and
// returns how many sessions received it.
func (c *Client) BroadcastTime(ctx context.Context) (int, error) {
	var resp struct {
		Sessions int `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodPost, "/broadcasts/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Sessions, nil
}

// Health fetches the server health summary.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var h HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// PutCallSign creates or replaces a callsign record.
func (c *Client) PutCallSign(ctx context.Context, cs CallSign) error {
	return c.do(ctx, http.MethodPut, "/callsigns/"+url.PathEscape(cs.Name), cs, nil)
}

// GetCallSign fetches one callsign record by name.
func (c *Client) GetCallSign(ctx context.Context, name string) (*CallSign, error) {
	var cs CallSign
	if err := c.do(ctx, http.MethodGet, "/callsigns/"+url.PathEscape(name), nil, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListCallSigns fetches all callsign records.
func (c *Client) ListCallSigns(ctx context.Context) ([]CallSign, error) {
	var resp struct {
		CallSigns []CallSign `json:"callsigns"`
	}
	if err := c.do(ctx, http.MethodGet, "/callsigns", nil, &resp); err != nil {
		return nil, err
	}
	return resp.CallSigns, nil
}

// DeleteCallSign removes a callsign record.
func (c *Client) DeleteCallSign(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/callsigns/"+url.PathEscape(name), nil, nil)
}

// PutTransmitter creates or replaces a transmitter record.
func (c *Client) PutTransmitter(ctx context.Context, t Transmitter) error {
	return c.do(ctx, http.MethodPut, "/transmitters/"+url.PathEscape(t.Name), t, nil)
}

// GetTransmitter fetches one transmitter record by name.
func (c *Client) GetTransmitter(ctx context.Context, name string) (*Transmitter, error) {
	var t Transmitter
	if err := c.do(ctx, http.MethodGet, "/transmitters/"+url.PathEscape(name), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransmitters fetches all transmitter records.
func (c *Client) ListTransmitters(ctx context.Context) ([]Transmitter, error) {
	var resp struct {
		Transmitters []Transmitter `json:"transmitters"`
	}
	if err := c.do(ctx, http.MethodGet, "/transmitters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transmitters, nil
}

// DeleteTransmitter removes a transmitter record.
func (c *Client) DeleteTransmitter(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/transmitters/"+url.PathEscape(name), nil, nil)
}

// ─── Transport ────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body, resp any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("pagegate: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("pagegate: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pagegate: request %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("pagegate: read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if resp != nil {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("pagegate: decode response: %w", err)
		}
	}
	return nil
}
