package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hampager/pagegate/internal/config"
	"github.com/hampager/pagegate/internal/gateway"
	"github.com/hampager/pagegate/internal/metrics"
	"github.com/hampager/pagegate/internal/model"
	transphttp "github.com/hampager/pagegate/internal/transport/http"
)

// ─── fixture ─────────────────────────────────────────────────────────────────

func newHandler(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	repo := model.NewRepository()
	t.Cleanup(func() { _ = repo.Close() })
	gw, err := gateway.New(repo)
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return transphttp.New(gw, cfg, "node-test", &metrics.Registry{}).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ─── routes ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	h := newHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		NodeID string `json:"node_id"`
	}
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.NodeID != "node-test" {
		t.Errorf("health: got %+v", resp)
	}
}

func TestCallSignCRUD(t *testing.T) {
	h := newHandler(t, nil)

	cs := model.CallSign{
		Pagers: []model.Pager{{Number: 1234, Protocol: model.ProtocolSkyper}},
	}
	if rec := doJSON(t, h, http.MethodPut, "/callsigns/dl1abc", cs); rec.Code != http.StatusOK {
		t.Fatalf("PUT status: want 200, got %d (%s)", rec.Code, rec.Body)
	}

	rec := doJSON(t, h, http.MethodGet, "/callsigns/dl1abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status: want 200, got %d", rec.Code)
	}
	var got model.CallSign
	decode(t, rec, &got)
	if got.Name != "dl1abc" || len(got.Pagers) != 1 {
		t.Errorf("GET body: got %+v", got)
	}

	if rec := doJSON(t, h, http.MethodDelete, "/callsigns/dl1abc", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status: want 204, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/callsigns/dl1abc", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("GET after delete: want 404, got %d", rec.Code)
	}
}

func TestPutCallSign_RejectsInvalid(t *testing.T) {
	h := newHandler(t, nil)
	// No pagers.
	if rec := doJSON(t, h, http.MethodPut, "/callsigns/dl1abc", model.CallSign{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want 400, got %d", rec.Code)
	}
}

func TestTransmitterAuthKeyNeverReturned(t *testing.T) {
	h := newHandler(t, nil)

	tx := model.Transmitter{
		AuthKey:               "secret",
		Protocol:              model.ProtocolSkyper,
		IdentificationAddress: 400,
	}
	rec := doJSON(t, h, http.MethodPut, "/transmitters/tx-north", tx)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status: want 200, got %d (%s)", rec.Code, rec.Body)
	}
	var got model.Transmitter
	decode(t, rec, &got)
	if got.AuthKey != "" {
		t.Error("PUT response leaked auth key")
	}

	rec = doJSON(t, h, http.MethodGet, "/transmitters/tx-north", nil)
	decode(t, rec, &got)
	if got.AuthKey != "" {
		t.Error("GET response leaked auth key")
	}
}

func TestPlaceCall_NoLiveSessions(t *testing.T) {
	h := newHandler(t, nil)

	call := model.Call{
		Text:             "hello",
		CallSignNames:    []string{"dl1abc"},
		TransmitterNames: []string{"tx-gone"},
	}
	rec := doJSON(t, h, http.MethodPost, "/calls", call)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want 202, got %d (%s)", rec.Code, rec.Body)
	}
	var res gateway.CallResult
	decode(t, rec, &res)
	if res.MessagesQueued != 0 {
		t.Errorf("queued: want 0, got %d", res.MessagesQueued)
	}
	if len(res.UnknownDestinations) != 1 {
		t.Errorf("unknown destinations: want 1, got %v", res.UnknownDestinations)
	}
}

func TestPlaceCall_RejectsMalformedJSON(t *testing.T) {
	h := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/calls", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want 400, got %d", rec.Code)
	}
}

func TestSessions_EmptyList(t *testing.T) {
	h := newHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("# HELP pagegate_")) {
		t.Error("metrics body missing pagegate families")
	}
}

// ─── middleware ──────────────────────────────────────────────────────────────

func TestAuthMiddleware(t *testing.T) {
	h := newHandler(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "sekrit"
	})

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key: want 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Api-Key", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with key: want 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := newHandler(t, func(cfg *config.Config) {
		cfg.Producers.MaxRate = 1
		cfg.Producers.Burst = 2
	})

	var limited bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodGet, "/health", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of requests never rate limited")
	}
}
