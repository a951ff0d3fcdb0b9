package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hampager/pagegate/internal/gateway"
	"github.com/hampager/pagegate/internal/model"
)

// validName reports whether name is safe to use as a path component and a
// store key. Rejects empties, oversized strings, and path-like input.
func validName(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	if strings.ContainsAny(s, "/\\\x00") {
		return false
	}
	return s != "." && s != ".."
}

// Handler groups all HTTP request handlers around the gateway.
type Handler struct {
	gw     *gateway.Gateway
	nodeID string
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type healthResp struct {
	Status   string `json:"status"`
	NodeID   string `json:"node_id"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
	UptimeMs int64  `json:"uptime_ms"`
}

type broadcastTimeResp struct {
	Sessions int `json:"sessions"`
}

type callSignListResp struct {
	CallSigns []model.CallSign `json:"callsigns"`
}

type transmitterListResp struct {
	Transmitters []model.Transmitter `json:"transmitters"`
}

type sessionListResp struct {
	Sessions []gateway.SessionInfo `json:"sessions"`
}

// ─── Health ───────────────────────────────────────────────────────────────────

var startTime = time.Now()

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{
		Status:   "ok",
		NodeID:   h.nodeID,
		Sessions: h.gw.SessionCount(),
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		UptimeMs: time.Since(startTime).Milliseconds(),
	})
}

// ─── Calls ────────────────────────────────────────────────────────────────────

func (h *Handler) placeCall(w http.ResponseWriter, r *http.Request) {
	var call model.Call
	if !decodeJSON(w, r, &call) {
		return
	}
	res, err := h.gw.PlaceCall(call)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// ─── Sessions / broadcasts ────────────────────────────────────────────────────

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionListResp{Sessions: h.gw.SessionStats()})
}

func (h *Handler) broadcastTime(w http.ResponseWriter, _ *http.Request) {
	n, err := h.gw.BroadcastTime(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, broadcastTimeResp{Sessions: n})
}

// ─── CallSign records ─────────────────────────────────────────────────────────

func (h *Handler) listCallSigns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, callSignListResp{CallSigns: h.gw.Repository().ListCallSigns()})
}

func (h *Handler) getCallSign(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	c, err := h.gw.Repository().GetCallSign(name)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) putCallSign(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validName(name) {
		writeError(w, http.StatusBadRequest, "invalid callsign name")
		return
	}
	var c model.CallSign
	if !decodeJSON(w, r, &c) {
		return
	}
	c.Name = name
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.gw.Repository().PutCallSign(c); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCallSign(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.Repository().DeleteCallSign(r.PathValue("name")); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Transmitter records ──────────────────────────────────────────────────────

func (h *Handler) listTransmitters(w http.ResponseWriter, _ *http.Request) {
	txs := h.gw.Repository().ListTransmitters()
	for i := range txs {
		txs[i].AuthKey = "" // never expose credentials
	}
	writeJSON(w, http.StatusOK, transmitterListResp{Transmitters: txs})
}

func (h *Handler) getTransmitter(w http.ResponseWriter, r *http.Request) {
	t, err := h.gw.Repository().GetTransmitter(r.PathValue("name"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	t.AuthKey = ""
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) putTransmitter(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validName(name) {
		writeError(w, http.StatusBadRequest, "invalid transmitter name")
		return
	}
	var t model.Transmitter
	if !decodeJSON(w, r, &t) {
		return
	}
	t.Name = name
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.gw.Repository().PutTransmitter(t); err != nil {
		writeRepoError(w, err)
		return
	}
	t.AuthKey = ""
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteTransmitter(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.Repository().DeleteTransmitter(r.PathValue("name")); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── JSON helpers ─────────────────────────────────────────────────────────────

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// writeRepoError maps repository errors onto HTTP status codes.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields. On
// failure it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty request body")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
