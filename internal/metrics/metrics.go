// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for PageGate. It deliberately avoids the prometheus/client_golang
// package so the gateway binary stays small with no additional dependencies.
//
// # Counter naming convention
//
// Every counter uses a tab-separated string as its label key so that a
// single sync.Map can hold all label combinations without map nesting.
//
//	Enqueued / Sent / Retransmitted / Dropped          →  key = transmitter
//	CallsPlaced / UnknownDestination                   →  key = transmitter
//	HTTPReqs                                           →  key = "method\tpath\tstatus"
//	HTTPDurMs / HTTPDurCnt                             →  key = "method\tpath"
//
// # Prometheus text output
//
// Registry.Handler() returns an http.Handler that renders all counters in
// the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map
// and atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Add increments the counter for key by n.
func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

// Value returns the current value for key (0 if never incremented).
func (lc *labelCounter) Value(key string) int64 {
	v, ok := lc.vals.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds all PageGate application metrics.
type Registry struct {
	// Session-level counters. key = transmitter name.
	Enqueued      labelCounter
	Sent          labelCounter
	Retransmitted labelCounter
	Dropped       labelCounter

	// Producer-level counters. key = transmitter name.
	CallsPlaced        labelCounter
	UnknownDestination labelCounter

	// TimeBroadcasts counts beacon ticks. key = "" (single series).
	TimeBroadcasts labelCounter

	// HTTP-level counters. key = "method\tpath\tstatus" (Reqs) or "method\tpath" (Dur*).
	HTTPReqs   labelCounter
	HTTPDurMs  labelCounter
	HTTPDurCnt labelCounter
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder

		perTransmitter := func(lc *labelCounter) func(fn func(labels, val string)) {
			return func(fn func(labels, val string)) {
				lc.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`transmitter=%q`, key), fmt.Sprintf("%d", val))
				})
			}
		}

		writeFamily(&b, "pagegate_messages_enqueued_total",
			"Total messages enqueued on transmitter sessions", "counter",
			perTransmitter(&r.Enqueued))
		writeFamily(&b, "pagegate_messages_sent_total",
			"Total envelopes handed to the transport for first transmission", "counter",
			perTransmitter(&r.Sent))
		writeFamily(&b, "pagegate_messages_retransmitted_total",
			"Total envelope retransmissions after RETRY acknowledgements", "counter",
			perTransmitter(&r.Retransmitted))
		writeFamily(&b, "pagegate_messages_dropped_total",
			"Total envelopes dropped after retry exhaustion", "counter",
			perTransmitter(&r.Dropped))
		writeFamily(&b, "pagegate_calls_placed_total",
			"Total calls routed to a transmitter", "counter",
			perTransmitter(&r.CallsPlaced))
		writeFamily(&b, "pagegate_unknown_destination_total",
			"Total deliveries refused because no session owns the destination", "counter",
			perTransmitter(&r.UnknownDestination))

		writeFamily(&b, "pagegate_time_broadcasts_total",
			"Total time beacon broadcasts", "counter",
			func(fn func(labels, val string)) {
				r.TimeBroadcasts.Each(func(_ string, val int64) {
					fn("", fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "pagegate_http_requests_total",
			"Total HTTP requests by method, path, and status code", "counter",
			func(fn func(labels, val string)) {
				r.HTTPReqs.Each(func(key string, val int64) {
					method, path, status := splitThree(key)
					fn(fmt.Sprintf(`method=%q,path=%q,status=%q`, method, path, status),
						fmt.Sprintf("%d", val))
				})
			})
		writeFamily(&b, "pagegate_http_request_duration_milliseconds_sum",
			"Sum of HTTP request durations in milliseconds", "counter",
			func(fn func(labels, val string)) {
				r.HTTPDurMs.Each(func(key string, val int64) {
					method, path := splitTwo(key)
					fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
						fmt.Sprintf("%d", val))
				})
			})
		writeFamily(&b, "pagegate_http_request_duration_milliseconds_count",
			"Count of observed HTTP request durations", "counter",
			func(fn func(labels, val string)) {
				r.HTTPDurCnt.Each(func(key string, val int64) {
					method, path := splitTwo(key)
					fn(fmt.Sprintf(`method=%q,path=%q`, method, path),
						fmt.Sprintf("%d", val))
				})
			})

		fmt.Fprint(w, b.String())
	})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// writeFamily renders one metric family: HELP and TYPE headers followed by
// one sample line per label combination.
func writeFamily(b *strings.Builder, name, help, typ string, each func(fn func(labels, val string))) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	each(func(labels, val string) {
		if labels == "" {
			fmt.Fprintf(b, "%s %s\n", name, val)
		} else {
			fmt.Fprintf(b, "%s{%s} %s\n", name, labels, val)
		}
	})
}

func splitTwo(key string) (string, string) {
	parts := strings.SplitN(key, "\t", 2)
	if len(parts) < 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

func splitThree(key string) (string, string, string) {
	parts := strings.SplitN(key, "\t", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// HTTPKey builds the label key for HTTP request counters.
func HTTPKey(parts ...string) string { return strings.Join(parts, "\t") }
