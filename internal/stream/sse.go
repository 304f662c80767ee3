// Package stream delivers engine events to remote clients. A Broker fans
// events out; the SSE handler serves them at GET /api/v1/stream/events.
//
// SSE message format:
//
//	event: arrived
//	data: {"type":"arrived","surface_id":"canvas","ra":5.5,"dec":-20,"zoom":10,...}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","surface_id":"canvas","ready":true,...}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/star/wwtengine/internal/httputil"
	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/render"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Use X-Forwarded-For for the client IP.
}

// Metadata is the first message on every stream.
type Metadata struct {
	Type              string       `json:"type"`
	SurfaceID         string       `json:"surface_id,omitempty"`
	Ready             bool         `json:"ready"`
	View              *render.View `json:"view,omitempty"`
	SimTime           string       `json:"sim_time"`
	TimeRate          float64      `json:"time_rate"`
	SyncToClock       bool         `json:"sync_to_clock"`
	CatalogAgeSeconds int          `json:"catalog_age_seconds"`
}

// MetadataFunc reports the engine state for a new stream.
type MetadataFunc func() Metadata

// Handler manages SSE streaming connections.
type Handler struct {
	broker   *Broker
	metadata MetadataFunc
	config   Config
	limiter  *Limiter
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(broker *Broker, metadata MetadataFunc, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		broker:   broker,
		metadata: metadata,
		config:   config,
		limiter:  NewLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:   logger,
	}
}

// parseKinds reads the optional comma-separated types filter.
func parseKinds(raw string) (map[string]bool, error) {
	if raw == "" {
		return nil, nil
	}
	kinds := make(map[string]bool)
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		switch k {
		case KindInit, KindReady, KindArrived:
			kinds[k] = true
		default:
			return nil, fmt.Errorf("unknown event type %q", k)
		}
	}
	return kinds, nil
}

// HandleEvents serves the SSE event stream.
// GET /api/v1/stream/events?types=arrived,ready
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r.URL.Query().Get("types"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.Acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.Count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("sse", "connect")
	metrics.IncStreamsActive("sse")

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"types", r.URL.Query().Get("types"),
	)

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.Release(ip)
		metrics.IncStreamConnections("sse", "disconnect")
		metrics.DecStreamsActive("sse")
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the first write so no event between metadata and
	// the loop is lost.
	events, cancel := h.broker.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	meta := Metadata{Type: "metadata"}
	if h.metadata != nil {
		meta = h.metadata()
		meta.Type = "metadata"
	}
	if err := c.sendEvent("", meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if kinds != nil && !kinds[ev.Type] {
				continue
			}
			if err := c.sendEvent(ev.Type, ev); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
