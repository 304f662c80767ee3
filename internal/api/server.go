package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/wwtengine/internal/auth"
	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/health"
	"github.com/star/wwtengine/internal/journal"
	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/resource"
	"github.com/star/wwtengine/internal/stream"
	"github.com/star/wwtengine/internal/transform"
	"github.com/star/wwtengine/internal/transport/ws"
)

// Deps are the engine parts the API serves.
type Deps struct {
	Host     *control.Host
	Catalogs *resource.Store             // Optional; reports catalog age.
	Journal  *journal.Journal            // Optional; enables /api/v1/history.
	Broker   *stream.Broker              // Required for the stream and socket endpoints.
	Observer *transform.ObserverPosition // Default observer for satellite tracking.
	Console  http.Handler                // Optional; served at /.

	Stream    stream.Config
	WS        ws.Config
	Auth      auth.Config
	RateLimit RateLimitConfig
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	if deps.Broker == nil {
		deps.Broker = stream.NewBroker(0)
	}
	s := &Server{deps: deps, logger: logger}

	var limiter *IPRateLimiter
	rl := deps.RateLimit
	if rl.RPS >= 0 {
		rps, burst := rl.RPS, rl.Burst
		if rps == 0 {
			rps = 5
		}
		if burst <= 0 {
			burst = 10
		}
		limiter = NewIPRateLimiter(rate.Limit(rps), burst)
	}
	command := func(h http.HandlerFunc) http.HandlerFunc { return limit(limiter, rl.TrustProxy, h) }

	streams := stream.NewHandler(deps.Broker, s.metadata, deps.Stream, logger.With("component", "stream"))
	sockets := ws.NewServer(deps.Host, deps.Broker, s.metadata, deps.WS, logger)

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/view", s.handleView)
	mux.HandleFunc("POST /api/v1/view/goto", command(s.handleGoto))
	mux.HandleFunc("POST /api/v1/view/track", command(s.handleTrack))
	mux.HandleFunc("DELETE /api/v1/view/track", command(s.handleStopTracking))
	mux.HandleFunc("POST /api/v1/render", command(s.handleRender))
	mux.HandleFunc("POST /api/v1/passes", command(s.handlePasses))

	mux.HandleFunc("GET /api/v1/clock", s.handleClock)
	mux.HandleFunc("PUT /api/v1/clock", command(s.handleSetClock))
	mux.HandleFunc("POST /api/v1/clock/sync", command(s.handleSyncClock))
	mux.HandleFunc("GET /api/v1/convert/julian", handleToJulian)
	mux.HandleFunc("GET /api/v1/convert/utc", handleToUTC)

	mux.HandleFunc("GET /api/v1/places", s.handlePlaces)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	mux.HandleFunc("GET /api/v1/stream/events", streams.HandleEvents)
	mux.HandleFunc("GET /api/v1/ws", sockets.Handler())

	if deps.Console != nil {
		mux.Handle("GET /", deps.Console)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) ready() bool {
	c := s.deps.Host.Singleton()
	return c != nil && c.Ready()
}

// metadata is the first message of every stream and socket.
func (s *Server) metadata() stream.Metadata {
	st := s.deps.Host.SpaceTime().Snapshot()
	m := stream.Metadata{
		Type:              "metadata",
		SimTime:           st.Now.Format(time.RFC3339Nano),
		TimeRate:          st.Rate,
		SyncToClock:       st.Synced,
		CatalogAgeSeconds: -1,
	}
	if c := s.deps.Host.Singleton(); c != nil {
		v := c.View()
		m.SurfaceID = c.SurfaceID()
		m.Ready = c.Ready()
		m.View = &v
	}
	if s.deps.Catalogs != nil {
		m.CatalogAgeSeconds = int(s.deps.Catalogs.AgeSeconds())
	}
	return m
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working behind the logger.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades pass through the logger.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
