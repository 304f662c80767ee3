// Package ws is a bidirectional WebSocket channel to the engine. Clients send
// commands (GOTO, RENDER, SYNC_TIME, SET_RATE) and receive acknowledgements
// plus every engine event published on the broker.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/httputil"
	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/spacetime"
	"github.com/star/wwtengine/internal/stream"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
	outQueue   = 32
)

// Engine is the part of the host the channel drives.
type Engine interface {
	Singleton() *control.Control
	SpaceTime() *spacetime.Controller
}

// Config tunes the channel.
type Config struct {
	MaxConcurrentPerIP int  // Max concurrent sockets per IP (default: 10).
	TrustProxy         bool // Use X-Forwarded-For for the client IP.
}

// Server upgrades requests and runs one session per connection.
type Server struct {
	engine   Engine
	broker   *stream.Broker
	metadata stream.MetadataFunc
	config   Config
	limiter  *stream.Limiter
	logger   *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server.
func NewServer(engine Engine, broker *stream.Broker, metadata stream.MetadataFunc, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		engine:   engine,
		broker:   broker,
		metadata: metadata,
		config:   cfg,
		limiter:  stream.NewLimiter(cfg.MaxConcurrentPerIP, 0),
		logger:   logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler serves GET /api/v1/ws.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, s.config.TrustProxy)
		if !s.limiter.Acquire(ip) {
			metrics.IncStreamErrors("rate_limit")
			rw.Header().Set("Retry-After", "30")
			httputil.WriteError(rw, http.StatusTooManyRequests, "too many concurrent sockets")
			return
		}
		defer s.limiter.Release(ip)

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.logger.Debug("upgrade failed", "remote_ip", ip, "error", err)
			return
		}
		defer conn.Close()

		metrics.IncStreamConnections("ws", "connect")
		metrics.IncStreamsActive("ws")
		start := time.Now()
		s.logger.Info("socket connected", "remote_ip", ip)
		defer func() {
			metrics.IncStreamConnections("ws", "disconnect")
			metrics.DecStreamsActive("ws")
			s.logger.Info("socket disconnected",
				"remote_ip", ip,
				"duration_seconds", int(time.Since(start).Seconds()),
			)
		}()

		s.serve(r.Context(), conn)
	}
}

func (s *Server) serve(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events, unsubscribe := s.broker.Subscribe()
	defer unsubscribe()

	hello := HelloMsg{Type: TypeHello}
	if s.metadata != nil {
		hello.Metadata = s.metadata()
	}
	hello.Metadata.Type = "metadata"
	if err := writeJSON(conn, hello); err != nil {
		return
	}

	out := make(chan []byte, outQueue)

	// Writer goroutine: the only writer on conn after the hello.
	writeErr := make(chan error, 1)
	go func() {
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			var b []byte
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b = <-out:
			case ev, ok := <-events:
				if !ok {
					writeErr <- nil
					return
				}
				data, err := json.Marshal(EventMsg{Type: TypeEvent, Event: ev})
				if err != nil {
					continue
				}
				b = data
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					writeErr <- err
					return
				}
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				writeErr <- err
				return
			}
			metrics.IncStreamMessages()
			metrics.AddStreamBytes(int64(len(b)))
		}
	}()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader loop.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		reply := s.handle(ctx, msg)
		b, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		select {
		case out <- b:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	// Best-effort wait for the writer to stop so it doesn't outlive conn.
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

// handle decodes and applies one command.
func (s *Server) handle(ctx context.Context, msg []byte) Reply {
	cmd, err := DecodeCommand(msg)
	if err != nil {
		metrics.IncWSCommands("unknown", "invalid")
		return Reply{Type: TypeError, Error: err.Error()}
	}

	reply := Reply{Type: TypeAck, ID: cmd.ID, Command: cmd.Type}
	if err := s.apply(ctx, cmd, &reply); err != nil {
		metrics.IncWSCommands(cmd.Type, "error")
		s.logger.Debug("command failed", "command", cmd.Type, "error", err)
		return Reply{Type: TypeError, ID: cmd.ID, Command: cmd.Type, Error: err.Error()}
	}
	metrics.IncWSCommands(cmd.Type, "ok")
	return reply
}

func (s *Server) apply(ctx context.Context, cmd Command, reply *Reply) error {
	switch cmd.Type {
	case TypeGoto:
		c := s.engine.Singleton()
		if c == nil {
			return control.ErrNotInitialized
		}
		return c.GotoRADecZoom(cmd.RA, cmd.Dec, cmd.Zoom, cmd.Instant)

	case TypeRender:
		c := s.engine.Singleton()
		if c == nil {
			return control.ErrNotInitialized
		}
		return c.RenderOneFrame(ctx)

	case TypeSyncTime:
		st := s.engine.SpaceTime()
		st.SyncTime()
		snap := st.Snapshot()
		reply.Clock = &snap
		return nil

	case TypeSetRate:
		st := s.engine.SpaceTime()
		if _, err := st.SetTimeRate(cmd.Rate); err != nil {
			return err
		}
		snap := st.Snapshot()
		reply.Clock = &snap
		return nil
	}
	return fmt.Errorf("unsupported command %q", cmd.Type)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
