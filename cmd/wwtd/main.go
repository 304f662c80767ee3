package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/wwtengine/internal/api"
	"github.com/star/wwtengine/internal/auth"
	"github.com/star/wwtengine/internal/config"
	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/journal"
	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/render"
	"github.com/star/wwtengine/internal/resource"
	"github.com/star/wwtengine/internal/stream"
	"github.com/star/wwtengine/internal/transform"
	"github.com/star/wwtengine/internal/transport/ws"
	"github.com/star/wwtengine/web"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	store := resource.NewStore()
	loader := resource.NewLoader(resource.Config{
		EnableFetch: cfg.Catalog.EnableFetch,
		SourceURLs:  cfg.Catalog.SourceURLs,
		CacheDir:    cfg.Catalog.CacheDir,
		MaxFiles:    cfg.Catalog.MaxFiles,
		MaxAge:      cfg.Catalog.MaxAge(),
	}, store, logger.With("component", "resource"))

	broker := stream.NewBroker(cfg.Stream.BrokerBuffer)
	opts := []control.Option{
		control.WithConfig(engineConfig(cfg.Engine)),
		control.WithLoader(loader),
		control.WithRendererFactory(render.HeadlessFactory(nil)),
		control.WithLogger(logger.With("component", "control")),
		control.WithInitHook(broker.Hook()),
	}

	var jrnl *journal.Journal
	if cfg.JournalPath != "" {
		jrnl, err = journal.Open(cfg.JournalPath, logger.With("component", "journal"))
		if err != nil {
			logger.Warn("journal unavailable, history disabled", "path", cfg.JournalPath, "error", err)
		} else {
			opts = append(opts, control.WithInitHook(jrnl.Hook()))
		}
	}

	host := control.NewHost(opts...)

	var observer *transform.ObserverPosition
	if o := cfg.Observer; o != nil {
		pos := transform.NewObserverPosition(o.LatDeg, o.LonDeg, o.AltM)
		observer = &pos
	}

	srv := api.NewServer(cfg.HTTPAddr, logger, api.Deps{
		Host:     host,
		Catalogs: store,
		Journal:  jrnl,
		Broker:   broker,
		Observer: observer,
		Console:  web.Handler(),
		Stream: stream.Config{
			MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
			MaxTotal:           cfg.Stream.MaxTotal,
			KeepaliveInterval:  cfg.Stream.Keepalive(),
			TrustProxy:         cfg.Stream.TrustProxy,
		},
		WS: ws.Config{
			MaxConcurrentPerIP: cfg.Stream.WSMaxPerIP,
			TrustProxy:         cfg.Stream.TrustProxy,
		},
		Auth: auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
		RateLimit: api.RateLimitConfig{
			RPS:        cfg.RateLimit.RPS,
			Burst:      cfg.RateLimit.Burst,
			TrustProxy: cfg.Stream.TrustProxy,
		},
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := host.InitControl(cfg.Engine.SurfaceID); err != nil {
		logger.Error("engine init failed", "surface_id", cfg.Engine.SurfaceID, "error", err)
		os.Exit(1)
	}

	// Background goroutine to update clock and catalog gauges.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := host.SpaceTime().Snapshot()
				metrics.SetClock(st.Rate, st.Synced)
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"surface_id", cfg.Engine.SurfaceID,
			"auth_enabled", cfg.Auth.Enabled,
			"catalog_fetch_enabled", cfg.Catalog.EnableFetch,
			"journal_enabled", jrnl != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	host.Close()
	if jrnl != nil {
		if err := jrnl.Close(); err != nil {
			logger.Error("journal close error", "error", err)
		}
	}

	logger.Info("server stopped")
}

// loadConfig applies defaults, the WWT_CONFIG file if set, then WWT_*
// environment overrides.
func loadConfig(logger *slog.Logger) (config.File, error) {
	cfg := config.Defaults()
	if path := os.Getenv("WWT_CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
		logger.Info("loaded config file", "path", path)
	}
	config.ApplyEnv(&cfg, os.Getenv, logger)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Auth.Enabled {
		logger.Info("auth enabled")
	}

	logger.Info("engine config",
		"frame_rate", cfg.Engine.FrameRate,
		"snap_tolerance_deg", cfg.Engine.SnapTolerance,
		"slew_degrees_per_second", cfg.Engine.SlewDegreesPerSecond,
		"slew_min_ms", cfg.Engine.SlewMinMS,
		"slew_max_ms", cfg.Engine.SlewMaxMS,
	)
	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.Stream.MaxConcurrentPerIP,
		"max_total", cfg.Stream.MaxTotal,
		"keepalive_interval_seconds", cfg.Stream.KeepaliveSeconds,
		"ws_max_per_ip", cfg.Stream.WSMaxPerIP,
	)
	return cfg, nil
}

func engineConfig(e config.Engine) control.Config {
	return control.Config{
		FrameRate:            float64(e.FrameRate),
		SnapTolerance:        e.SnapTolerance,
		ZoomTolerance:        e.ZoomTolerance,
		SlewDegreesPerSecond: e.SlewDegreesPerSecond,
		SlewMinDuration:      e.SlewMin(),
		SlewMaxDuration:      e.SlewMax(),
		MinZoom:              e.MinZoom,
		MaxZoom:              e.MaxZoom,
		LoadRetryInterval:    e.LoadRetry(),
		InitialView:          render.View{RA: e.InitialRA, Dec: e.InitialDec, Zoom: e.InitialZoom},
	}
}
