// Package config assembles the service configuration: built-in defaults,
// then an optional YAML file, then WWT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine configures the control, its render loop and navigation.
type Engine struct {
	SurfaceID            string  `yaml:"surface_id"`
	FrameRate            int     `yaml:"frame_rate"`
	SnapTolerance        float64 `yaml:"snap_tolerance_deg"`
	ZoomTolerance        float64 `yaml:"zoom_tolerance"`
	SlewDegreesPerSecond float64 `yaml:"slew_degrees_per_second"`
	SlewMinMS            int     `yaml:"slew_min_ms"`
	SlewMaxMS            int     `yaml:"slew_max_ms"`
	MinZoom              float64 `yaml:"min_zoom"`
	MaxZoom              float64 `yaml:"max_zoom"`
	LoadRetrySeconds     int     `yaml:"load_retry_seconds"`
	InitialRA            float64 `yaml:"initial_ra"`
	InitialDec           float64 `yaml:"initial_dec"`
	InitialZoom          float64 `yaml:"initial_zoom"`
}

// Catalog configures WTML loading and its disk cache.
type Catalog struct {
	EnableFetch bool     `yaml:"enable_fetch"`
	SourceURLs  []string `yaml:"source_urls"`
	CacheDir    string   `yaml:"cache_dir"`
	MaxFiles    int      `yaml:"max_files"`
	MaxAgeHours int      `yaml:"max_age_hours"`
}

// Observer is the default ground site for satellite tracking. Nil in
// File.Observer means geocentric.
type Observer struct {
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
	AltM   float64 `yaml:"alt_m"`
}

// Stream configures the SSE and WebSocket endpoints.
type Stream struct {
	MaxConcurrentPerIP int  `yaml:"max_concurrent_per_ip"`
	MaxTotal           int  `yaml:"max_total"`
	KeepaliveSeconds   int  `yaml:"keepalive_seconds"`
	WSMaxPerIP         int  `yaml:"ws_max_per_ip"`
	BrokerBuffer       int  `yaml:"broker_buffer"`
	TrustProxy         bool `yaml:"trust_proxy"`
}

// RateLimit configures the per-IP limit on mutating commands.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Auth configures bearer token authentication.
type Auth struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// File is the full service configuration.
type File struct {
	HTTPAddr    string    `yaml:"http_addr"`
	LogLevel    string    `yaml:"log_level"`
	JournalPath string    `yaml:"journal_path"`
	Engine      Engine    `yaml:"engine"`
	Catalog     Catalog   `yaml:"catalog"`
	Observer    *Observer `yaml:"observer"`
	Stream      Stream    `yaml:"stream"`
	RateLimit   RateLimit `yaml:"rate_limit"`
	Auth        Auth      `yaml:"auth"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() File {
	return File{
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		JournalPath: "/tmp/wwtengine/journal.db",
		Engine: Engine{
			SurfaceID:            "wwtcanvas",
			FrameRate:            30,
			SnapTolerance:        1e-4,
			ZoomTolerance:        1e-4,
			SlewDegreesPerSecond: 30,
			SlewMinMS:            500,
			SlewMaxMS:            8000,
			MinZoom:              0.00022,
			MaxZoom:              360,
			LoadRetrySeconds:     10,
			InitialZoom:          60,
		},
		Catalog: Catalog{
			EnableFetch: true,
			CacheDir:    "/tmp/wwtengine/catalog",
			MaxFiles:    5,
			MaxAgeHours: 24,
		},
		Stream: Stream{
			MaxConcurrentPerIP: 10,
			MaxTotal:           1000,
			KeepaliveSeconds:   30,
			WSMaxPerIP:         10,
			BrokerBuffer:       64,
		},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (File, error) {
	f := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate reports settings the service cannot start with.
func (f File) Validate() error {
	if f.Auth.Enabled && f.Auth.Token == "" {
		return errors.New("auth token is required when auth is enabled (WWT_AUTH_TOKEN)")
	}
	if strings.TrimSpace(f.Engine.SurfaceID) == "" {
		return errors.New("engine surface_id must not be empty")
	}
	if f.Engine.MinZoom <= 0 || f.Engine.MaxZoom < f.Engine.MinZoom {
		return fmt.Errorf("invalid zoom range [%v, %v]", f.Engine.MinZoom, f.Engine.MaxZoom)
	}
	e := f.Engine
	for name, v := range map[string]float64{"initial_ra": e.InitialRA, "initial_dec": e.InitialDec, "initial_zoom": e.InitialZoom} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("engine %s must be finite", name)
		}
	}
	if e.InitialDec < -90 || e.InitialDec > 90 {
		return fmt.Errorf("engine initial_dec %v outside [-90, 90]", e.InitialDec)
	}
	if e.InitialZoom < e.MinZoom || e.InitialZoom > e.MaxZoom {
		return fmt.Errorf("engine initial_zoom %v outside [%v, %v]", e.InitialZoom, e.MinZoom, e.MaxZoom)
	}
	if o := f.Observer; o != nil && (o.LatDeg < -90 || o.LatDeg > 90) {
		return fmt.Errorf("observer latitude %v outside [-90, 90]", o.LatDeg)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (f File) SlogLevel() slog.Level {
	switch strings.ToLower(f.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SlewMin and the helpers below convert file units to durations.
func (e Engine) SlewMin() time.Duration   { return time.Duration(e.SlewMinMS) * time.Millisecond }
func (e Engine) SlewMax() time.Duration   { return time.Duration(e.SlewMaxMS) * time.Millisecond }
func (e Engine) LoadRetry() time.Duration { return time.Duration(e.LoadRetrySeconds) * time.Second }
func (c Catalog) MaxAge() time.Duration   { return time.Duration(c.MaxAgeHours) * time.Hour }
func (s Stream) Keepalive() time.Duration { return time.Duration(s.KeepaliveSeconds) * time.Second }
