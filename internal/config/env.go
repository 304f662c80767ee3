package config

import (
	"log/slog"
	"strconv"
	"strings"
)

// Getenv looks up an environment variable. os.Getenv in production.
type Getenv func(string) string

// ApplyEnv overrides f with WWT_* variables. Invalid values are logged and
// ignored so the previous value stays in effect.
func ApplyEnv(f *File, getenv Getenv, logger *slog.Logger) {
	e := envReader{getenv: getenv, logger: logger}

	e.str("WWT_HTTP_ADDR", &f.HTTPAddr)
	e.str("WWT_LOG_LEVEL", &f.LogLevel)
	e.str("WWT_JOURNAL_PATH", &f.JournalPath)

	e.str("WWT_SURFACE_ID", &f.Engine.SurfaceID)
	e.positiveInt("WWT_FRAME_RATE", &f.Engine.FrameRate)
	e.positiveFloat("WWT_SNAP_TOLERANCE", &f.Engine.SnapTolerance)
	e.positiveFloat("WWT_SLEW_DEGREES_PER_SECOND", &f.Engine.SlewDegreesPerSecond)
	e.positiveInt("WWT_SLEW_MIN_MS", &f.Engine.SlewMinMS)
	e.positiveInt("WWT_SLEW_MAX_MS", &f.Engine.SlewMaxMS)
	e.positiveInt("WWT_LOAD_RETRY_SECONDS", &f.Engine.LoadRetrySeconds)

	e.boolean("WWT_ENABLE_CATALOG_FETCH", &f.Catalog.EnableFetch)
	e.list("WWT_CATALOG_URLS", &f.Catalog.SourceURLs)
	e.str("WWT_CATALOG_CACHE_DIR", &f.Catalog.CacheDir)
	e.positiveInt("WWT_CATALOG_MAX_FILES", &f.Catalog.MaxFiles)
	e.positiveInt("WWT_CATALOG_MAX_AGE_HOURS", &f.Catalog.MaxAgeHours)

	e.observer("WWT_OBSERVER", &f.Observer)

	e.positiveInt("WWT_STREAM_MAX_CONCURRENT", &f.Stream.MaxConcurrentPerIP)
	e.positiveInt("WWT_STREAM_MAX_TOTAL", &f.Stream.MaxTotal)
	e.positiveInt("WWT_STREAM_KEEPALIVE_INTERVAL", &f.Stream.KeepaliveSeconds)
	e.positiveInt("WWT_WS_MAX_CONCURRENT", &f.Stream.WSMaxPerIP)
	e.boolean("WWT_TRUST_PROXY", &f.Stream.TrustProxy)

	if v := getenv("WWT_RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Warn("invalid WWT_RATE_LIMIT_RPS value, using default", "value", v, "default", f.RateLimit.RPS)
		} else {
			f.RateLimit.RPS = n
		}
	}
	e.positiveInt("WWT_RATE_LIMIT_BURST", &f.RateLimit.Burst)

	e.boolean("WWT_AUTH_ENABLED", &f.Auth.Enabled)
	e.str("WWT_AUTH_TOKEN", &f.Auth.Token)
}

type envReader struct {
	getenv Getenv
	logger *slog.Logger
}

func (e envReader) str(key string, dst *string) {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		*dst = v
	}
}

func (e envReader) positiveInt(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

func (e envReader) positiveFloat(key string, dst *float64) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || !(n > 0) {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

func (e envReader) boolean(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = b
}

// list reads a comma-separated value, dropping empty entries.
func (e envReader) list(key string, dst *[]string) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

// observer reads "lat,lon[,alt_m]". "none" clears the observer.
func (e envReader) observer(key string, dst **Observer) {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return
	}
	if strings.EqualFold(v, "none") {
		*dst = nil
		return
	}
	parts := strings.Split(v, ",")
	if len(parts) < 2 || len(parts) > 3 {
		e.logger.Warn("invalid "+key+" value, expected lat,lon[,alt_m]", "value", v)
		return
	}
	var vals [3]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			e.logger.Warn("invalid "+key+" value, expected lat,lon[,alt_m]", "value", v)
			return
		}
		vals[i] = n
	}
	*dst = &Observer{LatDeg: vals[0], LonDeg: vals[1], AltM: vals[2]}
}
