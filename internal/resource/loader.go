package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/wwtengine/internal/metrics"
)

// ErrNoCatalog is returned when no source produced a catalog and no cached
// copy exists.
var ErrNoCatalog = errors.New("resource: no catalog available")

// Config controls catalog loading.
type Config struct {
	EnableFetch bool          // Fetch from the network (default: true)
	SourceURLs  []string      // WTML sources; empty means DefaultCatalogURL
	CacheDir    string        // On-disk cache directory
	MaxFiles    int           // Cache files to keep (default: 5)
	MaxAge      time.Duration // Reuse an in-memory catalog younger than this on re-init
}

// Loader produces the engine's catalog: the in-memory copy if fresh, else
// the network, else the newest disk cache.
type Loader struct {
	config   Config
	fetchers []*Fetcher
	cache    *Cache
	store    *Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoader creates a loader publishing into store.
func NewLoader(cfg Config, store *Store, logger *slog.Logger) *Loader {
	urls := cfg.SourceURLs
	if len(urls) == 0 {
		urls = []string{DefaultCatalogURL}
	}
	fetchers := make([]*Fetcher, 0, len(urls))
	for _, u := range urls {
		fetchers = append(fetchers, NewFetcher(u, logger))
	}

	var cache *Cache
	if cfg.CacheDir != "" {
		cache = NewCache(cfg.CacheDir, cfg.MaxFiles)
	}

	return &Loader{
		config:   cfg,
		fetchers: fetchers,
		cache:    cache,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Store returns the store the loader publishes into.
func (l *Loader) Store() *Store {
	return l.store
}

// Load returns a catalog and publishes it to the store.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	start := l.now()
	defer func() { metrics.ObserveResourceLoad(l.now().Sub(start)) }()

	if cur := l.store.Get(); cur != nil && l.config.MaxAge > 0 && l.now().Sub(cur.LoadedAt) < l.config.MaxAge {
		l.logger.Debug("reusing loaded catalog", "source", cur.Source, "places", len(cur.Places))
		return cur, nil
	}

	var fetchErr error
	if l.config.EnableFetch {
		cat, err := l.fetchAll(ctx)
		if err == nil {
			l.publish(cat, "fetched")
			if l.cache != nil {
				if err := l.cache.Write(cat, cat.LoadedAt); err != nil {
					l.logger.Warn("failed to write catalog cache", "error", err)
				}
			}
			return cat, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fetchErr = err
		l.logger.Warn("catalog fetch failed, trying cache", "error", err)
	}

	if l.cache != nil {
		cat, ts, err := l.cache.LoadLatest()
		if err == nil {
			cat.Source = "cache"
			cat.LoadedAt = ts
			l.publish(cat, "cached")
			l.logger.Info("loaded catalog from cache", "places", len(cat.Places), "cached_at", ts.Format(time.RFC3339))
			return cat, nil
		}
		l.logger.Debug("no usable catalog cache", "error", err)
	}

	if !l.config.EnableFetch {
		cat := &Catalog{Source: "empty", LoadedAt: l.now()}
		l.publish(cat, "empty")
		return cat, nil
	}

	metrics.IncResourceFetches("error")
	return nil, fmt.Errorf("%w: %v", ErrNoCatalog, fetchErr)
}

// fetchAll fetches and merges every source. It fails only if all sources fail.
func (l *Loader) fetchAll(ctx context.Context) (*Catalog, error) {
	merged := &Catalog{Source: "network"}
	var errs []error
	ok := 0

	for _, f := range l.fetchers {
		data, err := f.Fetch(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cat, skipped, err := ParseWTML(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.SourceURL(), err))
			continue
		}
		if skipped > 0 {
			l.logger.Warn("skipped malformed catalog places", "source_url", f.SourceURL(), "skipped", skipped)
		}
		merged.merge(cat)
		ok++
	}

	if ok == 0 {
		return nil, errors.Join(errs...)
	}
	merged.LoadedAt = l.now()
	return merged, nil
}

func (l *Loader) publish(cat *Catalog, result string) {
	l.store.Set(cat)
	metrics.IncResourceFetches(result)
	metrics.SetCatalogPlaces(len(cat.Places))
	l.logger.Info("catalog loaded",
		"source", cat.Source,
		"places", len(cat.Places),
		"image_sets", len(cat.ImageSets),
	)
}
