package control

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/render"
	"github.com/star/wwtengine/internal/script"
	"github.com/star/wwtengine/internal/spacetime"
)

// InitHook runs for every new control after it is built and before its
// catalog load starts, so subscriptions made here see the "ready" event.
type InitHook func(c *Control)

// Option configures a Host.
type Option func(*Host)

// WithConfig sets the control configuration. Unset fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(h *Host) { h.cfg = cfg.withDefaults() }
}

// WithClock sets the system clock used for simulated time and animation.
func WithClock(clk spacetime.Clock) Option {
	return func(h *Host) { h.clock = clk }
}

// WithLoader sets the catalog loader. Without one, controls become ready
// immediately with an empty catalog.
func WithLoader(l CatalogLoader) Option {
	return func(h *Host) { h.loader = l }
}

// WithRendererFactory sets how renderers are built for a surface.
func WithRendererFactory(f render.Factory) Option {
	return func(h *Host) { h.factory = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithInitHook adds a hook run for every new control.
func WithInitHook(hook InitHook) Option {
	return func(h *Host) { h.hooks = append(h.hooks, hook) }
}

// Host owns the simulated clock and the single active control.
type Host struct {
	cfg     Config
	clock   spacetime.Clock
	space   *spacetime.Controller
	loader  CatalogLoader
	factory render.Factory
	logger  *slog.Logger
	hooks   []InitHook

	mu     sync.Mutex
	active *Control
}

// NewHost creates a host with no active control.
func NewHost(opts ...Option) *Host {
	h := &Host{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = spacetime.SystemClock{}
	}
	if h.factory == nil {
		h.factory = render.HeadlessFactory(nil)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	h.space = spacetime.New(h.clock)
	return h
}

// SpaceTime returns the simulated clock shared by every control of this host.
func (h *Host) SpaceTime() *spacetime.Controller { return h.space }

// Config returns the control configuration in effect.
func (h *Host) Config() Config { return h.cfg }

// InitControl initializes the engine on surfaceID with the render loop
// running. It is InitControl2(surfaceID, true).
func (h *Host) InitControl(surfaceID string) (*script.Interface, error) {
	return h.initControl(surfaceID, true, "initControl")
}

// InitControl2 initializes the engine on surfaceID, replacing any active
// control. The returned handle is usable immediately; the engine signals
// "ready" on it once its catalog has loaded.
func (h *Host) InitControl2(surfaceID string, startRenderLoop bool) (*script.Interface, error) {
	return h.initControl(surfaceID, startRenderLoop, "initControl2")
}

func (h *Host) initControl(surfaceID string, renderLoop bool, variant string) (*script.Interface, error) {
	surfaceID = strings.TrimSpace(surfaceID)
	if surfaceID == "" {
		return nil, ErrEmptySurfaceID
	}
	r, err := h.factory(surfaceID)
	if err != nil {
		return nil, fmt.Errorf("creating renderer for %q: %w", surfaceID, err)
	}

	c := newControl(surfaceID, h.cfg, h.clock, h.space, r, h.logger)

	h.mu.Lock()
	prev := h.active
	h.active = c
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
		h.logger.Info("engine reinitialized", "previous_surface_id", prev.surfaceID, "surface_id", surfaceID)
	}

	metrics.IncEngineInits(variant)
	metrics.SetEngineReady(false)

	for _, hook := range h.hooks {
		hook(c)
	}
	c.start(h.loader, renderLoop)

	h.logger.Info("engine initialized",
		"component", "host",
		"surface_id", surfaceID,
		"variant", variant,
		"render_loop", renderLoop,
	)
	return c.si, nil
}

// Singleton returns the active control, or nil before the first initializer.
func (h *Host) Singleton() *Control {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Close shuts down the active control and waits for its goroutines.
func (h *Host) Close() {
	h.mu.Lock()
	c := h.active
	h.active = nil
	h.mu.Unlock()

	if c == nil {
		return
	}
	c.Close()
	<-c.Done()
	metrics.SetEngineReady(false)
}
