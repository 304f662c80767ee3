// Package control is the engine: it owns the view, animates navigation,
// follows tracking targets and hands frames to a renderer.
//
// A Host holds the simulated clock and at most one active Control. Calling
// an initializer again replaces the active Control; the clock survives.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/star/wwtengine/internal/metrics"
	"github.com/star/wwtengine/internal/render"
	"github.com/star/wwtengine/internal/resource"
	"github.com/star/wwtengine/internal/script"
	"github.com/star/wwtengine/internal/spacetime"
	"github.com/star/wwtengine/internal/tracking"
	"github.com/star/wwtengine/internal/transform"
)

var (
	// ErrEmptySurfaceID is returned by the initializers for a blank surface id.
	ErrEmptySurfaceID = errors.New("control: surface id must not be empty")
	// ErrInvalidTarget is returned for navigation targets outside the sky or zoom range.
	ErrInvalidTarget = errors.New("control: invalid navigation target")
	// ErrNotInitialized is returned when no control has been initialized.
	ErrNotInitialized = errors.New("control: engine not initialized")
	// ErrClosed is returned by a control that has been replaced or shut down.
	ErrClosed = errors.New("control: closed")
)

// CatalogLoader supplies the resources the engine needs before it is ready.
type CatalogLoader interface {
	Load(ctx context.Context) (*resource.Catalog, error)
}

// Status is a point-in-time summary of a control.
type Status struct {
	SurfaceID string      `json:"surface_id"`
	View      render.View `json:"view"`
	Ready     bool        `json:"ready"`
	Animating bool        `json:"animating"`
	Tracking  string      `json:"tracking,omitempty"`
	Frames    uint64      `json:"frames"`
}

// Control is one engine instance bound to a host surface.
type Control struct {
	cfg       Config
	surfaceID string
	clock     spacetime.Clock
	space     *spacetime.Controller
	renderer  render.Renderer
	si        *script.Interface
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// renderMu serializes frames so sequence numbers reach the renderer in order.
	renderMu sync.Mutex

	mu      sync.Mutex
	view    render.View
	slew    *slew
	target  tracking.Target
	seq     uint64
	catalog *resource.Catalog
	started bool
	closed  bool
}

func newControl(surfaceID string, cfg Config, clk spacetime.Clock, space *spacetime.Controller, r render.Renderer, logger *slog.Logger) *Control {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Control{
		cfg:       cfg,
		surfaceID: surfaceID,
		clock:     clk,
		space:     space,
		renderer:  r,
		logger:    logger.With("component", "control", "surface_id", surfaceID),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		view:      cfg.InitialView,
	}
	c.si = script.New(c)
	return c
}

// ScriptInterface returns the scripting handle of this control.
func (c *Control) ScriptInterface() *script.Interface { return c.si }

// SurfaceID returns the host surface the control is bound to.
func (c *Control) SurfaceID() string { return c.surfaceID }

// SpaceTime returns the simulated clock driving this control.
func (c *Control) SpaceTime() *spacetime.Controller { return c.space }

// ViewRA returns the current right ascension in hours.
func (c *Control) ViewRA() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.RA
}

// ViewDec returns the current declination in degrees.
func (c *Control) ViewDec() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Dec
}

// View returns the current view.
func (c *Control) View() render.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Animating reports whether an animated goto is in flight.
func (c *Control) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slew != nil
}

// Ready reports whether initialization has completed.
func (c *Control) Ready() bool { return c.si.IsReady() }

// Catalog returns the loaded catalog, or nil before ready.
func (c *Control) Catalog() *resource.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// Status returns a summary of the control's state.
func (c *Control) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		SurfaceID: c.surfaceID,
		View:      c.view,
		Animating: c.slew != nil,
		Frames:    c.seq,
	}
	if c.target != nil {
		st.Tracking = c.target.Name()
	}
	st.Ready = c.si.IsReady()
	return st
}

// Done is closed once the control's background goroutines have exited.
func (c *Control) Done() <-chan struct{} { return c.done }

// GotoRADecZoom moves the view to raHours, decDeg at zoom. Any tracking is
// cancelled and an in-flight slew is superseded without an arrived event.
//
// When instant is set, or the target is within the snap tolerance, the view
// jumps and "arrived" fires before GotoRADecZoom returns. Otherwise the view
// animates and "arrived" fires from the frame that completes the slew.
func (c *Control) GotoRADecZoom(raHours, decDeg, zoom float64, instant bool) error {
	if err := c.validateTarget(raHours, decDeg, zoom); err != nil {
		return err
	}
	to := render.View{RA: transform.NormalizeRA(raHours), Dec: decDeg, Zoom: zoom}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopTrackingLocked()
	if c.slew != nil {
		metrics.IncNavigations("superseded")
		c.slew = nil
	}
	if instant || near(c.view, to, c.cfg) {
		c.view = to
		c.mu.Unlock()

		metrics.IncNavigations("instant")
		c.si.FireArrived(script.NewArrivedEventArgs(to.RA, to.Dec, to.Zoom))
		return nil
	}
	c.slew = newSlew(c.view, to, c.clock.Now(), c.cfg)
	c.logger.Debug("slew started",
		"ra", to.RA, "dec", to.Dec, "zoom", to.Zoom,
		"duration_ms", c.slew.duration.Milliseconds(),
	)
	c.mu.Unlock()

	metrics.IncNavigations("animated")
	return nil
}

func (c *Control) validateTarget(raHours, decDeg, zoom float64) error {
	if math.IsNaN(raHours) || math.IsInf(raHours, 0) {
		return fmt.Errorf("%w: ra %v", ErrInvalidTarget, raHours)
	}
	if math.IsNaN(decDeg) || decDeg < -90 || decDeg > 90 {
		return fmt.Errorf("%w: dec %v outside [-90, 90]", ErrInvalidTarget, decDeg)
	}
	if math.IsNaN(zoom) || zoom < c.cfg.MinZoom || zoom > c.cfg.MaxZoom {
		return fmt.Errorf("%w: zoom %v outside [%v, %v]", ErrInvalidTarget, zoom, c.cfg.MinZoom, c.cfg.MaxZoom)
	}
	return nil
}

// StartTracking makes the view follow target. The first position is
// resolved immediately so a target that cannot be positioned is rejected.
func (c *Control) StartTracking(target tracking.Target) error {
	if target == nil {
		return fmt.Errorf("%w: nil tracking target", ErrInvalidTarget)
	}
	ra, dec, err := target.Position(c.space.Now())
	if err != nil {
		return fmt.Errorf("tracking %s: %w", target.Name(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.slew != nil {
		metrics.IncNavigations("superseded")
		c.slew = nil
	}
	c.target = target
	c.view.RA, c.view.Dec = ra, dec
	metrics.SetTrackingActive(true)
	c.logger.Info("tracking started", "target", target.Name())
	return nil
}

// StopTracking ends tracking and reports whether a target was being tracked.
func (c *Control) StopTracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTrackingLocked()
}

func (c *Control) stopTrackingLocked() bool {
	if c.target == nil {
		return false
	}
	c.logger.Info("tracking stopped", "target", c.target.Name())
	c.target = nil
	metrics.SetTrackingActive(false)
	return true
}

// Tracking returns the current tracking target, or nil.
func (c *Control) Tracking() tracking.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// RenderOneFrame advances animation and tracking, then renders exactly one
// frame on the calling goroutine.
func (c *Control) RenderOneFrame(ctx context.Context) error {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	sim := c.space.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var arrived *script.ArrivedEventArgs
	if c.slew != nil {
		v, done := c.slew.at(c.clock.Now())
		c.view = v
		if done {
			c.slew = nil
			args := script.NewArrivedEventArgs(v.RA, v.Dec, v.Zoom)
			arrived = &args
		}
	} else if c.target != nil {
		ra, dec, err := c.target.Position(sim)
		if err != nil {
			c.logger.Warn("tracking target lost", "target", c.target.Name(), "error", err)
			c.stopTrackingLocked()
		} else {
			c.view.RA, c.view.Dec = ra, dec
		}
	}
	c.seq++
	frame := render.Frame{
		Sequence:   c.seq,
		SurfaceID:  c.surfaceID,
		View:       c.view,
		SimTime:    sim,
		JulianDate: spacetime.UTCToJulian(sim),
		Tracking:   c.target != nil,
		Animating:  c.slew != nil,
		RenderedAt: c.clock.Now(),
	}
	c.mu.Unlock()

	start := time.Now()
	err := c.renderer.RenderFrame(ctx, frame)
	metrics.RecordFrame(time.Since(start), err)

	if arrived != nil {
		metrics.IncNavigations("arrived")
		c.si.FireArrived(*arrived)
	}
	if err != nil {
		return fmt.Errorf("render frame %d: %w", frame.Sequence, err)
	}
	return nil
}

// Close stops the render loop and any pending load. It does not wait for
// them; use Done for that. Closing twice is a no-op.
func (c *Control) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.slew = nil
	c.stopTrackingLocked()
	c.mu.Unlock()

	c.si.Retire()
	c.cancel()
	if !started {
		close(c.done)
	}
	c.logger.Info("control closed")
}

// start launches the catalog load and, optionally, the render loop.
func (c *Control) start(loader CatalogLoader, renderLoop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.started = true

	c.wg.Add(1)
	go c.load(loader)
	if renderLoop {
		c.wg.Add(1)
		go c.loop()
	}
	go func() {
		c.wg.Wait()
		close(c.done)
	}()
}

// load retries the catalog until it succeeds or the control is closed,
// then fires "ready".
func (c *Control) load(loader CatalogLoader) {
	defer c.wg.Done()

	var cat *resource.Catalog
	for attempt := 1; loader != nil; attempt++ {
		var err error
		cat, err = loader.Load(c.ctx)
		if err == nil {
			break
		}
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("catalog load failed",
			"attempt", attempt,
			"retry_in", c.cfg.LoadRetryInterval.String(),
			"error", err,
		)
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.LoadRetryInterval):
		}
	}
	if cat == nil {
		cat = &resource.Catalog{Name: "empty"}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.catalog = cat
	// Published under mu so a concurrent Close, and the host reset that
	// follows it, always lands after this.
	metrics.SetEngineReady(true)
	c.mu.Unlock()

	c.logger.Info("engine ready", "places", len(cat.Places), "imagesets", len(cat.ImageSets))
	c.si.FireReady()
}

// loop renders at the configured frame rate until the control is closed.
func (c *Control) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.frameInterval())
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			err := c.RenderOneFrame(c.ctx)
			if err == nil {
				failures = 0
				continue
			}
			if c.ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				c.logger.Warn("frame render failed", "consecutive_failures", failures, "error", err)
			}
		}
	}
}
