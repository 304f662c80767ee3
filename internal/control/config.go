package control

import (
	"math"
	"time"

	"github.com/star/wwtengine/internal/render"
	"github.com/star/wwtengine/internal/transform"
)

// Config tunes navigation, animation and the render loop.
type Config struct {
	FrameRate            float64       // Render loop frames per second (default: 30)
	SnapTolerance        float64       // Angular distance in degrees below which a goto snaps (default: 1e-4)
	ZoomTolerance        float64       // Relative zoom change below which a goto snaps (default: 1e-4)
	SlewDegreesPerSecond float64       // Animated goto speed (default: 30)
	SlewMinDuration      time.Duration // Shortest animated goto (default: 500ms)
	SlewMaxDuration      time.Duration // Longest animated goto (default: 8s)
	MinZoom              float64       // Smallest accepted zoom (default: 0.00022)
	MaxZoom              float64       // Largest accepted zoom (default: 360)
	LoadRetryInterval    time.Duration // Delay between failed catalog loads (default: 10s)
	InitialView          render.View   // View of a freshly initialized control
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FrameRate:            30,
		SnapTolerance:        1e-4,
		ZoomTolerance:        1e-4,
		SlewDegreesPerSecond: 30,
		SlewMinDuration:      500 * time.Millisecond,
		SlewMaxDuration:      8 * time.Second,
		MinZoom:              0.00022,
		MaxZoom:              360,
		LoadRetryInterval:    10 * time.Second,
		InitialView:          render.View{RA: 0, Dec: 0, Zoom: 60},
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	if c.SnapTolerance <= 0 {
		c.SnapTolerance = d.SnapTolerance
	}
	if c.ZoomTolerance <= 0 {
		c.ZoomTolerance = d.ZoomTolerance
	}
	if c.SlewDegreesPerSecond <= 0 {
		c.SlewDegreesPerSecond = d.SlewDegreesPerSecond
	}
	if c.SlewMinDuration <= 0 {
		c.SlewMinDuration = d.SlewMinDuration
	}
	if c.SlewMaxDuration <= 0 {
		c.SlewMaxDuration = d.SlewMaxDuration
	}
	if c.SlewMaxDuration < c.SlewMinDuration {
		c.SlewMaxDuration = c.SlewMinDuration
	}
	if c.MinZoom <= 0 {
		c.MinZoom = d.MinZoom
	}
	if c.MaxZoom <= 0 {
		c.MaxZoom = d.MaxZoom
	}
	if c.LoadRetryInterval <= 0 {
		c.LoadRetryInterval = d.LoadRetryInterval
	}
	if !c.validView(c.InitialView) {
		c.InitialView = d.InitialView
	}
	c.InitialView.RA = transform.NormalizeRA(c.InitialView.RA)
	return c
}

// validView reports whether v is a position GotoRADecZoom would accept,
// ignoring RA wrap.
func (c Config) validView(v render.View) bool {
	for _, f := range []float64{v.RA, v.Dec, v.Zoom} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.Dec >= -90 && v.Dec <= 90 && v.Zoom >= c.MinZoom && v.Zoom <= c.MaxZoom
}

func (c Config) frameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.FrameRate)
}
