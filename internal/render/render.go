// Package render defines the frame handed from the engine to a renderer and
// provides a headless renderer that only records frames.
package render

import (
	"context"
	"sync/atomic"
	"time"
)

// View is a camera orientation. Zoom is the viewport height in degrees, times six.
type View struct {
	RA   float64 `json:"ra"`
	Dec  float64 `json:"dec"`
	Zoom float64 `json:"zoom"`
}

// Frame is everything a renderer needs to draw one image of the sky.
type Frame struct {
	Sequence   uint64    `json:"sequence"`
	SurfaceID  string    `json:"surface_id"`
	View       View      `json:"view"`
	SimTime    time.Time `json:"sim_time"`
	JulianDate float64   `json:"julian_date"`
	Tracking   bool      `json:"tracking"`
	Animating  bool      `json:"animating"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Renderer draws frames onto a surface.
type Renderer interface {
	RenderFrame(ctx context.Context, f Frame) error
}

// Factory builds a renderer bound to a host surface id.
type Factory func(surfaceID string) (Renderer, error)

// Headless records the most recent frame. Safe for concurrent use.
type Headless struct {
	last   atomic.Pointer[Frame]
	frames atomic.Uint64
}

// NewHeadless creates an empty headless renderer.
func NewHeadless() *Headless {
	return &Headless{}
}

// HeadlessFactory returns a Factory producing headless renderers and reports
// each one it creates through onCreate (which may be nil).
func HeadlessFactory(onCreate func(surfaceID string, h *Headless)) Factory {
	return func(surfaceID string) (Renderer, error) {
		h := NewHeadless()
		if onCreate != nil {
			onCreate(surfaceID, h)
		}
		return h, nil
	}
}

// RenderFrame stores f as the latest frame.
func (h *Headless) RenderFrame(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.last.Store(&f)
	h.frames.Add(1)
	return nil
}

// Last returns the most recent frame, or nil if none has been rendered.
func (h *Headless) Last() *Frame {
	return h.last.Load()
}

// Frames returns the number of frames rendered.
func (h *Headless) Frames() uint64 {
	return h.frames.Load()
}
