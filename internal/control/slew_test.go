package control

import (
	"testing"
	"time"

	"github.com/star/wwtengine/internal/render"
)

func TestSlewDurationClamped(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	tests := []struct {
		name string
		to   render.View
		want time.Duration
	}{
		{"tiny move uses minimum", render.View{RA: 0.001, Dec: 0, Zoom: 60}, cfg.SlewMinDuration},
		{"opposite side uses maximum", render.View{RA: 12, Dec: 0, Zoom: 60}, 6 * time.Second},
		{"pole to pole", render.View{RA: 0, Dec: -90, Zoom: 60}, 6 * time.Second},
	}
	from := render.View{RA: 0, Dec: 0, Zoom: 60}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newSlew(from, tt.to, now, cfg).duration
			if d := got - tt.want; d < -time.Millisecond || d > time.Millisecond {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}

	cfg.SlewMaxDuration = 2 * time.Second
	if got := newSlew(from, render.View{RA: 12, Zoom: 60}, now, cfg).duration; got != 2*time.Second {
		t.Errorf("clamped duration = %v, want 2s", got)
	}
}

func TestSlewZoomIsLogarithmic(t *testing.T) {
	start := time.Now()
	s := &slew{
		from:     render.View{Zoom: 1},
		to:       render.View{Zoom: 100},
		start:    start,
		duration: time.Second,
	}
	v, done := s.at(start.Add(500 * time.Millisecond))
	if done {
		t.Fatal("slew finished early")
	}
	if !approx(v.Zoom, 10, 1e-9) {
		t.Errorf("midpoint zoom = %v, want 10", v.Zoom)
	}
	if v, done := s.at(start.Add(time.Second)); !done || v.Zoom != 100 {
		t.Errorf("end = %+v done=%v", v, done)
	}
	if v, _ := s.at(start.Add(-time.Second)); v.Zoom != 1 {
		t.Errorf("before start zoom = %v", v.Zoom)
	}
}
