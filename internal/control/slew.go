package control

import (
	"math"
	"time"

	"github.com/star/wwtengine/internal/render"
	"github.com/star/wwtengine/internal/transform"
)

// slew is an animated transition between two views.
type slew struct {
	from, to render.View
	start    time.Time
	duration time.Duration
}

func newSlew(from, to render.View, now time.Time, cfg Config) *slew {
	angle := transform.AngularSeparation(from.RA, from.Dec, to.RA, to.Dec)
	d := time.Duration(angle / cfg.SlewDegreesPerSecond * float64(time.Second))
	d = min(max(d, cfg.SlewMinDuration), cfg.SlewMaxDuration)
	return &slew{from: from, to: to, start: now, duration: d}
}

// at returns the interpolated view at now and whether the slew is complete.
func (s *slew) at(now time.Time) (render.View, bool) {
	elapsed := now.Sub(s.start)
	if elapsed >= s.duration {
		return s.to, true
	}
	if elapsed <= 0 {
		return s.from, false
	}
	f := float64(elapsed) / float64(s.duration)
	e := (1 - math.Cos(math.Pi*f)) / 2

	// RA takes the short way around the 0h/24h seam.
	dRA := math.Mod(s.to.RA-s.from.RA, 24)
	if dRA > 12 {
		dRA -= 24
	} else if dRA < -12 {
		dRA += 24
	}

	return render.View{
		RA:   transform.NormalizeRA(s.from.RA + dRA*e),
		Dec:  s.from.Dec + (s.to.Dec-s.from.Dec)*e,
		Zoom: math.Exp(math.Log(s.from.Zoom) + (math.Log(s.to.Zoom)-math.Log(s.from.Zoom))*e),
	}, false
}

// near reports whether b is within snapping distance of a.
func near(a, b render.View, cfg Config) bool {
	if transform.AngularSeparation(a.RA, a.Dec, b.RA, b.Dec) > cfg.SnapTolerance {
		return false
	}
	return math.Abs(b.Zoom-a.Zoom) <= cfg.ZoomTolerance*a.Zoom
}
