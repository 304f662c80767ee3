package tracking

import (
	"context"
	"runtime"
	"sync"
	"time"
)

const (
	coarseStep      = 30 * time.Second // between coarse scan steps
	fineStep        = time.Second      // between fine scan steps
	minPassDuration = 10 * time.Second
)

// Window bounds a pass search.
type Window struct {
	Start        time.Time
	Duration     time.Duration // default 24h
	MinElevation float64       // degrees
	MaxPasses    int           // default 10
}

func (w Window) withDefaults() Window {
	if w.Duration <= 0 {
		w.Duration = 24 * time.Hour
	}
	if w.MaxPasses <= 0 {
		w.MaxPasses = 10
	}
	return w
}

// Pass is one interval during which a satellite is above MinElevation.
// RA and Dec are the apparent position at culmination, a natural goto target.
type Pass struct {
	Rise            time.Time `json:"rise"`
	Culmination     time.Time `json:"culmination"`
	Set             time.Time `json:"set"`
	DurationSeconds float64   `json:"duration_seconds"`
	MaxElevation    float64   `json:"max_elevation"`
	RA              float64   `json:"ra"`
	Dec             float64   `json:"dec"`
}

// PassResult holds the passes predicted for one satellite.
type PassResult struct {
	Name    string `json:"name"`
	NORADID int    `json:"norad_id"`
	Passes  []Pass `json:"passes"`
	Error   string `json:"error,omitempty"`
}

// PredictPasses computes passes for each satellite. Each satellite is
// processed in its own goroutine, bounded by a semaphore.
func PredictPasses(ctx context.Context, sats []*Satellite, w Window) []PassResult {
	results := make([]PassResult, len(sats))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, sat := range sats {
		results[i] = PassResult{Name: sat.Name(), NORADID: sat.el.NORADID}
		wg.Add(1)
		go func(res *PassResult, s *Satellite) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				res.Error = "cancelled"
				return
			}

			passes, err := s.Passes(ctx, w)
			if err != nil {
				res.Error = err.Error()
				return
			}
			res.Passes = passes
		}(&results[i], sat)
	}

	wg.Wait()
	return results
}

// Passes finds the satellite's passes over its observer within w.
func (s *Satellite) Passes(ctx context.Context, w Window) ([]Pass, error) {
	if s.observer == nil {
		return nil, ErrNoObserver
	}
	w = w.withDefaults()
	start := w.Start.UTC()
	end := start.Add(w.Duration)
	passes := []Pass{}

	// Coarse scan: step through the window looking for elevation > 0.
	t := start
	for t.Before(end) && len(passes) < w.MaxPasses {
		if err := ctx.Err(); err != nil {
			return passes, err
		}
		el, err := s.Elevation(t)
		if err != nil || el <= 0 {
			t = t.Add(coarseStep)
			continue
		}

		pass, windowEnd := s.refinePass(ctx, t, start, end, w.MinElevation)
		if pass != nil && pass.Set.Sub(pass.Rise) >= minPassDuration {
			passes = append(passes, *pass)
		}
		// Jump past the end of this window.
		t = windowEnd.Add(coarseStep)
	}
	return passes, nil
}

// refinePass scans at fineStep around a coarse hit. It backs up to find the
// rise, then scans forward until the satellite drops below minElev, or below
// the horizon without ever reaching minElev. Returns the pass, if any, and
// where the scan stopped.
func (s *Satellite) refinePass(ctx context.Context, hit, start, end time.Time, minElev float64) (*Pass, time.Time) {
	t := hit.Add(-coarseStep)
	if t.Before(start) {
		t = start
	}

	var p Pass
	rose := false
	for ; t.Before(end); t = t.Add(fineStep) {
		if ctx.Err() != nil {
			break
		}
		el, err := s.Elevation(t)
		if err != nil {
			continue
		}
		if el >= minElev {
			if !rose {
				rose = true
				p.Rise, p.Culmination, p.MaxElevation = t, t, el
			}
			if el > p.MaxElevation {
				p.Culmination, p.MaxElevation = t, el
			}
			continue
		}
		if rose {
			p.Set = t
			break
		}
		if el < 0 && t.After(hit) {
			return nil, t
		}
	}

	if !rose {
		return nil, t
	}
	// Still above at the end of the window: close the pass there.
	if p.Set.IsZero() {
		p.Set = t
	}
	p.DurationSeconds = p.Set.Sub(p.Rise).Seconds()
	if ra, dec, err := s.Position(p.Culmination); err == nil {
		p.RA, p.Dec = ra, dec
	}
	return &p, p.Set
}
