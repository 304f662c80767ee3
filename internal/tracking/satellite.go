package tracking

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/wwtengine/internal/transform"
)

// Satellite follows an Earth-orbiting object propagated with SGP4.
//
// Without an observer the position is geocentric. With one, the observer's
// position is subtracted first, which matters for low orbits where parallax
// reaches tens of degrees.
type Satellite struct {
	el       Element
	sat      satellite.Satellite
	observer *transform.ObserverPosition
}

// NewSatellite creates an SGP4 target from an element set.
// Returns an error if the SGP4 model fails to initialize.
func NewSatellite(el Element, observer *transform.ObserverPosition) (*Satellite, error) {
	if err := validateTLELines(el.Line1, el.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", el.NORADID, err)
	}

	sat := satellite.TLEToSat(el.Line1, el.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", el.NORADID, sat.Error, sat.ErrorStr)
	}
	return &Satellite{el: el, sat: sat, observer: observer}, nil
}

// Name returns the satellite name, or its NORAD ID if unnamed.
func (s *Satellite) Name() string {
	if s.el.Name != "" {
		return s.el.Name
	}
	return fmt.Sprintf("NORAD %d", s.el.NORADID)
}

// Element returns the element set the target was built from.
func (s *Satellite) Element() Element { return s.el }

// ErrNoObserver is returned by horizon computations on a geocentric satellite.
var ErrNoObserver = errors.New("tracking: satellite has no observer")

// Observer returns the ground site, or nil for a geocentric target.
func (s *Satellite) Observer() *transform.ObserverPosition { return s.observer }

// Position propagates to t and returns the apparent RA (hours) and Dec (degrees).
func (s *Satellite) Position(t time.Time) (float64, float64, error) {
	v, err := s.apparent(t.UTC())
	if err != nil {
		return 0, 0, err
	}
	ra, dec := transform.VectorToRADec(v)
	return ra, dec, nil
}

// Elevation returns the satellite's angle in degrees above the observer's
// horizon at t.
func (s *Satellite) Elevation(t time.Time) (float64, error) {
	if s.observer == nil {
		return 0, ErrNoObserver
	}
	t = t.UTC()
	v, err := s.apparent(t)
	if err != nil {
		return 0, err
	}
	return transform.Elevation(*s.observer, transform.GMST(t), v), nil
}

// apparent returns the TEME vector from the observer (or Earth's center)
// to the satellite at t, in kilometers.
func (s *Satellite) apparent(t time.Time) (transform.Vector, error) {
	pos, _ := satellite.Propagate(s.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	// Detect propagation failures via NaN/Inf check.
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", s.el.NORADID)
	}

	// Sanity check: position magnitude should be between ~6200km and ~50000km.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", s.el.NORADID, mag)
	}

	v := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	if s.observer != nil {
		o := transform.ObserverTEME(*s.observer, transform.GMST(t))
		v = transform.Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
	}
	return v, nil
}
