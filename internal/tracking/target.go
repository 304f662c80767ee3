// Package tracking provides moving targets the view can follow. A target
// reports its equatorial position at a simulated instant; the engine samples
// it once per frame.
package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/star/wwtengine/internal/transform"
)

// Target is anything with a sky position that depends on time.
type Target interface {
	Name() string
	Position(t time.Time) (raHours, decDeg float64, err error)
}

// Fixed is a target that never moves.
type Fixed struct {
	Label string
	RA    float64
	Dec   float64
}

// NewFixed validates and builds a fixed target.
func NewFixed(label string, raHours, decDeg float64) (*Fixed, error) {
	if math.IsNaN(raHours) || math.IsInf(raHours, 0) || math.IsNaN(decDeg) || decDeg < -90 || decDeg > 90 {
		return nil, fmt.Errorf("invalid fixed target %q: ra=%v dec=%v", label, raHours, decDeg)
	}
	return &Fixed{Label: label, RA: transform.NormalizeRA(raHours), Dec: decDeg}, nil
}

// Name returns the target label.
func (f *Fixed) Name() string { return f.Label }

// Position returns the fixed coordinates.
func (f *Fixed) Position(time.Time) (float64, float64, error) {
	return f.RA, f.Dec, nil
}
