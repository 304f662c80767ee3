package transform

import "math"

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// NormalizeRA wraps a right ascension in hours into [0, 24).
func NormalizeRA(raHours float64) float64 {
	ra := math.Mod(raHours, 24.0)
	if ra < 0 {
		ra += 24.0
	}
	// math.Mod can return exactly 24 after the correction for tiny negatives.
	if ra >= 24.0 {
		ra = 0
	}
	return ra
}

// VectorToRADec converts an equatorial cartesian vector to right ascension
// (hours, [0,24)) and declination (degrees, [-90,90]).
// A zero vector maps to (0, 0).
func VectorToRADec(v Vector) (raHours, decDeg float64) {
	r := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if r == 0 {
		return 0, 0
	}
	ra := math.Atan2(v.Y, v.X) * rad2deg / 15.0
	dec := math.Asin(v.Z/r) * rad2deg
	return NormalizeRA(ra), dec
}

// AngularSeparation returns the great-circle distance in degrees between two
// equatorial positions given as (RA hours, Dec degrees).
//
// Uses the Vincenty formula, which stays accurate for both tiny and
// near-antipodal separations.
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	a1 := ra1 * 15.0 * deg2rad
	a2 := ra2 * 15.0 * deg2rad
	d1 := dec1 * deg2rad
	d2 := dec2 * deg2rad

	dA := a2 - a1
	sinD1, cosD1 := math.Sincos(d1)
	sinD2, cosD2 := math.Sincos(d2)
	sinDA, cosDA := math.Sincos(dA)

	num1 := cosD2 * sinDA
	num2 := cosD1*sinD2 - sinD1*cosD2*cosDA
	den := sinD1*sinD2 + cosD1*cosD2*cosDA

	return math.Atan2(math.Hypot(num1, num2), den) * rad2deg
}
