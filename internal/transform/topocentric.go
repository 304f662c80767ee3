package transform

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ObserverPosition holds a ground observer's location in both geodetic and ECEF frames.
// ECEF coordinates are precomputed once so they can be reused across many lookups.
type ObserverPosition struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	ECEFx, ECEFy, ECEFz  float64 // precomputed ECEF (meters)
}

// Vector is a cartesian position in kilometers.
type Vector struct {
	X, Y, Z float64
}

// NewObserverPosition creates an ObserverPosition from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltM:   altM,
		ECEFx:  (N + altM) * cosLat * cosLon,
		ECEFy:  (N + altM) * cosLat * sinLon,
		ECEFz:  (N*(1-wgs84E2) + altM) * sinLat,
	}
}

// ObserverTEME rotates the observer's ECEF position into the TEME frame using
// a precomputed GMST angle (radians). The result is in kilometers.
//
// r_TEME = R3(-θ) * r_ECEF, the inverse of the Earth-rotation step used when
// going from TEME to ECEF. Polar motion is ignored.
func ObserverTEME(obs ObserverPosition, gmst float64) Vector {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return Vector{
		X: (obs.ECEFx*cosG - obs.ECEFy*sinG) / 1000.0,
		Y: (obs.ECEFx*sinG + obs.ECEFy*cosG) / 1000.0,
		Z: obs.ECEFz / 1000.0,
	}
}

// Elevation returns the angle in degrees of the topocentric TEME vector topo
// above the observer's horizon plane. The local vertical is the ellipsoid
// normal rotated into TEME by gmst (radians).
func Elevation(obs ObserverPosition, gmst float64, topo Vector) float64 {
	r := math.Sqrt(topo.X*topo.X + topo.Y*topo.Y + topo.Z*topo.Z)
	if r == 0 {
		return 90
	}
	cosLat := math.Cos(obs.LatRad)
	theta := obs.LonRad + gmst
	up := Vector{
		X: cosLat * math.Cos(theta),
		Y: cosLat * math.Sin(theta),
		Z: math.Sin(obs.LatRad),
	}
	s := (topo.X*up.X + topo.Y*up.Y + topo.Z*up.Z) / r
	return math.Asin(math.Max(-1, math.Min(1, s))) * 180.0 / math.Pi
}
