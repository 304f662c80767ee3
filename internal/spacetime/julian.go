package spacetime

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/wwtengine/internal/transform"
)

// unixEpochJD is the Julian date of 1970-01-01T00:00:00Z.
const unixEpochJD = 2440587.5

// Julian dates of 0000-01-01T00:00:00Z and 10000-01-01T00:00:00Z. Dates
// outside this span have no RFC 3339 form.
const (
	MinJulianDate = 1721059.5
	MaxJulianDate = 5373484.5
)

// ErrJulianRange is returned for Julian dates outside [MinJulianDate, MaxJulianDate).
var ErrJulianRange = errors.New("julian date out of range")

// UTCToJulian converts a UTC time to a Julian date.
//
// Expressing UTC as a Julian date is not rigorously defined because of leap
// seconds; results are only meaningful to about a minute.
func UTCToJulian(t time.Time) float64 {
	return transform.JulianDate(t)
}

// JulianToUTC converts a Julian date to a UTC time, rounded to the
// millisecond. The same leap-second caveat as UTCToJulian applies. It
// returns the zero time when ParseJulian would fail.
func JulianToUTC(jd float64) time.Time {
	t, err := ParseJulian(jd)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseJulian is JulianToUTC with an error for non-finite or out-of-range
// dates.
func ParseJulian(jd float64) (time.Time, error) {
	if math.IsNaN(jd) || math.IsInf(jd, 0) {
		return time.Time{}, fmt.Errorf("%w: %v is not finite", ErrJulianRange, jd)
	}
	if jd < MinJulianDate || jd >= MaxJulianDate {
		return time.Time{}, fmt.Errorf("%w: %v outside [%v, %v)", ErrJulianRange, jd, MinJulianDate, MaxJulianDate)
	}
	secs := (jd - unixEpochJD) * 86400.0
	whole := math.Floor(secs)
	ms := math.Round((secs - whole) * 1000.0)
	return time.Unix(int64(whole), 0).Add(time.Duration(ms) * time.Millisecond).UTC(), nil
}
