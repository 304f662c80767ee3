package tracking

import (
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/star/wwtengine/internal/transform"
)

// Real ISS orbital elements, epoch 2024-04-09T12:00Z.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseTLE(t *testing.T) {
	data := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
		"BROKEN\nnot a line\nstill not\n"
	entries, err := ParseTLE(strings.NewReader(data), testLogger())
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.NORADID != 25544 || e.Name != "ISS (ZARYA)" {
		t.Errorf("entry = %d %q", e.NORADID, e.Name)
	}
	want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !e.Epoch.Equal(want) {
		t.Errorf("epoch = %v, want %v", e.Epoch, want)
	}
}

func TestParseEpochCentury(t *testing.T) {
	tests := []struct {
		in   string
		year int
	}{
		{"57001.0", 1957},
		{"99001.0", 1999},
		{"00001.0", 2000},
		{"56001.0", 2056},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Fatalf("parseEpoch(%q): %v", tt.in, err)
		}
		if got.Year() != tt.year || got.YearDay() != 1 {
			t.Errorf("parseEpoch(%q) = %v", tt.in, got)
		}
	}
	if _, err := parseEpoch("12"); err == nil {
		t.Error("expected error for short epoch")
	}
}

func TestNewElementRejectsBadLines(t *testing.T) {
	if _, err := NewElement("x", "short", issLine2); err == nil {
		t.Error("expected length error")
	}
	bad := "3" + issLine1[1:]
	if _, err := NewElement("x", bad, issLine2); err == nil {
		t.Error("expected leading digit error")
	}
}

func TestSatelliteGeocentric(t *testing.T) {
	el, err := NewElement("ISS", issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	sat, err := NewSatellite(el, nil)
	if err != nil {
		t.Fatalf("NewSatellite: %v", err)
	}
	if sat.Name() != "ISS" {
		t.Errorf("Name = %q", sat.Name())
	}

	start := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	seen := map[int]bool{}
	for i := 0; i < 90; i++ {
		ra, dec, err := sat.Position(start.Add(time.Duration(i) * time.Minute))
		if err != nil {
			t.Fatalf("Position: %v", err)
		}
		if ra < 0 || ra >= 24 {
			t.Fatalf("ra %v out of range", ra)
		}
		// Geocentric declination cannot exceed the inclination.
		if math.Abs(dec) > 52 {
			t.Fatalf("dec %v exceeds inclination", dec)
		}
		seen[int(ra)] = true
	}
	// One orbit sweeps through every hour of RA.
	if len(seen) < 20 {
		t.Errorf("only %d RA hours visited over an orbit", len(seen))
	}
}

func TestSatelliteTopocentricParallax(t *testing.T) {
	el, _ := NewElement("ISS", issLine1, issLine2)
	geo, err := NewSatellite(el, nil)
	if err != nil {
		t.Fatal(err)
	}
	obs := transform.NewObserverPosition(47.6, -122.3, 50)
	topo, err := NewSatellite(el, &obs)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2024, 4, 10, 6, 0, 0, 0, time.UTC)
	ra1, dec1, _ := geo.Position(at)
	ra2, dec2, _ := topo.Position(at)
	if sep := transform.AngularSeparation(ra1, dec1, ra2, dec2); sep < 1 {
		t.Errorf("parallax %.3f deg, expected a large shift for a LEO object", sep)
	}
}

func TestNewSatelliteInvalidTLE(t *testing.T) {
	_, err := NewSatellite(Element{NORADID: 99999, Line1: "invalid line 1", Line2: "invalid line 2"}, nil)
	if err == nil {
		t.Fatal("expected error for invalid TLE")
	}
}

func TestFixed(t *testing.T) {
	f, err := NewFixed("M31", 24.7, 41.27)
	if err != nil {
		t.Fatal(err)
	}
	ra, dec, err := f.Position(time.Now())
	if err != nil || math.Abs(ra-0.7) > 1e-9 || dec != 41.27 {
		t.Errorf("Position = %v %v %v", ra, dec, err)
	}
	if _, err := NewFixed("bad", 1, 91); err == nil {
		t.Error("expected error for dec > 90")
	}
	if _, err := NewFixed("bad", math.NaN(), 0); err == nil {
		t.Error("expected error for NaN ra")
	}
}
