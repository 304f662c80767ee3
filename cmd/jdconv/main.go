// Command jdconv converts between UTC and Julian dates. With a TLE file it
// prints satellite RA/Dec at an instant, or predicts passes over an observer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/star/wwtengine/internal/spacetime"
	"github.com/star/wwtengine/internal/tracking"
	"github.com/star/wwtengine/internal/transform"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("jdconv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		date     = fs.String("date", "", "UTC instant (RFC 3339) to convert to a Julian date")
		jd       = fs.String("jd", "", "Julian date to convert to UTC")
		tlePath  = fs.String("tle", "", "TLE file; prints each satellite's RA/Dec at -date (default now)")
		observer = fs.String("observer", "", "observer lat,lon[,alt_m] for topocentric positions")
		limit    = fs.Int("limit", 10, "satellites to print with -tle")
		passes   = fs.Float64("passes", 0, "with -tle and -observer, predict passes over this many hours")
		minElev  = fs.Float64("min-elevation", 0, "minimum pass elevation in degrees")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *date != "" && *jd != "" {
		fmt.Fprintln(stderr, "use only one of -date and -jd")
		return 2
	}

	at := now().UTC()
	if *date != "" {
		t, err := time.Parse(time.RFC3339Nano, *date)
		if err != nil {
			fmt.Fprintln(stderr, "parse -date:", err)
			return 2
		}
		at = t.UTC()
	}

	if *jd != "" {
		v, err := strconv.ParseFloat(*jd, 64)
		if err != nil {
			fmt.Fprintln(stderr, "invalid -jd:", *jd)
			return 2
		}
		t, err := spacetime.ParseJulian(v)
		if err != nil {
			fmt.Fprintln(stderr, "invalid -jd:", err)
			return 2
		}
		fmt.Fprintln(stdout, t.Format(time.RFC3339Nano))
		return 0
	}

	if *tlePath == "" {
		fmt.Fprintf(stdout, "%.6f\n", spacetime.UTCToJulian(at))
		return 0
	}

	var obs *transform.ObserverPosition
	if *observer != "" {
		o, err := parseObserver(*observer)
		if err != nil {
			fmt.Fprintln(stderr, "invalid -observer:", err)
			return 2
		}
		obs = &o
	}
	if *passes > 0 {
		if obs == nil {
			fmt.Fprintln(stderr, "-passes requires -observer")
			return 2
		}
		w := tracking.Window{
			Start:        at,
			Duration:     time.Duration(*passes * float64(time.Hour)),
			MinElevation: *minElev,
		}
		return printPasses(*tlePath, w, obs, *limit, stdout, stderr)
	}
	return printPositions(*tlePath, at, obs, *limit, stdout, stderr)
}

// loadSatellites reads up to limit satellites from a TLE file. Elements SGP4
// rejects are reported on stdout and skipped.
func loadSatellites(path string, obs *transform.ObserverPosition, limit int, stdout, stderr io.Writer) ([]*tracking.Satellite, bool) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(stderr, "open TLE file:", err)
		return nil, false
	}
	defer f.Close()

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	elements, err := tracking.ParseTLE(f, logger)
	if err != nil {
		fmt.Fprintln(stderr, "parse TLE:", err)
		return nil, false
	}
	fmt.Fprintf(stdout, "Loaded %d TLE entries\n", len(elements))

	var sats []*tracking.Satellite
	for _, el := range elements {
		if len(sats) >= limit {
			break
		}
		sat, err := tracking.NewSatellite(el, obs)
		if err != nil {
			fmt.Fprintf(stdout, "  NORAD %d %s: ERROR %v\n", el.NORADID, el.Name, err)
			continue
		}
		sats = append(sats, sat)
	}
	return sats, true
}

func printPasses(path string, w tracking.Window, obs *transform.ObserverPosition, limit int, stdout, stderr io.Writer) int {
	sats, ok := loadSatellites(path, obs, limit, stdout, stderr)
	if !ok {
		return 1
	}
	fmt.Fprintf(stdout, "Prediction start: %s\n", w.Start.Format(time.RFC3339))

	total := 0
	for _, res := range tracking.PredictPasses(context.Background(), sats, w) {
		if res.Error != "" {
			fmt.Fprintf(stdout, "  NORAD %d: ERROR %s\n", res.NORADID, res.Error)
			continue
		}
		fmt.Fprintf(stdout, "  NORAD %d %s: %d passes\n", res.NORADID, res.Name, len(res.Passes))
		total += len(res.Passes)
		for j, p := range res.Passes {
			fmt.Fprintf(stdout, "    pass %d: rise=%s maxEl=%.1f° dur=%.0fs ra=%.4fh dec=%.3f°\n",
				j, p.Rise.Format(time.RFC3339), p.MaxElevation, p.DurationSeconds, p.RA, p.Dec)
		}
	}
	fmt.Fprintf(stdout, "Total passes found: %d\n", total)
	return 0
}

func printPositions(path string, at time.Time, obs *transform.ObserverPosition, limit int, stdout, stderr io.Writer) int {
	sats, ok := loadSatellites(path, obs, limit, stdout, stderr)
	if !ok {
		return 1
	}
	fmt.Fprintf(stdout, "Instant %s (JD %.6f)\n", at.Format(time.RFC3339), spacetime.UTCToJulian(at))

	for _, sat := range sats {
		el := sat.Element()
		ra, dec, err := sat.Position(at)
		if err != nil {
			fmt.Fprintf(stdout, "  NORAD %d %s: ERROR %v\n", el.NORADID, el.Name, err)
			continue
		}
		fmt.Fprintf(stdout, "  NORAD %d %s: ra=%.4fh dec=%.3f°\n", el.NORADID, el.Name, ra, dec)
	}
	return 0
}

func parseObserver(v string) (transform.ObserverPosition, error) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return transform.ObserverPosition{}, fmt.Errorf("expected lat,lon[,alt_m], got %q", v)
	}
	var vals [3]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return transform.ObserverPosition{}, fmt.Errorf("component %d: %w", i+1, err)
		}
		vals[i] = n
	}
	if vals[0] < -90 || vals[0] > 90 {
		return transform.ObserverPosition{}, fmt.Errorf("latitude %v outside [-90, 90]", vals[0])
	}
	return transform.NewObserverPosition(vals[0], vals[1], vals[2]), nil
}
