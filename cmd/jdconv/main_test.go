package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func fixedNow() time.Time { return time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC) }

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut, fixedNow)
	return code, out.String(), errOut.String()
}

func TestDateToJulian(t *testing.T) {
	code, out, _ := runCmd(t, "-date", "2000-01-01T12:00:00Z")
	if code != 0 || strings.TrimSpace(out) != "2451545.000000" {
		t.Errorf("code %d out %q", code, out)
	}
	// No flags converts now.
	if _, out, _ := runCmd(t); strings.TrimSpace(out) != "2451545.000000" {
		t.Errorf("now = %q", out)
	}
}

func TestJulianToDate(t *testing.T) {
	code, out, _ := runCmd(t, "-jd", "2451545.5")
	if code != 0 || strings.TrimSpace(out) != "2000-01-02T00:00:00Z" {
		t.Errorf("code %d out %q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-date", "yesterday"},
		{"-jd", "abc"},
		{"-jd", "Inf"},
		{"-jd", "1e15"},
		{"-jd", "-1e15"},
		{"-date", "2000-01-01T00:00:00Z", "-jd", "1"},
		{"-bogus"},
	} {
		if code, _, _ := runCmd(t, args...); code != 2 {
			t.Errorf("%v: code = %d, want 2", args, code)
		}
	}
}

func TestTLEPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iss.tle")
	data := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd(t, "-tle", path, "-date", "2024-04-09T13:00:00Z", "-observer", "47.6,-122.3,50")
	if code != 0 {
		t.Fatalf("code %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Loaded 1 TLE entries") || !strings.Contains(out, "NORAD 25544 ISS (ZARYA): ra=") {
		t.Errorf("out = %q", out)
	}

	if code, _, _ := runCmd(t, "-tle", path, "-observer", "95,0"); code != 2 {
		t.Errorf("bad observer code = %d, want 2", code)
	}
	if code, _, _ := runCmd(t, "-tle", filepath.Join(t.TempDir(), "missing")); code != 1 {
		t.Errorf("missing file code = %d, want 1", code)
	}
}

func TestTLEPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iss.tle")
	data := "ISS (ZARYA)\n" +
		"1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993\n" +
		"2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCmd(t, "-tle", path, "-date", "2025-02-14T12:00:00Z",
		"-observer", "40.7128,-74.006,10", "-passes", "24")
	if code != 0 {
		t.Fatalf("code %d: %s", code, errOut)
	}
	if !strings.Contains(out, "NORAD 25544 ISS (ZARYA):") || strings.Contains(out, "Total passes found: 0") {
		t.Errorf("out = %q", out)
	}

	if code, _, _ := runCmd(t, "-tle", path, "-passes", "24"); code != 2 {
		t.Errorf("passes without observer code = %d, want 2", code)
	}
}
