package spacetime

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

var start = time.Date(2026, 2, 6, 4, 0, 0, 0, time.UTC)

func TestNewControllerDefaults(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)

	if !c.SyncToClock() {
		t.Error("expected synced by default")
	}
	if c.TimeRate() != 1 {
		t.Errorf("rate = %v, want 1", c.TimeRate())
	}
	if !c.Now().Equal(start) {
		t.Errorf("now = %v, want %v", c.Now(), start)
	}
	if c.Offset() != 0 {
		t.Errorf("offset = %v, want 0", c.Offset())
	}

	clk.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("now = %v, want %v", c.Now(), want)
	}
}

func TestSetNowReturnsValueAndAdvances(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)

	target := time.Date(1999, 12, 31, 23, 59, 0, 0, time.FixedZone("X", 3600))
	got := c.SetNow(target)
	if !got.Equal(target) {
		t.Errorf("SetNow returned %v, want %v", got, target)
	}
	if got.Location() != time.UTC {
		t.Errorf("SetNow returned location %v, want UTC", got.Location())
	}

	clk.Advance(10 * time.Second)
	if want := target.Add(10 * time.Second); !c.Now().Equal(want) {
		t.Errorf("now = %v, want %v", c.Now(), want)
	}
}

func TestSetTimeRate(t *testing.T) {
	for _, r := range []float64{1, 10, 0.5, -1, -3600, 1e6} {
		c := New(newFakeClock(start))
		got, err := c.SetTimeRate(r)
		if err != nil {
			t.Fatalf("SetTimeRate(%v): %v", r, err)
		}
		if got != r {
			t.Errorf("SetTimeRate(%v) returned %v", r, got)
		}
		if c.TimeRate() != r {
			t.Errorf("TimeRate() = %v, want %v", c.TimeRate(), r)
		}
	}
}

func TestSetTimeRateRejectsZero(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)
	if _, err := c.SetTimeRate(4); err != nil {
		t.Fatal(err)
	}

	rate, err := c.SetTimeRate(0)
	if !errors.Is(err, ErrZeroRate) {
		t.Fatalf("err = %v, want ErrZeroRate", err)
	}
	if rate != 4 {
		t.Errorf("returned rate = %v, want previous rate 4", rate)
	}
	if c.TimeRate() != 4 {
		t.Errorf("rate changed to %v", c.TimeRate())
	}

	clk.Advance(time.Second)
	if want := start.Add(4 * time.Second); !c.Now().Equal(want) {
		t.Errorf("now = %v, want %v", c.Now(), want)
	}

	if _, err := c.SetTimeRate(math.NaN()); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("NaN err = %v, want ErrInvalidRate", err)
	}
	if _, err := c.SetTimeRate(math.Inf(-1)); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("-Inf err = %v, want ErrInvalidRate", err)
	}
}

func TestValidateRate(t *testing.T) {
	for _, tt := range []struct {
		rate float64
		want error
	}{
		{1, nil}, {-3600, nil}, {0, ErrZeroRate}, {math.NaN(), ErrInvalidRate}, {math.Inf(1), ErrInvalidRate},
	} {
		if err := ValidateRate(tt.rate); !errors.Is(err, tt.want) {
			t.Errorf("ValidateRate(%v) = %v, want %v", tt.rate, err, tt.want)
		}
	}
}

func TestTimeRateScalesAdvance(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)

	c.SetTimeRate(10)
	clk.Advance(3 * time.Second)
	if want := start.Add(30 * time.Second); !c.Now().Equal(want) {
		t.Errorf("rate 10: now = %v, want %v", c.Now(), want)
	}

	// Rate changes are continuous: the value reached so far is kept.
	c.SetTimeRate(-2)
	clk.Advance(5 * time.Second)
	if want := start.Add(20 * time.Second); !c.Now().Equal(want) {
		t.Errorf("rate -2: now = %v, want %v", c.Now(), want)
	}
}

func TestSyncToClockFalseFreezes(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)
	c.SetTimeRate(100)
	clk.Advance(time.Second)

	frozenAt := c.Now()
	jFrozen := c.JNow()
	if got := c.SetSyncToClock(false); got {
		t.Error("SetSyncToClock(false) returned true")
	}

	clk.Advance(time.Hour)
	if !c.Now().Equal(frozenAt) {
		t.Errorf("frozen clock moved: %v -> %v", frozenAt, c.Now())
	}
	if c.JNow() != jFrozen {
		t.Errorf("frozen JNow moved: %v -> %v", jFrozen, c.JNow())
	}

	// Rate changes do not unfreeze.
	c.SetTimeRate(5)
	clk.Advance(time.Minute)
	if !c.Now().Equal(frozenAt) {
		t.Errorf("frozen clock moved after rate change: %v", c.Now())
	}
}

func TestSyncToClockTrueResumesFromFrozenValue(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)

	c.SetSyncToClock(false)
	clk.Advance(10 * time.Minute)
	if got := c.SetSyncToClock(true); !got {
		t.Error("SetSyncToClock(true) returned false")
	}

	if want := start; !c.Now().Equal(want) {
		t.Errorf("now = %v, want resume from %v", c.Now(), want)
	}
	if c.Offset() != -10*time.Minute {
		t.Errorf("offset = %v, want -10m", c.Offset())
	}

	clk.Advance(time.Second)
	if want := start.Add(time.Second); !c.Now().Equal(want) {
		t.Errorf("now = %v, want %v", c.Now(), want)
	}
}

func TestSyncTimeZeroesOffset(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)

	c.SetNow(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC))
	c.SetTimeRate(-50)
	c.SetSyncToClock(false)
	clk.Advance(time.Hour)

	c.SyncTime()

	if !c.SyncToClock() {
		t.Error("SyncTime did not enable syncing")
	}
	if c.Offset() != 0 {
		t.Errorf("offset = %v, want 0", c.Offset())
	}
	if !c.Now().Equal(clk.Now()) {
		t.Errorf("now = %v, want system time %v", c.Now(), clk.Now())
	}
}

func TestSyncTimeAgainstSystemClock(t *testing.T) {
	c := New(nil)
	c.SetNow(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC))
	c.SyncTime()

	diff := time.Since(c.Now())
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Second {
		t.Errorf("simulated time %v differs from system time by %v", c.Now(), diff)
	}
}

func TestSnapshot(t *testing.T) {
	clk := newFakeClock(start)
	c := New(clk)
	c.SetTimeRate(2)
	clk.Advance(time.Minute)

	s := c.Snapshot()
	if !s.Now.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("snapshot now = %v", s.Now)
	}
	if s.Rate != 2 || !s.Synced {
		t.Errorf("snapshot rate=%v synced=%v", s.Rate, s.Synced)
	}
	if s.Offset != time.Minute {
		t.Errorf("snapshot offset = %v, want 1m", s.Offset)
	}
	if math.Abs(s.JNow-UTCToJulian(s.Now)) > 1e-9 {
		t.Errorf("snapshot jnow = %v, want %v", s.JNow, UTCToJulian(s.Now))
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				switch j % 4 {
				case 0:
					c.SetTimeRate(float64(i + 1))
				case 1:
					c.SetSyncToClock(j%8 == 1)
				case 2:
					c.SyncTime()
				default:
					_ = c.Snapshot()
				}
			}
		}(i)
	}
	wg.Wait()
}
