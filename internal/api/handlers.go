package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/httputil"
	"github.com/star/wwtengine/internal/journal"
	"github.com/star/wwtengine/internal/resource"
	"github.com/star/wwtengine/internal/spacetime"
	"github.com/star/wwtengine/internal/tracking"
	"github.com/star/wwtengine/internal/transform"
)

const maxBodyBytes = 64 << 10

// decodeBody reads a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// active returns the singleton control or answers 503.
func (s *Server) active(w http.ResponseWriter) *control.Control {
	c := s.deps.Host.Singleton()
	if c == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, control.ErrNotInitialized.Error())
	}
	return c
}

// commandError maps engine errors to HTTP statuses.
func commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrInvalidTarget),
		errors.Is(err, spacetime.ErrZeroRate),
		errors.Is(err, spacetime.ErrInvalidRate):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, control.ErrClosed), errors.Is(err, control.ErrNotInitialized):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// GET /api/v1/view
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	c := s.active(w)
	if c == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c.Status())
}

type gotoRequest struct {
	RA      *float64 `json:"ra"`
	Dec     *float64 `json:"dec"`
	Zoom    *float64 `json:"zoom"`
	Place   string   `json:"place"`
	Instant bool     `json:"instant"`
}

// POST /api/v1/view/goto
//
// Either ra and dec, or a catalog place name. Zoom defaults to the current
// zoom, or the place's zoom level.
func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := s.active(w)
	if c == nil {
		return
	}

	zoom := c.View().Zoom
	var ra, dec float64
	switch {
	case req.Place != "":
		p, ok := c.Catalog().FindPlace(req.Place)
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("place %q not found", req.Place))
			return
		}
		ra, dec = p.RA, p.Dec
		if p.ZoomLevel > 0 {
			zoom = p.ZoomLevel
		}
	case req.RA != nil && req.Dec != nil:
		ra, dec = *req.RA, *req.Dec
	default:
		httputil.WriteError(w, http.StatusBadRequest, "ra and dec, or place, are required")
		return
	}
	if req.Zoom != nil {
		zoom = *req.Zoom
	}

	if err := c.GotoRADecZoom(ra, dec, zoom, req.Instant); err != nil {
		commandError(w, err)
		return
	}
	status := http.StatusOK
	st := c.Status()
	if st.Animating {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, st)
}

type tleLines struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

type observerBody struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	AltM float64 `json:"alt_m"`
}

type trackRequest struct {
	Name     string        `json:"name"`
	RA       *float64      `json:"ra"`
	Dec      *float64      `json:"dec"`
	TLE      *tleLines     `json:"tle"`
	Observer *observerBody `json:"observer"`
}

// satellite builds an SGP4 target, preferring the request's observer over
// the configured default.
func (s *Server) satellite(name string, lines tleLines, o *observerBody) (*tracking.Satellite, error) {
	el, err := tracking.NewElement(name, lines.Line1, lines.Line2)
	if err != nil {
		return nil, err
	}
	obs := s.deps.Observer
	if o != nil {
		if o.Lat < -90 || o.Lat > 90 {
			return nil, fmt.Errorf("observer latitude %v outside [-90, 90]", o.Lat)
		}
		pos := transform.NewObserverPosition(o.Lat, o.Lon, o.AltM)
		obs = &pos
	}
	return tracking.NewSatellite(el, obs)
}

// POST /api/v1/view/track
//
// Body is either a fixed position {"name","ra","dec"} or a satellite
// {"name","tle":{"line1","line2"},"observer":{...}}.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := s.active(w)
	if c == nil {
		return
	}

	var target tracking.Target
	switch {
	case req.TLE != nil:
		sat, err := s.satellite(req.Name, *req.TLE, req.Observer)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		target = sat
	case req.RA != nil && req.Dec != nil:
		name := req.Name
		if name == "" {
			name = "fixed"
		}
		f, err := tracking.NewFixed(name, *req.RA, *req.Dec)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		target = f
	default:
		httputil.WriteError(w, http.StatusBadRequest, "tle, or ra and dec, are required")
		return
	}

	if err := c.StartTracking(target); err != nil {
		if errors.Is(err, control.ErrClosed) {
			commandError(w, err)
			return
		}
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c.Status())
}

// DELETE /api/v1/view/track
func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	c := s.active(w)
	if c == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"stopped": c.StopTracking()})
}

// POST /api/v1/render
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	c := s.active(w)
	if c == nil {
		return
	}
	if err := c.RenderOneFrame(r.Context()); err != nil {
		commandError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c.Status())
}

type passesRequest struct {
	Name         string        `json:"name"`
	TLE          tleLines      `json:"tle"`
	Observer     *observerBody `json:"observer"`
	Start        *time.Time    `json:"start"`
	Hours        float64       `json:"hours"`
	MinElevation float64       `json:"min_elevation"`
	MaxPasses    int           `json:"max_passes"`
}

const maxPassHours = 72

// POST /api/v1/passes
//
// Predicts when a satellite is above the observer's horizon. The start
// defaults to the simulated time.
func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	var req passesRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Hours < 0 || req.Hours > maxPassHours {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("hours must be within [0, %d]", maxPassHours))
		return
	}
	if req.MinElevation < 0 || req.MinElevation >= 90 || req.MaxPasses < 0 || req.MaxPasses > 50 {
		httputil.WriteError(w, http.StatusBadRequest, "min_elevation must be within [0, 90) and max_passes within [0, 50]")
		return
	}
	sat, err := s.satellite(req.Name, req.TLE, req.Observer)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sat.Observer() == nil {
		httputil.WriteError(w, http.StatusBadRequest, "observer is required")
		return
	}

	start := s.deps.Host.SpaceTime().Now()
	if req.Start != nil {
		start = *req.Start
	}
	window := tracking.Window{
		Start:        start,
		Duration:     time.Duration(req.Hours * float64(time.Hour)),
		MinElevation: req.MinElevation,
		MaxPasses:    req.MaxPasses,
	}
	passes, err := sat.Passes(r.Context(), window)
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tracking.PassResult{
		Name:    sat.Name(),
		NORADID: sat.Element().NORADID,
		Passes:  passes,
	})
}

// GET /api/v1/clock
func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.deps.Host.SpaceTime().Snapshot())
}

type clockRequest struct {
	Now         *time.Time `json:"now"`
	TimeRate    *float64   `json:"time_rate"`
	SyncToClock *bool      `json:"sync_to_clock"`
}

// PUT /api/v1/clock
//
// Applies sync_to_clock, then now, then time_rate. The request is validated
// as a whole first, so a rejected update changes nothing.
func (s *Server) handleSetClock(w http.ResponseWriter, r *http.Request) {
	var req clockRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TimeRate != nil {
		if err := spacetime.ValidateRate(*req.TimeRate); err != nil {
			commandError(w, err)
			return
		}
	}

	st := s.deps.Host.SpaceTime()
	if req.SyncToClock != nil {
		st.SetSyncToClock(*req.SyncToClock)
	}
	if req.Now != nil {
		st.SetNow(*req.Now)
	}
	if req.TimeRate != nil {
		if _, err := st.SetTimeRate(*req.TimeRate); err != nil {
			commandError(w, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, st.Snapshot())
}

// POST /api/v1/clock/sync
func (s *Server) handleSyncClock(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Host.SpaceTime()
	st.SyncTime()
	httputil.WriteJSON(w, http.StatusOK, st.Snapshot())
}

// GET /api/v1/convert/julian?date=2000-01-01T12:00:00Z
func handleToJulian(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		httputil.WriteError(w, http.StatusBadRequest, "date parameter is required")
		return
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid date, expected RFC 3339")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"date": t.UTC().Format(time.RFC3339Nano),
		"jd":   spacetime.UTCToJulian(t),
	})
}

// GET /api/v1/convert/utc?jd=2451545
func handleToUTC(w http.ResponseWriter, r *http.Request) {
	jd, err := strconv.ParseFloat(r.URL.Query().Get("jd"), 64)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid jd parameter")
		return
	}
	t, err := spacetime.ParseJulian(jd)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"jd":   jd,
		"date": t.Format(time.RFC3339Nano),
	})
}

// parseLimit reads ?limit= within [1, hi], defaulting to def.
func parseLimit(r *http.Request, def, hi int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > hi {
		return 0, fmt.Errorf("invalid limit parameter, must be 1-%d", hi)
	}
	return n, nil
}

// GET /api/v1/places?q=andromeda&limit=50
func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := s.active(w)
	if c == nil {
		return
	}
	cat := c.Catalog()
	if cat == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}

	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	places := make([]resource.Place, 0, min(limit, len(cat.Places)))
	total := 0
	for _, p := range cat.Places {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		total++
		if len(places) < limit {
			places = append(places, p)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"catalog": cat.Name,
		"total":   total,
		"places":  places,
	})
}

// GET /api/v1/history?kind=arrived&limit=50
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		httputil.WriteError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit, err := parseLimit(r, 50, 500)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.deps.Journal.Recent(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
