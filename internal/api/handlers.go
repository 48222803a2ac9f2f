package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/passes"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
	"github.com/fpaludi/SatelliteTraker/internal/valkey"
)

// ResponseCache stores serialized responses shared between replicas.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type stateJSON struct {
	Frame    transform.Frame `json:"frame"`
	Position [3]float64      `json:"position_km"`
	Velocity [3]float64      `json:"velocity_km_s"`
}

type sampleJSON struct {
	At         time.Time `json:"at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AltitudeKm float64   `json:"altitude_km"`
	Inertial   stateJSON `json:"teme"`
	Fixed      stateJSON `json:"ecef"`
}

func toSampleJSON(s track.Sample) sampleJSON {
	return sampleJSON{
		At:         s.At,
		Latitude:   s.Geodetic.LatDeg,
		Longitude:  s.Geodetic.LonDeg,
		AltitudeKm: s.Geodetic.AltKm,
		Inertial:   stateJSON{s.Inertial.Frame, s.Inertial.Position, s.Inertial.Velocity},
		Fixed:      stateJSON{s.Fixed.Frame, s.Fixed.Position, s.Fixed.Velocity},
	}
}

type satelliteJSON struct {
	NORADID int       `json:"norad_id"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
}

func (h *handlers) startSpan(r *http.Request, name string, noradID int) (context.Context, trace.Span) {
	return h.tracer.Start(r.Context(), name, trace.WithAttributes(
		attribute.Int("satellite.norad_id", noradID),
		attribute.String("propagation.model", h.Propagator.ModelName()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GET /api/v1/catalog
func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	c := h.Store.Get()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":      c.Source,
		"loaded_at":   c.LoadedAt.UTC(),
		"age_seconds": int(time.Since(c.LoadedAt).Seconds()),
		"satellites":  len(c.Satellites),
		"epoch_min":   c.EpochRange.Min,
		"epoch_max":   c.EpochRange.Max,
	})
}

// POST /api/v1/catalog/reload
func (h *handlers) reloadCatalog(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog source configured")
		return
	}
	c, err := h.Store.Reload(h.Source, h.logger)
	if err != nil {
		h.logger.Warn("catalog reload failed", "path", h.Source.Path(), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.logger.Info("catalog reloaded", "source", c.Source, "satellites", len(c.Satellites))
	writeJSON(w, http.StatusOK, map[string]any{
		"source":     c.Source,
		"loaded_at":  c.LoadedAt.UTC(),
		"satellites": len(c.Satellites),
	})
}

// GET /api/v1/cache/stats
func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.Results == nil {
		writeError(w, http.StatusNotFound, "result cache disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.Results.Stats())
}

// GET /api/v1/satellites
func (h *handlers) listSatellites(w http.ResponseWriter, r *http.Request) {
	c := h.Store.Get()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	out := make([]satelliteJSON, 0, len(c.Satellites))
	seen := make(map[int]bool, len(c.Satellites))
	for _, e := range c.Satellites {
		if seen[e.NORADID()] {
			continue
		}
		seen[e.NORADID()] = true
		cur, _ := c.Lookup(e.NORADID())
		out = append(out, satelliteJSON{NORADID: cur.NORADID(), Name: cur.Name, Epoch: cur.Elements.Epoch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NORADID < out[j].NORADID })
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "satellites": out})
}

// GET /api/v1/satellites/{norad_id}/elements
func (h *handlers) elements(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	el := entry.Elements
	line1, line2 := tle.Format(el)
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id":          el.ID.CatalogNumber,
		"name":              entry.Name,
		"classification":    string(el.ID.Classification),
		"intl_designator":   el.IntlDesignator,
		"epoch":             el.Epoch,
		"mean_motion_dot":   el.MeanMotionDot,
		"mean_motion_ddot":  el.MeanMotionDDot.Value(),
		"bstar":             el.BStar.Value(),
		"element_set":       el.ElementSetNumber,
		"inclination_deg":   el.Inclination,
		"raan_deg":          el.RAAN,
		"eccentricity":      el.Eccentricity,
		"arg_perigee_deg":   el.ArgPerigee,
		"mean_anomaly_deg":  el.MeanAnomaly,
		"mean_motion":       el.MeanMotion,
		"revolution_number": el.RevolutionNumber,
		"line1":             line1,
		"line2":             line2,
	})
}

// GET /api/v1/satellites/{norad_id}/position?at=
func (h *handlers) position(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	at, err := parseTime(r.URL.Query(), "at", time.Now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_, span := h.startSpan(r, "api.position", entry.NORADID())
	smp, err := h.Sampler.At(entry.Elements, at)
	endSpan(span, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id": entry.NORADID(),
		"name":     entry.Name,
		"epoch":    entry.Elements.Epoch,
		"sample":   toSampleJSON(smp),
	})
}

type pathResponse struct {
	NORADID     int          `json:"norad_id"`
	Name        string       `json:"name"`
	Epoch       time.Time    `json:"epoch"`
	Model       string       `json:"model"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	StepSeconds float64      `json:"step_seconds"`
	Count       int          `json:"count"`
	Samples     []sampleJSON `json:"samples"`
}

// GET /api/v1/satellites/{norad_id}/path?start=&end=&step=
// Without start/end the window is the orbit path around at (default now).
func (h *handlers) path(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	win, err := h.windowFromQuery(r)
	if err == nil {
		err = h.checkWindow(win)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, span := h.startSpan(r, "api.path", entry.NORADID())
	span.SetAttributes(attribute.Int("track.samples", win.Len()))
	defer span.End()

	key := fmt.Sprintf("path:%s:%05d:%d:%d:%d:%d", h.Propagator.ModelName(), entry.NORADID(),
		entry.Elements.Epoch.UnixNano(), win.Start.UnixNano(), win.End.UnixNano(), int64(win.Step))
	if body, ok := h.cachedResponse(ctx, key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Write(body)
		return
	}

	traj, err := h.Sampler.Trajectory(entry.Elements, win)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.fail(w, r, err)
		return
	}

	resp := pathResponse{
		NORADID:     entry.NORADID(),
		Name:        entry.Name,
		Epoch:       traj.Epoch,
		Model:       h.Propagator.ModelName(),
		Start:       win.Start,
		End:         win.End,
		StepSeconds: win.Step.Seconds(),
		Count:       len(traj.Samples),
		Samples:     make([]sampleJSON, len(traj.Samples)),
	}
	for i, s := range traj.Samples {
		resp.Samples[i] = toSampleJSON(s)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.storeResponse(ctx, key, body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(body)
}

func (h *handlers) windowFromQuery(r *http.Request) (track.Window, error) {
	q := r.URL.Query()
	step, err := parseStep(q, "step", h.config.DefaultStep)
	if err != nil {
		return track.Window{}, err
	}
	if q.Get("start") == "" && q.Get("end") == "" {
		at, err := parseTime(q, "at", time.Now().UTC())
		if err != nil {
			return track.Window{}, err
		}
		return track.OrbitPath(at, track.DefaultPathBehind, track.DefaultPathAhead, step), nil
	}
	start, err := parseTime(q, "start", time.Time{})
	if err != nil {
		return track.Window{}, err
	}
	end, err := parseTime(q, "end", time.Time{})
	if err != nil {
		return track.Window{}, err
	}
	if start.IsZero() || end.IsZero() {
		return track.Window{}, badRequest("start and end must be given together")
	}
	return track.Window{Start: start, End: end, Step: step}, nil
}

func (h *handlers) cachedResponse(ctx context.Context, key string) ([]byte, bool) {
	if h.Responses == nil {
		return nil, false
	}
	body, err := h.Responses.Get(ctx, key)
	switch {
	case err == nil:
		metrics.IncResponseCache("hit")
		return body, true
	case errors.Is(err, valkey.ErrMiss):
		metrics.IncResponseCache("miss")
	default:
		metrics.IncResponseCache("error")
		h.logger.Warn("response cache read failed", "key", key, "error", err)
	}
	return nil, false
}

func (h *handlers) storeResponse(ctx context.Context, key string, body []byte) {
	if h.Responses == nil {
		return
	}
	if err := h.Responses.Set(ctx, key, body, h.config.ResponseTTL); err != nil {
		metrics.IncResponseCache("error")
		h.logger.Warn("response cache write failed", "key", key, "error", err)
	}
}

// observer reads lat/lon (degrees) and alt (metres) query parameters.
func observer(r *http.Request) (transform.ObserverPosition, error) {
	q := r.URL.Query()
	lat, err := parseFloat(q, "lat", 0, -90, 90, true)
	if err != nil {
		return transform.ObserverPosition{}, err
	}
	lon, err := parseFloat(q, "lon", 0, -180, 180, true)
	if err != nil {
		return transform.ObserverPosition{}, err
	}
	alt, err := parseFloat(q, "alt", 0, -500, 10000, false)
	if err != nil {
		return transform.ObserverPosition{}, err
	}
	return transform.NewObserverPosition(lat, lon, alt/1000), nil
}

// GET /api/v1/satellites/{norad_id}/look?lat=&lon=&alt=&at=
func (h *handlers) look(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	obs, err := observer(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	at, err := parseTime(r.URL.Query(), "at", time.Now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_, span := h.startSpan(r, "api.look", entry.NORADID())
	la, err := passes.LookAt(h.Propagator, entry.Elements, obs, at)
	endSpan(span, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id":      entry.NORADID(),
		"at":            at,
		"azimuth_deg":   la.AzimuthDeg,
		"elevation_deg": la.ElevationDeg,
		"range_km":      la.RangeKm,
		"visible":       la.ElevationDeg > 0,
	})
}

// GET /api/v1/satellites/{norad_id}/passes?lat=&lon=&alt=&start=&hours=&min_el=&max_passes=
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	obs, err := observer(r)
	var start time.Time
	var hours, minEl, maxPasses float64
	if err == nil {
		start, err = parseTime(q, "start", time.Now().UTC())
	}
	if err == nil {
		hours, err = parseFloat(q, "hours", 24, 0.1, float64(h.config.MaxPassDays*24), false)
	}
	if err == nil {
		minEl, err = parseFloat(q, "min_el", 10, 0, 90, false)
	}
	if err == nil {
		maxPasses, err = parseFloat(q, "max_passes", 10, 1, 100, false)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, span := h.startSpan(r, "api.passes", entry.NORADID())
	defer span.End()

	results := h.Predictor.Predict(ctx, passes.Request{
		Observer:     obs,
		Entries:      []tle.Entry{entry},
		Start:        start,
		HorizonHours: hours,
		MinElevation: minEl,
		MaxPasses:    int(maxPasses),
	})
	res := results[0]
	if res.Error != "" {
		span.SetStatus(codes.Error, res.Error)
		writeError(w, http.StatusUnprocessableEntity, res.Error)
		return
	}
	span.SetAttributes(attribute.Int("passes.count", len(res.Passes)))
	writeJSON(w, http.StatusOK, res)
}

type snapshotJSON struct {
	NORADID    int     `json:"norad_id"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeKm float64 `json:"altitude_km"`
}

// GET /api/v1/positions?at=
func (h *handlers) positions(w http.ResponseWriter, r *http.Request) {
	at, err := parseTime(r.URL.Query(), "at", time.Now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c := h.Store.Get()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}

	kf, err := h.Propagator.PropagateToTime(r.Context(), c, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]snapshotJSON, len(kf.Satellites))
	for i, s := range kf.Satellites {
		out[i] = snapshotJSON{
			NORADID:    s.NORADID,
			Name:       s.Name,
			Latitude:   s.Geodetic.LatDeg,
			Longitude:  s.Geodetic.LonDeg,
			AltitudeKm: s.Geodetic.AltKm,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":         kf.Timestamp,
		"count":      len(out),
		"satellites": out,
	})
}
