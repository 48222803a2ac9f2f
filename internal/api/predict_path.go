package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
)

// predictPathRequest is the map client's request. Either TLE carries pasted
// element lines or SatelliteID names a catalog entry.
type predictPathRequest struct {
	SatelliteID int     `json:"satellite_id"`
	TLE         string  `json:"tle"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	StepSeconds float64 `json:"step_seconds"`
}

type pathPosition struct {
	AtDate    time.Time `json:"at_date"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"` // metres
}

type predictPathResponse struct {
	SatelliteID int            `json:"satellite_id"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Positions   []pathPosition `json:"positions"`
}

func decodePredictPath(w http.ResponseWriter, r *http.Request) (predictPathRequest, error) {
	var req predictPathRequest
	if r.Method == http.MethodPost {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
		if err := dec.Decode(&req); err != nil {
			return req, badRequest("invalid JSON body: %v", err)
		}
		return req, nil
	}

	q := r.URL.Query()
	req.TLE = q.Get("tle")
	req.StartDate = q.Get("start_date")
	req.EndDate = q.Get("end_date")
	if v := q.Get("satellite_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return req, badRequest("satellite_id must be an integer, got %q", v)
		}
		req.SatelliteID = id
	}
	if v := q.Get("step_seconds"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, badRequest("step_seconds must be a number, got %q", v)
		}
		req.StepSeconds = s
	}
	return req, nil
}

// requestElements resolves the request's element set, pasted text first.
func (h *handlers) requestElements(req predictPathRequest) (tle.OrbitalElements, error) {
	if req.TLE != "" {
		return parseElementText(req.TLE)
	}
	if req.SatelliteID <= 0 {
		return tle.OrbitalElements{}, badRequest("tle or satellite_id is required")
	}
	if h.Store.Get() == nil {
		return tle.OrbitalElements{}, errNoCatalog
	}
	entry, ok := h.Store.Lookup(req.SatelliteID)
	if !ok {
		return tle.OrbitalElements{}, errNotFound{req.SatelliteID}
	}
	return entry.Elements, nil
}

var errNoCatalog = errors.New("no catalog loaded")

type errNotFound struct{ id int }

func (e errNotFound) Error() string { return fmt.Sprintf("satellite %d not found", e.id) }

// requestWindow defaults to the orbit path around now when the dates are
// omitted. A single date centres the path on it.
func (h *handlers) requestWindow(req predictPathRequest) (track.Window, error) {
	step := h.config.DefaultStep
	if req.StepSeconds != 0 {
		step = time.Duration(req.StepSeconds * float64(time.Second))
	}

	switch {
	case req.StartDate == "" && req.EndDate == "":
		return track.OrbitPath(time.Now().UTC(), track.DefaultPathBehind, track.DefaultPathAhead, step), nil
	case req.StartDate == "" || req.EndDate == "":
		v := req.StartDate + req.EndDate
		at, err := parseISOTime("date", v)
		if err != nil {
			return track.Window{}, err
		}
		return track.OrbitPath(at, track.DefaultPathBehind, track.DefaultPathAhead, step), nil
	}

	start, err := parseISOTime("start_date", req.StartDate)
	if err != nil {
		return track.Window{}, err
	}
	end, err := parseISOTime("end_date", req.EndDate)
	if err != nil {
		return track.Window{}, err
	}
	return track.Window{Start: start, End: end, Step: step}, nil
}

// GET|POST /api/v1/predict_path
func (h *handlers) predictPath(w http.ResponseWriter, r *http.Request) {
	req, err := decodePredictPath(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	el, err := h.requestElements(req)
	var nf errNotFound
	switch {
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
		return
	case errors.Is(err, errNoCatalog):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}
	win, err := h.requestWindow(req)
	if err == nil {
		err = h.checkWindow(win)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_, span := h.startSpan(r, "api.predict_path", el.ID.CatalogNumber)
	span.SetAttributes(
		attribute.Int("track.samples", win.Len()),
		attribute.Bool("request.pasted_tle", req.TLE != ""),
	)
	traj, err := h.Sampler.Trajectory(el, win)
	endSpan(span, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := predictPathResponse{
		SatelliteID: el.ID.CatalogNumber,
		StartDate:   win.Start,
		EndDate:     win.End,
		Positions:   make([]pathPosition, len(traj.Samples)),
	}
	for i, s := range traj.Samples {
		resp.Positions[i] = pathPosition{
			AtDate:    s.At,
			Latitude:  s.Geodetic.LatDeg,
			Longitude: s.Geodetic.LonDeg,
			Altitude:  s.Geodetic.AltKm * 1000,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
