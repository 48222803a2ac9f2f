package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
)

// errBadRequest marks parameter errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy to HTTP status codes. Numeric overflow
// and anything unexpected are server errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, tle.ErrMalformedElementSet),
		errors.Is(err, tle.ErrOutOfRangeElement),
		errors.Is(err, track.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrPropagationDivergence):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it with the mapped status.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// lookup resolves the {norad_id} path value against the loaded catalog and
// writes 400/404/503 itself when it cannot.
func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (tle.Entry, bool) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return tle.Entry{}, false
	}
	if h.Store.Get() == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return tle.Entry{}, false
	}
	entry, ok := h.Store.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("satellite %d not found", id))
		return tle.Entry{}, false
	}
	return entry, true
}

// parseTime reads an ISO 8601 instant. Values without a zone are UTC.
func parseTime(q url.Values, name string, def time.Time) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	return parseISOTime(name, v)
}

func parseISOTime(name, v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", v, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("%s must be an ISO 8601 timestamp, got %q", name, v)
}

// parseStep reads a step as whole seconds ("30") or a Go duration ("1m30s").
// Sign is not checked here; the window rejects non-positive steps.
func parseStep(q url.Values, name string, def time.Duration) (time.Duration, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, badRequest("%s must be seconds or a duration, got %q", name, v)
	}
	return d, nil
}

// parseFloat reads a float in [lo, hi]. required parameters have no default.
func parseFloat(q url.Values, name string, def, lo, hi float64, required bool) (float64, error) {
	v := q.Get(name)
	if v == "" {
		if required {
			return 0, badRequest("%s is required", name)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo || f > hi {
		return 0, badRequest("%s must be a number in [%g, %g]", name, lo, hi)
	}
	return f, nil
}

// checkWindow validates w and enforces the per-request sample limit.
func (h *handlers) checkWindow(w track.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if n := w.Len(); n > h.config.MaxSamples {
		return badRequest("window has %d samples, max_samples is %d", n, h.config.MaxSamples)
	}
	return nil
}

// parseElementText reads a pasted element set: two element lines, optionally
// preceded by a name line.
func parseElementText(text string) (tle.OrbitalElements, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, " \r\t")
		if strings.HasPrefix(l, "1 ") || strings.HasPrefix(l, "2 ") {
			lines = append(lines, l)
		}
	}
	if len(lines) != 2 {
		return tle.OrbitalElements{}, fmt.Errorf("%w: expected 2 element lines, found %d", tle.ErrMalformedElementSet, len(lines))
	}
	return tle.ParseElements(lines[0], lines[1])
}
