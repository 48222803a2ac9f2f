// Package stream serves a satellite's trajectory as Server-Sent Events.
// Clients connect to GET /api/v1/stream/satellites/{norad_id}/path and
// receive one message per sample, computed lazily as the stream is written.
//
// Message sequence:
//
//	retry: 4213
//	data: {"type":"metadata","norad_id":25544,"start":"...","samples":111,...}
//	data: {"type":"sample","k":0,"at":"...","lat":12.3,"lon":-45.6,...}
//	...
//	data: {"type":"done","samples":111}
//
// A propagation failure ends the stream with an "error" message in place of
// "done". In live mode each sample is held until its instant arrives and
// keep-alive comments (:) fill the gaps.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/httputil"
	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	MaxTotal           int           // default 1000
	MaxSamples         int           // per stream, default 100000
	KeepaliveInterval  time.Duration // default 30s
	TrustProxy         bool
}

// Handler serves trajectory streams.
type Handler struct {
	store   *tle.Store
	sampler *track.Sampler
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a streaming handler.
func NewHandler(store *tle.Store, sampler *track.Sampler, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxTotal <= 0 {
		config.MaxTotal = 1000
	}
	if config.MaxSamples <= 0 {
		config.MaxSamples = 100_000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		store:   store,
		sampler: sampler,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger.With("component", "stream"),
		now:     time.Now,
	}
}

// HandlePath streams one satellite's trajectory.
//
// GET /api/v1/stream/satellites/{norad_id}/path?start=&end=&step=
// GET /api/v1/stream/satellites/{norad_id}/path?live=true&horizon=2700&step=
func (h *Handler) HandlePath(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	cat := h.store.Get()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}
	entry, ok := cat.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("satellite %d not found", id))
		return
	}

	win, live, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n := win.Len(); n > h.config.MaxSamples {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("window has %d samples, max is %d", n, h.config.MaxSamples))
		return
	}
	seq, err := h.sampler.Samples(entry.Elements, win)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, track.ErrInvalidWindow) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
			"active", h.limiter.active(),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections()
	metrics.IncStreamsActive()
	startTime := time.Now()
	c := newClient(w, ip, h.logger)
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"norad_id", id,
		"samples", win.Len(),
		"live", live,
	)
	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"norad_id", id,
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Jittered reconnect delay so a server restart does not bring every
	// client back at once.
	if err := c.sendRetry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		h.sendFailed(ip, err)
		return
	}

	meta := metadataMessage{
		Type:        "metadata",
		NORADID:     id,
		Name:        entry.Name,
		Epoch:       entry.Elements.Epoch,
		Start:       win.Start,
		End:         win.End,
		StepSeconds: win.Step.Seconds(),
		Samples:     win.Len(),
		Live:        live,
		CatalogAge:  int(time.Since(cat.LoadedAt).Seconds()),
	}
	if err := c.sendJSON(meta); err != nil {
		h.sendFailed(ip, err)
		return
	}

	ctx := r.Context()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	k := 0
	for smp, err := range seq {
		if err != nil {
			metrics.IncStreamErrors("divergence")
			h.logger.Info("stream ended by propagation error", "norad_id", id, "k", k, "error", err)
			if err := c.sendJSON(errorMessage{Type: "error", K: k, Error: err.Error()}); err != nil {
				h.sendFailed(ip, err)
			}
			return
		}
		if live {
			if err := h.waitUntil(ctx, c, keepalive, smp.At); err != nil {
				if ctx.Err() == nil {
					h.sendFailed(ip, err)
				}
				return
			}
		} else if ctx.Err() != nil {
			return
		}
		if err := c.sendJSON(newSampleMessage(k, smp)); err != nil {
			h.sendFailed(ip, err)
			return
		}
		keepalive.Reset(h.config.KeepaliveInterval)
		k++
	}
	metrics.AddTrajectorySamples(k)

	if err := c.sendJSON(doneMessage{Type: "done", Samples: k}); err != nil {
		h.sendFailed(ip, err)
	}
}

// window reads either an explicit start/end range or, in live mode, a
// horizon starting now and aligned to the step.
func (h *Handler) window(r *http.Request) (track.Window, bool, error) {
	q := r.URL.Query()
	step := track.DefaultPathStep
	if v := q.Get("step"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return track.Window{}, false, fmt.Errorf("step must be a number of seconds, got %q", v)
		}
		step = time.Duration(s * float64(time.Second))
	}

	live := q.Get("live") == "true" || q.Get("live") == "1"
	if live {
		horizon := track.DefaultPathAhead
		if v := q.Get("horizon"); v != "" {
			s, err := strconv.ParseFloat(v, 64)
			if err != nil || s <= 0 {
				return track.Window{}, false, fmt.Errorf("horizon must be a positive number of seconds, got %q", v)
			}
			horizon = time.Duration(s * float64(time.Second))
		}
		start := h.now().UTC()
		if step > 0 {
			start = start.Truncate(step)
		}
		w := track.Window{Start: start, End: start.Add(horizon), Step: step}
		return w, true, w.Validate()
	}

	if q.Get("start") == "" && q.Get("end") == "" {
		w := track.OrbitPath(h.now().UTC(), track.DefaultPathBehind, track.DefaultPathAhead, step)
		return w, false, w.Validate()
	}
	start, err := time.Parse(time.RFC3339Nano, q.Get("start"))
	if err != nil {
		return track.Window{}, false, fmt.Errorf("start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339Nano, q.Get("end"))
	if err != nil {
		return track.Window{}, false, fmt.Errorf("end must be an RFC 3339 timestamp")
	}
	w := track.Window{Start: start.UTC(), End: end.UTC(), Step: step}
	return w, false, w.Validate()
}

// waitUntil blocks until t, writing keep-alives while it waits.
func (h *Handler) waitUntil(ctx context.Context, c *client, keepalive *time.Ticker, t time.Time) error {
	d := t.Sub(h.now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) sendFailed(ip string, err error) {
	metrics.IncStreamErrors("send_error")
	h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type metadataMessage struct {
	Type        string    `json:"type"`
	NORADID     int       `json:"norad_id"`
	Name        string    `json:"name"`
	Epoch       time.Time `json:"epoch"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	StepSeconds float64   `json:"step_seconds"`
	Samples     int       `json:"samples"`
	Live        bool      `json:"live"`
	CatalogAge  int       `json:"catalog_age_seconds"`
}

type vectorPayload struct {
	P [3]float64 `json:"p"` // km
	V [3]float64 `json:"v"` // km/s
}

type sampleMessage struct {
	Type  string        `json:"type"`
	K     int           `json:"k"`
	At    time.Time     `json:"at"`
	Lat   float64       `json:"lat"`
	Lon   float64       `json:"lon"`
	AltKm float64       `json:"alt_km"`
	TEME  vectorPayload `json:"teme"`
	ECEF  vectorPayload `json:"ecef"`
}

func newSampleMessage(k int, s track.Sample) sampleMessage {
	return sampleMessage{
		Type:  "sample",
		K:     k,
		At:    s.At,
		Lat:   s.Geodetic.LatDeg,
		Lon:   s.Geodetic.LonDeg,
		AltKm: s.Geodetic.AltKm,
		TEME:  vectorPayload{P: s.Inertial.Position, V: s.Inertial.Velocity},
		ECEF:  vectorPayload{P: s.Fixed.Position, V: s.Fixed.Velocity},
	}
}

type errorMessage struct {
	Type  string `json:"type"`
	K     int    `json:"k"`
	Error string `json:"error"`
}

type doneMessage struct {
	Type    string `json:"type"`
	Samples int    `json:"samples"`
}
