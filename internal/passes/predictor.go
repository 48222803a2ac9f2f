// Package passes predicts when satellites are visible from a ground observer.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // metres
	Elevation float64   `json:"elevation"` // degrees above observer's horizon (0-90)
}

// PassEvent describes a single satellite pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Name    string      `json:"name,omitempty"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.ObserverPosition
	Entries      []tle.Entry
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
}

const (
	coarseStep      = 30 * time.Second
	fineStep        = time.Second
	groundTrackStep = 10 * time.Second
	minPassDur      = 10 * time.Second
)

// Predictor finds passes using the configured propagation model.
type Predictor struct {
	prop    *propagation.Propagator
	workers int
}

// NewPredictor creates a predictor. Non-positive workers use runtime.NumCPU().
func NewPredictor(prop *propagation.Propagator, workers int) *Predictor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Predictor{prop: prop, workers: workers}
}

// Predict computes satellite passes for the given request. Results are in
// request order; a satellite that cannot be propagated carries its error
// instead of failing the whole request, along with any passes found before
// the failure.
func (p *Predictor) Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.Entry) {
			defer wg.Done()
			results[idx] = SatellitePasses{NORADID: e.NORADID(), Name: e.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Error = "cancelled"
				return
			}

			passes, err := p.predictSatellite(ctx, req, e)
			results[idx].Passes = passes
			if err != nil {
				results[idx].Error = err.Error()
			}
		}(i, entry)
	}

	wg.Wait()
	return results
}

// predictSatellite samples the horizon every coarseStep. Each change of side
// of the elevation mask is bisected down to fineStep; a pass still in
// progress at either end of the horizon is clipped there.
func (p *Predictor) predictSatellite(ctx context.Context, req Request, entry tle.Entry) ([]PassEvent, error) {
	orbit, err := p.prop.Init(entry.Elements)
	if err != nil {
		return nil, fmt.Errorf("orbit init: %w", err)
	}
	v := viewer{prop: p.prop, orbit: orbit, obs: req.Observer, mask: req.MinElevation}
	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))

	prev := req.Start
	prevUp, err := v.above(prev)
	if err != nil {
		return nil, err
	}
	rise := prev

	var passes []PassEvent
	for prev.Before(end) && len(passes) < req.MaxPasses {
		if ctx.Err() != nil {
			return passes, nil
		}
		t := prev.Add(coarseStep)
		if t.After(end) {
			t = end
		}
		up, err := v.above(t)
		if err != nil {
			return passes, err
		}

		if up != prevUp {
			cross, err := v.crossing(prev, t, prevUp)
			if err != nil {
				return passes, err
			}
			if up {
				rise = cross
			} else if cross.Sub(rise) >= minPassDur {
				pass, err := v.pass(rise, cross)
				if err != nil {
					return passes, err
				}
				passes = append(passes, pass)
			}
		}
		prev, prevUp = t, up
	}

	if prevUp && !prev.Before(end) && end.Sub(rise) >= minPassDur && len(passes) < req.MaxPasses {
		pass, err := v.pass(rise, end)
		if err != nil {
			return passes, err
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

// viewer evaluates one orbit from one observer against an elevation mask.
type viewer struct {
	prop  *propagation.Propagator
	orbit propagation.Orbit
	obs   transform.ObserverPosition
	mask  float64 // degrees
}

func (v viewer) above(t time.Time) (bool, error) {
	la, _, err := v.look(t)
	return la.ElevationDeg >= v.mask, err
}

// crossing narrows [a, b], whose ends lie on opposite sides of the mask,
// to at most fineStep and returns the first instant on b's side.
func (v viewer) crossing(a, b time.Time, upA bool) (time.Time, error) {
	for b.Sub(a) > fineStep {
		mid := a.Add(b.Sub(a) / 2)
		up, err := v.above(mid)
		if err != nil {
			return time.Time{}, err
		}
		if up == upA {
			a = mid
		} else {
			b = mid
		}
	}
	return b, nil
}

// pass assembles the event between rise and set.
func (v viewer) pass(rise, set time.Time) (PassEvent, error) {
	riseLA, _, err := v.look(rise)
	if err != nil {
		return PassEvent{}, err
	}
	setLA, _, err := v.look(set)
	if err != nil {
		return PassEvent{}, err
	}
	peak, peakLA, err := v.culmination(rise, set)
	if err != nil {
		return PassEvent{}, err
	}

	var track []GroundTrackPoint
	for t := rise; t.Before(set); t = t.Add(groundTrackStep) {
		la, fixed, err := v.look(t)
		if err != nil {
			return PassEvent{}, err
		}
		geo := transform.ECEFToGeodetic(fixed[0], fixed[1], fixed[2])
		track = append(track, GroundTrackPoint{
			Time:      t,
			Latitude:  geo.LatDeg,
			Longitude: geo.LonDeg,
			Altitude:  geo.AltKm * 1000,
			Elevation: la.ElevationDeg,
		})
	}

	return PassEvent{
		StartTime:        rise,
		MaxElevationTime: peak,
		EndTime:          set,
		DurationSeconds:  set.Sub(rise).Seconds(),
		MaxElevation:     peakLA.ElevationDeg,
		AzimuthAtMax:     peakLA.AzimuthDeg,
		StartAzimuth:     riseLA.AzimuthDeg,
		EndAzimuth:       setLA.AzimuthDeg,
		GroundTrack:      track,
	}, nil
}

// culmination finds the elevation peak in [a, b] by golden-section search.
// Elevation is unimodal over a single pass.
func (v viewer) culmination(a, b time.Time) (time.Time, transform.LookAngles, error) {
	const invPhi = 0.6180339887498949

	at := func(s float64) time.Time { return a.Add(time.Duration(s * float64(time.Second))) }
	elev := func(s float64) (float64, error) {
		la, _, err := v.look(at(s))
		return la.ElevationDeg, err
	}

	lo, hi := 0.0, b.Sub(a).Seconds()
	x1, x2 := hi-invPhi*(hi-lo), lo+invPhi*(hi-lo)
	f1, err := elev(x1)
	if err != nil {
		return time.Time{}, transform.LookAngles{}, err
	}
	f2, err := elev(x2)
	if err != nil {
		return time.Time{}, transform.LookAngles{}, err
	}
	for hi-lo > fineStep.Seconds() {
		if f1 < f2 {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			f2, err = elev(x2)
		} else {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			f1, err = elev(x1)
		}
		if err != nil {
			return time.Time{}, transform.LookAngles{}, err
		}
	}

	peak := at((lo + hi) / 2).Round(time.Millisecond)
	la, _, err := v.look(peak)
	return peak, la, err
}

// look computes the look angles and Earth-fixed satellite position at t.
func (v viewer) look(t time.Time) (transform.LookAngles, [3]float64, error) {
	inertial, err := v.prop.At(v.orbit, t)
	if err != nil {
		return transform.LookAngles{}, [3]float64{}, err
	}
	fixed, err := transform.ToEarthFixed(inertial)
	if err != nil {
		return transform.LookAngles{}, [3]float64{}, err
	}
	return transform.ECEFToLookAngles(v.obs, fixed.Position), fixed.Position, nil
}

// LookAt returns the look angles from obs to the satellite of el at t.
func LookAt(prop *propagation.Propagator, el tle.OrbitalElements, obs transform.ObserverPosition, t time.Time) (transform.LookAngles, error) {
	orbit, err := prop.Init(el)
	if err != nil {
		return transform.LookAngles{}, err
	}
	la, _, err := viewer{prop: prop, orbit: orbit, obs: obs}.look(t)
	return la, err
}
