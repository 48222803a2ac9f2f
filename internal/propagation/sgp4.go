package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO), explicit TEME output, includes ECIToECEF for
// cross-validation.
//
// Propagate() takes Satellite by value so SGP4 error codes raised during
// propagation are not visible to the caller. Failures are detected by
// checking the output for NaN/Inf and implausible radii.

// ModelSGP4 is the name of the go-satellite SGP4 model.
const ModelSGP4 = "sgp4"

var gravityModels = map[string]satellite.Gravity{
	"wgs72": satellite.GravityWGS72,
	"wgs84": satellite.GravityWGS84,
}

// SGP4 is the standard SGP4/SDP4 model.
type SGP4 struct {
	gravity satellite.Gravity
}

// NewSGP4 returns an SGP4 model for the named gravity constants
// ("wgs72" or "wgs84"; empty selects wgs72).
func NewSGP4(gravity string) (*SGP4, error) {
	if gravity == "" {
		gravity = "wgs72"
	}
	g, ok := gravityModels[strings.ToLower(gravity)]
	if !ok {
		return nil, fmt.Errorf("unknown gravity model %q", gravity)
	}
	return &SGP4{gravity: g}, nil
}

func (m *SGP4) Name() string { return ModelSGP4 }

// Init initializes go-satellite from the element set's source lines. The
// lines were validated by the parser, which matters because go-satellite
// calls log.Fatal on malformed input.
func (m *SGP4) Init(el tle.OrbitalElements) (Orbit, error) {
	if len(el.Line1) != tle.LineLength || len(el.Line2) != tle.LineLength {
		return nil, fmt.Errorf("sgp4 init for %05d: %w", el.ID.CatalogNumber, tle.ErrMalformedElementSet)
	}
	sat := satellite.TLEToSat(el.Line1, el.Line2, m.gravity)
	if sat.Error != 0 {
		return nil, &Error{
			CatalogNumber: el.ID.CatalogNumber,
			Model:         ModelSGP4,
			At:            el.Epoch,
			Reason:        fmt.Sprintf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr),
		}
	}
	return &sgp4Orbit{el: el, sat: sat}, nil
}

type sgp4Orbit struct {
	el  tle.OrbitalElements
	sat satellite.Satellite
}

func (o *sgp4Orbit) Elements() tle.OrbitalElements { return o.el }

// At propagates to t. go-satellite resolves whole seconds only, so
// sub-second instants interpolate linearly between the neighbouring
// seconds (about a metre of error for LEO).
func (o *sgp4Orbit) At(t time.Time) (transform.StateVector, error) {
	t = t.UTC()
	base := t.Truncate(time.Second)

	pos, vel, err := o.propagate(base)
	if err != nil {
		return transform.StateVector{}, err
	}

	if frac := t.Sub(base).Seconds(); frac > 0 {
		pos1, vel1, err := o.propagate(base.Add(time.Second))
		if err != nil {
			return transform.StateVector{}, err
		}
		for i := range pos {
			pos[i] += (pos1[i] - pos[i]) * frac
			vel[i] += (vel1[i] - vel[i]) * frac
		}
	}

	return transform.StateVector{
		Frame:    transform.FrameInertial,
		At:       t,
		Position: pos,
		Velocity: vel,
	}, nil
}

func (o *sgp4Orbit) propagate(t time.Time) ([3]float64, [3]float64, error) {
	p, v := satellite.Propagate(o.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	pos := [3]float64{p.X, p.Y, p.Z}
	vel := [3]float64{v.X, v.Y, v.Z}

	sv := transform.StateVector{Position: pos, Velocity: vel}
	if !sv.Finite() {
		return pos, vel, o.diverged(t, "output is NaN/Inf")
	}
	if r := sv.Radius(); r < transform.MinOrbitalRadiusKm {
		return pos, vel, o.diverged(t, fmt.Sprintf("orbit decayed: radius %.1f km", r))
	}
	return pos, vel, nil
}

func (o *sgp4Orbit) diverged(t time.Time, reason string) error {
	return &Error{
		CatalogNumber: o.el.ID.CatalogNumber,
		Model:         ModelSGP4,
		At:            t,
		Reason:        reason,
	}
}

