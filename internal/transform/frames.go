// Package transform converts propagated state vectors between reference
// frames: TEME (True Equator Mean Equinox, the inertial frame SGP-family
// models produce) to ECEF (Earth-Centered Earth-Fixed), and ECEF to WGS-84
// geodetic coordinates.
//
// The TEME to ECEF rotation uses GMST only (TEME → PEF ≈ ECEF). Polar motion
// and the equation of the equinoxes are ignored, which introduces at most
// ~50 m of error.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNumericOverflow reports a non-finite input state.
var ErrNumericOverflow = errors.New("non-finite state vector")

// MinOrbitalRadiusKm is the smallest geocentric radius accepted as a live
// Earth satellite. Model output below it means the orbit has decayed.
const MinOrbitalRadiusKm = 6200.0

// Frame names the reference frame of a StateVector.
type Frame string

const (
	FrameInertial   Frame = "TEME"
	FrameEarthFixed Frame = "ECEF"
)

// StateVector is a position (km) and velocity (km/s) valid at one instant.
type StateVector struct {
	Frame    Frame
	At       time.Time
	Position [3]float64
	Velocity [3]float64
}

// Radius returns the position magnitude in km.
func (sv StateVector) Radius() float64 {
	return norm(sv.Position)
}

// Finite reports whether every component is a finite number.
func (sv StateVector) Finite() bool {
	for i := 0; i < 3; i++ {
		if !finite(sv.Position[i]) || !finite(sv.Velocity[i]) {
			return false
		}
	}
	return true
}

// ToEarthFixed rotates an inertial state into the Earth-fixed frame at the
// state's instant. Earth-fixed input is returned unchanged.
func ToEarthFixed(sv StateVector) (StateVector, error) {
	if sv.Frame == FrameEarthFixed {
		if !sv.Finite() {
			return StateVector{}, overflow(sv)
		}
		return sv, nil
	}
	return ToEarthFixedWithGMST(sv, GMST(sv.At))
}

// ToEarthFixedWithGMST rotates an inertial state using a precomputed GMST
// angle (radians). Useful when transforming many satellites at one instant.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where R3(θ) is a rotation about the Z-axis by angle θ (GMST),
// and ω = [0, 0, ω_earth] is Earth's angular velocity vector.
func ToEarthFixedWithGMST(sv StateVector, gmst float64) (StateVector, error) {
	if sv.Frame != FrameInertial {
		return StateVector{}, fmt.Errorf("transform: want %s input, got %q", FrameInertial, sv.Frame)
	}
	if !sv.Finite() {
		return StateVector{}, overflow(sv)
	}

	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)
	r, v := sv.Position, sv.Velocity

	x := r[0]*cosG + r[1]*sinG
	y := -r[0]*sinG + r[1]*cosG

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vx := v[0]*cosG + v[1]*sinG + OmegaEarth*y
	vy := -v[0]*sinG + v[1]*cosG - OmegaEarth*x

	return StateVector{
		Frame:    FrameEarthFixed,
		At:       sv.At,
		Position: [3]float64{x, y, r[2]},
		Velocity: [3]float64{vx, vy, v[2]},
	}, nil
}

// ToGeodetic returns the WGS-84 geodetic point beneath a state. Inertial
// states are rotated to Earth-fixed first.
func ToGeodetic(sv StateVector) (GeodeticPoint, error) {
	ecef, err := ToEarthFixed(sv)
	if err != nil {
		return GeodeticPoint{}, err
	}
	return ECEFToGeodetic(ecef.Position[0], ecef.Position[1], ecef.Position[2]), nil
}

func overflow(sv StateVector) error {
	return fmt.Errorf("%w: %s state at %s", ErrNumericOverflow, sv.Frame, sv.At.UTC().Format(time.RFC3339Nano))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
