package transform

import (
	"errors"
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

var frameCases = []struct {
	name string
	pos  [3]float64
	vel  [3]float64
	time time.Time
}{
	{
		// Vallado "Fundamentals of Astrodynamics" Example 3-15
		name: "Vallado example 3-15",
		pos:  [3]float64{5094.18016, 6127.64465, 6380.34453},
		vel:  [3]float64{-4.746131487, 0.786598499, 5.531931288},
		time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
	},
	{
		name: "LEO equatorial",
		pos:  [3]float64{6778.0, 0.0, 0.0},
		vel:  [3]float64{0.0, 7.5, 0.0},
		time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
	},
	{
		name: "LEO polar",
		pos:  [3]float64{1.0, 0.0, 6978.0},
		vel:  [3]float64{7.4, 0.0, 0.0},
		time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	},
	{
		name: "southern GEO",
		pos:  [3]float64{-30000.0, 29000.0, -5000.0},
		vel:  [3]float64{-2.1, -2.2, 0.3},
		time: time.Date(2019, 11, 30, 23, 59, 59, 0, time.UTC),
	},
}

// TestToEarthFixed checks the rotation against go-satellite's ECIToECEF at
// the same GMST. Both use a GMST-only rotation, so they agree to floating
// point precision.
func TestToEarthFixed(t *testing.T) {
	for _, tt := range frameCases {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			in := StateVector{Frame: FrameInertial, At: tt.time, Position: tt.pos, Velocity: tt.vel}

			got, err := ToEarthFixedWithGMST(in, gmst)
			if err != nil {
				t.Fatalf("ToEarthFixedWithGMST: %v", err)
			}
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.pos[0], Y: tt.pos[1], Z: tt.pos[2]}, gmst)

			const tolerance = 1e-6 // km
			refPos := [3]float64{ref.X, ref.Y, ref.Z}
			for i := range refPos {
				if math.Abs(got.Position[i]-refPos[i]) > tolerance {
					t.Errorf("position[%d] = %.9f km, go-satellite = %.9f km", i, got.Position[i], refPos[i])
				}
			}
			if got.Frame != FrameEarthFixed || !got.At.Equal(tt.time) {
				t.Errorf("got frame %s at %v", got.Frame, got.At)
			}
			if math.Abs(got.Radius()-in.Radius()) > 1e-9 {
				t.Errorf("rotation changed radius: %.9f -> %.9f", in.Radius(), got.Radius())
			}
		})
	}
}

// TestToEarthFixedVelocity verifies the velocity transform includes Earth rotation correction.
func TestToEarthFixedVelocity(t *testing.T) {
	in := StateVector{
		Frame:    FrameInertial,
		Position: [3]float64{6778.0, 0, 0},
		Velocity: [3]float64{0, 7.5, 0},
	}

	// GMST = 0 aligns the TEME X-axis with the ECEF X-axis.
	got, err := ToEarthFixedWithGMST(in, 0)
	if err != nil {
		t.Fatal(err)
	}

	// ω*R = 7.292115e-5 * 6778 ≈ 0.4943 km/s.
	wantVY := 7.5 - OmegaEarth*6778.0
	if math.Abs(got.Velocity[1]-wantVY) > 1e-12 {
		t.Errorf("VY = %.9f km/s, want %.9f", got.Velocity[1], wantVY)
	}
}

func TestToEarthFixedIdentityForEarthFixedInput(t *testing.T) {
	in := StateVector{Frame: FrameEarthFixed, Position: [3]float64{7000, 1, 2}, Velocity: [3]float64{0, 7, 0}}
	got, err := ToEarthFixed(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("ToEarthFixed changed an earth-fixed state: %+v", got)
	}
}

// TestToGeodeticMatchesGoSatellite compares latitude and altitude with
// go-satellite's ECIToLLA, which iterates on the same ellipsoid.
func TestToGeodeticMatchesGoSatellite(t *testing.T) {
	for _, tt := range frameCases {
		t.Run(tt.name, func(t *testing.T) {
			in := StateVector{Frame: FrameInertial, At: tt.time, Position: tt.pos, Velocity: tt.vel}
			got, err := ToGeodetic(in)
			if err != nil {
				t.Fatalf("ToGeodetic: %v", err)
			}

			gmst := GMST(tt.time)
			alt, _, ll := satellite.ECIToLLA(satellite.Vector3{X: tt.pos[0], Y: tt.pos[1], Z: tt.pos[2]}, gmst)

			if d := math.Abs(got.LatDeg - ll.Latitude*180/math.Pi); d > 1e-7 {
				t.Errorf("latitude = %.9f, go-satellite = %.9f", got.LatDeg, ll.Latitude*180/math.Pi)
			}
			if d := math.Abs(got.AltKm - alt); d > 1e-3 {
				t.Errorf("altitude = %.6f km, go-satellite = %.6f km", got.AltKm, alt)
			}
			dLon := math.Remainder(got.LonDeg-ll.Longitude*180/math.Pi, 360)
			if math.Abs(dLon) > 1e-7 {
				t.Errorf("longitude = %.9f, go-satellite = %.9f (mod 360)", got.LonDeg, ll.Longitude*180/math.Pi)
			}
			if got.LonDeg <= -180 || got.LonDeg > 180 {
				t.Errorf("longitude %.6f outside (-180, 180]", got.LonDeg)
			}
		})
	}
}

func TestNonFiniteInput(t *testing.T) {
	tests := []struct {
		name string
		sv   StateVector
	}{
		{"NaN inertial position", StateVector{Frame: FrameInertial, Position: [3]float64{math.NaN(), 0, 0}}},
		{"Inf inertial velocity", StateVector{Frame: FrameInertial, Position: [3]float64{7000, 0, 0}, Velocity: [3]float64{0, math.Inf(-1), 0}}},
		{"NaN earth-fixed", StateVector{Frame: FrameEarthFixed, Position: [3]float64{0, 0, math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToEarthFixed(tt.sv); !errors.Is(err, ErrNumericOverflow) {
				t.Errorf("ToEarthFixed err = %v, want ErrNumericOverflow", err)
			}
			if _, err := ToGeodetic(tt.sv); !errors.Is(err, ErrNumericOverflow) {
				t.Errorf("ToGeodetic err = %v, want ErrNumericOverflow", err)
			}
		})
	}
}
