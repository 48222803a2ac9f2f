package propagation

import (
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// Model is a propagation theory.
type Model interface {
	Name() string
	// Init prepares an element set for repeated propagation.
	Init(el tle.OrbitalElements) (Orbit, error)
}

// Orbit is an initialized element set. Implementations are immutable and
// safe for concurrent use.
type Orbit interface {
	Elements() tle.OrbitalElements
	// At returns the inertial (TEME) state at t.
	At(t time.Time) (transform.StateVector, error)
}

// Keyframe holds the positions of all catalog satellites at a single instant.
type Keyframe struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
}

// SatellitePosition holds one satellite's state at a keyframe instant.
type SatellitePosition struct {
	NORADID  int
	Name     string
	Inertial transform.StateVector
	Fixed    transform.StateVector
	Geodetic transform.GeodeticPoint
}

// PropConfig selects and tunes the propagation model.
type PropConfig struct {
	Model               string  // "secular" (default) or "sgp4"
	Gravity             string  // sgp4 gravity constants: "wgs72" (default) or "wgs84"
	Workers             int     // worker pool size (default: runtime.NumCPU())
	KeplerTolerance     float64 // rad, secular model only
	KeplerMaxIterations int
}
