package propagation

import "math"

const (
	DefaultKeplerTolerance     = 1e-8 // rad
	DefaultKeplerMaxIterations = 50
)

// KeplerSolver solves Kepler's equation M = E - e·sin(E) by Newton's method
// with an explicit iteration cap.
type KeplerSolver struct {
	Tolerance     float64
	MaxIterations int
}

// DefaultKeplerSolver converges to 1e-8 rad within 50 iterations.
var DefaultKeplerSolver = KeplerSolver{
	Tolerance:     DefaultKeplerTolerance,
	MaxIterations: DefaultKeplerMaxIterations,
}

// Solve returns the eccentric anomaly for mean anomaly m (rad, reduced to
// [0, 2π) first) and eccentricity e, and the iterations it took. When the
// Newton step does not fall below Tolerance within MaxIterations the
// returned error wraps ErrPropagationDivergence.
func (s KeplerSolver) Solve(m, e float64) (float64, int, error) {
	m = math.Mod(m, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}

	ea := m
	if e >= 0.8 {
		ea = math.Pi
	}
	for i := 1; i <= s.MaxIterations; i++ {
		sinE, cosE := math.Sincos(ea)
		delta := (ea - e*sinE - m) / (1 - e*cosE)
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return 0, i, &Error{Reason: "kepler solver produced a non-finite step", Iterations: i}
		}
		ea -= delta
		if math.Abs(delta) < s.Tolerance {
			return ea, i, nil
		}
	}
	return 0, s.MaxIterations, &Error{Reason: "kepler solver did not converge", Iterations: s.MaxIterations}
}
