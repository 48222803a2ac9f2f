package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// WGS-72 constants of the SGP model family, in canonical units
// (earth radii, minutes).
const (
	xke    = 0.0743669161 // sqrt(GM), earth radii^1.5 / min
	j2     = 1.082616e-3
	k2     = 0.5 * j2 // earth radii^2
	xkmper = 6378.135 // km per earth radius

	minutesPerDay   = 1440.0
	minEccentricity = 1e-6
)

// ModelSecular is the name of the mean-element model.
const ModelSecular = "secular"

// Secular propagates mean elements with the secular J2 drift of the node
// and argument of perigee, and drag expressed through the first and second
// derivatives of mean motion: the mean motion grows quadratically, the
// semi-major axis follows Kepler's third law and perigee height is held
// fixed while the orbit circularizes. Short-period terms are not modelled.
type Secular struct {
	solver KeplerSolver
}

// NewSecular returns the secular model. A zero solver uses DefaultKeplerSolver.
func NewSecular(solver KeplerSolver) *Secular {
	if solver.MaxIterations <= 0 || solver.Tolerance <= 0 {
		solver = DefaultKeplerSolver
	}
	return &Secular{solver: solver}
}

func (m *Secular) Name() string { return ModelSecular }

// Init recovers the Brouwer mean motion and semi-major axis from the element
// set and precomputes the secular rates.
func (m *Secular) Init(el tle.OrbitalElements) (Orbit, error) {
	const twoPi = 2 * math.Pi

	o := &secularOrbit{
		el:     el,
		solver: m.solver,
		e0:     el.Eccentricity,
		incl:   el.Inclination * math.Pi / 180,
		raan0:  el.RAAN * math.Pi / 180,
		argp0:  el.ArgPerigee * math.Pi / 180,
		m0:     el.MeanAnomaly * math.Pi / 180,
		ndot2:  el.MeanMotionDot * twoPi / (minutesPerDay * minutesPerDay),
		nddot6: el.MeanMotionDDot.Value() * twoPi / (minutesPerDay * minutesPerDay * minutesPerDay),
	}
	o.sinI, o.cosI = math.Sincos(o.incl)

	nKozai := el.MeanMotion * twoPi / minutesPerDay
	cos2 := o.cosI * o.cosI
	beta2 := 1 - o.e0*o.e0
	beta := math.Sqrt(beta2)

	// Remove the Kozai J2 correction from the mean motion.
	a1 := math.Pow(xke/nKozai, 2.0/3.0)
	d1 := 0.75 * j2 * (3*cos2 - 1) / (beta * beta2)
	del := d1 / (a1 * a1)
	adel := a1 * (1 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	o.n0 = nKozai / (1 + del)
	o.a0 = math.Pow(xke/o.n0, 2.0/3.0)

	if !isFinite(o.a0) || o.a0 <= 0 || !isFinite(o.n0) || o.n0 <= 0 {
		return nil, o.diverged(el.Epoch, "cannot recover semi-major axis from mean motion")
	}
	o.q0 = o.a0 * (1 - o.e0)
	if o.q0 < 1 {
		return nil, o.diverged(el.Epoch, fmt.Sprintf("perigee radius %.1f km is below the earth's surface", o.q0*xkmper))
	}

	p := o.a0 * beta2
	pinv2 := 1 / (p * p)
	o.raanDot = -3 * k2 * o.n0 * o.cosI * pinv2
	o.argpDot = 1.5 * k2 * o.n0 * (5*cos2 - 1) * pinv2
	o.mDot = o.n0 * (1 + 1.5*k2*beta*(3*cos2-1)*pinv2)

	return o, nil
}

type secularOrbit struct {
	el     tle.OrbitalElements
	solver KeplerSolver

	n0 float64 // un-Kozaied mean motion, rad/min
	a0 float64 // semi-major axis, earth radii
	q0 float64 // perigee radius, earth radii

	e0, incl, sinI, cosI float64
	raan0, argp0, m0     float64
	raanDot, argpDot     float64 // rad/min
	mDot                 float64 // rad/min
	ndot2, nddot6        float64 // rad/min^2, rad/min^3
}

func (o *secularOrbit) Elements() tle.OrbitalElements { return o.el }

// At propagates to t. Times before the epoch propagate backwards.
func (o *secularOrbit) At(t time.Time) (transform.StateVector, error) {
	dt := t.Sub(o.el.Epoch).Minutes()
	dt2 := dt * dt

	n := o.n0 + 2*o.ndot2*dt + 3*o.nddot6*dt2
	if !(n > 0) {
		return transform.StateVector{}, o.diverged(t, "mean motion decayed to zero")
	}
	a := o.a0 * math.Pow(o.n0/n, 2.0/3.0)

	e := minEccentricity
	if a > o.q0 {
		e = math.Max(1-o.q0/a, minEccentricity)
	}
	if !isFinite(a) || e >= 1 {
		return transform.StateVector{}, o.diverged(t, fmt.Sprintf("degenerate orbit (a=%.4g earth radii, e=%.7f)", a, e))
	}
	if a*(1-e) < 1 {
		return transform.StateVector{}, o.diverged(t, fmt.Sprintf("orbit decayed: perigee radius %.1f km", a*(1-e)*xkmper))
	}

	raan := o.raan0 + o.raanDot*dt
	argp := o.argp0 + o.argpDot*dt
	ma := o.m0 + o.mDot*dt + o.ndot2*dt2 + o.nddot6*dt2*dt

	ea, iters, err := o.solver.Solve(ma, e)
	if err != nil {
		derr := o.diverged(t, "kepler solver did not converge")
		var kerr *Error
		if errors.As(err, &kerr) {
			derr.Reason = kerr.Reason
		}
		derr.Iterations = iters
		return transform.StateVector{}, derr
	}

	sinE, cosE := math.Sincos(ea)
	beta := math.Sqrt(1 - e*e)

	// Perifocal position and velocity.
	xp := a * (cosE - e)
	yp := a * beta * sinE
	eDot := xke / (a * math.Sqrt(a)) / (1 - e*cosE)
	vxp := -a * sinE * eDot
	vyp := a * beta * cosE * eDot

	sinO, cosO := math.Sincos(raan)
	sinW, cosW := math.Sincos(argp)
	px := cosW*cosO - sinW*sinO*o.cosI
	py := cosW*sinO + sinW*cosO*o.cosI
	pz := sinW * o.sinI
	qx := -sinW*cosO - cosW*sinO*o.cosI
	qy := -sinW*sinO + cosW*cosO*o.cosI
	qz := cosW * o.sinI

	const vScale = xkmper / 60 // earth radii/min to km/s
	sv := transform.StateVector{
		Frame: transform.FrameInertial,
		At:    t,
		Position: [3]float64{
			(xp*px + yp*qx) * xkmper,
			(xp*py + yp*qy) * xkmper,
			(xp*pz + yp*qz) * xkmper,
		},
		Velocity: [3]float64{
			(vxp*px + vyp*qx) * vScale,
			(vxp*py + vyp*qy) * vScale,
			(vxp*pz + vyp*qz) * vScale,
		},
	}
	if !sv.Finite() {
		return transform.StateVector{}, o.diverged(t, "non-finite state")
	}
	return sv, nil
}

func (o *secularOrbit) diverged(t time.Time, reason string) *Error {
	return &Error{
		CatalogNumber: o.el.ID.CatalogNumber,
		Model:         ModelSecular,
		At:            t,
		Reason:        reason,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
