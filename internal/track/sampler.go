// Package track samples satellite trajectories over time windows.
//
// A Sampler turns an element set and a Window into a lazy sequence of
// Samples: inertial state, Earth-fixed state and geodetic position at each
// instant. Sequences are finite and restartable; each iteration recomputes
// (or fetches from the result cache) from the first instant. When a
// ResultCache is injected, every inertial and Earth-fixed state passes
// through it.
package track

import (
	"iter"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/cache"
	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// maxPrealloc bounds the up-front allocation of Trajectory; longer windows
// grow the slice as samples arrive.
const maxPrealloc = 4096

// Sample is a satellite's state at one instant.
type Sample struct {
	At       time.Time
	Inertial transform.StateVector
	Fixed    transform.StateVector
	Geodetic transform.GeodeticPoint
}

// Trajectory is a materialized sequence of samples for one element set.
type Trajectory struct {
	ID      tle.SatelliteID
	Epoch   time.Time
	Window  Window
	Samples []Sample
}

// Sampler evaluates element sets at single instants and over windows.
type Sampler struct {
	prop  *propagation.Propagator
	cache *cache.ResultCache
}

// NewSampler creates a sampler. results may be nil to disable caching.
func NewSampler(prop *propagation.Propagator, results *cache.ResultCache) *Sampler {
	return &Sampler{prop: prop, cache: results}
}

// At returns the sample of el at t.
func (s *Sampler) At(el tle.OrbitalElements, t time.Time) (Sample, error) {
	orbit, err := s.prop.Init(el)
	if err != nil {
		return Sample{}, err
	}
	return s.sample(orbit, el.Fingerprint(), t)
}

// Samples returns a lazy sequence of the window's samples. The window is
// validated and the element set initialized before anything is yielded;
// iteration stops after the first error, which is yielded with a zero Sample.
func (s *Sampler) Samples(el tle.OrbitalElements, w Window) (iter.Seq2[Sample, error], error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	orbit, err := s.prop.Init(el)
	if err != nil {
		return nil, err
	}

	n, fp := w.Len(), el.Fingerprint()
	return func(yield func(Sample, error) bool) {
		for k := 0; k < n; k++ {
			smp, err := s.sample(orbit, fp, w.Instant(k))
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(smp, nil) {
				return
			}
		}
	}, nil
}

// Trajectory materializes the window. On any error no partial trajectory is
// returned.
func (s *Sampler) Trajectory(el tle.OrbitalElements, w Window) (*Trajectory, error) {
	seq, err := s.Samples(el, w)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, min(w.Len(), maxPrealloc))
	for smp, err := range seq {
		if err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	metrics.AddTrajectorySamples(len(samples))

	return &Trajectory{
		ID:      el.ID,
		Epoch:   el.Epoch,
		Window:  w,
		Samples: samples,
	}, nil
}

// sample evaluates orbit at t. fp is the element-set fingerprint, computed
// once per orbit by the caller.
func (s *Sampler) sample(orbit propagation.Orbit, fp uint64, t time.Time) (Sample, error) {
	el := orbit.Elements()
	model := s.prop.ModelName()

	inertial, err := s.lookup(cache.NewKey(el.ID.CatalogNumber, el.Epoch, fp, t, transform.FrameInertial, model), func() (cache.Value, error) {
		sv, err := s.prop.At(orbit, t)
		return cache.Value{State: sv}, err
	})
	if err != nil {
		return Sample{}, err
	}

	fixed, err := s.lookup(cache.NewKey(el.ID.CatalogNumber, el.Epoch, fp, t, transform.FrameEarthFixed, model), func() (cache.Value, error) {
		sv, err := transform.ToEarthFixed(inertial.State)
		if err != nil {
			return cache.Value{}, err
		}
		geo, err := transform.ToGeodetic(sv)
		if err != nil {
			return cache.Value{}, err
		}
		return cache.Value{State: sv, Geodetic: geo}, nil
	})
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		At:       t,
		Inertial: inertial.State,
		Fixed:    fixed.State,
		Geodetic: fixed.Geodetic,
	}, nil
}

func (s *Sampler) lookup(key cache.Key, compute func() (cache.Value, error)) (cache.Value, error) {
	if s.cache == nil {
		return compute()
	}
	return s.cache.GetOrCompute(key, compute)
}
