package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// WorkerPool bounds how many satellites of a catalog batch propagate at once.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a pool of the given size. Non-positive sizes use
// runtime.NumCPU().
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{workers: workers, logger: logger}
}

// evalFunc evaluates one orbit at an instant.
type evalFunc func(Orbit, time.Time) (transform.StateVector, error)

// PropagateBatch moves every entry to t through eval and reports how many
// succeeded and failed. Failures, including entries with no initialized
// orbit, are logged and left out of the positions. Cancelling ctx stops
// scheduling new entries.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, entries []tle.Entry, orbits map[int]Orbit, t time.Time, eval evalFunc) ([]SatellitePosition, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	metrics.SetPropagationWorkersActive(wp.workers)
	defer metrics.SetPropagationWorkersActive(0)

	// Earth rotation angle is shared by the whole batch.
	gmst := transform.GMST(t)

	slots := make([]SatellitePosition, len(entries))
	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(wp.workers)
	scheduled := 0
	for i, e := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slots[i], errs[i] = position(e, orbits[e.NORADID()], t, gmst, eval)
			return nil
		})
		scheduled++
	}
	g.Wait()

	positions := slots[:0]
	var ok, failed int
	for i, err := range errs[:scheduled] {
		if err != nil {
			failed++
			wp.logger.Warn("propagation failed", "norad_id", entries[i].NORADID(), "error", err)
			continue
		}
		ok++
		positions = append(positions, slots[i])
	}
	return positions, ok, failed
}

func position(e tle.Entry, o Orbit, t time.Time, gmst float64, eval evalFunc) (SatellitePosition, error) {
	id := e.NORADID()
	if o == nil {
		return SatellitePosition{}, fmt.Errorf("no initialized orbit for %05d", id)
	}
	inertial, err := eval(o, t)
	if err != nil {
		return SatellitePosition{}, err
	}
	fixed, err := transform.ToEarthFixedWithGMST(inertial, gmst)
	if err != nil {
		return SatellitePosition{}, err
	}
	p := fixed.Position
	return SatellitePosition{
		NORADID:  id,
		Name:     e.Name,
		Inertial: inertial,
		Fixed:    fixed,
		Geodetic: transform.ECEFToGeodetic(p[0], p[1], p[2]),
	}, nil
}
