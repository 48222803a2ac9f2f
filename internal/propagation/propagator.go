package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

const tracerName = "github.com/fpaludi/SatelliteTraker/internal/propagation"

// orbitSet holds initialized orbits for one catalog, one per catalog number.
// Immutable after construction; safe for concurrent reads.
type orbitSet struct {
	catalog *tle.Catalog
	entries []tle.Entry
	orbits  map[int]Orbit
}

// Propagator runs a Model for single element sets and whole catalogs.
type Propagator struct {
	model    Model
	pool     *WorkerPool
	config   PropConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	orbits   atomic.Pointer[orbitSet]
	orbitsMu sync.Mutex // serializes orbit set rebuilds
}

// NewPropagator creates a propagator around model.
func NewPropagator(model Model, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		model:  model,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// ModelName returns the underlying model's name.
func (p *Propagator) ModelName() string {
	return p.model.Name()
}

// Init initializes el for repeated propagation.
func (p *Propagator) Init(el tle.OrbitalElements) (Orbit, error) {
	o, err := p.model.Init(el)
	if err != nil {
		p.countDivergence(err)
		return nil, err
	}
	return o, nil
}

// Propagate returns the inertial state of el at t.
func (p *Propagator) Propagate(el tle.OrbitalElements, t time.Time) (transform.StateVector, error) {
	o, err := p.Init(el)
	if err != nil {
		return transform.StateVector{}, err
	}
	return p.At(o, t)
}

// At evaluates an orbit returned by Init, counting divergences.
func (p *Propagator) At(o Orbit, t time.Time) (transform.StateVector, error) {
	sv, err := o.At(t)
	if err != nil {
		p.countDivergence(err)
		return transform.StateVector{}, err
	}
	return sv, nil
}

func (p *Propagator) countDivergence(err error) {
	if errors.Is(err, ErrPropagationDivergence) {
		metrics.IncDivergence(p.model.Name())
	}
}

// cachedOrbits returns initialized orbits for the given catalog.
// Rebuilds the set if the catalog has changed (double-checked locking).
func (p *Propagator) cachedOrbits(c *tle.Catalog) *orbitSet {
	if s := p.orbits.Load(); s != nil && s.catalog == c {
		return s
	}

	p.orbitsMu.Lock()
	defer p.orbitsMu.Unlock()

	if s := p.orbits.Load(); s != nil && s.catalog == c {
		return s
	}

	set := &orbitSet{catalog: c, orbits: make(map[int]Orbit, len(c.Satellites))}
	seen := make(map[int]bool, len(c.Satellites))
	var skipped int
	for _, entry := range c.Satellites {
		id := entry.NORADID()
		if cur, ok := c.Lookup(id); seen[id] || !ok || !cur.Elements.Epoch.Equal(entry.Elements.Epoch) {
			continue
		}
		seen[id] = true
		set.entries = append(set.entries, entry)
		o, err := p.model.Init(entry.Elements)
		if err != nil {
			p.logger.Warn("orbit init failed", "norad_id", id, "model", p.model.Name(), "error", err)
			skipped++
			continue
		}
		set.orbits[id] = o
	}

	p.logger.Info("orbit set rebuilt",
		"model", p.model.Name(),
		"cached", len(set.orbits),
		"skipped", skipped,
		"catalog_loaded_at", c.LoadedAt.UTC().Format(time.RFC3339),
	)
	p.orbits.Store(set)
	return set
}

// PropagateToTime propagates every satellite of the catalog to targetTime on
// the worker pool. Satellites that fail are logged and left out.
func (p *Propagator) PropagateToTime(ctx context.Context, c *tle.Catalog, targetTime time.Time) (*Keyframe, error) {
	if c == nil {
		return nil, fmt.Errorf("no catalog loaded")
	}

	ctx, span := p.tracer.Start(ctx, "propagation.PropagateToTime", trace.WithAttributes(
		attribute.String("propagation.model", p.model.Name()),
		attribute.Int("propagation.satellites", len(c.Satellites)),
		attribute.String("propagation.target_time", targetTime.UTC().Format(time.RFC3339Nano)),
	))
	defer span.End()

	set := p.cachedOrbits(c)

	p.logger.Debug("propagating",
		"satellite_count", len(set.entries),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", p.pool.workers,
	)

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, set.entries, set.orbits, targetTime, p.At)
	duration := time.Since(start)

	metrics.RecordPropagation(p.model.Name(), duration, successCount, errorCount)
	span.SetAttributes(
		attribute.Int("propagation.success", successCount),
		attribute.Int("propagation.errors", errorCount),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "propagation cancelled")
		return nil, err
	}

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].NORADID < positions[j].NORADID
	})
	return &Keyframe{
		Timestamp:  targetTime,
		Satellites: positions,
	}, nil
}
