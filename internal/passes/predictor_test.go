package passes

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

var issTLE = mustEntry("ISS (ZARYA)",
	"1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996",
	"2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057")

var (
	nycObserver     = transform.NewObserverPosition(40.7128, -74.006, 0.01)
	parrishObserver = transform.NewObserverPosition(27.5867, -82.4251, 0)

	searchStart = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
)

func mustEntry(name, line1, line2 string) tle.Entry {
	el, err := tle.ParseElements(line1, line2)
	if err != nil {
		panic(err)
	}
	return tle.Entry{Name: name, Elements: el}
}

func testPredictor(tb testing.TB, model string) *Predictor {
	tb.Helper()
	cfg := propagation.PropConfig{Model: model}
	m, err := propagation.NewModel(cfg)
	if err != nil {
		tb.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPredictor(propagation.NewPropagator(m, cfg, logger), 0)
}

func issRequest(obs transform.ObserverPosition, hours, minEl float64) Request {
	return Request{
		Observer:     obs,
		Entries:      []tle.Entry{issTLE},
		Start:        searchStart,
		HorizonHours: hours,
		MinElevation: minEl,
		MaxPasses:    20,
	}
}

// onlyResult returns the single satellite's result, failing on a
// per-satellite error.
func onlyResult(t *testing.T, results []SatellitePasses) SatellitePasses {
	t.Helper()
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Error != "" {
		t.Fatalf("satellite error: %s", results[0].Error)
	}
	return results[0]
}

func TestPredictISS(t *testing.T) {
	for _, model := range []string{propagation.ModelSecular, propagation.ModelSGP4} {
		t.Run(model, func(t *testing.T) {
			sat := onlyResult(t, testPredictor(t, model).Predict(context.Background(), issRequest(nycObserver, 24, 0)))
			if sat.NORADID != 25544 || sat.Name != "ISS (ZARYA)" {
				t.Errorf("result identity = %d %q", sat.NORADID, sat.Name)
			}
			if len(sat.Passes) == 0 {
				t.Fatal("no ISS passes over New York in 24h")
			}
			checkPasses(t, sat.Passes, 0)
		})
	}
}

func checkPasses(t *testing.T, passes []PassEvent, minEl float64) {
	t.Helper()
	inDeg := func(v float64) bool { return v >= 0 && v < 360 }

	for i, p := range passes {
		if p.DurationSeconds < minPassDur.Seconds() {
			t.Errorf("pass %d: duration %.1fs", i, p.DurationSeconds)
		}
		if p.MaxElevation < minEl || p.MaxElevation > 90 {
			t.Errorf("pass %d: max elevation %.2f", i, p.MaxElevation)
		}
		if !inDeg(p.AzimuthAtMax) || !inDeg(p.StartAzimuth) || !inDeg(p.EndAzimuth) {
			t.Errorf("pass %d: azimuths %.2f %.2f %.2f", i, p.StartAzimuth, p.AzimuthAtMax, p.EndAzimuth)
		}
		if !p.StartTime.Before(p.MaxElevationTime) || !p.MaxElevationTime.Before(p.EndTime) {
			t.Errorf("pass %d: start %v, peak %v, end %v out of order", i, p.StartTime, p.MaxElevationTime, p.EndTime)
		}
		if i > 0 && !passes[i-1].EndTime.Before(p.StartTime) {
			t.Errorf("pass %d overlaps the previous pass", i)
		}

		if len(p.GroundTrack) == 0 {
			t.Errorf("pass %d: empty ground track", i)
		}
		for j, gt := range p.GroundTrack {
			if gt.Time.Before(p.StartTime) || !gt.Time.Before(p.EndTime) {
				t.Errorf("pass %d point %d at %v outside the pass", i, j, gt.Time)
			}
			if gt.Altitude < 100_000 || gt.Altitude > 1_000_000 {
				t.Errorf("pass %d point %d: altitude %.0f m", i, j, gt.Altitude)
			}
			if gt.Elevation < minEl || gt.Elevation > 90 {
				t.Errorf("pass %d point %d: elevation %.2f", i, j, gt.Elevation)
			}
		}
	}
}

// The rise and set instants are within one fine step of the mask crossing,
// and no instant near the reported peak is higher.
func TestPassBoundariesAndPeak(t *testing.T) {
	const mask = 10.0
	p := testPredictor(t, "")
	sat := onlyResult(t, p.Predict(context.Background(), issRequest(nycObserver, 48, mask)))
	if len(sat.Passes) == 0 {
		t.Fatal("no passes above 10 degrees in 48h")
	}
	checkPasses(t, sat.Passes, mask)

	elevation := func(at time.Time) float64 {
		t.Helper()
		la, err := LookAt(p.prop, issTLE.Elements, nycObserver, at)
		if err != nil {
			t.Fatal(err)
		}
		return la.ElevationDeg
	}

	horizonEnd := searchStart.Add(48 * time.Hour)
	for i, pass := range sat.Passes {
		if el := elevation(pass.StartTime); el < mask {
			t.Errorf("pass %d: elevation %.3f at rise, below mask", i, el)
		}
		// Passes clipped at either end of the horizon have no crossing there.
		if !pass.StartTime.Equal(searchStart) {
			if el := elevation(pass.StartTime.Add(-fineStep)); el >= mask {
				t.Errorf("pass %d: elevation %.3f one step before rise, already above mask", i, el)
			}
		}
		if !pass.EndTime.Equal(horizonEnd) {
			if el := elevation(pass.EndTime); el >= mask {
				t.Errorf("pass %d: elevation %.3f at set, still above mask", i, el)
			}
		}
		if pass.StartTime.Equal(searchStart) || pass.EndTime.Equal(horizonEnd) {
			continue
		}
		for _, d := range []time.Duration{-5 * time.Second, 5 * time.Second} {
			if el := elevation(pass.MaxElevationTime.Add(d)); el > pass.MaxElevation+1e-6 {
				t.Errorf("pass %d: elevation %.4f at peak%+v exceeds reported max %.4f", i, el, d, pass.MaxElevation)
			}
		}
	}
}

func TestPredictMinElevationFilter(t *testing.T) {
	p := testPredictor(t, "")
	low := onlyResult(t, p.Predict(context.Background(), issRequest(nycObserver, 48, 0)))
	high := onlyResult(t, p.Predict(context.Background(), issRequest(nycObserver, 48, 45)))

	if len(low.Passes) == 0 {
		t.Fatal("no passes above the horizon in 48h")
	}
	if len(high.Passes) >= len(low.Passes) {
		t.Errorf("%d passes above 45 degrees, want fewer than the %d above the horizon", len(high.Passes), len(low.Passes))
	}
	checkPasses(t, high.Passes, 45)
}

func TestPredictMaxPasses(t *testing.T) {
	req := issRequest(nycObserver, 72, 0)
	req.MaxPasses = 2
	sat := onlyResult(t, testPredictor(t, "").Predict(context.Background(), req))
	if len(sat.Passes) != 2 {
		t.Errorf("got %d passes, want MaxPasses = 2", len(sat.Passes))
	}
}

// A search that starts mid-pass reports the pass clipped at the start.
func TestPredictPassInProgress(t *testing.T) {
	p := testPredictor(t, "")
	first := onlyResult(t, p.Predict(context.Background(), issRequest(nycObserver, 24, 0)))
	if len(first.Passes) == 0 {
		t.Fatal("no passes")
	}
	pass := first.Passes[0]

	req := issRequest(nycObserver, 24, 0)
	req.Start = pass.MaxElevationTime
	again := onlyResult(t, p.Predict(context.Background(), req))
	if len(again.Passes) == 0 {
		t.Fatal("no passes when starting at a culmination")
	}
	got := again.Passes[0]
	if !got.StartTime.Equal(req.Start) {
		t.Errorf("clipped pass starts at %v, want the search start %v", got.StartTime, req.Start)
	}
	if d := got.EndTime.Sub(pass.EndTime); d < -2*fineStep || d > 2*fineStep {
		t.Errorf("clipped pass ends at %v, want %v", got.EndTime, pass.EndTime)
	}
}

func TestPredictCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := testPredictor(t, "").Predict(ctx, issRequest(nycObserver, 24, 0))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Passes) != 0 {
		t.Errorf("cancelled search returned %d passes", len(results[0].Passes))
	}
}

func TestPredictPerSatelliteErrors(t *testing.T) {
	// Perigee below the surface: the orbit cannot be initialized.
	subOrbital := issTLE
	subOrbital.Name = "BAD SAT"
	subOrbital.Elements.ID.CatalogNumber = 99999
	subOrbital.Elements.Eccentricity = 0.9

	req := issRequest(nycObserver, 24, 0)
	req.Entries = []tle.Entry{issTLE, subOrbital}
	results := testPredictor(t, "").Predict(context.Background(), req)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Error != "" || len(results[0].Passes) == 0 {
		t.Errorf("ISS result = %+v", results[0])
	}
	if results[1].NORADID != 99999 || results[1].Name != "BAD SAT" {
		t.Errorf("bad result identity = %d %q", results[1].NORADID, results[1].Name)
	}
	if !strings.Contains(results[1].Error, "orbit init") {
		t.Errorf("bad result error = %q", results[1].Error)
	}
}

// A satellite that decays during the horizon keeps the passes found before
// propagation failed.
func TestPredictDivergenceKeepsEarlierPasses(t *testing.T) {
	decaying := issTLE
	decaying.Elements.MeanMotionDot = 0.99999999

	req := issRequest(nycObserver, 20*24, 0)
	req.Entries = []tle.Entry{decaying}
	req.MaxPasses = 1000
	res := testPredictor(t, propagation.ModelSecular).Predict(context.Background(), req)[0]

	if !strings.Contains(res.Error, propagation.ErrPropagationDivergence.Error()) {
		t.Fatalf("error = %q, want a divergence", res.Error)
	}
	if len(res.Passes) == 0 {
		t.Error("passes before the divergence were dropped")
	}
}

// greatCircleKm is the haversine distance between two points in degrees.
func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * r * math.Asin(math.Min(1, math.Sqrt(a)))
}

// visibilityRadiusKm is the farthest a sub-satellite point can be from an
// observer who sees the satellite at elevation elDeg from altitude altM:
// the central angle acos(R cos(el)/(R+h)) - el.
func visibilityRadiusKm(elDeg, altM float64) float64 {
	const r = 6371.0
	el := elDeg * math.Pi / 180
	angle := math.Acos(math.Min(1, r*math.Cos(el)/(r+altM/1000))) - el
	return r * math.Max(0, angle)
}

// Every ground-track point must be geometrically consistent with the
// elevation reported for it.
func TestGroundTrackConsistentWithElevation(t *testing.T) {
	const obsLat, obsLon = 27.5867, -82.4251

	req := issRequest(parrishObserver, 24, 0)
	req.Start = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	sat := onlyResult(t, testPredictor(t, "").Predict(context.Background(), req))
	if len(sat.Passes) == 0 {
		t.Fatal("no passes over Parrish, FL in 24h")
	}

	for i, p := range sat.Passes {
		for j, gt := range p.GroundTrack {
			dist := greatCircleKm(obsLat, obsLon, gt.Latitude, gt.Longitude)
			limit := visibilityRadiusKm(gt.Elevation, gt.Altitude)
			// 1% plus 20 km absorbs the spherical earth in the bound.
			if dist > limit*1.01+20 {
				t.Errorf("pass %d point %d: %.0f km from observer at elevation %.1f, limit %.0f km",
					i, j, dist, gt.Elevation, limit)
			}
		}
	}
}

func TestLookAtZenith(t *testing.T) {
	p := testPredictor(t, "")
	at := time.Date(2025, 2, 14, 6, 0, 0, 0, time.UTC)

	inertial, err := p.prop.Propagate(issTLE.Elements, at)
	if err != nil {
		t.Fatal(err)
	}
	geo, err := transform.ToGeodetic(inertial)
	if err != nil {
		t.Fatal(err)
	}

	obs := transform.NewObserverPosition(geo.LatDeg, geo.LonDeg, 0)
	la, err := LookAt(p.prop, issTLE.Elements, obs, at)
	if err != nil {
		t.Fatal(err)
	}
	if la.ElevationDeg < 89.9 {
		t.Errorf("elevation = %.4f, want zenith", la.ElevationDeg)
	}
	if math.Abs(la.RangeKm-geo.AltKm) > 0.01 {
		t.Errorf("range = %.3f km, want altitude %.3f km", la.RangeKm, geo.AltKm)
	}
}

func BenchmarkPredict100Sats24h(b *testing.B) {
	entries := make([]tle.Entry, 100)
	for i := range entries {
		entries[i] = issTLE
		entries[i].Elements.ID.CatalogNumber = 25544 + i
	}
	p := testPredictor(b, "")
	req := Request{
		Observer:     nycObserver,
		Entries:      entries,
		Start:        searchStart,
		HorizonHours: 24,
		MinElevation: 10,
		MaxPasses:    10,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Predict(context.Background(), req)
	}
}
