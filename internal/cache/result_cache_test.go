package cache

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var epoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

const elements uint64 = 0x9e3779b97f4a7c15

func key(id int, offset time.Duration) Key {
	return NewKey(id, epoch, elements, epoch.Add(offset), transform.FrameEarthFixed, "secular")
}

func value(x float64) Value {
	return Value{
		State:    transform.StateVector{Frame: transform.FrameEarthFixed, Position: [3]float64{x, 0, 0}},
		Geodetic: transform.GeodeticPoint{LatDeg: x / 1000},
	}
}

func TestResultCacheGetPut(t *testing.T) {
	c := New(Config{Capacity: 4}, testLogger())

	if _, ok := c.Get(key(25544, 0)); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(key(25544, 0), value(7000))
	got, ok := c.Get(key(25544, 0))
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got != value(7000) {
		t.Errorf("Get = %+v, want %+v", got, value(7000))
	}

	// Keys differing in any component are distinct.
	for _, k := range []Key{
		key(25544, time.Second),
		key(25545, 0),
		NewKey(25544, epoch.Add(time.Hour), elements, epoch, transform.FrameEarthFixed, "secular"),
		NewKey(25544, epoch, elements+1, epoch, transform.FrameEarthFixed, "secular"),
		NewKey(25544, epoch, elements, epoch, transform.FrameInertial, "secular"),
		NewKey(25544, epoch, elements, epoch, transform.FrameEarthFixed, "sgp4"),
	} {
		if _, ok := c.Get(k); ok {
			t.Errorf("unexpected hit for %s", k)
		}
	}

	stats := c.Stats()
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 7 {
		t.Errorf("stats = %+v, want 1 entry, 1 hit, 7 misses", stats)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", stats.SizeBytes)
	}
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(Config{Capacity: 3}, testLogger())

	for i := 0; i < 3; i++ {
		c.Put(key(1, time.Duration(i)*time.Second), value(float64(i)))
	}
	// Touch the oldest entry so the second becomes least recently used.
	if _, ok := c.Get(key(1, 0)); !ok {
		t.Fatal("expected hit")
	}
	c.Put(key(1, 3*time.Second), value(3))

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get(key(1, time.Second)); ok {
		t.Error("least recently used entry was not evicted")
	}
	for _, s := range []time.Duration{0, 2 * time.Second, 3 * time.Second} {
		if _, ok := c.Get(key(1, s)); !ok {
			t.Errorf("entry +%v evicted unexpectedly", s)
		}
	}
	if ev := c.Stats().Evictions; ev != 1 {
		t.Errorf("evictions = %d, want 1", ev)
	}
}

func TestResultCacheOverwrite(t *testing.T) {
	c := New(Config{Capacity: 2}, testLogger())
	c.Put(key(1, 0), value(1))
	c.Put(key(1, 0), value(2))

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	if got, _ := c.Get(key(1, 0)); got != value(2) {
		t.Errorf("Get = %+v, want overwritten value", got)
	}
}

func TestResultCacheDefaultCapacity(t *testing.T) {
	c := New(Config{}, testLogger())
	if c.Stats().Capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", c.Stats().Capacity, DefaultCapacity)
	}
}

// TestResultCacheValuesAreCopies checks that a value held by a reader is not
// affected by eviction or later writes.
func TestResultCacheValuesAreCopies(t *testing.T) {
	c := New(Config{Capacity: 1}, testLogger())
	c.Put(key(1, 0), value(1))

	held, _ := c.Get(key(1, 0))
	c.Put(key(2, 0), value(2)) // evicts key(1, 0)
	held.State.Position[0] = 99

	if _, ok := c.Get(key(1, 0)); ok {
		t.Fatal("expected eviction")
	}
	if got, _ := c.Get(key(2, 0)); got != value(2) {
		t.Errorf("Get = %+v", got)
	}
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c := New(Config{Capacity: 16}, testLogger())

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (Value, error) {
		calls.Add(1)
		<-release
		return value(6800), nil
	}

	const callers = 32
	var wg sync.WaitGroup
	results := make([]Value, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(key(25544, 0), compute)
		}(i)
	}

	// Let the callers pile up on the in-flight computation.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("compute called %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d observed %+v, caller 0 observed %+v", i, results[i], results[0])
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New(Config{Capacity: 16}, testLogger())
	boom := errors.New("diverged")

	_, err := c.GetOrCompute(key(1, 0), func() (Value, error) { return Value{}, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after failed compute, want 0", c.Len())
	}

	v, err := c.GetOrCompute(key(1, 0), func() (Value, error) { return value(1), nil })
	if err != nil {
		t.Fatal(err)
	}
	if v != value(1) {
		t.Errorf("GetOrCompute = %+v", v)
	}
}

func TestResultCacheConcurrentAccess(t *testing.T) {
	c := New(Config{Capacity: 64}, testLogger())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := key(i%100, 0)
				want := value(float64(i % 100))
				got, err := c.GetOrCompute(k, func() (Value, error) { return want, nil })
				if err != nil || got != want {
					t.Errorf("goroutine %d: GetOrCompute(%s) = %+v, %v", g, k, got, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if n := c.Len(); n > 64 {
		t.Errorf("Len = %d exceeds capacity", n)
	}
}
