package track

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestWindowLen(t *testing.T) {
	t0 := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		w    Window
		want int
	}{
		{"single instant", Window{t0, t0, time.Minute}, 1},
		{"step larger than span", Window{t0, t0.Add(30 * time.Second), time.Minute}, 1},
		{"end on step boundary", Window{t0, t0.Add(10 * time.Minute), time.Minute}, 11},
		{"end between steps", Window{t0, t0.Add(10*time.Minute + 59*time.Second), time.Minute}, 11},
		{"sub-second step", Window{t0, t0.Add(time.Second), 250 * time.Millisecond}, 5},
		{"one day at 30s", Window{t0, t0.Add(24 * time.Hour), 30 * time.Second}, 2881},
		{"invalid", Window{t0, t0.Add(-time.Second), time.Minute}, 0},
		{"span beyond duration range", Window{t0, t0.AddDate(300, 0, 0), 24 * time.Hour}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Len(); got != tt.want {
				t.Errorf("Len() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWindowValidate(t *testing.T) {
	t0 := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		w       Window
		wantErr bool
	}{
		{"valid", Window{t0, t0.Add(time.Hour), time.Minute}, false},
		{"empty span", Window{t0, t0, time.Minute}, false},
		{"end before start", Window{t0, t0.Add(-time.Nanosecond), time.Minute}, true},
		{"zero step", Window{t0, t0.Add(time.Hour), 0}, true},
		{"negative step", Window{t0, t0.Add(time.Hour), -time.Minute}, true},
		{"longest representable span", Window{t0, t0.Add(math.MaxInt64), 24 * time.Hour}, false},
		{"span one nanosecond too long", Window{t0, t0.Add(math.MaxInt64).Add(time.Nanosecond), 24 * time.Hour}, true},
		{"span of 300 years", Window{t0, t0.AddDate(300, 0, 0), 24 * time.Hour}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("error %v does not wrap ErrInvalidWindow", err)
			}
		})
	}
}

func TestWindowInstantNoDrift(t *testing.T) {
	t0 := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	w := Window{Start: t0, End: t0.Add(7 * 24 * time.Hour), Step: time.Second / 3}

	last := w.Len() - 1
	want := t0.Add(time.Duration(last) * (time.Second / 3))
	if got := w.Instant(last); !got.Equal(want) {
		t.Errorf("Instant(%d) = %v, want %v", last, got, want)
	}
	if got := w.Instant(0); !got.Equal(t0) {
		t.Errorf("Instant(0) = %v, want start", got)
	}
}

func TestOrbitPath(t *testing.T) {
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	w := OrbitPath(now, DefaultPathBehind, DefaultPathAhead, DefaultPathStep)

	if !w.Start.Equal(now.Add(-10 * time.Minute)) || !w.End.Equal(now.Add(45*time.Minute)) {
		t.Errorf("OrbitPath = %+v", w)
	}
	if w.Len() != 111 {
		t.Errorf("Len() = %d, want 111", w.Len())
	}
}
