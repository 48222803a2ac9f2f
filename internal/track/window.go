package track

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidWindow reports a window whose end precedes its start, whose step
// is not positive, or whose span does not fit in a time.Duration.
var ErrInvalidWindow = errors.New("invalid sampling window")

// Default orbit path span around the current instant.
const (
	DefaultPathBehind = 10 * time.Minute
	DefaultPathAhead  = 45 * time.Minute
	DefaultPathStep   = 30 * time.Second
)

// Window is a closed sampling interval. Sample k is at Start + k*Step for
// k = 0..floor((End-Start)/Step); End itself is sampled only when the span is
// a whole number of steps.
type Window struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// Validate reports ErrInvalidWindow for End before Start, Step <= 0, or a
// span longer than about 292 years.
func (w Window) Validate() error {
	if w.Step <= 0 {
		return fmt.Errorf("%w: step %v must be positive", ErrInvalidWindow, w.Step)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow,
			w.End.UTC().Format(time.RFC3339Nano), w.Start.UTC().Format(time.RFC3339Nano))
	}
	// Sub saturates instead of overflowing.
	if span := w.End.Sub(w.Start); !w.Start.Add(span).Equal(w.End) {
		return fmt.Errorf("%w: span from %s to %s exceeds %v", ErrInvalidWindow,
			w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339), time.Duration(math.MaxInt64))
	}
	return nil
}

// Len returns the number of samples in a valid window, or 0.
func (w Window) Len() int {
	if w.Validate() != nil {
		return 0
	}
	return int(w.End.Sub(w.Start)/w.Step) + 1
}

// Instant returns the k-th sample instant. Instants are computed by
// multiplication so long windows do not accumulate rounding drift.
func (w Window) Instant(k int) time.Time {
	return w.Start.Add(time.Duration(k) * w.Step)
}

// OrbitPath returns the window covering behind before and ahead after center.
func OrbitPath(center time.Time, behind, ahead, step time.Duration) Window {
	return Window{
		Start: center.Add(-behind),
		End:   center.Add(ahead),
		Step:  step,
	}
}
