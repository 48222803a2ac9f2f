package propagation

import (
	"errors"
	"fmt"
	"time"
)

// ErrPropagationDivergence reports a numeric failure: the Kepler solver did
// not converge, or the model reached a degenerate or decayed orbit.
var ErrPropagationDivergence = errors.New("propagation diverged")

// Error carries the context of a divergence.
type Error struct {
	CatalogNumber int
	Model         string
	At            time.Time
	Reason        string
	Iterations    int // Kepler iterations used, when the solver gave up
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %s model, satellite %05d at %s: %s",
		ErrPropagationDivergence, e.Model, e.CatalogNumber, e.At.UTC().Format(time.RFC3339Nano), e.Reason)
	if e.Iterations > 0 {
		msg += fmt.Sprintf(" after %d iterations", e.Iterations)
	}
	return msg
}

func (e *Error) Unwrap() error { return ErrPropagationDivergence }
