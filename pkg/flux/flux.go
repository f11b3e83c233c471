// Package flux models state that is only intermittently certain.
//
// A State is either Certain, holding a definite value, or Indeterminate,
// holding an oscillation phase in [0, 1]. Consensus-style systems use it to
// represent values that exist only between decision rounds. Every change
// appends to an inspectable, append-only history.
//
// A State has a single owner; it is not safe for concurrent use.
package flux

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Oscillant-Labs/crossform/pkg/form"
)

var (
	// ErrAlreadyCertain is returned by Resolve and SampleAt when the state
	// already holds a definite value. This is a caller logic bug, not an
	// environmental condition.
	ErrAlreadyCertain = errors.New("flux: state is already certain")

	// ErrNotIndeterminate is returned by UpdatePhase when the state is
	// certain.
	ErrNotIndeterminate = errors.New("flux: state is not indeterminate")

	// ErrPhaseRange is returned when a phase lies outside [0, 1].
	ErrPhaseRange = errors.New("flux: phase must be in [0, 1]")
)

// Transition is one recorded state change.
type Transition struct {
	From      string
	To        string
	Reason    string
	Timestamp time.Time
}

// State holds a value of type S that may be definite or oscillating.
type State[S any] struct {
	value    S
	hasValue bool
	phase    float64
	history  []Transition
}

// NewCertain starts in the Certain state holding value.
func NewCertain[S any](value S) *State[S] {
	s := &State[S]{value: value, hasValue: true}
	s.record("", s.describe(), "initial state")
	return s
}

// NewIndeterminate starts in the Indeterminate state with the given phase.
func NewIndeterminate[S any](phase float64) (*State[S], error) {
	if phase < 0 || phase > 1 {
		return nil, ErrPhaseRange
	}
	s := &State[S]{phase: phase}
	s.record("", s.describe(), "initial state")
	return s, nil
}

// Form reports the certainty of the state: Mark when certain, Imaginary
// (carrying the oscillation phase scaled onto [0, 2π)) when not.
func (s *State[S]) Form() form.Form {
	if s.hasValue {
		return form.Mark()
	}
	return form.ImaginaryPhase(s.phase * 2 * math.Pi)
}

// Value returns the definite value; ok is false while indeterminate.
func (s *State[S]) Value() (value S, ok bool) {
	return s.value, s.hasValue
}

// Phase returns the oscillation phase; meaningful only while indeterminate.
func (s *State[S]) Phase() float64 { return s.phase }

// TransitionTo moves to Certain(value) from any state, clearing the phase.
func (s *State[S]) TransitionTo(value S, reason string) {
	from := s.describe()
	s.value = value
	s.hasValue = true
	s.phase = 0
	s.record(from, s.describe(), reason)
}

// EnterIndeterminate moves to Indeterminate(phase) from any state.
func (s *State[S]) EnterIndeterminate(phase float64, reason string) error {
	if phase < 0 || phase > 1 {
		return ErrPhaseRange
	}
	from := s.describe()
	var zero S
	s.value = zero
	s.hasValue = false
	s.phase = phase
	s.record(from, s.describe(), reason)
	return nil
}

// Resolve moves Indeterminate -> Certain(value). Calling it while certain
// is an error: there is nothing to resolve.
func (s *State[S]) Resolve(value S, reason string) error {
	if s.hasValue {
		return ErrAlreadyCertain
	}
	s.TransitionTo(value, reason)
	return nil
}

// UpdatePhase changes the oscillation phase of an indeterminate state.
func (s *State[S]) UpdatePhase(phase float64) error {
	if s.hasValue {
		return ErrNotIndeterminate
	}
	if phase < 0 || phase > 1 {
		return ErrPhaseRange
	}
	from := s.describe()
	s.phase = phase
	s.record(from, s.describe(), "phase update")
	return nil
}

// SampleAt deterministically collapses an indeterminate state to one of two
// candidates using a sinusoid of phase and time. The same phase and time
// always pick the same candidate, which makes oscillation sampling
// reproducible in simulations. The state itself is not changed.
func (s *State[S]) SampleAt(a, b S, t float64) (S, error) {
	var zero S
	if s.hasValue {
		return zero, ErrAlreadyCertain
	}
	if math.Sin(2*math.Pi*s.phase+t) >= 0 {
		return a, nil
	}
	return b, nil
}

// History returns a copy of the append-only transition log.
func (s *State[S]) History() []Transition {
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State[S]) describe() string {
	if s.hasValue {
		return fmt.Sprintf("certain(%v)", s.value)
	}
	return fmt.Sprintf("indeterminate(phase=%.4f)", s.phase)
}

func (s *State[S]) record(from, to, reason string) {
	s.history = append(s.history, Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}
