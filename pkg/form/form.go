// Package form implements the trivalent certainty algebra used by every
// decision path in crossform.
//
// A Form is one of three values: Mark (certain-affirmative), Void
// (certain-negative), or Imaginary (indeterminate). The algebra is closed:
// every operation returns a Form, and Imaginary propagates through And/Or
// so that uncertainty is never silently collapsed into a boolean.
//
// Imaginary values may carry a phase in [0, 2π). The phase models
// confidence-over-time for oscillating signals; it never affects equality
// or the And/Or/Negate results. Only Combine and Conjugate read it.
package form

import (
	"fmt"
	"math"
)

type kind uint8

const (
	kindVoid kind = iota
	kindMark
	kindImaginary
)

// Form is a value in the three-state logic {Mark, Void, Imaginary}.
// The zero value is Void.
type Form struct {
	k        kind
	phase    float64 // meaningful only when k == kindImaginary and hasPhase
	hasPhase bool
}

// Mark returns the certain-affirmative Form.
func Mark() Form { return Form{k: kindMark} }

// Void returns the certain-negative Form.
func Void() Form { return Form{k: kindVoid} }

// Imaginary returns the indeterminate Form without a phase.
func Imaginary() Form { return Form{k: kindImaginary} }

// ImaginaryPhase returns the indeterminate Form carrying the given phase,
// normalized into [0, 2π).
func ImaginaryPhase(phase float64) Form {
	return Form{k: kindImaginary, phase: normalizePhase(phase), hasPhase: true}
}

// Reentry constructs the Form of a self-referential expression whose
// defining equation has no solution in {Mark, Void}. It is an Imaginary
// with the given phase; the name records where such values come from.
func Reentry(phase float64) Form { return ImaginaryPhase(phase) }

// IsMark reports whether f is Mark.
func (f Form) IsMark() bool { return f.k == kindMark }

// IsVoid reports whether f is Void.
func (f Form) IsVoid() bool { return f.k == kindVoid }

// IsImaginary reports whether f is Imaginary.
func (f Form) IsImaginary() bool { return f.k == kindImaginary }

// Phase returns the phase of an Imaginary form. ok is false for Mark and
// Void, and for Imaginaries that never had a phase assigned.
func (f Form) Phase() (phase float64, ok bool) {
	if f.k != kindImaginary || !f.hasPhase {
		return 0, false
	}
	return f.phase, true
}

// Equal compares two Forms by logical value only. Phase is informational
// and does not participate.
func (f Form) Equal(other Form) bool { return f.k == other.k }

// Negate swaps Mark and Void. Imaginary is self-dual: its negation is
// itself, phase included.
func (f Form) Negate() Form {
	switch f.k {
	case kindMark:
		return Void()
	case kindVoid:
		return Mark()
	default:
		return f
	}
}

// And is trivalent conjunction: Imaginary propagates through either
// operand; otherwise Mark iff both operands are Mark.
func (f Form) And(other Form) Form {
	if f.k == kindImaginary {
		return f
	}
	if other.k == kindImaginary {
		return other
	}
	if f.k == kindMark && other.k == kindMark {
		return Mark()
	}
	return Void()
}

// Or is trivalent disjunction: Mark dominates, then Imaginary, then Void.
func (f Form) Or(other Form) Form {
	if f.k == kindMark || other.k == kindMark {
		return Mark()
	}
	if f.k == kindImaginary {
		return f
	}
	if other.k == kindImaginary {
		return other
	}
	return Void()
}

// Implies is material implication: Or(Negate(f), other).
func (f Form) Implies(other Form) Form {
	return f.Negate().Or(other)
}

// Iff is trivalent equivalence: And(Implies(f, other), Implies(other, f)).
func (f Form) Iff(other Form) Form {
	return f.Implies(other).And(other.Implies(f))
}

// Combine is the "calling" operation. Void is the identity element, Mark
// absorbs any real (non-Imaginary) operand, an Imaginary passes through a
// real operand unchanged, and two Imaginaries interfere: the result is an
// Imaginary whose phase is the arithmetic mean of the operands' phases.
func (f Form) Combine(other Form) Form {
	switch {
	case f.k == kindImaginary && other.k == kindImaginary:
		if !f.hasPhase && !other.hasPhase {
			return Imaginary()
		}
		return ImaginaryPhase((f.phase + other.phase) / 2)
	case f.k == kindImaginary:
		return f
	case other.k == kindImaginary:
		return other
	case f.k == kindMark || other.k == kindMark:
		return Mark()
	default:
		return Void()
	}
}

// Conjugate negates the phase of an Imaginary and is the identity on Mark
// and Void.
func (f Form) Conjugate() Form {
	if f.k != kindImaginary || !f.hasPhase {
		return f
	}
	return ImaginaryPhase(-f.phase)
}

// FromBool maps true to Mark and false to Void.
func FromBool(b bool) Form {
	if b {
		return Mark()
	}
	return Void()
}

// FromBoolPtr maps a missing boolean to Imaginary, otherwise as FromBool.
func FromBoolPtr(b *bool) Form {
	if b == nil {
		return Imaginary()
	}
	return FromBool(*b)
}

// Bool is the inverse conversion. For Imaginary, ok is false and the value
// is meaningless; callers must branch on ok instead of treating Imaginary
// as either boolean.
func (f Form) Bool() (value bool, ok bool) {
	switch f.k {
	case kindMark:
		return true, true
	case kindVoid:
		return false, true
	default:
		return false, false
	}
}

// String renders the logical value; Imaginary includes its phase.
func (f Form) String() string {
	switch f.k {
	case kindMark:
		return "Mark"
	case kindVoid:
		return "Void"
	default:
		if f.hasPhase {
			return fmt.Sprintf("Imaginary(phase=%.4f)", f.phase)
		}
		return "Imaginary"
	}
}

func normalizePhase(p float64) float64 {
	twoPi := 2 * math.Pi
	p = math.Mod(p, twoPi)
	if p < 0 {
		p += twoPi
	}
	return p
}
