package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// Criterion is a named predicate over an input. Evaluate must be total:
// it reports uncertainty by returning an Imaginary form, never by failing.
// Adapters that wrap untrusted code belong to the caller (see pkg/gate).
type Criterion[I any] struct {
	Name     string
	Evaluate func(ctx context.Context, input I) form.Form
}

// chainSeparator joins reasoning strings in execution order so the trace
// of a chain reads left to right.
const chainSeparator = " -> "

// EvaluateAll runs every criterion against input and folds the certainties
// with trivalent conjunction (seed Mark).
//
// Mark: onAllPass is invoked and its result wrapped in an approval.
// Imaginary: an inconclusive decision carrying the maximum confidence phase
// reported by any criterion (DefaultConfidence when none reported one).
// Void: a rejection naming every criterion that evaluated Void.
func EvaluateAll[I, T any](
	ctx context.Context,
	input I,
	criteria []Criterion[I],
	onAllPass func(ctx context.Context, input I) (T, error),
) Decision[T] {
	overall := form.Mark()
	trail := make([]Evidence, 0, len(criteria))
	var voided []string
	maxPhase := 0.0
	phaseReported := false

	for _, c := range criteria {
		f := c.Evaluate(ctx, input)
		trail = append(trail, NewEvidence(c.Name, f, fmt.Sprintf("evaluated %s", f)))
		overall = overall.And(f)
		if f.IsVoid() {
			voided = append(voided, c.Name)
		}
		if p, ok := f.Phase(); ok {
			phaseReported = true
			if p > maxPhase {
				maxPhase = p
			}
		}
	}

	switch {
	case overall.IsMark():
		value, err := onAllPass(ctx, input)
		if err != nil {
			return Reject[T](fmt.Sprintf("action failed after %d criteria passed: %v", len(criteria), err)).
				WithEvidence(trail...)
		}
		return Approve(value, fmt.Sprintf("all %d criteria passed", len(criteria))).
			WithEvidence(trail...)

	case overall.IsVoid():
		return Reject[T](fmt.Sprintf("criteria failed: %s", strings.Join(voided, ", "))).
			WithEvidence(trail...)

	default:
		confidence := DefaultConfidence
		if phaseReported {
			confidence = maxPhase
		}
		return Uncertain[T]("one or more criteria could not be determined", confidence).
			WithEvidence(trail...)
	}
}

// EvaluateAny runs every criterion against input and folds with trivalent
// disjunction (seed Void). Any Mark approves, naming the criteria that
// passed; Imaginary with no Mark present is inconclusive; all Void rejects.
func EvaluateAny[I any](ctx context.Context, input I, criteria []Criterion[I]) Decision[I] {
	overall := form.Void()
	trail := make([]Evidence, 0, len(criteria))
	var passed []string

	for _, c := range criteria {
		f := c.Evaluate(ctx, input)
		trail = append(trail, NewEvidence(c.Name, f, fmt.Sprintf("evaluated %s", f)))
		overall = overall.Or(f)
		if f.IsMark() {
			passed = append(passed, c.Name)
		}
	}

	switch {
	case overall.IsMark():
		return Approve(input, fmt.Sprintf("criteria passed: %s", strings.Join(passed, ", "))).
			WithEvidence(trail...)
	case overall.IsImaginary():
		return Uncertain[I]("no criterion passed and at least one is undetermined", DefaultConfidence).
			WithEvidence(trail...)
	default:
		return Reject[I](fmt.Sprintf("none of %d criteria passed", len(criteria))).
			WithEvidence(trail...)
	}
}

// Chain threads a value through ordered steps. After each step the running
// certainty is conjoined with the step's certainty; the chain stops at the
// first non-affirmative result and only proceeds while the running state is
// Mark. Reasoning strings join with a directional separator to preserve the
// execution trace.
func Chain[T any](
	ctx context.Context,
	initial Decision[T],
	steps ...func(ctx context.Context, value T) Decision[T],
) Decision[T] {
	current := initial
	for _, step := range steps {
		if !current.Certainty.IsMark() {
			return current
		}
		next := step(ctx, current.Value)

		combined := next
		combined.Certainty = current.Certainty.And(next.Certainty)
		combined.Reasoning = joinReasoning(current.Reasoning, next.Reasoning, chainSeparator)
		combined.Evidence = append(append([]Evidence{}, current.Evidence...), next.Evidence...)
		combined.Metadata = mergeMetadata(current.Metadata, next.Metadata)
		if !combined.Certainty.IsMark() && combined.Err == nil {
			combined.Err = fmt.Errorf("%w: %s", ErrUncertain, combined.Reasoning)
		}
		current = combined
	}
	return current
}
