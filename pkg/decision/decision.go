// Package decision provides immutable, auditable decision records and the
// combinators that fold per-criterion certainties into one outcome.
//
// A Decision pairs a result-or-error with a trivalent certainty, a
// human-readable reasoning string and an ordered evidence trail. Decisions
// are constructed once through Approve, Reject or Uncertain and only ever
// derived into new values; nothing mutates in place.
package decision

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Oscillant-Labs/crossform/pkg/canonicalize"
	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// ErrRejected is wrapped by the outcome error of every rejected decision.
var ErrRejected = errors.New("rejected")

// ErrUncertain is wrapped by the outcome error of every inconclusive
// decision.
var ErrUncertain = errors.New("uncertain")

// DefaultConfidence is carried by inconclusive decisions when no criterion
// reported a confidence phase.
const DefaultConfidence = 0.5

// Evidence is one named, timestamped observation supporting a decision.
// Evidence values are appended to trails, never mutated.
type Evidence struct {
	Criterion   string    `json:"criterion"`
	Evaluation  form.Form `json:"-"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvidence records an observation for the named criterion.
func NewEvidence(criterion string, evaluation form.Form, description string) Evidence {
	return Evidence{
		Criterion:   criterion,
		Evaluation:  evaluation,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

// Decision is an immutable auditable outcome.
//
// Invariant: Certainty is Mark if and only if Err is nil and Value carries
// the result. Void and Imaginary decisions always carry a non-nil Err
// explaining the rejection or the uncertainty.
type Decision[T any] struct {
	Value      T
	Err        error
	Certainty  form.Form
	Reasoning  string
	Evidence   []Evidence
	Timestamp  time.Time
	Metadata   map[string]string
	Confidence float64 // confidence phase for inconclusive outcomes
}

// Approve constructs an affirmative decision carrying value.
func Approve[T any](value T, reasoning string) Decision[T] {
	return Decision[T]{
		Value:     value,
		Certainty: form.Mark(),
		Reasoning: reasoning,
		Timestamp: time.Now().UTC(),
	}
}

// Reject constructs a negative decision with the given reasoning.
func Reject[T any](reasoning string) Decision[T] {
	return Decision[T]{
		Err:       fmt.Errorf("%w: %s", ErrRejected, reasoning),
		Certainty: form.Void(),
		Reasoning: reasoning,
		Timestamp: time.Now().UTC(),
	}
}

// Uncertain constructs an inconclusive decision. confidence is the best
// available confidence phase; pass DefaultConfidence when none was reported.
func Uncertain[T any](reasoning string, confidence float64) Decision[T] {
	return Decision[T]{
		Err:        fmt.Errorf("%w: %s", ErrUncertain, reasoning),
		Certainty:  form.Imaginary(),
		Reasoning:  reasoning,
		Timestamp:  time.Now().UTC(),
		Confidence: confidence,
	}
}

// IsApproved reports whether the decision is affirmative.
func (d Decision[T]) IsApproved() bool { return d.Certainty.IsMark() }

// IsRejected reports whether the decision is negative.
func (d Decision[T]) IsRejected() bool { return d.Certainty.IsVoid() }

// IsUncertain reports whether the decision is inconclusive.
func (d Decision[T]) IsUncertain() bool { return d.Certainty.IsImaginary() }

// WithEvidence derives a new decision with the entries appended to the
// trail. The receiver is not modified.
func (d Decision[T]) WithEvidence(entries ...Evidence) Decision[T] {
	trail := make([]Evidence, 0, len(d.Evidence)+len(entries))
	trail = append(trail, d.Evidence...)
	trail = append(trail, entries...)
	d.Evidence = trail
	return d
}

// WithMetadata derives a new decision with the key set in its metadata map.
func (d Decision[T]) WithMetadata(key, value string) Decision[T] {
	meta := make(map[string]string, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[key] = value
	d.Metadata = meta
	return d
}

// And combines two decisions: certainties fold with trivalent conjunction,
// evidence trails concatenate and reasonings join. The value (or error) of
// the combined decision comes from other when the conjunction is Mark,
// otherwise from the first non-affirmative operand.
func (d Decision[T]) And(other Decision[T]) Decision[T] {
	combined := Decision[T]{
		Certainty:  d.Certainty.And(other.Certainty),
		Reasoning:  joinReasoning(d.Reasoning, other.Reasoning, "; "),
		Timestamp:  time.Now().UTC(),
		Confidence: maxFloat(d.Confidence, other.Confidence),
	}
	combined.Evidence = append(append([]Evidence{}, d.Evidence...), other.Evidence...)
	combined.Metadata = mergeMetadata(d.Metadata, other.Metadata)

	switch {
	case combined.Certainty.IsMark():
		combined.Value = other.Value
	case !d.Certainty.IsMark():
		combined.Err = d.Err
	default:
		combined.Err = other.Err
	}
	if !combined.Certainty.IsMark() && combined.Err == nil {
		combined.Err = fmt.Errorf("%w: %s", ErrUncertain, combined.Reasoning)
	}
	return combined
}

// Map derives a decision of a different value type. fn is applied only when
// the decision is affirmative; everything else carries over unchanged.
func Map[T, U any](d Decision[T], fn func(T) U) Decision[U] {
	mapped := Decision[U]{
		Err:        d.Err,
		Certainty:  d.Certainty,
		Reasoning:  d.Reasoning,
		Evidence:   append([]Evidence{}, d.Evidence...),
		Timestamp:  d.Timestamp,
		Metadata:   mergeMetadata(d.Metadata, nil),
		Confidence: d.Confidence,
	}
	if d.Certainty.IsMark() {
		mapped.Value = fn(d.Value)
	}
	return mapped
}

// AuditString renders the decision and its ordered evidence trail for
// compliance review.
func (d Decision[T]) AuditString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "decision %s certainty=%s", outcomeWord(d.Certainty), d.Certainty)
	fmt.Fprintf(&b, " at=%s\n", d.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "reasoning: %s\n", d.Reasoning)
	if d.Err != nil {
		fmt.Fprintf(&b, "outcome error: %v\n", d.Err)
	}
	if len(d.Evidence) == 0 {
		b.WriteString("evidence: none\n")
		return b.String()
	}
	b.WriteString("evidence:\n")
	for i, ev := range d.Evidence {
		fmt.Fprintf(&b, "  %d. [%s] %s: %s (%s)\n",
			i+1, ev.Evaluation, ev.Criterion, ev.Description,
			ev.Timestamp.Format(time.RFC3339Nano))
	}
	return b.String()
}

// ContentHash returns the canonical SHA-256 digest of the decision's
// audit-relevant fields, for tamper-evident chaining.
func (d Decision[T]) ContentHash() (string, error) {
	type evidenceView struct {
		Criterion   string `json:"criterion"`
		Evaluation  string `json:"evaluation"`
		Description string `json:"description"`
		Timestamp   string `json:"timestamp"`
	}
	trail := make([]evidenceView, 0, len(d.Evidence))
	for _, ev := range d.Evidence {
		trail = append(trail, evidenceView{
			Criterion:   ev.Criterion,
			Evaluation:  ev.Evaluation.String(),
			Description: ev.Description,
			Timestamp:   ev.Timestamp.Format(time.RFC3339Nano),
		})
	}
	errText := ""
	if d.Err != nil {
		errText = d.Err.Error()
	}
	return canonicalize.CanonicalHash(map[string]any{
		"certainty": d.Certainty.String(),
		"reasoning": d.Reasoning,
		"error":     errText,
		"evidence":  trail,
		"metadata":  d.Metadata,
		"timestamp": d.Timestamp.Format(time.RFC3339Nano),
	})
}

func outcomeWord(f form.Form) string {
	switch {
	case f.IsMark():
		return "approved"
	case f.IsVoid():
		return "rejected"
	default:
		return "inconclusive"
	}
}

func joinReasoning(a, b, sep string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + sep + b
}

func mergeMetadata(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
