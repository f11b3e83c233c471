package decision

import (
	"context"
	"testing"

	"github.com/Oscillant-Labs/crossform/pkg/form"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constCriterion(name string, f form.Form) Criterion[string] {
	return Criterion[string]{
		Name:     name,
		Evaluate: func(ctx context.Context, input string) form.Form { return f },
	}
}

func passThrough(ctx context.Context, input string) (string, error) {
	return input + ":done", nil
}

func TestEvaluateAllAllMark(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Mark()),
		constCriterion("c2", form.Mark()),
		constCriterion("c3", form.Mark()),
	}

	d := EvaluateAll(context.Background(), "req", criteria, passThrough)
	assert.True(t, d.IsApproved())
	assert.Equal(t, "req:done", d.Value)
	assert.Len(t, d.Evidence, 3)
}

func TestEvaluateAllRejectNamesVoidCriterion(t *testing.T) {
	invoked := false
	criteria := []Criterion[string]{
		constCriterion("c1", form.Mark()),
		constCriterion("c2", form.Void()),
		constCriterion("c3", form.Mark()),
	}

	d := EvaluateAll(context.Background(), "req", criteria,
		func(ctx context.Context, input string) (string, error) {
			invoked = true
			return input, nil
		})

	assert.True(t, d.IsRejected())
	assert.False(t, invoked, "action must not run on rejection")
	assert.Contains(t, d.Reasoning, "c2")
	assert.NotContains(t, d.Reasoning, "c1")
	assert.Len(t, d.Evidence, 3)
}

func TestEvaluateAllUncertainUsesMaxPhase(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Mark()),
		constCriterion("c2", form.ImaginaryPhase(0.3)),
		constCriterion("c3", form.ImaginaryPhase(0.9)),
	}

	d := EvaluateAll(context.Background(), "req", criteria, passThrough)
	assert.True(t, d.IsUncertain())
	assert.InDelta(t, 0.9, d.Confidence, 1e-12)
}

func TestEvaluateAllUncertainDefaultConfidence(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Mark()),
		constCriterion("c2", form.Imaginary()),
	}

	d := EvaluateAll(context.Background(), "req", criteria, passThrough)
	assert.True(t, d.IsUncertain())
	// bare Imaginary carries no phase, so the default confidence applies
	assert.InDelta(t, DefaultConfidence, d.Confidence, 1e-12)
}

func TestEvaluateAllEmptyCriteriaApproves(t *testing.T) {
	d := EvaluateAll(context.Background(), "req", nil, passThrough)
	assert.True(t, d.IsApproved())
}

func TestEvaluateAllActionFailure(t *testing.T) {
	criteria := []Criterion[string]{constCriterion("c1", form.Mark())}
	d := EvaluateAll(context.Background(), "req", criteria,
		func(ctx context.Context, input string) (string, error) {
			return "", assert.AnError
		})
	assert.True(t, d.IsRejected())
	assert.Contains(t, d.Reasoning, assert.AnError.Error())
}

func TestEvaluateAnyApprovesOnAnyMark(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Void()),
		constCriterion("c2", form.Mark()),
	}
	d := EvaluateAny(context.Background(), "req", criteria)
	assert.True(t, d.IsApproved())
	assert.Contains(t, d.Reasoning, "c2")
}

func TestEvaluateAnyUncertainWithoutMark(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Void()),
		constCriterion("c2", form.Imaginary()),
	}
	d := EvaluateAny(context.Background(), "req", criteria)
	assert.True(t, d.IsUncertain())
}

func TestEvaluateAnyRejectsAllVoid(t *testing.T) {
	criteria := []Criterion[string]{
		constCriterion("c1", form.Void()),
		constCriterion("c2", form.Void()),
	}
	d := EvaluateAny(context.Background(), "req", criteria)
	assert.True(t, d.IsRejected())
}

func TestChainThreadsValue(t *testing.T) {
	d := Chain(context.Background(), Approve("a", "start"),
		func(ctx context.Context, v string) Decision[string] {
			return Approve(v+"b", "step1")
		},
		func(ctx context.Context, v string) Decision[string] {
			return Approve(v+"c", "step2")
		},
	)
	require.True(t, d.IsApproved())
	assert.Equal(t, "abc", d.Value)
	assert.Equal(t, "start -> step1 -> step2", d.Reasoning)
}

func TestChainShortCircuits(t *testing.T) {
	secondInvoked := false
	d := Chain(context.Background(), Approve("x", "start"),
		func(ctx context.Context, v string) Decision[string] {
			return Reject[string]("blocked here")
		},
		func(ctx context.Context, v string) Decision[string] {
			secondInvoked = true
			return Approve(v, "never")
		},
	)
	assert.True(t, d.IsRejected())
	assert.False(t, secondInvoked, "steps after the first Void must not run")
	assert.Contains(t, d.Reasoning, "blocked here")
}

func TestChainStopsOnUncertain(t *testing.T) {
	thirdInvoked := false
	d := Chain(context.Background(), Approve("x", "start"),
		func(ctx context.Context, v string) Decision[string] {
			return Uncertain[string]("unclear", 0.4)
		},
		func(ctx context.Context, v string) Decision[string] {
			thirdInvoked = true
			return Approve(v, "never")
		},
	)
	assert.True(t, d.IsUncertain())
	assert.False(t, thirdInvoked)
	require.Error(t, d.Err)
}

func TestChainOnRejectedInitial(t *testing.T) {
	d := Chain(context.Background(), Reject[string]("initial no"),
		func(ctx context.Context, v string) Decision[string] {
			t.Fatal("must not run")
			return Approve(v, "")
		},
	)
	assert.True(t, d.IsRejected())
}
