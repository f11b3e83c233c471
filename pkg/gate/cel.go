package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// CELEvaluator compiles CEL policy expressions into gate criteria, caching
// compiled programs per expression.
//
// Expressions see the request as variables: tool, caller and input as
// strings, params as a dynamic map, timestamp as the Unix evaluation time.
// A policy that fails to compile, errors at runtime, or yields a non-bool
// answers Imaginary: a broken policy may stall a request but never decides
// it either way.
type CELEvaluator struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

// NewCELEvaluator creates an evaluator with the standard request environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("caller", cel.StringType),
		cel.Variable("input", cel.StringType),
		cel.Variable("params", cel.DynType),
		cel.Variable("timestamp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELEvaluator{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Criterion builds a named criterion from a CEL expression. The expression
// is compiled lazily on first evaluation and cached.
func (e *CELEvaluator) Criterion(name, expr string) Criterion {
	return Criterion{
		Name: name,
		Evaluate: func(ctx context.Context, req Request) form.Form {
			params := req.Params
			if params == nil {
				params = map[string]any{}
			}
			input := map[string]any{
				"tool":      req.Tool,
				"caller":    req.Caller,
				"input":     req.Input,
				"params":    params,
				"timestamp": time.Now().Unix(),
			}
			allowed, err := e.evaluateExpr(expr, input)
			if err != nil {
				return form.Imaginary()
			}
			return form.FromBool(allowed)
		},
	}
}

func (e *CELEvaluator) evaluateExpr(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		// Double check
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000), // Hard limit on computational complexity
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
