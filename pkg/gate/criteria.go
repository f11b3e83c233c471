package gate

import (
	"context"

	"github.com/Oscillant-Labs/crossform/pkg/form"
)

// ToolAllowlist admits only the named tools. Anything outside the set is a
// definite Void, never an Imaginary: an unknown tool is a policy violation,
// not an open question.
func ToolAllowlist(allowed ...string) Criterion {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return Criterion{
		Name: "tool_allowlist",
		Evaluate: func(ctx context.Context, req Request) form.Form {
			if _, ok := set[req.Tool]; ok {
				return form.Mark()
			}
			return form.Void()
		},
	}
}

// ToolExists checks that the requested tool is actually registered, so a
// typo fails at evaluation time instead of after every other criterion has
// been consulted.
func ToolExists(lookup ToolLookup) Criterion {
	return Criterion{
		Name: "tool_exists",
		Evaluate: func(ctx context.Context, req Request) form.Form {
			if _, ok := lookup.Get(req.Tool); ok {
				return form.Mark()
			}
			return form.Void()
		},
	}
}

// RateLimit denies requests that exceed the limiter's capacity. The check
// does not consume capacity; the gate records consumption only after a
// successful invocation.
func RateLimit(rl RateLimiter) Criterion {
	return Criterion{
		Name: "rate_limit",
		Evaluate: func(ctx context.Context, req Request) form.Form {
			if rl.Allow(req) {
				return form.Mark()
			}
			return form.Void()
		},
	}
}

// ForTool scopes a criterion to one tool. Requests for any other tool pass
// the check vacuously.
func ForTool(tool string, c Criterion) Criterion {
	return Criterion{
		Name: c.Name,
		Evaluate: func(ctx context.Context, req Request) form.Form {
			if req.Tool != tool {
				return form.Mark()
			}
			return c.Evaluate(ctx, req)
		},
	}
}

// ContentCheck runs the request input through a content filter. Safe allows,
// Unsafe denies, Suspect is Imaginary and routes the request to whatever
// uncertainty handling the gate carries.
func ContentCheck(filter ContentFilter) Criterion {
	return Criterion{
		Name: "content_filter",
		Evaluate: func(ctx context.Context, req Request) form.Form {
			switch filter.Analyze(ctx, req.Input) {
			case VerdictSafe:
				return form.Mark()
			case VerdictUnsafe:
				return form.Void()
			default:
				return form.Imaginary()
			}
		},
	}
}
