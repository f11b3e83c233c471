// Package gate evaluates proposed tool invocations against ordered safety
// criteria and executes only what every criterion affirms.
//
// Each criterion answers with a trivalent form: Mark (allow), Void (deny) or
// Imaginary (cannot tell). The gate folds the answers with conjunction and
// routes the result: Mark executes the tool, Void rejects with the names of
// the failing criteria and no side effects, Imaginary defers to a configured
// uncertainty handler or surfaces an inconclusive decision for escalation.
// Criteria that panic or misbehave degrade to Imaginary, never to a crash
// and never to a silent allow.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Oscillant-Labs/crossform/pkg/audit"
	"github.com/Oscillant-Labs/crossform/pkg/decision"
	"github.com/Oscillant-Labs/crossform/pkg/form"
	"github.com/Oscillant-Labs/crossform/pkg/observability"
)

// Criterion is one named safety check over a request.
type Criterion struct {
	Name     string
	Evaluate func(ctx context.Context, req Request) form.Form
}

// Gate screens tool invocations. Construct with NewGate and the fluent
// With* methods; configure fully before first use, the builder methods are
// not safe to call concurrently with Execute.
type Gate struct {
	tools    ToolLookup
	criteria []Criterion
	limiter  RateLimiter
	handler  UncertaintyHandler
	auditLog *audit.Log
	obs      *observability.Provider
	logger   *slog.Logger
}

// NewGate creates a gate over the given tool lookup with no criteria. A
// gate with no criteria approves everything; callers are expected to add at
// least an allowlist.
func NewGate(tools ToolLookup) *Gate {
	return &Gate{
		tools:  tools,
		logger: slog.Default().With("component", "gate"),
	}
}

// WithCriterion appends a named criterion to the evaluation order.
func (g *Gate) WithCriterion(name string, fn func(ctx context.Context, req Request) form.Form) *Gate {
	g.criteria = append(g.criteria, Criterion{Name: name, Evaluate: fn})
	return g
}

// WithCriteria appends pre-built criteria in order.
func (g *Gate) WithCriteria(criteria ...Criterion) *Gate {
	g.criteria = append(g.criteria, criteria...)
	return g
}

// WithRateLimiter installs a limiter: an admission criterion checking
// capacity, plus consumption recorded after each successful invocation.
func (g *Gate) WithRateLimiter(rl RateLimiter) *Gate {
	g.limiter = rl
	return g.WithCriteria(RateLimit(rl))
}

// WithUncertaintyHandler installs the resolver consulted when criteria are
// inconclusive. Without one, inconclusive decisions are returned as-is for
// the caller to escalate.
func (g *Gate) WithUncertaintyHandler(h UncertaintyHandler) *Gate {
	g.handler = h
	return g
}

// WithAuditLog records every terminal decision in a hash-chained log.
func (g *Gate) WithAuditLog(l *audit.Log) *Gate {
	g.auditLog = l
	return g
}

// WithObservability wires tracing and RED metrics for Execute.
func (g *Gate) WithObservability(p *observability.Provider) *Gate {
	g.obs = p
	return g
}

// WithLogger overrides the default structured logger.
func (g *Gate) WithLogger(l *slog.Logger) *Gate {
	g.logger = l
	return g
}

// Execute evaluates every criterion against req and acts on the folded
// result. Exactly one terminal decision is returned per call; the tool is
// invoked at most once, and only on an affirmative path.
func (g *Gate) Execute(ctx context.Context, req Request) decision.Decision[string] {
	var finish func(outcome string, err error)
	if g.obs != nil {
		ctx, finish = g.obs.TrackEvaluation(ctx, req.Tool)
	}

	var panicTrail []decision.Evidence
	criteria := make([]decision.Criterion[Request], len(g.criteria))
	for i, c := range g.criteria {
		criteria[i] = decision.Criterion[Request]{
			Name:     c.Name,
			Evaluate: g.guard(c.Name, c.Evaluate, &panicTrail),
		}
	}

	d := decision.EvaluateAll(ctx, req, criteria, g.invoke)
	if len(panicTrail) > 0 {
		d = d.WithEvidence(panicTrail...)
	}
	if d.IsUncertain() && g.handler != nil {
		d = g.resolveUncertain(ctx, req, d)
	}

	d = d.WithMetadata("tool", req.Tool)
	if req.Caller != "" {
		d = d.WithMetadata("caller", req.Caller)
	}

	g.record(ctx, req, d)
	if finish != nil {
		finish(outcomeOf(d), d.Err)
	}
	return d
}

// guard makes a criterion total: a panic inside Evaluate becomes an
// Imaginary answer with the panic message on the evidence trail, so a
// broken check can stall a request but never crash the gate or wave the
// request through. The trail slice is only touched from the evaluating
// goroutine.
func (g *Gate) guard(name string, fn func(ctx context.Context, req Request) form.Form, trail *[]decision.Evidence) func(ctx context.Context, req Request) form.Form {
	return func(ctx context.Context, req Request) (f form.Form) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.ErrorContext(ctx, "criterion panicked",
					"criterion", name, "tool", req.Tool, "panic", r)
				*trail = append(*trail, decision.NewEvidence(
					name, form.Imaginary(), fmt.Sprintf("criterion panicked: %v", r)))
				f = form.Imaginary()
			}
		}()
		return fn(ctx, req)
	}
}

// invoke resolves and runs the tool. Rate-limit capacity is consumed only
// when the invocation succeeds, so denied or failed calls are free.
func (g *Gate) invoke(ctx context.Context, req Request) (string, error) {
	exec, ok := g.tools.Get(req.Tool)
	if !ok {
		return "", fmt.Errorf("tool %q not registered", req.Tool)
	}
	out, err := exec.Invoke(ctx, req.Input)
	if err != nil {
		return "", err
	}
	if g.limiter != nil {
		g.limiter.Record(req)
	}
	return out, nil
}

// resolveUncertain consults the configured handler about an inconclusive
// decision. The handler's verdict is itself evidence on the trail.
func (g *Gate) resolveUncertain(ctx context.Context, req Request, d decision.Decision[string]) decision.Decision[string] {
	approved, err := g.handler(ctx, req, d)
	if err != nil {
		g.logger.WarnContext(ctx, "uncertainty handler failed",
			"tool", req.Tool, "error", err)
		return d.WithEvidence(decision.NewEvidence(
			"uncertainty_handler", form.Imaginary(), fmt.Sprintf("handler failed: %v", err)))
	}

	if !approved {
		return decision.Reject[string]("uncertainty resolved to rejection by handler").
			WithEvidence(d.Evidence...).
			WithEvidence(decision.NewEvidence("uncertainty_handler", form.Void(), "handler denied execution"))
	}

	approvalEvidence := decision.NewEvidence("uncertainty_handler", form.Mark(), "handler approved execution")
	out, err := g.invoke(ctx, req)
	if err != nil {
		return decision.Reject[string](fmt.Sprintf("action failed after handler approval: %v", err)).
			WithEvidence(d.Evidence...).
			WithEvidence(approvalEvidence)
	}
	return decision.Approve(out, "uncertainty resolved to approval by handler").
		WithEvidence(d.Evidence...).
		WithEvidence(approvalEvidence)
}

func (g *Gate) record(ctx context.Context, req Request, d decision.Decision[string]) {
	outcome := outcomeOf(d)
	g.logger.InfoContext(ctx, "gate decision",
		"tool", req.Tool,
		"caller", req.Caller,
		"outcome", outcome,
		"reasoning", d.Reasoning,
	)
	if g.auditLog == nil {
		return
	}
	actor := req.Caller
	if actor == "" {
		actor = "gate"
	}
	if _, err := g.auditLog.AppendDecision(actor, req.Tool, d); err != nil {
		g.logger.ErrorContext(ctx, "audit append failed",
			"tool", req.Tool, "error", err)
	}
}

func outcomeOf(d decision.Decision[string]) string {
	switch {
	case d.IsApproved():
		return "approved"
	case d.IsUncertain():
		return "uncertain"
	default:
		return "rejected"
	}
}
