package gate

import (
	"context"
	"sync"

	"github.com/Oscillant-Labs/crossform/pkg/decision"
)

// Request is one proposed tool invocation.
type Request struct {
	Tool   string         `json:"tool"`
	Caller string         `json:"caller,omitempty"`
	Input  string         `json:"input,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolExecutor executes the actual tool logic once the gate approves.
type ToolExecutor interface {
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolExecutorFunc adapts a plain function to a ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, input string) (string, error)

func (f ToolExecutorFunc) Invoke(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// ToolLookup resolves a tool name to its executor.
type ToolLookup interface {
	Get(name string) (ToolExecutor, bool)
}

// Registry is a concurrency-safe in-memory ToolLookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolExecutor
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolExecutor)}
}

// Register binds name to an executor, replacing any previous binding.
func (r *Registry) Register(name string, exec ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = exec
}

// Get resolves a registered tool.
func (r *Registry) Get(name string) (ToolExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.tools[name]
	return exec, ok
}

// Names returns the registered tool names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// RateLimiter throttles requests. Allow reports whether capacity exists
// without consuming it; Record consumes capacity and is called by the gate
// only after a successful invocation.
type RateLimiter interface {
	Allow(req Request) bool
	Record(req Request)
}

// Verdict classifies content scanned by a ContentFilter.
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictSuspect
	VerdictUnsafe
)

func (v Verdict) String() string {
	switch v {
	case VerdictSafe:
		return "safe"
	case VerdictSuspect:
		return "suspect"
	case VerdictUnsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// ContentFilter scans request content before execution.
type ContentFilter interface {
	Analyze(ctx context.Context, content string) Verdict
}

// UncertaintyHandler resolves an inconclusive gate decision, typically by
// consulting a human or a higher-privilege policy engine. Returning
// (true, nil) authorizes execution; (false, nil) denies it; an error leaves
// the decision inconclusive.
type UncertaintyHandler func(ctx context.Context, req Request, d decision.Decision[string]) (bool, error)
