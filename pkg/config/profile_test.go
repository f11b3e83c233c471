package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oscillant-Labs/crossform/pkg/gate"
)

const strictProfile = `
name: strict
allowlist:
  - fs.read
  - fs.write
rules:
  - name: namespaced_tool
    expr: 'tool.matches("^[a-z]+\\.[a-z]+$")'
schemas:
  fs.read:
    params_schema: '{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}'
rate_limit:
  enabled: true
  rps: 100
  burst: 10
escalation:
  timeout_ms: 5000
audit: true
`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func echoTools(t *testing.T, names ...string) *gate.Registry {
	t.Helper()
	r := gate.NewRegistry()
	for _, name := range names {
		r.Register(name, gate.ToolExecutorFunc(func(ctx context.Context, input string) (string, error) {
			return input, nil
		}))
	}
	return r
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", strictProfile)

	p, err := LoadProfile(dir, "STRICT")
	require.NoError(t, err)
	assert.Equal(t, "strict", p.Name)
	assert.Equal(t, []string{"fs.read", "fs.write"}, p.Allowlist)
	assert.Len(t, p.Rules, 1)
	assert.True(t, p.RateLimit.Enabled)
	assert.Equal(t, 5*time.Second, p.Escalation.Timeout())
	assert.True(t, p.Audit)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "ghost")
	assert.Error(t, err)
}

func TestParseProfileDefaultsName(t *testing.T) {
	p, err := ParseProfile([]byte("allowlist: [shell]"), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Name)
}

func TestParseProfileBadYAML(t *testing.T) {
	_, err := ParseProfile([]byte("allowlist: ["), "broken")
	assert.Error(t, err)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "strict", strictProfile)
	writeProfile(t, dir, "open", "allowlist: [shell]")

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Contains(t, profiles, "strict")
	assert.Contains(t, profiles, "open")
}

func TestBuildGateFromProfile(t *testing.T) {
	p, err := ParseProfile([]byte(strictProfile), "strict")
	require.NoError(t, err)

	tools := echoTools(t, "fs.read", "fs.write", "shell")
	g, log, err := p.Build(tools)
	require.NoError(t, err)
	require.NotNil(t, log, "audit: true must yield a log")

	ctx := context.Background()

	// allowed, namespaced, schema-valid
	d := g.Execute(ctx, gate.Request{
		Tool:   "fs.read",
		Caller: "agent-1",
		Input:  "read it",
		Params: map[string]any{"path": "/tmp/x"},
	})
	assert.True(t, d.IsApproved())
	assert.Equal(t, "read it", d.Value)

	// not on the allowlist
	d = g.Execute(ctx, gate.Request{Tool: "shell", Caller: "agent-1"})
	assert.True(t, d.IsRejected())
	assert.Contains(t, d.Reasoning, "tool_allowlist")

	// on the allowlist but schema-invalid params
	d = g.Execute(ctx, gate.Request{
		Tool:   "fs.read",
		Caller: "agent-1",
		Params: map[string]any{"path": 42},
	})
	assert.True(t, d.IsRejected())

	// schema scoped to fs.read does not constrain fs.write
	d = g.Execute(ctx, gate.Request{Tool: "fs.write", Caller: "agent-1", Input: "w"})
	assert.True(t, d.IsApproved())

	assert.Equal(t, 4, log.Len())
	ok, err := log.VerifyChain()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildRejectsUnnamedRule(t *testing.T) {
	p := &Profile{Name: "bad", Rules: []PolicyRule{{Expr: "true"}}}
	_, _, err := p.Build(gate.NewRegistry())
	assert.Error(t, err)
}

func TestBuildRejectsBadSchema(t *testing.T) {
	p := &Profile{
		Name:    "bad",
		Schemas: map[string]Tool{"x": {ParamsSchema: "{{{"}},
	}
	_, _, err := p.Build(gate.NewRegistry())
	assert.Error(t, err)
}

func TestBuildWithoutAuditReturnsNilLog(t *testing.T) {
	p := &Profile{Name: "open"}
	g, log, err := p.Build(echoTools(t, "shell"))
	require.NoError(t, err)
	assert.Nil(t, log)

	d := g.Execute(context.Background(), gate.Request{Tool: "shell"})
	assert.True(t, d.IsApproved())
}
