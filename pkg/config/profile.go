// Package config loads gate profiles from YAML and builds configured gates
// from them. A profile declares the allowlist, CEL policy rules, per-tool
// parameter schemas and rate limits for one deployment environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Oscillant-Labs/crossform/pkg/audit"
	"github.com/Oscillant-Labs/crossform/pkg/gate"
)

// Profile is one named gate configuration.
type Profile struct {
	Name       string           `yaml:"name" json:"name"`
	Allowlist  []string         `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Rules      []PolicyRule     `yaml:"rules,omitempty" json:"rules,omitempty"`
	Schemas    map[string]Tool  `yaml:"schemas,omitempty" json:"schemas,omitempty"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Escalation EscalationConfig `yaml:"escalation" json:"escalation"`
	Audit      bool             `yaml:"audit" json:"audit"`
}

// PolicyRule is a named CEL expression over the request.
type PolicyRule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// Tool carries the per-tool parameter schema as an inline JSON document.
type Tool struct {
	ParamsSchema string `yaml:"params_schema" json:"params_schema"`
}

// RateLimitConfig configures the per-caller token bucket.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	RPS     float64 `yaml:"rps" json:"rps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// EscalationConfig controls how long escalated requests wait for a human.
type EscalationConfig struct {
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms"`
}

// Timeout returns the escalation wait as a duration; zero means wait forever.
func (e EscalationConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// LoadProfile loads a profile YAML by name. It searches the profiles
// directory for profile_<name>.yaml.
func LoadProfile(profilesDir, name string) (*Profile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}
	return ParseProfile(data, name)
}

// ParseProfile parses profile YAML. name is used when the document does not
// carry its own.
func ParseProfile(data []byte, name string) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		base := filepath.Base(path)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := ParseProfile(data, name)
		if err != nil {
			return nil, err
		}
		profiles[profile.Name] = profile
	}

	return profiles, nil
}

// Build assembles a gate from the profile: allowlist first, then CEL rules
// in declaration order, then per-tool schema checks, then the rate limiter.
// The returned audit log is non-nil only when the profile enables auditing.
func (p *Profile) Build(tools gate.ToolLookup) (*gate.Gate, *audit.Log, error) {
	g := gate.NewGate(tools)

	if len(p.Allowlist) > 0 {
		g.WithCriteria(gate.ToolAllowlist(p.Allowlist...))
	}

	if len(p.Rules) > 0 {
		eval, err := gate.NewCELEvaluator()
		if err != nil {
			return nil, nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		for _, rule := range p.Rules {
			if rule.Name == "" || rule.Expr == "" {
				return nil, nil, fmt.Errorf("profile %q: rule needs both name and expr", p.Name)
			}
			g.WithCriteria(eval.Criterion(rule.Name, rule.Expr))
		}
	}

	for tool, cfg := range p.Schemas {
		criterion, err := gate.SchemaCriterion(fmt.Sprintf("%s_params", tool), cfg.ParamsSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		// scope the schema to its tool; other tools pass through
		g.WithCriteria(gate.ForTool(tool, criterion))
	}

	if p.RateLimit.Enabled {
		g.WithRateLimiter(gate.NewTokenBucketLimiter(p.RateLimit.RPS, p.RateLimit.Burst))
	}

	var log *audit.Log
	if p.Audit {
		log = audit.NewLog()
		g.WithAuditLog(log)
	}

	return g, log, nil
}
