package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// Capability gates optional surfaces of the service per environment and
// caller role.
type Capability string

const (
	CapDiagnostics Capability = "diagnostics"
	CapSimulation  Capability = "simulation"
	CapReview      Capability = "review"
)

// Capabilities maps environment -> role -> granted capabilities. The
// wildcard role "*" applies to every caller in that environment.
type Capabilities struct {
	Environments map[string]map[string][]Capability `yaml:"environments"`
}

// CapabilitySet is the resolved set for one environment.
type CapabilitySet struct {
	env   string
	roles map[string]map[Capability]struct{}
}

func DefaultCapabilities() Capabilities {
	return Capabilities{
		Environments: map[string]map[string][]Capability{
			EnvProduction: {
				"compliance_reviewer": {CapReview},
				"support":             {CapDiagnostics},
			},
			EnvStaging: {
				"*":                   {CapSimulation},
				"compliance_reviewer": {CapReview},
				"support":             {CapDiagnostics},
			},
			EnvDevelopment: {
				"*": {CapSimulation, CapDiagnostics, CapReview},
			},
		},
	}
}

// LoadCapabilities reads a YAML capability file. An empty path yields the
// built-in defaults.
func LoadCapabilities(path string) (Capabilities, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCapabilities(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Capabilities{}, fmt.Errorf("read capabilities file: %w", err)
	}
	return ParseCapabilities(data)
}

func ParseCapabilities(data []byte) (Capabilities, error) {
	var caps Capabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("parse capabilities: %w", err)
	}
	for env, roles := range caps.Environments {
		for role, granted := range roles {
			for _, c := range granted {
				switch c {
				case CapDiagnostics, CapSimulation, CapReview:
				default:
					return Capabilities{}, fmt.Errorf("environment %s role %s: unknown capability %q", env, role, c)
				}
			}
		}
	}
	return caps, nil
}

// For resolves the capability set for env. Unknown environments grant
// nothing.
func (c Capabilities) For(env string) CapabilitySet {
	set := CapabilitySet{env: env, roles: make(map[string]map[Capability]struct{})}
	for role, granted := range c.Environments[env] {
		m := make(map[Capability]struct{}, len(granted))
		for _, g := range granted {
			m[g] = struct{}{}
		}
		set.roles[role] = m
	}
	return set
}

func (s CapabilitySet) Environment() string {
	return s.env
}

// Allows reports whether any of roles (or the wildcard) grants capability.
func (s CapabilitySet) Allows(roles []string, capability Capability) bool {
	if _, ok := s.roles["*"][capability]; ok {
		return true
	}
	for _, r := range roles {
		if _, ok := s.roles[r][capability]; ok {
			return true
		}
	}
	return false
}

// Any reports whether the capability is reachable by some role at all.
func (s CapabilitySet) Any(capability Capability) bool {
	for _, granted := range s.roles {
		if _, ok := granted[capability]; ok {
			return true
		}
	}
	return false
}

// Roles lists roles with at least one capability, sorted.
func (s CapabilitySet) Roles() []string {
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
