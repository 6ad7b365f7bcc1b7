package groups

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// NewGroup is what a creation policy gets to inspect.
type NewGroup struct {
	Name         string
	UUID         string
	Description  string
	VisibleToAll bool
	OwnerUUID    string
	Members      []int
	Includes     []string
}

// Policy may veto the creation of a group. The returned error's message is
// reported to the caller as the reason.
type Policy interface {
	ValidateNewGroup(ctx context.Context, g *NewGroup) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, g *NewGroup) error

func (f PolicyFunc) ValidateNewGroup(ctx context.Context, g *NewGroup) error {
	return f(ctx, g)
}

// PolicyFile is a declarative policy loaded from YAML:
//
//	reserved-names: [Administrators, Non-Interactive Users]
//	name-pattern: "^[A-Za-z][A-Za-z0-9 _-]*$"
//	require-description: true
type PolicyFile struct {
	ReservedNames      []string `yaml:"reserved-names"`
	NamePattern        string   `yaml:"name-pattern"`
	RequireDescription bool     `yaml:"require-description"`

	pattern *regexp.Regexp
}

// LoadPolicyFile reads and compiles a policy file.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to read group policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a policy document.
func ParsePolicy(data []byte) (*PolicyFile, error) {
	var p PolicyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse group policy: %w", err)
	}
	if p.NamePattern != "" {
		re, err := regexp.Compile(p.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid name-pattern %q: %w", p.NamePattern, err)
		}
		p.pattern = re
	}
	return &p, nil
}

// ValidateNewGroup implements Policy.
func (p *PolicyFile) ValidateNewGroup(_ context.Context, g *NewGroup) error {
	for _, reserved := range p.ReservedNames {
		if strings.EqualFold(reserved, g.Name) {
			return fmt.Errorf("group name %s is reserved", g.Name)
		}
	}
	if p.pattern != nil && !p.pattern.MatchString(g.Name) {
		return fmt.Errorf("group name %s does not match %s", g.Name, p.NamePattern)
	}
	if p.RequireDescription && strings.TrimSpace(g.Description) == "" {
		return fmt.Errorf("group %s has no description", g.Name)
	}
	return nil
}
