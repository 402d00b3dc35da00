package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Actions a rule may propose.
var ruleActions = map[string]bool{
	"move":   true,
	"delete": true,
	"no_op":  true,
}

// RuleSet is the user rule file.
type RuleSet struct {
	// Rules are evaluated in order; the first match for a path wins.
	Rules []Rule `yaml:"rules"`
}

// Rule maps paths matching a glob pattern to one proposed action.
type Rule struct {
	// ID uniquely names the rule, for provenance in plan items.
	ID string `yaml:"id"`

	// Match is a glob pattern tested against the file's base name, or
	// against the full path when it contains a separator.
	Match string `yaml:"match"`

	// Action is one of move, delete, no_op.
	Action string `yaml:"action"`

	// Target is the destination directory for move rules.
	Target string `yaml:"target,omitempty"`

	// Confidence in [0, 1]; stored internally in basis points.
	Confidence float64 `yaml:"confidence"`
}

// ConfidenceBP returns the rule confidence in basis points.
func (r Rule) ConfidenceBP() int {
	return int(math.Round(r.Confidence * 10000))
}

// Matches tests path against the rule pattern. Patterns without a
// separator match the base name only.
func (r Rule) Matches(path string) bool {
	subject := filepath.Base(path)
	if filepath.Dir(r.Match) != "." {
		subject = path
	}
	ok, err := filepath.Match(r.Match, subject)
	return err == nil && ok
}

// LoadRules reads and parses a rule file, rejecting unknown fields.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var rs RuleSet
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &rs, nil
}

func (rs *RuleSet) validate() error {
	seen := make(map[string]bool, len(rs.Rules))
	for i, r := range rs.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Match == "" {
			return fmt.Errorf("rule %q: match is required", r.ID)
		}
		if _, err := filepath.Match(r.Match, "probe"); err != nil {
			return fmt.Errorf("rule %q: bad pattern: %w", r.ID, err)
		}
		if !ruleActions[r.Action] {
			return fmt.Errorf("rule %q: unknown action %q", r.ID, r.Action)
		}
		if r.Action == "move" && r.Target == "" {
			return fmt.Errorf("rule %q: move requires a target", r.ID)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("rule %q: confidence must be in [0, 1]", r.ID)
		}
	}
	return nil
}
