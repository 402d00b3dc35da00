package event

import (
	"encoding/json"
	"fmt"
)

// CorrectionType discriminates the closed correction union.
type CorrectionType string

const (
	CorrectionReject       CorrectionType = "reject"
	CorrectionRelabel      CorrectionType = "relabel"
	CorrectionExclude      CorrectionType = "exclude"
	CorrectionRuleOverride CorrectionType = "rule_override"
)

// Correction is a structured user correction. Exactly one variant field is
// set, matching Type. Each variant carries the scope data that invalidation
// needs, so scoping is a total function over the union rather than string
// parsing.
type Correction struct {
	Type CorrectionType `json:"type"`

	// Reject and Relabel target one plan item.
	ItemID string `json:"item_id,omitempty"`
	// Relabel only.
	Label string `json:"label,omitempty"`
	// Exclude only: glob-style path pattern.
	PathPattern string `json:"path_pattern,omitempty"`
	// RuleOverride only.
	Rule *RuleOverride `json:"rule,omitempty"`
}

// RuleOverride replaces or adds one rule, scoped to a path pattern.
type RuleOverride struct {
	RuleID      string `json:"rule_id"`
	PathPattern string `json:"path_pattern"`
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
}

// Validate checks that the variant fields match Type.
func (c Correction) Validate() error {
	switch c.Type {
	case CorrectionReject:
		if c.ItemID == "" {
			return fmt.Errorf("reject correction requires item_id")
		}
	case CorrectionRelabel:
		if c.ItemID == "" || c.Label == "" {
			return fmt.Errorf("relabel correction requires item_id and label")
		}
	case CorrectionExclude:
		if c.PathPattern == "" {
			return fmt.Errorf("exclude correction requires path_pattern")
		}
	case CorrectionRuleOverride:
		if c.Rule == nil || c.Rule.PathPattern == "" {
			return fmt.Errorf("rule_override correction requires a scoped rule")
		}
		switch c.Rule.Action {
		case "move":
			if c.Rule.Target == "" {
				return fmt.Errorf("rule_override with action move requires a target")
			}
		case "delete", "no_op":
		default:
			return fmt.Errorf("rule_override has unknown action %q", c.Rule.Action)
		}
	default:
		return fmt.Errorf("unknown correction type %q", c.Type)
	}
	return nil
}

// Scoped reports whether the correction carries a usable scope hint.
// Item-targeted corrections are scoped (the item resolves to paths);
// pattern corrections are scoped by their pattern. A correction that fails
// this check forces conservative full invalidation.
func (c Correction) Scoped() bool {
	switch c.Type {
	case CorrectionReject, CorrectionRelabel:
		return c.ItemID != ""
	case CorrectionExclude:
		return c.PathPattern != ""
	case CorrectionRuleOverride:
		return c.Rule != nil && c.Rule.PathPattern != ""
	}
	return false
}

// String renders a short human-readable description.
func (c Correction) String() string {
	switch c.Type {
	case CorrectionReject:
		return fmt.Sprintf("reject(%s)", shortID(c.ItemID))
	case CorrectionRelabel:
		return fmt.Sprintf("relabel(%s, %q)", shortID(c.ItemID), c.Label)
	case CorrectionExclude:
		return fmt.Sprintf("exclude(%s)", c.PathPattern)
	case CorrectionRuleOverride:
		if c.Rule != nil {
			return fmt.Sprintf("rule_override(%s on %s)", c.Rule.RuleID, c.Rule.PathPattern)
		}
		return "rule_override(?)"
	}
	b, _ := json.Marshal(c)
	return string(b)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
