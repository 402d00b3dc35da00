package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rosiefs/rosie/internal/config"
	"github.com/rosiefs/rosie/internal/event"
)

// GlobRuleMatcher evaluates a loaded rule set against scanned records.
// First matching rule wins per path.
type GlobRuleMatcher struct {
	Rules *config.RuleSet
}

func NewGlobRuleMatcher(rs *config.RuleSet) *GlobRuleMatcher {
	return &GlobRuleMatcher{Rules: rs}
}

func (m *GlobRuleMatcher) Match(ctx context.Context, records []event.FileRecord) ([]event.RuleMatched, error) {
	var out []event.RuleMatched
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rule, ok := m.firstMatch(r.Path)
		if !ok {
			continue
		}
		out = append(out, event.RuleMatched{
			Path:       r.Path,
			RuleID:     rule.ID,
			Action:     rule.Action,
			Target:     ruleTarget(rule, r.Path),
			Reason:     "rule:" + rule.ID,
			Confidence: rule.ConfidenceBP(),
		})
	}
	return out, nil
}

func (m *GlobRuleMatcher) firstMatch(path string) (config.Rule, bool) {
	for _, rule := range m.Rules.Rules {
		if rule.Matches(path) {
			return rule, true
		}
	}
	return config.Rule{}, false
}

func ruleTarget(rule config.Rule, path string) string {
	if rule.Target == "" {
		return ""
	}
	return filepath.Join(rule.Target, filepath.Base(path))
}
