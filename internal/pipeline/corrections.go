package pipeline

import (
	"path/filepath"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/plan"
)

// applyCorrections rewrites the candidate set per the recorded corrections,
// in append order so a later correction on the same item wins. Item-targeted
// corrections match by the id the item carried in the referenced plan;
// candidates are matched through that plan's item table.
func applyCorrections(candidates []plan.Item, corrections []event.Correction, ref *plan.Plan) []plan.Item {
	out := make([]plan.Item, len(candidates))
	copy(out, candidates)
	for _, c := range corrections {
		out = applyOne(out, c, ref)
	}
	return out
}

func applyOne(candidates []plan.Item, c event.Correction, ref *plan.Plan) []plan.Item {
	switch c.Type {
	case event.CorrectionReject:
		src, ok := sourceForItem(ref, c.ItemID)
		if !ok {
			return candidates
		}
		return rewrite(candidates, func(it plan.Item) (plan.Item, bool) {
			if it.Source != src {
				return it, true
			}
			it.Action = plan.ActionNoOp
			it.Target = ""
			it.Reason = "rejected"
			return it, true
		})
	case event.CorrectionRelabel:
		src, ok := sourceForItem(ref, c.ItemID)
		if !ok {
			return candidates
		}
		return rewrite(candidates, func(it plan.Item) (plan.Item, bool) {
			if it.Source != src || it.Action != plan.ActionMove || it.Target == "" {
				return it, true
			}
			// Relabel redirects the move into the new label's directory,
			// two levels up from target: root/<label>/<basename>.
			parent := filepath.Dir(filepath.Dir(it.Target))
			it.Target = filepath.Join(parent, c.Label, filepath.Base(it.Target))
			it.Reason = "relabel:" + c.Label
			return it, true
		})
	case event.CorrectionExclude:
		return rewrite(candidates, func(it plan.Item) (plan.Item, bool) {
			if ok, _ := filepath.Match(c.PathPattern, it.Source); ok {
				return it, false
			}
			return it, true
		})
	case event.CorrectionRuleOverride:
		if c.Rule == nil {
			return candidates
		}
		return rewrite(candidates, func(it plan.Item) (plan.Item, bool) {
			if ok, _ := filepath.Match(c.Rule.PathPattern, it.Source); !ok {
				return it, true
			}
			it.Action = plan.Action(c.Rule.Action)
			it.Target = overrideTarget(c.Rule, it.Source)
			it.Reason = "rule-override:" + c.Rule.RuleID
			return it, true
		})
	}
	return candidates
}

func overrideTarget(r *event.RuleOverride, source string) string {
	if r.Target == "" {
		return ""
	}
	return filepath.Join(r.Target, filepath.Base(source))
}

// rewrite maps f over candidates, dropping items for which f returns false.
func rewrite(candidates []plan.Item, f func(plan.Item) (plan.Item, bool)) []plan.Item {
	out := candidates[:0]
	for _, it := range candidates {
		next, keep := f(it)
		if keep {
			out = append(out, next)
		}
	}
	return out
}

// sourceForItem resolves an item id from the reference plan to its source
// path. Candidates have no stable ids until sealed, so item-targeted
// corrections address them through the plan the user saw.
func sourceForItem(ref *plan.Plan, itemID string) (string, bool) {
	if ref == nil {
		return "", false
	}
	it, ok := ref.Item(itemID)
	if !ok {
		return "", false
	}
	return it.Source, true
}
