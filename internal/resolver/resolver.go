// Package resolver turns an overlapping candidate item set into a
// collision-free, risk-annotated plan. The algorithm is deterministic by
// construction: candidates are walked in canonical source-path order, so the
// same input produces the same resolved plan no matter how the caller
// iterated while collecting it.
package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rosiefs/rosie/internal/plan"
)

// maxSuffix bounds the collision-suffix search. Hitting it means more
// distinct sources claimed one target than the suffix space allows, which
// cannot happen for an input set smaller than the bound - so reaching it
// indicates a resolver bug, not bad input.
const maxSuffix = 1 << 20

// UnresolvableError reports a collision the deterministic suffixing could
// not clear. It should never occur; if raised, it is a resolver defect.
type UnresolvableError struct {
	Target string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("conflict unresolvable for target %q (resolver bug)", e.Target)
}

// Resolve produces a sealed, collision-free plan from the candidate set.
//
// Steps, in order:
//  1. Sort candidates by source path (lexicographic canonical key).
//  2. Walk in that order; the first claimant of each target keeps it, later
//     claimants get "-2", "-3", ... appended to the target base name in
//     claim order.
//  3. Annotate risk flags via the probes and apply fixed confidence
//     penalties, floored at zero.
//  4. Recompute every item id from its resolved content and seal the plan
//     hash.
func Resolve(candidates []plan.Item, probes Probes, shaping plan.Shaping) (*plan.Plan, error) {
	items := make([]plan.Item, len(candidates))
	copy(items, candidates)
	plan.SortItems(items)
	items = dedupe(items)

	claimed := make(map[string]struct{}, len(items))
	for i := range items {
		if items[i].Action != plan.ActionMove && items[i].Action != plan.ActionCreateDir {
			continue
		}
		target := items[i].Target
		if target == "" {
			continue
		}
		resolved, err := claimTarget(target, claimed)
		if err != nil {
			return nil, err
		}
		items[i].Target = resolved
		claimed[resolved] = struct{}{}
	}

	for i := range items {
		annotate(&items[i], probes)
	}

	p := &plan.Plan{
		Items:   items,
		Status:  plan.StatusProposed,
		Shaping: shaping,
	}
	if err := p.Seal(); err != nil {
		return nil, err
	}
	return p, nil
}

// dedupe drops exact (action, source, target) duplicates from the sorted
// item set. Two clusters proposing the same directory creation is one
// action, not a collision.
func dedupe(items []plan.Item) []plan.Item {
	out := items[:0]
	type key struct {
		action         plan.Action
		source, target string
	}
	seen := make(map[key]struct{}, len(items))
	for _, it := range items {
		k := key{it.Action, it.Source, it.Target}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// claimTarget returns target unchanged if unclaimed, otherwise the first
// free "-N" variant in claim order.
func claimTarget(target string, claimed map[string]struct{}) (string, error) {
	if _, taken := claimed[target]; !taken {
		return target, nil
	}
	for n := 2; n < maxSuffix; n++ {
		candidate := suffixed(target, n)
		if _, taken := claimed[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", &UnresolvableError{Target: target}
}

// suffixed appends "-N" to the base name, before the extension:
// "dir/draft.txt" -> "dir/draft-2.txt", "dir/archive" -> "dir/archive-2".
func suffixed(target string, n int) string {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
}

// annotate attaches risk flags and applies their confidence penalties.
func annotate(it *plan.Item, probes Probes) {
	if it.Action == plan.ActionMove && it.Target != "" && !probes.sameVolume(it.Source, it.Target) {
		addRisk(it, plan.RiskCrossVolume, PenaltyCrossVolume)
	}
	if it.Target != "" && probes.underSync(it.Target) {
		addRisk(it, plan.RiskCloudSync, PenaltyCloudSync)
	}
	if probes.locked(it.Source) || (it.Target != "" && probes.locked(it.Target)) {
		addRisk(it, plan.RiskLocked, PenaltyLocked)
	}
}

func addRisk(it *plan.Item, flag plan.RiskFlag, penalty int) {
	if it.HasRisk(flag) {
		return
	}
	it.RiskFlags = append(it.RiskFlags, flag)
	it.Confidence -= penalty
	if it.Confidence < 0 {
		it.Confidence = 0
	}
}
