// Package invalidate decides, for each new event, which projections and
// plan regions are stale and must be recomputed. The policies are:
//
//   - structural event (full rescan): everything is recomputed;
//   - scoped correction: only rule matches, cluster assignments, and
//     resolved items sharing a target directory with an affected path;
//   - unscoped correction: conservative fallback to full invalidation.
//
// For a fixed event history and correction set, repeated recomputation -
// including across process restarts - always converges to the same plan id,
// because the scope computation below is itself a pure function of the
// event and the current resolved plan.
package invalidate

import (
	"path/filepath"
	"sort"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/plan"
)

// Scope describes what must be recomputed after an event.
type Scope struct {
	// Full set: the whole pipeline reruns and the scoped fields are empty.
	Full bool
	// Paths whose rule matches and cluster assignments are stale.
	Paths map[string]struct{}
	// Dirs whose resolved items must re-enter conflict resolution, keyed by
	// resolved target directory. Includes the affected paths' directories so
	// suffix assignment stays consistent for every sibling claim.
	Dirs map[string]struct{}
}

// FullScope returns a scope that invalidates everything.
func FullScope() Scope {
	return Scope{Full: true}
}

// EmptyScope returns a scope that invalidates nothing.
func EmptyScope() Scope {
	return Scope{Paths: map[string]struct{}{}, Dirs: map[string]struct{}{}}
}

// Empty reports whether the scope invalidates nothing at all.
func (s Scope) Empty() bool {
	return !s.Full && len(s.Paths) == 0 && len(s.Dirs) == 0
}

// Merge unions two scopes. Full absorbs everything.
func (s Scope) Merge(other Scope) Scope {
	if s.Full || other.Full {
		return FullScope()
	}
	out := EmptyScope()
	for p := range s.Paths {
		out.Paths[p] = struct{}{}
	}
	for p := range other.Paths {
		out.Paths[p] = struct{}{}
	}
	for d := range s.Dirs {
		out.Dirs[d] = struct{}{}
	}
	for d := range other.Dirs {
		out.Dirs[d] = struct{}{}
	}
	return out
}

// SortedPaths returns the path set in stable order (for logging and tests).
func (s Scope) SortedPaths() []string {
	out := make([]string, 0, len(s.Paths))
	for p := range s.Paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ForEvent computes the invalidation scope of one event against the current
// resolved plan. Events that do not affect planning yield an empty scope.
func ForEvent(ev event.Event, current *plan.Plan) Scope {
	switch p := ev.Payload.(type) {
	case event.FilesScanned:
		if p.FullRescan {
			return FullScope()
		}
		scope := EmptyScope()
		for _, rec := range p.Records {
			scope.Paths[rec.Path] = struct{}{}
		}
		widenToTargetDirs(&scope, current)
		return scope
	case event.CorrectionAdded:
		return forCorrection(p.Correction, current)
	default:
		return EmptyScope()
	}
}

// forCorrection resolves a correction's scope hint to affected paths.
// A correction without a usable hint falls back to full invalidation.
func forCorrection(c event.Correction, current *plan.Plan) Scope {
	if !c.Scoped() {
		return FullScope()
	}

	scope := EmptyScope()
	switch c.Type {
	case event.CorrectionReject, event.CorrectionRelabel:
		it, ok := itemByID(current, c.ItemID)
		if !ok {
			// The item id does not exist in the current plan; nothing can be
			// scoped from it, so conservatively recompute everything.
			return FullScope()
		}
		scope.Paths[it.Source] = struct{}{}
	case event.CorrectionExclude:
		addPatternMatches(&scope, c.PathPattern, current)
	case event.CorrectionRuleOverride:
		addPatternMatches(&scope, c.Rule.PathPattern, current)
	}

	widenToTargetDirs(&scope, current)
	return scope
}

func itemByID(current *plan.Plan, id string) (plan.Item, bool) {
	if current == nil {
		return plan.Item{}, false
	}
	return current.Item(id)
}

// addPatternMatches adds every current-plan source matching the glob
// pattern. An invalid pattern matches nothing here and is caught upstream by
// Correction.Validate.
func addPatternMatches(scope *Scope, pattern string, current *plan.Plan) {
	if current == nil {
		return
	}
	for _, it := range current.Items {
		ok, err := filepath.Match(pattern, it.Source)
		if err != nil {
			return
		}
		if ok {
			scope.Paths[it.Source] = struct{}{}
		}
	}
}

// widenToTargetDirs extends the scope with every resolved item whose target
// directory is shared with an affected path. Required so conflict
// suffixing stays consistent: releasing or adding a claim in a directory can
// shift which sibling keeps the unsuffixed name.
func widenToTargetDirs(scope *Scope, current *plan.Plan) {
	if current == nil || scope.Full {
		return
	}

	affectedDirs := make(map[string]struct{})
	for _, it := range current.Items {
		if _, hit := scope.Paths[it.Source]; !hit {
			continue
		}
		if it.Target != "" {
			affectedDirs[filepath.Dir(it.Target)] = struct{}{}
		}
	}

	for _, it := range current.Items {
		if it.Target == "" {
			continue
		}
		dir := filepath.Dir(it.Target)
		if _, hit := affectedDirs[dir]; hit {
			scope.Dirs[dir] = struct{}{}
			scope.Paths[it.Source] = struct{}{}
		}
	}
}
