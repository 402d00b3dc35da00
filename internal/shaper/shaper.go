// Package shaper enforces tree-shaping limits on candidate items before
// conflict resolution. Shaping parameters (max depth, max children) are part
// of the plan identity, so the transformation here must be deterministic for
// a given candidate set and parameter pair.
package shaper

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rosiefs/rosie/internal/plan"
)

// Shape applies the limits to a candidate set and returns the adjusted set.
//
//   - MaxDepth: a move whose target directory nests deeper than MaxDepth
//     below root is re-targeted to the deepest allowed ancestor directory,
//     keeping the base name.
//   - MaxChildren: when more than MaxChildren moves target one directory,
//     overflow items (in canonical source order) are re-rooted into numbered
//     sibling directories ("docs" -> "docs-2", "docs-3", ...).
//
// Zero limits mean unlimited. Input is not mutated.
func Shape(candidates []plan.Item, root string, shaping plan.Shaping) []plan.Item {
	items := make([]plan.Item, len(candidates))
	copy(items, candidates)
	plan.SortItems(items)

	if shaping.MaxDepth > 0 {
		for i := range items {
			if items[i].Action == plan.ActionMove && items[i].Target != "" {
				items[i].Target = capDepth(items[i].Target, root, shaping.MaxDepth)
			}
		}
	}

	if shaping.MaxChildren > 0 {
		capChildren(items, shaping.MaxChildren)
	}

	return items
}

// capDepth limits how far below root a target may nest. Targets outside
// root are left alone.
func capDepth(target, root string, maxDepth int) string {
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return target
	}
	parts := strings.Split(rel, string(filepath.Separator))
	// parts includes the file name; depth counts directories below root.
	if len(parts)-1 <= maxDepth {
		return target
	}
	kept := append(parts[:maxDepth], parts[len(parts)-1])
	return filepath.Join(append([]string{root}, kept...)...)
}

// capChildren re-roots overflow moves into numbered sibling directories.
// Items are already in canonical order, so bucket membership is stable.
func capChildren(items []plan.Item, maxChildren int) {
	byDir := make(map[string][]int)
	for i, it := range items {
		if it.Action != plan.ActionMove || it.Target == "" {
			continue
		}
		dir := filepath.Dir(it.Target)
		byDir[dir] = append(byDir[dir], i)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		idxs := byDir[dir]
		if len(idxs) <= maxChildren {
			continue
		}
		for pos, i := range idxs[maxChildren:] {
			// Overflow bucket 2 holds the next maxChildren items, and so on.
			bucket := 2 + pos/maxChildren
			sibling := fmt.Sprintf("%s-%d", dir, bucket)
			items[i].Target = filepath.Join(sibling, filepath.Base(items[i].Target))
		}
	}
}
