package invalidate

import "github.com/rosiefs/rosie/internal/plan"

// Partition splits a candidate set into the items the scope touches and the
// items it provably does not. Affected items are recomputed; unaffected
// items re-enter conflict resolution unchanged, which keeps their resolved
// targets and ids stable (the resolver is deterministic over the merged
// set).
func Partition(candidates []plan.Item, scope Scope) (affected, unaffected []plan.Item) {
	if scope.Full {
		return append([]plan.Item(nil), candidates...), nil
	}
	for _, it := range candidates {
		if _, hit := scope.Paths[it.Source]; hit {
			affected = append(affected, it)
		} else {
			unaffected = append(unaffected, it)
		}
	}
	return affected, unaffected
}
