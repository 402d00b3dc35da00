package plan

import (
	"fmt"

	"github.com/rosiefs/rosie/internal/canon"
)

// ItemID computes the content-addressed id of a resolved item. Only the
// resolved action, source and target participate: reason, confidence and
// risk flags are annotations and must not move the id, and input order never
// enters at all.
func ItemID(action Action, source, target string) (string, error) {
	obj := canon.Obj{
		"action": canon.Str(string(action)),
		"source": canon.Str(source),
		"target": canon.Str(target),
	}
	id, err := canon.HashValue(canon.DomainPlanItem, obj)
	if err != nil {
		return "", fmt.Errorf("item id: %w", err)
	}
	return id, nil
}

// ComputePlanID hashes the sorted items plus shaping parameters.
// Items are re-sorted here so the id is independent of caller order.
func ComputePlanID(items []Item, shaping Shaping) (string, error) {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	SortItems(sorted)

	arr := make(canon.Arr, len(sorted))
	for i, it := range sorted {
		flags := make([]string, len(it.RiskFlags))
		for j, f := range it.RiskFlags {
			flags[j] = string(f)
		}
		arr[i] = canon.Obj{
			"id":         canon.Str(it.ID),
			"action":     canon.Str(string(it.Action)),
			"source":     canon.Str(it.Source),
			"target":     canon.Str(it.Target),
			"confidence": canon.Int(int64(it.Confidence)),
			"risk_flags": canon.StrArr(flags...),
		}
	}

	obj := canon.Obj{
		"items":        arr,
		"max_depth":    canon.Int(int64(shaping.MaxDepth)),
		"max_children": canon.Int(int64(shaping.MaxChildren)),
	}
	id, err := canon.HashValue(canon.DomainPlan, obj)
	if err != nil {
		return "", fmt.Errorf("plan id: %w", err)
	}
	return id, nil
}

// Seal sorts the plan's items, recomputes every item id from resolved
// content, and recomputes the plan id. Call after resolution so the hash is
// stable and reproducible.
func (p *Plan) Seal() error {
	for i := range p.Items {
		id, err := ItemID(p.Items[i].Action, p.Items[i].Source, p.Items[i].Target)
		if err != nil {
			return err
		}
		p.Items[i].ID = id
	}
	SortItems(p.Items)

	id, err := ComputePlanID(p.Items, p.Shaping)
	if err != nil {
		return err
	}
	p.PlanID = id
	return nil
}
