// Package plan defines the collision-free action plan model and its
// content-addressed identity. A plan id is a pure function of its resolved
// items and shaping parameters: identical content always yields an identical
// id regardless of the order anything was computed in.
package plan

import (
	"fmt"
	"slices"
	"strings"
)

// Action enumerates the plan item actions.
type Action string

const (
	ActionMove      Action = "move"
	ActionCreateDir Action = "create_dir"
	ActionDelete    Action = "delete"
	ActionNoOp      Action = "no_op"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionMove, ActionCreateDir, ActionDelete, ActionNoOp:
		return true
	}
	return false
}

// RiskFlag marks a hazard detected on a resolved item.
type RiskFlag string

const (
	// RiskCrossVolume: source and destination are on different devices, so
	// the move cannot be a single atomic rename.
	RiskCrossVolume RiskFlag = "cross_volume"
	// RiskCloudSync: the destination is under a cloud-sync-managed directory.
	RiskCloudSync RiskFlag = "cloud_sync"
	// RiskLocked: source or destination is under an active lock.
	RiskLocked RiskFlag = "locked"
)

// ConfidenceScale is the fixed-point denominator for confidence values.
// 10000 basis points == 1.0. Integers keep plan hashing float-free.
const ConfidenceScale = 10000

// Item is one resolved plan action. ID is derived from the resolved content
// (action, source, resolved target), never from input order.
type Item struct {
	ID         string     `json:"id"`
	Action     Action     `json:"action"`
	Source     string     `json:"source"`
	Target     string     `json:"target,omitempty"`
	Reason     string     `json:"reason"`
	Confidence int        `json:"confidence"` // basis points, 0..10000
	RiskFlags  []RiskFlag `json:"risk_flags,omitempty"`
	Size       int64      `json:"size,omitempty"` // bytes moved/deleted, for guards
}

// HasRisk reports whether the item carries the given flag.
func (it Item) HasRisk(f RiskFlag) bool {
	return slices.Contains(it.RiskFlags, f)
}

// Status of a plan within its run.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusFinalized Status = "finalized"
)

// Shaping holds the tree-shaping parameters folded into the plan id.
// Zero means unlimited.
type Shaping struct {
	MaxDepth    int `json:"max_depth" yaml:"max_depth"`
	MaxChildren int `json:"max_children" yaml:"max_children"`
}

// Plan is the resolved, risk-annotated action set plus its identifying hash.
type Plan struct {
	PlanID  string  `json:"plan_id"`
	Items   []Item  `json:"items"`
	Status  Status  `json:"status"`
	Shaping Shaping `json:"shaping"`
}

// Item returns the item with the given id, or ok=false.
func (p *Plan) Item(id string) (Item, bool) {
	for _, it := range p.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// SortItems orders items canonically: by source path, then target.
// Resolution and hashing both rely on this order.
func SortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return strings.Compare(a.Target, b.Target)
	})
}

// Validate checks structural invariants before resolution or apply.
func (p *Plan) Validate() error {
	seen := make(map[string]struct{}, len(p.Items))
	for _, it := range p.Items {
		if !it.Action.Valid() {
			return fmt.Errorf("item %s: invalid action %q", it.ID, it.Action)
		}
		if it.Confidence < 0 || it.Confidence > ConfidenceScale {
			return fmt.Errorf("item %s: confidence %d out of range", it.ID, it.Confidence)
		}
		if it.Action == ActionMove && it.Target == "" {
			return fmt.Errorf("item %s: move without target", it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("duplicate item id %s", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
