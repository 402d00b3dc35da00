package projection

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/plan"
)

// defaultClusterConfidence is assigned to cluster-derived moves, in basis
// points. Rule-derived items carry their own confidence from the event.
const defaultClusterConfidence = 9000

// PlanView folds rule-match and cluster events into the working candidate
// item set and tracks plan lifecycle events (proposed, approved, corrected,
// finalized). It signals readiness for conflict resolution whenever the
// candidate set has changed since the last proposal.
type PlanView struct {
	lastSeq int64
	state   planViewState
}

// planViewState is the serializable fold state. Candidates are keyed by
// source|action so a re-emitted proposal for the same source replaces rather
// than duplicates.
type planViewState struct {
	Root        string               `json:"root"`
	Candidates  map[string]plan.Item `json:"candidates"`
	Corrections []event.Correction   `json:"corrections"`
	ProposedID  string               `json:"proposed_id"`
	FinalizedID string               `json:"finalized_id"`
	Approved    map[string][]string  `json:"approved"` // plan id -> item ids
	Dirty       bool                 `json:"dirty"`
}

// NewPlanView returns an empty plan view.
func NewPlanView() *PlanView {
	return &PlanView{state: newPlanViewState()}
}

func newPlanViewState() planViewState {
	return planViewState{
		Candidates: make(map[string]plan.Item),
		Approved:   make(map[string][]string),
	}
}

func (pv *PlanView) Name() string   { return "plan_view" }
func (pv *PlanView) LastSeq() int64 { return pv.lastSeq }

// Apply folds one event. The switch is exhaustive over the closed kind set.
func (pv *PlanView) Apply(ev event.Event) error {
	defer func() { pv.lastSeq = ev.Seq }()

	switch p := ev.Payload.(type) {
	case event.FilesScanned:
		pv.state.Root = p.Root
		if p.FullRescan {
			// Structural event: the entire candidate set is stale.
			pv.state.Candidates = make(map[string]plan.Item)
			pv.state.Dirty = true
		}
	case event.RuleMatched:
		it := plan.Item{
			Action:     plan.Action(p.Action),
			Source:     p.Path,
			Target:     p.Target,
			Reason:     p.Reason,
			Confidence: p.Confidence,
		}
		pv.state.Candidates[candidateKey(it)] = it
		pv.state.Dirty = true
	case event.EmbeddingsComputed:
		// Embeddings feed clustering, not the candidate set.
	case event.ClustersFormed:
		pv.foldClusters(p)
		pv.state.Dirty = true
	case event.PlanProposed:
		pv.state.ProposedID = p.PlanID
		pv.state.Dirty = false
	case event.UserApproved:
		pv.state.Approved[p.PlanID] = append([]string(nil), p.ItemIDs...)
	case event.CorrectionAdded:
		pv.state.Corrections = append(pv.state.Corrections, p.Correction)
		pv.state.Dirty = true
	case event.PlanFinalized:
		pv.state.FinalizedID = p.PlanID
	case event.ApplyStarted, event.ActionApplied, event.UndoPerformed:
		// Execution events belong to the checkpoint log.
	}
	return nil
}

// foldClusters derives move candidates for cluster members: each member
// moves under root/<label>/<basename>. Outlier clusters produce no_op items
// so they stay visible in review without proposing motion. A member that
// already has a rule-derived candidate is left alone: explicit rules
// outrank similarity grouping.
func (pv *PlanView) foldClusters(p event.ClustersFormed) {
	for _, cluster := range p.Clusters {
		for _, member := range cluster.Members {
			if pv.hasRuleCandidate(member) {
				continue
			}
			it := plan.Item{
				Source:     member,
				Reason:     "cluster:" + cluster.Label,
				Confidence: defaultClusterConfidence,
			}
			if cluster.Outlier {
				it.Action = plan.ActionNoOp
				it.Reason = "cluster-outlier:" + cluster.Label
			} else {
				it.Action = plan.ActionMove
				it.Target = filepath.Join(pv.state.Root, cluster.Label, filepath.Base(member))
			}
			pv.state.Candidates[candidateKey(it)] = it
		}
	}
}

func candidateKey(it plan.Item) string {
	return it.Source + "\x00" + string(it.Action)
}

// hasRuleCandidate reports whether source already carries a candidate that
// did not come from clustering.
func (pv *PlanView) hasRuleCandidate(source string) bool {
	prefix := source + "\x00"
	for key, it := range pv.state.Candidates {
		if strings.HasPrefix(key, prefix) && !strings.HasPrefix(it.Reason, "cluster") {
			return true
		}
	}
	return false
}

// Ready reports whether the candidate set changed since the last proposal,
// meaning a new candidate plan should go through conflict resolution.
func (pv *PlanView) Ready() bool { return pv.state.Dirty }

// Root returns the scan root recorded by the latest FilesScanned event.
func (pv *PlanView) Root() string { return pv.state.Root }

// ProposedPlanID returns the id announced by the latest PlanProposed event.
func (pv *PlanView) ProposedPlanID() string { return pv.state.ProposedID }

// FinalizedPlanID returns the id of the finalized plan ("" if none).
func (pv *PlanView) FinalizedPlanID() string { return pv.state.FinalizedID }

// ApprovedItems returns the item ids approved for a plan.
func (pv *PlanView) ApprovedItems(planID string) []string {
	return pv.state.Approved[planID]
}

// Corrections returns all corrections in append order. Later corrections
// targeting the same item take precedence during recomputation.
func (pv *PlanView) Corrections() []event.Correction {
	return append([]event.Correction(nil), pv.state.Corrections...)
}

// CandidateItems returns the working item set in canonical order.
func (pv *PlanView) CandidateItems() []plan.Item {
	items := make([]plan.Item, 0, len(pv.state.Candidates))
	for _, it := range pv.state.Candidates {
		items = append(items, it)
	}
	plan.SortItems(items)
	return items
}

// planViewSnapshot freezes the state with candidates as a sorted slice so
// snapshot bytes are deterministic.
type planViewSnapshot struct {
	Root        string              `json:"root"`
	Candidates  []plan.Item         `json:"candidates"`
	Corrections []event.Correction  `json:"corrections"`
	ProposedID  string              `json:"proposed_id"`
	FinalizedID string              `json:"finalized_id"`
	Approved    map[string][]string `json:"approved"`
	Dirty       bool                `json:"dirty"`
}

func (pv *PlanView) Snapshot() ([]byte, error) {
	snap := planViewSnapshot{
		Root:        pv.state.Root,
		Candidates:  pv.CandidateItems(),
		Corrections: pv.state.Corrections,
		ProposedID:  pv.state.ProposedID,
		FinalizedID: pv.state.FinalizedID,
		Approved:    pv.state.Approved,
		Dirty:       pv.state.Dirty,
	}
	return json.Marshal(snap)
}

func (pv *PlanView) Restore(lastSeq int64, data []byte) error {
	var snap planViewSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	state := newPlanViewState()
	state.Root = snap.Root
	state.Corrections = snap.Corrections
	state.ProposedID = snap.ProposedID
	state.FinalizedID = snap.FinalizedID
	state.Dirty = snap.Dirty
	if snap.Approved != nil {
		state.Approved = snap.Approved
	}
	for _, it := range snap.Candidates {
		state.Candidates[candidateKey(it)] = it
	}
	pv.state = state
	pv.lastSeq = lastSeq
	return nil
}
