// Package event defines the closed set of domain facts recorded in the
// append-only log. Every other piece of state in the system is a fold over
// these records; nothing here is ever updated or deleted once appended.
package event

import (
	"fmt"
	"time"
)

// Kind enumerates the 11 event kinds. The set is closed: projections switch
// exhaustively over it and unknown kinds are a decode error, never a silent
// skip.
type Kind string

const (
	KindFilesScanned       Kind = "FilesScanned"
	KindRuleMatched        Kind = "RuleMatched"
	KindEmbeddingsComputed Kind = "EmbeddingsComputed"
	KindClustersFormed     Kind = "ClustersFormed"
	KindPlanProposed       Kind = "PlanProposed"
	KindUserApproved       Kind = "UserApproved"
	KindCorrectionAdded    Kind = "CorrectionAdded"
	KindPlanFinalized      Kind = "PlanFinalized"
	KindApplyStarted       Kind = "ApplyStarted"
	KindActionApplied      Kind = "ActionApplied"
	KindUndoPerformed      Kind = "UndoPerformed"
)

// Kinds lists every valid kind in declaration order.
var Kinds = []Kind{
	KindFilesScanned,
	KindRuleMatched,
	KindEmbeddingsComputed,
	KindClustersFormed,
	KindPlanProposed,
	KindUserApproved,
	KindCorrectionAdded,
	KindPlanFinalized,
	KindApplyStarted,
	KindActionApplied,
	KindUndoPerformed,
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Payload is the sealed interface implemented by exactly one struct per Kind.
type Payload interface {
	Kind() Kind
}

// Event is one immutable, sequenced fact. Seq is assigned by the log on
// append and is the sole source of ordering. Timestamps are informational
// and always UTC.
type Event struct {
	Seq       int64
	Timestamp time.Time
	Payload   Payload
}

// Kind returns the kind of the event's payload.
func (e Event) Kind() Kind {
	return e.Payload.Kind()
}

// FileRecord is the scan-derived description of one filesystem entry.
// Upserted into the file index by FilesScanned events.
type FileRecord struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	Fingerprint string    `json:"fingerprint"`
	Hidden      bool      `json:"hidden,omitempty"`
	System      bool      `json:"system,omitempty"`
	Reparse     bool      `json:"reparse,omitempty"`
}

// FilesScanned records one completed scan pass. FullRescan marks a structural
// event: previously indexed paths absent from Records are considered removed
// and the whole plan pipeline is recomputed.
type FilesScanned struct {
	Root       string       `json:"root"`
	FullRescan bool         `json:"full_rescan"`
	Records    []FileRecord `json:"records"`
}

func (FilesScanned) Kind() Kind { return KindFilesScanned }

// RuleMatched records one rule-derived action proposal for a path.
// Confidence is in basis points (0..10000) so downstream hashing never
// touches floats.
type RuleMatched struct {
	Path       string `json:"path"`
	RuleID     string `json:"rule_id"`
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence"`
}

func (RuleMatched) Kind() Kind { return KindRuleMatched }

// EmbeddingsComputed records that embeddings exist for a set of content
// fingerprints. Vectors live in the embedding cache projection keyed by
// fingerprint, never by path.
type EmbeddingsComputed struct {
	Entries []EmbeddingEntry `json:"entries"`
}

// EmbeddingEntry carries one fingerprint-keyed vector. Components are
// fixed-point (value * 1e6) for deterministic storage.
type EmbeddingEntry struct {
	Fingerprint string  `json:"fingerprint"`
	Vector      []int64 `json:"vector"`
}

func (EmbeddingsComputed) Kind() Kind { return KindEmbeddingsComputed }

// Cluster is a grouping produced by the external clustering capability,
// consumed read-only.
type Cluster struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Members []string `json:"members"`
	Outlier bool     `json:"outlier,omitempty"`
}

// ClustersFormed records the clusters derived from the current index.
type ClustersFormed struct {
	Clusters []Cluster `json:"clusters"`
}

func (ClustersFormed) Kind() Kind { return KindClustersFormed }

// PlanProposed announces a new resolved candidate plan. Each proposal
// supersedes the previous one; plans are never deleted.
type PlanProposed struct {
	PlanID  string   `json:"plan_id"`
	ItemIDs []string `json:"item_ids"`
}

func (PlanProposed) Kind() Kind { return KindPlanProposed }

// UserApproved records user approval of specific items in a proposed plan.
type UserApproved struct {
	PlanID  string   `json:"plan_id"`
	ItemIDs []string `json:"item_ids"`
}

func (UserApproved) Kind() Kind { return KindUserApproved }

// CorrectionAdded records one structured user correction. The Correction
// union carries the scope data that drives incremental invalidation.
type CorrectionAdded struct {
	PlanID     string     `json:"plan_id"`
	Correction Correction `json:"correction"`
}

func (CorrectionAdded) Kind() Kind { return KindCorrectionAdded }

// PlanFinalized marks the one plan per run that is eligible for apply.
type PlanFinalized struct {
	PlanID          string   `json:"plan_id"`
	ApprovedItemIDs []string `json:"approved_item_ids"`
}

func (PlanFinalized) Kind() Kind { return KindPlanFinalized }

// ApplyStarted records that a checkpoint was created and mutation began.
type ApplyStarted struct {
	PlanID       string `json:"plan_id"`
	CheckpointID string `json:"checkpoint_id"`
}

func (ApplyStarted) Kind() Kind { return KindApplyStarted }

// ActionApplied records the outcome of one plan action during apply.
// Failed actions are recorded here too - nothing is silently swallowed.
type ActionApplied struct {
	CheckpointID string `json:"checkpoint_id"`
	ItemID       string `json:"item_id"`
	Status       string `json:"status"` // "ok" | "failed" | "skipped"
	Message      string `json:"message,omitempty"`
}

func (ActionApplied) Kind() Kind { return KindActionApplied }

// UndoPerformed records the reversal of a checkpoint.
type UndoPerformed struct {
	CheckpointID string `json:"checkpoint_id"`
	Reversed     int    `json:"reversed"`
	Skipped      int    `json:"skipped"`
}

func (UndoPerformed) Kind() Kind { return KindUndoPerformed }

// payloadFor returns a zero payload for decoding the given kind.
func payloadFor(k Kind) (Payload, error) {
	switch k {
	case KindFilesScanned:
		return &FilesScanned{}, nil
	case KindRuleMatched:
		return &RuleMatched{}, nil
	case KindEmbeddingsComputed:
		return &EmbeddingsComputed{}, nil
	case KindClustersFormed:
		return &ClustersFormed{}, nil
	case KindPlanProposed:
		return &PlanProposed{}, nil
	case KindUserApproved:
		return &UserApproved{}, nil
	case KindCorrectionAdded:
		return &CorrectionAdded{}, nil
	case KindPlanFinalized:
		return &PlanFinalized{}, nil
	case KindApplyStarted:
		return &ApplyStarted{}, nil
	case KindActionApplied:
		return &ActionApplied{}, nil
	case KindUndoPerformed:
		return &UndoPerformed{}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", k)
	}
}
