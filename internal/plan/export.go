package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExportItem is the external representation of one plan item.
// Confidence is rendered as a 0.0-1.0 decimal string for readers; the
// authoritative fixed-point value rides alongside.
type ExportItem struct {
	ID            string     `json:"id"`
	Action        Action     `json:"action"`
	Source        string     `json:"source"`
	Target        string     `json:"target,omitempty"`
	Reason        string     `json:"reason"`
	Confidence    string     `json:"confidence"`
	ConfidenceRaw int        `json:"confidence_bp"`
	RiskFlags     []RiskFlag `json:"risk_flags"`
}

// ExportDoc is the plan export document: plan id, items, and the shaping
// parameters that were folded into the id.
type ExportDoc struct {
	PlanID      string       `json:"plan_id"`
	Status      Status       `json:"status"`
	MaxDepth    int          `json:"max_depth"`
	MaxChildren int          `json:"max_children"`
	Items       []ExportItem `json:"items"`
}

// Export builds the export document for p.
func Export(p *Plan) ExportDoc {
	items := make([]ExportItem, len(p.Items))
	for i, it := range p.Items {
		flags := it.RiskFlags
		if flags == nil {
			flags = []RiskFlag{}
		}
		items[i] = ExportItem{
			ID:            it.ID,
			Action:        it.Action,
			Source:        it.Source,
			Target:        it.Target,
			Reason:        it.Reason,
			Confidence:    formatConfidence(it.Confidence),
			ConfidenceRaw: it.Confidence,
			RiskFlags:     flags,
		}
	}
	return ExportDoc{
		PlanID:      p.PlanID,
		Status:      p.Status,
		MaxDepth:    p.Shaping.MaxDepth,
		MaxChildren: p.Shaping.MaxChildren,
		Items:       items,
	}
}

// MarshalIndent renders the export document as stable, indented JSON.
func (d ExportDoc) MarshalIndent() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("marshal plan export: %w", err)
	}
	return buf.Bytes(), nil
}

// formatConfidence renders basis points as a decimal in [0,1] with four
// fractional digits, e.g. 8500 -> "0.8500".
func formatConfidence(bp int) string {
	if bp < 0 {
		bp = 0
	}
	if bp > ConfidenceScale {
		bp = ConfidenceScale
	}
	return fmt.Sprintf("%d.%04d", bp/ConfidenceScale, bp%ConfidenceScale)
}
