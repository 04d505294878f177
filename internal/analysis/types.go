// Package analysis assembles streamed analysis updates into a final
// result: typed views of the evidence registry, Three Whys framework,
// MEDDIC qualification, and the optional deal review.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EvidenceItem is one quoted excerpt from the transcript with its
// classification and the model's rationale for extracting it.
type EvidenceItem struct {
	Quote     string `json:"quote"`
	Type      string `json:"type"`
	Context   string `json:"context"`
	Relevance string `json:"relevance"`
}

// EvidenceRegistry maps evidence IDs (E001, E002, ...) to items.
type EvidenceRegistry map[string]EvidenceItem

// Section is one framework cell: a summary plus the evidence backing it.
type Section struct {
	Summary     string   `json:"summary"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// Filled reports whether the section carries real content rather than a
// "no evidence found" placeholder.
func (s Section) Filled() bool {
	t := strings.TrimSpace(s.Summary)
	return t != "" && !strings.EqualFold(t, "no evidence found")
}

// ThreeWhys is the business-context framework: why buy anything, why
// this domain, why now.
type ThreeWhys struct {
	CorporateObjectives Section `json:"corporate_objectives"`
	DomainInitiatives   Section `json:"domain_initiatives"`
	DomainChallenges    Section `json:"domain_challenges"`
}

// MEDDIC is the qualification framework.
type MEDDIC struct {
	Metrics          Section `json:"metrics"`
	EconomicBuyer    Section `json:"economic_buyer"`
	DecisionProcess  Section `json:"decision_process"`
	DecisionCriteria Section `json:"decision_criteria"`
	ImplicatedPain   Section `json:"implicated_pain"`
	Champion         Section `json:"champion"`
}

// DealReview is the optional follow-up enrichment of a completed run.
type DealReview struct {
	StageReadiness     string   `json:"stage_readiness"`
	ConfidenceNote     string   `json:"confidence_note"`
	CriticalGaps       []string `json:"critical_gaps"`
	NextCallObjectives []string `json:"next_call_objectives"`
}

// LabeledSection pairs a display label with a framework section, used
// for rendering in a stable order.
type LabeledSection struct {
	Label   string
	Section Section
}

// Ordered returns the Three Whys sections in presentation order.
func (w ThreeWhys) Ordered() []LabeledSection {
	return []LabeledSection{
		{"Corporate Objectives", w.CorporateObjectives},
		{"Domain Initiatives", w.DomainInitiatives},
		{"Domain Challenges", w.DomainChallenges},
	}
}

// Ordered returns the MEDDIC sections in presentation order.
func (m MEDDIC) Ordered() []LabeledSection {
	return []LabeledSection{
		{"Metrics", m.Metrics},
		{"Economic Buyer", m.EconomicBuyer},
		{"Decision Process", m.DecisionProcess},
		{"Decision Criteria", m.DecisionCriteria},
		{"Implicated Pain", m.ImplicatedPain},
		{"Champion", m.Champion},
	}
}

// Completeness counts sections with real content, out of 3.
func (w ThreeWhys) Completeness() int {
	return countFilled(w.Ordered())
}

// Completeness counts sections with real content, out of 6.
func (m MEDDIC) Completeness() int {
	return countFilled(m.Ordered())
}

func countFilled(sections []LabeledSection) int {
	n := 0
	for _, s := range sections {
		if s.Section.Filled() {
			n++
		}
	}
	return n
}

// Result is the merged outcome of one analysis run. The typed fields are
// projections for display; Merged preserves the wire union exactly,
// including any keys this version does not model.
type Result struct {
	EvidenceRegistry EvidenceRegistry
	ThreeWhys        ThreeWhys
	MEDDIC           MEDDIC
	IsSample         bool
	DealReview       *DealReview

	EvidenceRaw json.RawMessage // evidence-phase payload as received
	AnalysisRaw json.RawMessage // analysis-phase payload as received
	Merged      json.RawMessage // shallow union of both phases plus is_sample
}

// ReviewPayloads returns the two payloads a deal-review request needs.
// The evidence phase arrives wrapped as {"evidence_registry": {...}};
// the review endpoint wants the inner registry, so unwrap when present.
func (r *Result) ReviewPayloads() (evidenceRegistry, analysisData json.RawMessage) {
	var wrapper struct {
		Registry json.RawMessage `json:"evidence_registry"`
	}
	if err := json.Unmarshal(r.EvidenceRaw, &wrapper); err == nil && len(wrapper.Registry) > 0 {
		return wrapper.Registry, r.AnalysisRaw
	}
	return r.EvidenceRaw, r.AnalysisRaw
}

// FromMerged rebuilds a Result from a stored merged union. The inverse
// of persisting Merged: typed projections are decoded best effort, and
// the raw union is kept authoritative.
func FromMerged(raw json.RawMessage) (*Result, error) {
	var union map[string]json.RawMessage
	if err := json.Unmarshal(raw, &union); err != nil {
		return nil, fmt.Errorf("decode stored result: %w", err)
	}

	res := &Result{Merged: raw}
	if v, ok := union["is_sample"]; ok {
		json.Unmarshal(v, &res.IsSample)
	}
	if v, ok := union["evidence_registry"]; ok {
		json.Unmarshal(v, &res.EvidenceRegistry)
		res.EvidenceRaw, _ = json.Marshal(map[string]json.RawMessage{"evidence_registry": v})
	}
	if v, ok := union["three_whys"]; ok {
		json.Unmarshal(v, &res.ThreeWhys)
	}
	if v, ok := union["meddic"]; ok {
		json.Unmarshal(v, &res.MEDDIC)
	}
	if v, ok := union["deal_review"]; ok {
		var review DealReview
		if err := json.Unmarshal(v, &review); err == nil {
			res.DealReview = &review
		}
	}

	analysisFields := make(map[string]json.RawMessage)
	for k, v := range union {
		switch k {
		case "evidence_registry", "is_sample", "deal_review":
		default:
			analysisFields[k] = v
		}
	}
	res.AnalysisRaw, _ = json.Marshal(analysisFields)

	return res, nil
}

// AttachReview parses a deal-review payload onto the result and folds it
// into the merged union so persisted rows carry the review too.
func (r *Result) AttachReview(raw json.RawMessage) error {
	var review DealReview
	if err := json.Unmarshal(raw, &review); err != nil {
		return err
	}
	r.DealReview = &review

	var union map[string]json.RawMessage
	if err := json.Unmarshal(r.Merged, &union); err == nil {
		union["deal_review"] = raw
		if merged, err := json.Marshal(union); err == nil {
			r.Merged = merged
		}
	}
	return nil
}
