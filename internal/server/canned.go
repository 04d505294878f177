package server

import "github.com/abelbrown/callsight/internal/analysis"

// evidencePayload is the evidence-phase wire shape: the registry arrives
// wrapped under an "evidence_registry" key.
type evidencePayload struct {
	Registry analysis.EvidenceRegistry `json:"evidence_registry"`
}

// analysisPayload is the analysis-phase wire shape.
type analysisPayload struct {
	ThreeWhys analysis.ThreeWhys `json:"three_whys"`
	MEDDIC    analysis.MEDDIC    `json:"meddic"`
}

// reviewPayload is the deal-review response wire shape.
type reviewPayload struct {
	DealReview analysis.DealReview `json:"deal_review"`
}

// The stub returns the same worked example for every transcript: a
// pricing-transformation discovery call with three pieces of evidence.

func cannedEvidence() evidencePayload {
	return evidencePayload{Registry: analysis.EvidenceRegistry{
		"E001": {
			Quote:     "We need to reduce our pricing cycle from 3 weeks to 3 days",
			Type:      "quantitative_data",
			Context:   "CEO mentioned during strategic planning discussion",
			Relevance: "Clear business objective with measurable timeline",
		},
		"E002": {
			Quote:     "Current manual pricing process involves 12 different people",
			Type:      "process_detail",
			Context:   "Operations manager describing current workflow",
			Relevance: "Indicates complexity and potential for automation",
		},
		"E003": {
			Quote:     "CFO approved $500K budget for pricing transformation",
			Type:      "quantitative_data",
			Context:   "Budget discussion",
			Relevance: "Shows executive sponsorship and available funding",
		},
	}}
}

func cannedAnalysis() analysisPayload {
	return analysisPayload{
		ThreeWhys: analysis.ThreeWhys{
			CorporateObjectives: analysis.Section{
				Summary:     "CEO/CFO allocated $500K budget, targeting 90% pricing cycle reduction (3 weeks→3 days) by Q2",
				EvidenceIDs: []string{"E001", "E003"},
			},
			DomainInitiatives: analysis.Section{
				Summary:     "Operations launching pricing automation project with Q2 deadline; IT evaluating vendor solutions",
				EvidenceIDs: []string{"E002"},
			},
			DomainChallenges: analysis.Section{
				Summary:     "12-person manual process causes errors, deal losses; no CRM integration or real-time data",
				EvidenceIDs: []string{"E002"},
			},
		},
		MEDDIC: analysis.MEDDIC{
			Metrics: analysis.Section{
				Summary:     "Pricing cycle 3 weeks→3 days, error rate reduction, improved deal close rate",
				EvidenceIDs: []string{"E001"},
			},
			EconomicBuyer: analysis.Section{
				Summary:     "CFO (economic buyer) approved $500K budget; CEO engaged and championing initiative",
				EvidenceIDs: []string{"E003"},
			},
			DecisionProcess: analysis.Section{
				Summary:     "CFO/COO/Head of Sales decision committee; vendor evaluation in progress; Q1 end deadline",
				EvidenceIDs: []string{},
			},
			DecisionCriteria: analysis.Section{
				Summary:     "Implementation speed, CRM integration, ease of use, vendor support and training",
				EvidenceIDs: []string{},
			},
			ImplicatedPain: analysis.Section{
				Summary:     "Slow pricing turnaround losing deals to faster competitors; sales team frustrated by errors",
				EvidenceIDs: []string{"E001", "E002"},
			},
			Champion: analysis.Section{
				Summary:     "Head of Sales advocating for solution; strong CEO relationship, demonstrated pain points",
				EvidenceIDs: []string{},
			},
		},
	}
}

func cannedReview() reviewPayload {
	return reviewPayload{DealReview: analysis.DealReview{
		StageReadiness: "More Discovery Needed",
		ConfidenceNote: "While there's clear pain and budget, we're missing key MEDDIC elements like confirmed decision process, timeline, and champion strength. Need more discovery before demo.",
		CriticalGaps: []string{
			"No clear timeline for decision - only 'end of Q1' mentioned, need specific date and milestones",
			"Champion relationship unclear - need to validate Head of Sales has real influence and will advocate during decision",
			"Competition unknown - are other vendors being evaluated? What's our differentiation?",
		},
		NextCallObjectives: []string{
			"What is the exact decision date and what are the milestones leading up to it?",
			"Who else is being evaluated and what criteria will be used to choose between vendors?",
			"Can you walk me through the decision process step-by-step? Who has final say?",
			"What happens if you don't solve this by Q2? What's the business impact?",
			"Would the Head of Sales be willing to introduce us to the CFO for a technical discussion?",
		},
	}}
}
