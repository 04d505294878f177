// Package report renders completed analyses as markdown, plus a styled
// terminal variant for the TUI and CLI.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/abelbrown/callsight/internal/analysis"
)

// Markdown renders the full analysis as one document, sections in the
// same order the TUI tabs present them.
func Markdown(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString("# Sales Call Analysis\n\n")
	if res.IsSample {
		b.WriteString("_Generated from the sample call._\n\n")
	}
	b.WriteString(ThreeWhysMarkdown(res.ThreeWhys))
	b.WriteString(MEDDICMarkdown(res.MEDDIC))
	b.WriteString(EvidenceMarkdown(res.EvidenceRegistry))
	if res.DealReview != nil {
		b.WriteString(DealReviewMarkdown(res.DealReview))
	}
	return b.String()
}

// ThreeWhysMarkdown renders the business-context framework.
func ThreeWhysMarkdown(w analysis.ThreeWhys) string {
	var b strings.Builder
	b.WriteString("## Business Context\n\n")
	writeSections(&b, w.Ordered())
	return b.String()
}

// MEDDICMarkdown renders the qualification framework with a coverage line.
func MEDDICMarkdown(m analysis.MEDDIC) string {
	var b strings.Builder
	b.WriteString("## MEDDIC Qualification\n\n")
	fmt.Fprintf(&b, "Coverage: %d of 6 sections.\n\n", m.Completeness())
	writeSections(&b, m.Ordered())
	return b.String()
}

func writeSections(b *strings.Builder, sections []analysis.LabeledSection) {
	for _, s := range sections {
		fmt.Fprintf(b, "### %s\n\n", s.Label)
		if !s.Section.Filled() {
			b.WriteString("_No evidence found._\n\n")
			continue
		}
		b.WriteString(strings.TrimSpace(s.Section.Summary))
		b.WriteString("\n\n")
		if len(s.Section.EvidenceIDs) > 0 {
			fmt.Fprintf(b, "Evidence: %s\n\n", strings.Join(s.Section.EvidenceIDs, ", "))
		}
	}
}

// EvidenceMarkdown renders the registry sorted by evidence ID.
func EvidenceMarkdown(reg analysis.EvidenceRegistry) string {
	var b strings.Builder
	b.WriteString("## Evidence Registry\n\n")
	if len(reg) == 0 {
		b.WriteString("_No evidence extracted._\n\n")
		return b.String()
	}

	ids := make([]string, 0, len(reg))
	for id := range reg {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		item := reg[id]
		fmt.Fprintf(&b, "### %s (%s)\n\n", id, item.Type)
		fmt.Fprintf(&b, "> %s\n\n", strings.TrimSpace(item.Quote))
		if item.Context != "" {
			fmt.Fprintf(&b, "Context: %s\n\n", item.Context)
		}
		if item.Relevance != "" {
			fmt.Fprintf(&b, "Relevance: %s\n\n", item.Relevance)
		}
	}
	return b.String()
}

// DealReviewMarkdown renders the follow-up review. Returns "" for nil so
// callers can append unconditionally.
func DealReviewMarkdown(r *analysis.DealReview) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Deal Review\n\n")
	if r.StageReadiness != "" {
		fmt.Fprintf(&b, "**Stage readiness:** %s\n\n", r.StageReadiness)
	}
	if r.ConfidenceNote != "" {
		b.WriteString(r.ConfidenceNote)
		b.WriteString("\n\n")
	}
	if len(r.CriticalGaps) > 0 {
		b.WriteString("### Critical Gaps\n\n")
		for _, gap := range r.CriticalGaps {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
		b.WriteString("\n")
	}
	if len(r.NextCallObjectives) > 0 {
		b.WriteString("### Next Call Objectives\n\n")
		for i, obj := range r.NextCallObjectives {
			fmt.Fprintf(&b, "%d. %s\n", i+1, obj)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Render converts markdown to styled terminal output. On any renderer
// failure the raw markdown comes back unchanged, which is still readable.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}

	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSpace(out)
}
