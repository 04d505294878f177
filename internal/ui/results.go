package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/report"
)

var tabTitles = []string{"Three Whys", "MEDDIC", "Evidence", "Deal Review"}

// resultsModel is the results screen: one tab per report section, each
// rendered to ANSI once and scrolled in a shared viewport.
type resultsModel struct {
	res       *analysis.Result
	hadReview bool

	active  int
	content []string
	vp      viewport.Model

	width  int
	height int
}

func newResultsModel() resultsModel {
	return resultsModel{
		vp:      viewport.New(0, 0),
		content: make([]string, len(tabTitles)),
	}
}

func (m *resultsModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.vp.Width = width
	m.vp.Height = height - 2 // tab bar and its underline
	if m.vp.Height < 1 {
		m.vp.Height = 1
	}
	if m.res != nil {
		m.render()
	}
}

// setResult swaps in a result, re-rendering only when the result or its
// review attachment actually changed.
func (m *resultsModel) setResult(res *analysis.Result) {
	hasReview := res != nil && res.DealReview != nil
	if res == m.res && hasReview == m.hadReview {
		return
	}
	m.res = res
	m.hadReview = hasReview
	m.active = 0
	m.render()
}

func (m *resultsModel) render() {
	if m.res == nil {
		return
	}
	wrap := m.width - 2
	m.content[0] = report.Render(report.ThreeWhysMarkdown(m.res.ThreeWhys), wrap)
	m.content[1] = report.Render(report.MEDDICMarkdown(m.res.MEDDIC), wrap)
	m.content[2] = report.Render(report.EvidenceMarkdown(m.res.EvidenceRegistry), wrap)
	if m.res.DealReview != nil {
		m.content[3] = report.Render(report.DealReviewMarkdown(m.res.DealReview), wrap)
	} else {
		m.content[3] = HelpStyle.Render("No deal review yet. Press r to request one.")
	}
	m.vp.SetContent(m.content[m.active])
	m.vp.GotoTop()
}

func (m *resultsModel) setActive(i int) {
	if i < 0 || i >= len(tabTitles) || i == m.active {
		return
	}
	m.active = i
	m.vp.SetContent(m.content[i])
	m.vp.GotoTop()
}

func (m *resultsModel) nextTab() {
	m.setActive((m.active + 1) % len(tabTitles))
}

func (m *resultsModel) prevTab() {
	m.setActive((m.active + len(tabTitles) - 1) % len(tabTitles))
}

func (m resultsModel) tabTitle() string {
	return tabTitles[m.active]
}

func (m resultsModel) view() string {
	if m.res == nil {
		return HelpStyle.Render("No results yet. Press n to start an analysis.")
	}

	var tabs []string
	for i, title := range tabTitles {
		label := title
		if i < 9 {
			label = string(rune('1'+i)) + " " + title
		}
		if i == m.active {
			tabs = append(tabs, TabActive.Render(label))
		} else {
			tabs = append(tabs, TabInactive.Render(label))
		}
	}
	bar := strings.Join(tabs, " ")

	divider := StatusBarText.Render(strings.Repeat("─", max(m.width, 1)))

	return bar + "\n" + divider + "\n" + m.vp.View()
}
