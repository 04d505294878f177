package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/callsight/internal/store"
)

// historyModel is the stored-runs screen, a table over history rows.
type historyModel struct {
	table   table.Model
	runs    []store.Run
	loading bool

	width  int
	height int
}

func newHistoryModel() historyModel {
	t := table.New(
		table.WithColumns(historyColumns()),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("255")).
		Background(colorPrimary).
		Bold(false)
	t.SetStyles(s)

	return historyModel{table: t}
}

func historyColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "When", Width: 16},
		{Title: "Source", Width: 6},
		{Title: "Chars", Width: 6},
		{Title: "Evidence", Width: 8},
		{Title: "Whys", Width: 4},
		{Title: "MEDDIC", Width: 6},
		{Title: "Review", Width: 6},
	}
}

func (m *historyModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetWidth(width)
	h := height - 1
	if h < 3 {
		h = 3
	}
	m.table.SetHeight(h)
}

func (m *historyModel) setLoading(v bool) {
	m.loading = v
}

func (m *historyModel) setRuns(runs []store.Run) {
	m.runs = runs
	rows := make([]table.Row, len(runs))
	for i, r := range runs {
		rows[i] = table.Row{
			shortID(r.ID),
			r.Created.Local().Format("Jan _2 15:04"),
			r.Source,
			fmt.Sprintf("%d", r.TranscriptChars),
			fmt.Sprintf("%d", r.EvidenceCount),
			fmt.Sprintf("%d/3", r.WhysComplete),
			fmt.Sprintf("%d/6", r.MEDDICComplete),
			yesNo(r.HasDealReview),
		}
	}
	m.table.SetRows(rows)
	if len(rows) > 0 && m.table.Cursor() >= len(rows) {
		m.table.SetCursor(len(rows) - 1)
	}
}

// selectedID returns the full run ID under the cursor, or "".
func (m historyModel) selectedID() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.runs) {
		return ""
	}
	return m.runs[i].ID
}

func (m historyModel) view(sp spinner.Model) string {
	if m.loading {
		return HelpStyle.Render(sp.View() + " Loading history...")
	}
	if len(m.runs) == 0 {
		return HelpStyle.Render("No stored runs yet. Finished analyses land here.")
	}
	return m.table.View()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}
