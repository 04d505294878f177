package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/callsight/internal/transcript"
)

// inputEvent reports what a forwarded message completed.
type inputEvent int

const (
	inputNone inputEvent = iota
	inputPickedFile
)

// inputModel is the new-analysis screen: a paste textarea with a file
// picker behind it.
type inputModel struct {
	text       textarea.Model
	picker     filepicker.Model
	picking    bool
	pickedPath string

	width  int
	height int
}

func newInputModel() inputModel {
	ta := textarea.New()
	ta.Placeholder = "Paste the sales call transcript here..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.Focus()

	fp := filepicker.New()
	fp.AllowedTypes = []string{".txt", ".docx"}
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}

	return inputModel{text: ta, picker: fp}
}

func (m *inputModel) setSize(width, height int) {
	m.width = width
	m.height = height

	inner := height - 3 // heading and character counter
	if inner < 3 {
		inner = 3
	}
	m.text.SetWidth(width - 2)
	m.text.SetHeight(inner)
	m.picker.Height = inner
}

// editing reports whether keystrokes currently feed the textarea.
func (m inputModel) editing() bool {
	return !m.picking && m.text.Focused()
}

// openPicker switches to the file picker; the returned command reads
// the current directory.
func (m *inputModel) openPicker() tea.Cmd {
	m.picking = true
	return m.picker.Init()
}

func (m *inputModel) closePicker() {
	m.picking = false
}

// update forwards a message to whichever component is active and
// reports a completed file selection through the event.
func (m *inputModel) update(msg tea.Msg) (tea.Cmd, inputEvent) {
	if m.picking {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		if ok, path := m.picker.DidSelectFile(msg); ok {
			m.pickedPath = path
			m.picking = false
			return cmd, inputPickedFile
		}
		return cmd, inputNone
	}

	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	return cmd, inputNone
}

func (m inputModel) view() string {
	if m.picking {
		var b strings.Builder
		b.WriteString(HelpStyle.Render("Pick a transcript (.txt or .docx)"))
		b.WriteString("\n")
		b.WriteString(m.picker.View())
		return b.String()
	}

	var b strings.Builder
	b.WriteString(m.text.View())
	b.WriteString("\n")
	b.WriteString(StatusBarText.Render(m.counter()))
	return b.String()
}

// counter shows how the pasted text measures against the analysis
// bounds, so short pastes fail before a request goes out.
func (m inputModel) counter() string {
	n := len(m.text.Value())
	switch {
	case n == 0:
		return fmt.Sprintf(" %d characters (minimum %d)", n, transcript.MinChars)
	case n < transcript.MinChars:
		return fmt.Sprintf(" %d characters (%d more needed)", n, transcript.MinChars-n)
	case n > transcript.MaxChars:
		return fmt.Sprintf(" %d characters (%d over the limit)", n, n-transcript.MaxChars)
	default:
		return fmt.Sprintf(" %d characters", n)
	}
}
