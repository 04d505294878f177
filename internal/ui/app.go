package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/callsight/internal/events"
	"github.com/abelbrown/callsight/internal/report"
	"github.com/abelbrown/callsight/internal/session"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// viewMode selects which screen the App renders.
type viewMode int

const (
	modeInput viewMode = iota
	modeRunning
	modeResults
	modeHistory
)

// AppConfig wires the App to the outside world. Each command function
// returns a tea.Cmd so the model never touches the network or the store
// directly; main injects closures over the real dependencies.
type AppConfig struct {
	AnalyzeFile   func(path string) tea.Cmd
	AnalyzeText   func(text string) tea.Cmd
	AnalyzeSample func() tea.Cmd
	RequestReview func() tea.Cmd
	DismissError  func() tea.Cmd
	LoadHistory   func() tea.Cmd
	OpenRun       func(id string) tea.Cmd

	// Ring feeds the events overlay. Nil disables the overlay.
	Ring *events.RingBuffer
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the controller or the store. It receives
// state via messages and issues work through AppConfig commands.
type App struct {
	cfg AppConfig

	mode    viewMode
	input   inputModel
	results resultsModel
	history historyModel
	spinner spinner.Model

	state       session.State // latest controller snapshot
	viewingLive bool          // results view shows the live run, not a reopened one

	errMsg       string
	notice       string
	debugVisible bool

	width  int
	height int
	ready  bool
}

// NewAppWithConfig creates the root model with the given wiring.
func NewAppWithConfig(cfg AppConfig) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	return App{
		cfg:     cfg,
		input:   newInputModel(),
		results: newResultsModel(),
		history: newHistoryModel(),
		spinner: sp,
	}
}

// Init starts the textarea cursor blinking.
func (a App) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	a.trace(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.layout()
		return a, nil

	case spinner.TickMsg:
		if a.spinning() {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case SessionUpdated:
		return a.handleSessionUpdated(msg.State)

	case RunStarted:
		return a.handleLaunch(msg.Err)

	case ReviewRequested:
		return a.handleLaunch(msg.Err)

	case HistoryLoaded:
		a.history.setLoading(false)
		if msg.Err != nil {
			a.errMsg = fmt.Sprintf("History unavailable: %v", msg.Err)
			return a, nil
		}
		a.history.setRuns(msg.Runs)
		return a, nil

	case RunOpened:
		if msg.Err != nil {
			a.errMsg = fmt.Sprintf("Could not open run: %v", msg.Err)
			return a, nil
		}
		a.viewingLive = false
		a.results.setResult(msg.Result)
		a.mode = modeResults
		return a, nil
	}

	// Everything else (filepicker directory reads, cursor blinks) goes
	// to the input components.
	if a.mode == modeInput {
		cmd, _ := a.input.update(msg)
		return a, cmd
	}
	return a, nil
}

// trace records message flow in the events ring when CALLSIGHT_TRACE is
// set. Spinner ticks are skipped; they would drown everything else.
func (a App) trace(msg tea.Msg) {
	if !events.TraceEnabled() || a.cfg.Ring == nil {
		return
	}
	if _, tick := msg.(spinner.TickMsg); tick {
		return
	}
	a.cfg.Ring.Push(events.Event{
		Time:  time.Now(),
		Level: events.LevelDebug,
		Kind:  events.KindMsgReceived,
		Comp:  "ui",
		Msg:   fmt.Sprintf("%T", msg),
	})
}

// spinning reports whether the spinner should keep ticking.
func (a App) spinning() bool {
	return a.mode == modeRunning || a.state.Reviewing || a.history.loading
}

// handleSessionUpdated applies a controller snapshot and moves between
// views as runs start, finish, and fail.
func (a App) handleSessionUpdated(s session.State) (tea.Model, tea.Cmd) {
	prev := a.state
	a.state = s

	if s.Err != "" {
		a.errMsg = s.Err
	}

	switch {
	case s.Loading:
		if a.mode != modeRunning {
			a.mode = modeRunning
			return a, a.spinner.Tick
		}
		return a, nil

	case s.Reviewing:
		return a, a.spinner.Tick

	default:
		if s.Result != nil && (s.Result != prev.Result || prev.Reviewing) {
			// A run or review just finished; show the fresh result.
			a.viewingLive = true
			a.results.setResult(s.Result)
			if a.mode == modeRunning || prev.Reviewing {
				a.mode = modeResults
			}
			if prev.Reviewing && s.Err == "" {
				a.notice = "Deal review attached"
				a.results.setActive(len(tabTitles) - 1)
			}
			return a, nil
		}
		if a.mode == modeRunning {
			// Run ended without a new result: back to where work starts.
			if s.Result != nil {
				a.viewingLive = true
				a.results.setResult(s.Result)
				a.mode = modeResults
			} else {
				a.mode = modeInput
			}
		}
		return a, nil
	}
}

// handleLaunch deals with commands the controller refused to start.
// Real failures come back through state snapshots, not here.
func (a App) handleLaunch(err error) (tea.Model, tea.Cmd) {
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, session.ErrRunActive):
		a.notice = "An analysis is already running"
	case errors.Is(err, session.ErrNoResult):
		a.notice = "Nothing to review yet"
	}
	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return a, tea.Quit
	}

	// Transient feedback clears on the next key press. The controller's
	// error slot is cleared along with the local copy.
	var dismiss tea.Cmd
	if a.errMsg != "" && a.cfg.DismissError != nil {
		dismiss = a.cfg.DismissError()
	}
	a.errMsg = ""
	a.notice = ""

	model, cmd := a.dispatchKey(msg)
	if dismiss != nil {
		return model, tea.Batch(cmd, dismiss)
	}
	return model, cmd
}

func (a App) dispatchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.debugVisible {
		switch msg.String() {
		case "e", "esc":
			a.debugVisible = false
		case "q":
			return a, tea.Quit
		}
		return a, nil
	}

	switch a.mode {
	case modeInput:
		return a.handleInputKey(msg)
	case modeRunning:
		return a.handleRunningKey(msg)
	case modeResults:
		return a.handleResultsKey(msg)
	case modeHistory:
		return a.handleHistoryKey(msg)
	}
	return a, nil
}

func (a App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.input.picking {
		if msg.String() == "esc" {
			a.input.closePicker()
			return a, nil
		}
		cmd, ev := a.input.update(msg)
		if ev == inputPickedFile {
			return a.launch(a.analyzeFileCmd(a.input.pickedPath), cmd)
		}
		return a, cmd
	}

	if a.input.editing() {
		switch msg.Type {
		case tea.KeyEsc:
			a.input.text.Blur()
			return a, nil
		case tea.KeyCtrlS:
			return a.submitText()
		case tea.KeyCtrlF:
			return a, a.input.openPicker()
		case tea.KeyCtrlG:
			return a.launch(a.analyzeSampleCmd())
		}
		cmd, _ := a.input.update(msg)
		return a, cmd
	}

	// Command mode: the textarea is blurred and letters act as keys.
	switch msg.String() {
	case "i", "enter":
		return a, a.input.text.Focus()
	case "f":
		return a, a.input.openPicker()
	case "s":
		return a.launch(a.analyzeSampleCmd())
	case "v":
		if a.results.res != nil {
			a.mode = modeResults
		}
		return a, nil
	case "h":
		return a.openHistory()
	case "e":
		a.debugVisible = true
		return a, nil
	case "q":
		return a, tea.Quit
	}
	return a, nil
}

func (a App) handleRunningKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "e":
		a.debugVisible = true
	case "q":
		return a, tea.Quit
	}
	return a, nil
}

func (a App) handleResultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		a.results.nextTab()
		return a, nil
	case "shift+tab":
		a.results.prevTab()
		return a, nil
	case "1", "2", "3", "4":
		a.results.setActive(int(msg.String()[0] - '1'))
		return a, nil
	case "y":
		return a.copyReport()
	case "r":
		if !a.viewingLive {
			a.notice = "Reviews only apply to the current run"
			return a, nil
		}
		if a.state.Reviewing {
			return a, nil
		}
		a.notice = "Requesting deal review..."
		return a.launch(a.requestReviewCmd())
	case "n", "esc":
		a.mode = modeInput
		return a, a.input.text.Focus()
	case "h":
		return a.openHistory()
	case "e":
		a.debugVisible = true
		return a, nil
	case "q":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.results.vp, cmd = a.results.vp.Update(msg)
	return a, cmd
}

func (a App) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		id := a.history.selectedID()
		if id == "" {
			return a, nil
		}
		if a.cfg.OpenRun != nil {
			return a, a.cfg.OpenRun(id)
		}
		return a, nil
	case "r":
		return a.openHistory()
	case "esc":
		if a.results.res != nil {
			a.mode = modeResults
		} else {
			a.mode = modeInput
		}
		return a, nil
	case "e":
		a.debugVisible = true
		return a, nil
	case "q":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.history.table, cmd = a.history.table.Update(msg)
	return a, cmd
}

// launch batches a work command with the spinner tick and any extras.
func (a App) launch(work tea.Cmd, extra ...tea.Cmd) (tea.Model, tea.Cmd) {
	if work == nil {
		return a, tea.Batch(extra...)
	}
	cmds := append([]tea.Cmd{work, a.spinner.Tick}, extra...)
	return a, tea.Batch(cmds...)
}

func (a App) submitText() (tea.Model, tea.Cmd) {
	text := a.input.text.Value()
	if strings.TrimSpace(text) == "" {
		a.notice = "Nothing to analyze yet"
		return a, nil
	}
	return a.launch(a.analyzeTextCmd(text))
}

func (a App) openHistory() (tea.Model, tea.Cmd) {
	a.mode = modeHistory
	if a.cfg.LoadHistory == nil {
		return a, nil
	}
	a.history.setLoading(true)
	return a, tea.Batch(a.cfg.LoadHistory(), a.spinner.Tick)
}

func (a App) copyReport() (tea.Model, tea.Cmd) {
	if a.results.res == nil {
		return a, nil
	}
	if err := clipboardWriteAll(report.Markdown(a.results.res)); err != nil {
		a.errMsg = fmt.Sprintf("Copy failed: %v", err)
	} else {
		a.notice = "Report copied to clipboard"
	}
	return a, nil
}

func (a App) analyzeFileCmd(path string) tea.Cmd {
	if a.cfg.AnalyzeFile == nil {
		return nil
	}
	return a.cfg.AnalyzeFile(path)
}

func (a App) analyzeTextCmd(text string) tea.Cmd {
	if a.cfg.AnalyzeText == nil {
		return nil
	}
	return a.cfg.AnalyzeText(text)
}

func (a App) analyzeSampleCmd() tea.Cmd {
	if a.cfg.AnalyzeSample == nil {
		return nil
	}
	return a.cfg.AnalyzeSample()
}

func (a App) requestReviewCmd() tea.Cmd {
	if a.cfg.RequestReview == nil {
		return nil
	}
	return a.cfg.RequestReview()
}

// layout pushes the current window size into every sub-model.
func (a *App) layout() {
	contentHeight := a.height - 2 // title and status bars
	if contentHeight < 1 {
		contentHeight = 1
	}
	a.input.setSize(a.width, contentHeight)
	a.results.setSize(a.width, contentHeight)
	a.history.setSize(a.width, contentHeight)
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debugVisible {
		overlay := debugOverlay(a.cfg.Ring, a.width, a.height-1)
		return overlay + "\n" + debugStatusBar(a.width)
	}

	contentHeight := a.height - 2
	if a.errMsg != "" {
		contentHeight--
	}
	if contentHeight < 1 {
		contentHeight = 1
	}

	var content string
	switch a.mode {
	case modeInput:
		content = a.input.view()
	case modeRunning:
		content = a.runningView(contentHeight)
	case modeResults:
		content = a.results.view()
	case modeHistory:
		content = a.history.view(a.spinner)
	}
	content = fitHeight(content, contentHeight)

	errorBar := ""
	if a.errMsg != "" {
		errorBar = ErrorStyle.Width(a.width).Render("Error: "+a.errMsg) + "\n"
	}

	return a.titleBar() + "\n" + content + "\n" + errorBar + a.statusBar()
}

func (a App) titleBar() string {
	title := TitleBar.Render("callsight")
	sub := ""
	switch a.mode {
	case modeInput:
		sub = "new analysis"
	case modeRunning:
		sub = "analyzing"
	case modeResults:
		if a.viewingLive {
			sub = "results"
		} else {
			sub = "results (from history)"
		}
	case modeHistory:
		sub = "history"
	}
	return title + StatusBarText.Render(" "+sub)
}

func (a App) runningView(height int) string {
	msg := a.state.Progress
	if msg == "" {
		msg = "Working..."
	}
	content := fmt.Sprintf("%s %s", a.spinner.View(), ProgressStyle.Render(msg))
	return lipgloss.Place(a.width, height, lipgloss.Center, lipgloss.Center, content)
}

// statusBar renders the bottom bar: notice or position info on the
// left, key hints for the active view on the right.
func (a App) statusBar() string {
	left := " "
	switch {
	case a.notice != "":
		left = " " + NoticeStyle.Render(a.notice) + " "
	case a.state.Reviewing:
		left = " " + a.spinner.View() + " Requesting deal review... "
	case a.mode == modeResults:
		left = fmt.Sprintf(" %s ", a.results.tabTitle())
	case a.mode == modeHistory:
		left = fmt.Sprintf(" %d runs ", len(a.history.runs))
	}

	keyHints := strings.Join(a.keyHints(), " ")

	leftWidth := lipgloss.Width(left)
	rightWidth := lipgloss.Width(keyHints)
	padding := a.width - leftWidth - rightWidth
	if padding < 0 {
		padding = 0
	}

	bar := left + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(a.width).Render(bar)
}

func (a App) keyHints() []string {
	hint := func(key, label string) string {
		return StatusBarKey.Render(key) + StatusBarText.Render(":"+label)
	}

	switch a.mode {
	case modeInput:
		if a.input.picking {
			return []string{hint("enter", "pick"), hint("esc", "back")}
		}
		if a.input.editing() {
			return []string{
				hint("ctrl+s", "analyze"), hint("ctrl+f", "file"),
				hint("ctrl+g", "sample"), hint("esc", "menu"),
			}
		}
		return []string{
			hint("i", "write"), hint("f", "file"), hint("s", "sample"),
			hint("h", "history"), hint("e", "events"), hint("q", "quit"),
		}
	case modeRunning:
		return []string{hint("e", "events"), hint("q", "quit")}
	case modeResults:
		return []string{
			hint("tab", "next"), hint("y", "copy"), hint("r", "review"),
			hint("n", "new"), hint("h", "history"), hint("q", "quit"),
		}
	case modeHistory:
		return []string{
			hint("enter", "open"), hint("r", "reload"),
			hint("esc", "back"), hint("q", "quit"),
		}
	}
	return nil
}

// fitHeight pads or trims content to exactly height lines so the status
// bar stays pinned to the bottom row.
func fitHeight(content string, height int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
