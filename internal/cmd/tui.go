package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/client"
	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/coord"
	"github.com/abelbrown/callsight/internal/events"
	"github.com/abelbrown/callsight/internal/logging"
	"github.com/abelbrown/callsight/internal/session"
	"github.com/abelbrown/callsight/internal/store"
	"github.com/abelbrown/callsight/internal/ui"
)

// runTUI wires the real dependencies into the UI and runs it. The model
// never sees the client or the store directly; it gets command closures.
func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	// Text logs go to a file; the terminal belongs to the TUI.
	if err := logging.Init(dir); err != nil {
		return err
	}
	defer logging.Close()
	logging.SetLevel(cfg.LogLevel)

	ev, ring, closeEvents := openEvents(dir)
	defer closeEvents()

	st, err := store.Open(config.HistoryDBPath(dir))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer st.Close()

	backend := client.New(cfg.Backend.BaseURL, cfg.RequestTimeout(), ev)
	ctrl := session.NewController(backend, st, ev)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logging.Info("Starting TUI", "server", cfg.Backend.BaseURL, "data_dir", dir)
	ev.Emit(events.Event{Level: events.LevelInfo, Kind: events.KindStartup, Comp: "ui"})

	appCfg := ui.AppConfig{
		AnalyzeFile: func(path string) tea.Cmd {
			return func() tea.Msg {
				return ui.RunStarted{Err: ctrl.AnalyzeFile(ctx, path)}
			}
		},
		AnalyzeText: func(text string) tea.Cmd {
			return func() tea.Msg {
				return ui.RunStarted{Err: ctrl.AnalyzeText(ctx, text)}
			}
		},
		AnalyzeSample: func() tea.Cmd {
			return func() tea.Msg {
				return ui.RunStarted{Err: ctrl.AnalyzeSample(ctx)}
			}
		},
		RequestReview: func() tea.Cmd {
			return func() tea.Msg {
				return ui.ReviewRequested{Err: ctrl.RequestReview(ctx)}
			}
		},
		DismissError: func() tea.Cmd {
			return func() tea.Msg {
				ctrl.ClearError()
				return nil
			}
		},
		LoadHistory: func() tea.Cmd {
			return func() tea.Msg {
				runs, err := st.ListRuns(cfg.UI.HistoryLimit)
				return ui.HistoryLoaded{Runs: runs, Err: err}
			}
		},
		OpenRun: func(id string) tea.Cmd {
			return func() tea.Msg {
				run, err := st.GetRun(id)
				if err != nil {
					return ui.RunOpened{Err: err}
				}
				res, err := analysis.FromMerged(json.RawMessage(run.ResultJSON))
				return ui.RunOpened{Result: res, Err: err}
			}
		},
		Ring: ring,
	}

	app := ui.NewAppWithConfig(appCfg)
	program := tea.NewProgram(app, tea.WithAltScreen())

	coordinator := coord.NewCoordinator(ctrl)
	coordinator.Start(ctx, program)

	_, runErr := program.Run()

	// Graceful shutdown: stop the pump before the event logger closes.
	cancel()
	coordinator.Wait()
	ev.Emit(events.Event{Level: events.LevelInfo, Kind: events.KindShutdown, Comp: "ui"})

	if runErr != nil {
		return fmt.Errorf("run TUI: %w", runErr)
	}
	return nil
}
