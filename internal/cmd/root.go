// Package cmd implements the callsight command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/events"
)

var (
	serverURL   string
	dataDirFlag string
)

var rootCmd = &cobra.Command{
	Use:          "callsight",
	Short:        "Sales call transcript analysis from the terminal",
	SilenceUsage: true, // Don't show usage on RunE errors
	Long: `callsight streams sales call transcripts through the analysis service
and presents evidence, Three Whys, MEDDIC, and deal review results.

Running without a subcommand launches the interactive TUI.

Examples:
  callsight                        # Launch the TUI
  callsight analyze call.txt       # Analyze a transcript file
  callsight analyze --text < call  # Analyze text from stdin
  callsight sample                 # Analyze the canned sample call
  callsight history                # List stored runs
  callsight history show 4f21ab90  # Render one stored run
  callsight serve                  # Run the local stub backend
  callsight events --tail 20       # Dump recent observability events`,
	RunE: runTUI,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "analysis service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "directory for history, logs, and events (default ~/.callsight)")
}

// loadConfig loads the configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Backend.BaseURL = serverURL
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}

// openEvents opens the JSONL observability log under dir and attaches a
// ring buffer for live inspection. A log that cannot be opened disables
// event recording rather than failing the command.
func openEvents(dir string) (*events.Logger, *events.RingBuffer, func()) {
	f, err := os.OpenFile(config.EventLogPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: event log disabled: %v\n", err)
		ev := events.NewNullLogger()
		return ev, nil, ev.Close
	}

	ev := events.NewLogger(f)
	ring := events.NewRingBuffer(events.DefaultRingSize)
	ev.SetRingBuffer(ring)
	return ev, ring, func() {
		ev.Close()
		f.Close()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
