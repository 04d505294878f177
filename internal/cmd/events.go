package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/events"
)

var eventsTail int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Dump recent observability events",
	Long: `Print recent events from the JSONL observability log, one line per
event. Lines that fail to decode are passed through verbatim.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsTail, "tail", 50, "number of events to show")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	data, err := os.ReadFile(config.EventLogPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No events recorded yet.")
			return nil
		}
		return err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if eventsTail > 0 && len(lines) > eventsTail {
		lines = lines[len(lines)-eventsTail:]
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e events.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			fmt.Println(line)
			continue
		}
		fmt.Println(formatEvent(e))
	}
	return nil
}

func formatEvent(e events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %-16s", e.Time.Local().Format("15:04:05.000"), e.Level, e.Kind)
	if e.Comp != "" {
		fmt.Fprintf(&b, " %s", e.Comp)
	}
	if e.RunID != "" {
		fmt.Fprintf(&b, " run:%s", shortID(e.RunID))
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, " stage:%s", e.Stage)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " %s", e.Endpoint)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status:%d", e.Status)
	}
	if e.DurMs > 0 {
		fmt.Fprintf(&b, " %.0fms", e.DurMs)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, " %s", e.Msg)
	}
	if e.Err != "" {
		fmt.Fprintf(&b, " ERR:%s", e.Err)
	}
	return b.String()
}
