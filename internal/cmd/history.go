package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored analysis runs",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render one stored run",
	Long: `Render a stored run's full report. The ID may be abbreviated to any
unique prefix, such as the eight characters the list shows.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "maximum rows (default from config)")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "print the stored result JSON instead of the report")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the history store read-side for the CLI.
func openHistory() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve data dir: %w", err)
	}
	st, err := store.Open(config.HistoryDBPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return st, cfg, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	st, cfg, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	limit := historyLimit
	if limit <= 0 {
		limit = cfg.UI.HistoryLimit
	}
	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tSOURCE\tCHARS\tEVIDENCE\tWHYS\tMEDDIC\tREVIEW")
	for _, r := range runs {
		review := "-"
		if r.HasDealReview {
			review = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d/3\t%d/6\t%s\n",
			shortID(r.ID), r.Created.Local().Format("2006-01-02 15:04"), r.Source,
			r.TranscriptChars, r.EvidenceCount, r.WhysComplete, r.MEDDICComplete, review)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, _, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if err != nil {
		return err
	}

	if historyJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(run.ResultJSON), "", "  "); err != nil {
			fmt.Println(run.ResultJSON)
			return nil
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(os.Stdout)
		return err
	}

	res, err := analysis.FromMerged(json.RawMessage(run.ResultJSON))
	if err != nil {
		return err
	}
	return printResult(res, false)
}
