package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/client"
	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/protocol"
	"github.com/abelbrown/callsight/internal/report"
	"github.com/abelbrown/callsight/internal/session"
	"github.com/abelbrown/callsight/internal/store"
	"github.com/abelbrown/callsight/internal/transcript"
)

// maxParallelAnalyses bounds concurrent streams when several files are
// passed at once.
const maxParallelAnalyses = 3

var (
	analyzeText bool
	analyzeJSON bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Analyze transcripts and print the report",
	Long: `Stream one or more transcript files through the analysis service and
print the rendered report. Several files are analyzed concurrently;
reports come out in argument order.

Examples:
  callsight analyze call.txt
  callsight analyze q1-*.txt
  callsight analyze --json call.txt | jq .meddic
  callsight analyze --text < transcript.txt`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVarP(&analyzeText, "text", "t", false, "read transcript text from stdin")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the merged result JSON instead of the report")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeText && len(args) > 0 {
		return errors.New("--text reads stdin; do not pass files with it")
	}
	if !analyzeText && len(args) == 0 {
		return errors.New("nothing to analyze: pass a transcript file or use --text")
	}

	backend, st, cleanup, err := openBackend()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	if analyzeText {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text := string(data)
		if err := transcript.ValidateText(text); err != nil {
			return err
		}
		res, err := analyzeOne(ctx, st, analysis.SourceText, "stdin", len(text), func(ctx context.Context) (client.Stream, error) {
			return backend.AnalyzeText(ctx, text)
		})
		if err != nil {
			return err
		}
		return printResult(res, analyzeJSON)
	}

	// Bounded fan-out over the files; results print in argument order
	// once every run settles.
	results := make([]*analysis.Result, len(args))
	var g errgroup.Group
	g.SetLimit(maxParallelAnalyses)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			content, text, err := transcript.LoadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := transcript.ValidateText(text); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			name := filepath.Base(path)
			res, err := analyzeOne(ctx, st, analysis.SourceFile, name, len(text), func(ctx context.Context) (client.Stream, error) {
				return backend.AnalyzeFile(ctx, name, content)
			})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		if len(args) > 1 {
			fmt.Printf("== %s ==\n\n", args[i])
		}
		if err := printResult(res, analyzeJSON); err != nil {
			return err
		}
	}
	return nil
}

// openBackend builds the API client plus a best-effort history store.
// The cleanup function closes everything the call opened.
func openBackend() (*client.Client, *store.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve data dir: %w", err)
	}

	ev, _, closeEvents := openEvents(dir)
	backend := client.New(cfg.Backend.BaseURL, cfg.RequestTimeout(), ev)

	st, err := store.Open(config.HistoryDBPath(dir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history disabled: %v\n", err)
		st = nil
	}

	cleanup := func() {
		if st != nil {
			st.Close()
		}
		closeEvents()
	}
	return backend, st, cleanup, nil
}

// analyzeOne drains a single analysis stream, printing progress to
// stderr and recording the finished run in history.
func analyzeOne(ctx context.Context, st *store.Store, source analysis.Source, label string, chars int, open func(context.Context) (client.Stream, error)) (*analysis.Result, error) {
	start := time.Now()

	stream, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	res, err := session.Consume(ctx, stream, source, func(u protocol.Update) {
		if msg := analysis.ProgressMessage(u.Stage, u.Status, source); msg != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", label, msg)
		}
	})
	if err != nil {
		return nil, err
	}

	saveRun(st, source, res, chars, time.Since(start))
	return res, nil
}

// saveRun records a finished CLI analysis in history. Failures warn
// rather than fail; the report already exists.
func saveRun(st *store.Store, source analysis.Source, res *analysis.Result, chars int, dur time.Duration) {
	if st == nil {
		return
	}
	run := store.Run{
		ID:              uuid.NewString(),
		Created:         time.Now(),
		Source:          string(source),
		IsSample:        res.IsSample,
		Duration:        dur,
		TranscriptChars: chars,
		EvidenceCount:   len(res.EvidenceRegistry),
		WhysComplete:    res.ThreeWhys.Completeness(),
		MEDDICComplete:  res.MEDDIC.Completeness(),
		ResultJSON:      string(res.Merged),
	}
	if err := st.SaveRun(run); err != nil {
		fmt.Fprintf(os.Stderr, "warning: run not saved to history: %v\n", err)
	}
}

// printResult writes one result to stdout, rendered or as JSON.
func printResult(res *analysis.Result, asJSON bool) error {
	if asJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Merged, "", "  "); err != nil {
			os.Stdout.Write(res.Merged)
			fmt.Println()
			return nil
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(os.Stdout)
		return err
	}
	fmt.Println(report.Render(report.Markdown(res), 0))
	return nil
}
