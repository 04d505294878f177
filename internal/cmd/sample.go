package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/client"
)

var sampleJSON bool

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Analyze the canned sample call",
	Long: `Stream the service's built-in sample transcript through the full
analysis pipeline. Handy for a first look and for checking connectivity.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().BoolVar(&sampleJSON, "json", false, "print the merged result JSON instead of the report")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	backend, st, cleanup, err := openBackend()
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := analyzeOne(cmd.Context(), st, analysis.SourceSample, "sample", 0, func(ctx context.Context) (client.Stream, error) {
		return backend.AnalyzeSample(ctx)
	})
	if err != nil {
		return err
	}
	return printResult(res, sampleJSON)
}
