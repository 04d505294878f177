package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/callsight/internal/server"
)

var (
	serveAddr  string
	serveDelay time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stub analysis backend",
	Long: `Run the built-in stub backend that streams canned analysis results
over SSE. Point the TUI or CLI at it with --server, or leave both on
their defaults and they will find each other on localhost.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().DurationVar(&serveDelay, "delay", 0, "delay between stream events (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	ev, _, closeEvents := openEvents(dir)
	defer closeEvents()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	delay := cfg.StageDelay()
	if cmd.Flags().Changed("delay") {
		delay = serveDelay
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(addr, delay, ev)
	fmt.Printf("callsight stub backend listening on %s\n", addr)
	return srv.ListenAndServe(ctx)
}
