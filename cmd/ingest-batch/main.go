package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/resume-ingest/internal/app"
	"github.com/joseph-ayodele/resume-ingest/internal/common"
	"github.com/joseph-ayodele/resume-ingest/internal/server"
)

var (
	addr       string
	logLevel   string
	failuresDB string

	logger  *slog.Logger
	be      backend
	cleanup func()
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ingest-batch",
	Short: "Submit resume batches and manage failed uploads.",
	Long: `ingest-batch uploads resume files to the extraction service in bounded
concurrent groups, reports progress, and manages the failure list.

With --addr it talks to a running ingestd; otherwise the orchestrator runs in
this process and failures persist only when --failures-db (or FAILURES_DB) is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := common.LoadConfig()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: common.ParseLevel(cfg.LogLevel),
		}))
		slog.SetDefault(logger)

		if addr != "" {
			conn, err := server.Dial(addr)
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			be = server.NewClient(conn)
			cleanup = func() { closeConn(conn) }
			return nil
		}

		if failuresDB != "" {
			cfg.Failures.StorePath = failuresDB
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		be = &localBackend{app: a, logger: logger}
		cleanup = a.Close
		return nil
	},
}

func closeConn(conn *grpc.ClientConn) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close connection", "error", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "ingestd gRPC address (empty runs in-process)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&failuresDB, "failures-db", "", "sqlite file holding the failure list (in-process mode)")

	rootCmd.AddCommand(submitCmd, failuresCmd, countCmd, totalsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}
