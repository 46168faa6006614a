// Package main provides the hopsearch binary entry point.
// Hopsearch answers multi-hop questions over a Qdrant passage index by
// looping plan, retrieve, and read stages until the evidence supports a
// synthesized answer.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/hopsearch/hopsearch/internal/agent"
	"github.com/hopsearch/hopsearch/internal/config"
	"github.com/hopsearch/hopsearch/internal/database/bunstore"
	"github.com/hopsearch/hopsearch/internal/embedding"
	"github.com/hopsearch/hopsearch/internal/eval"
	"github.com/hopsearch/hopsearch/internal/instrumentation"
	"github.com/hopsearch/hopsearch/internal/llm"
	"github.com/hopsearch/hopsearch/internal/qdrant"
)

const appName = "hopsearch"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Multi-hop question answering over a passage index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(askCmd(&verbose))
	cmd.AddCommand(evalCmd(&verbose))
	cmd.AddCommand(statsCmd())

	return cmd
}

func askCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Answer a single question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*verbose)

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			app, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := runContext(cfg)
			defer cancel()

			run, err := app.agent.Ask(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println(run.FinalAnswer)
			fmt.Println()
			fmt.Println(run.Summary())
			return nil
		},
	}
}

func evalCmd(verbose *bool) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "eval <questions.jsonl>",
		Short: "Run a JSONL question set through the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*verbose)

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			questions, err := eval.LoadQuestionsFile(args[0], logger)
			if err != nil {
				return err
			}

			app, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := runContext(cfg)
			defer cancel()

			runner := eval.NewRunner(app.agent, cfg.EvalConcurrency, logger)
			report, err := runner.Run(ctx, questions)
			if err != nil {
				return err
			}

			if outputPath != "" {
				file, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create results file %q: %w", outputPath, err)
				}
				defer func() { _ = file.Close() }()
				if err := report.WriteJSONL(file); err != nil {
					return err
				}
			}

			fmt.Println(report.Summary())
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write per-question results as JSONL")

	return cmd
}

// statsRecentRuns bounds how many stored runs the stats listing shows.
const statsRecentRuns = 10

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregates across every run stored in the run database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RunDBPath == "" {
				return fmt.Errorf("RUN_DB_PATH is not set; the run store is disabled")
			}

			dbConn, err := sql.Open(sqliteshim.ShimName, cfg.RunDBPath)
			if err != nil {
				return fmt.Errorf("open run database %q: %w", cfg.RunDBPath, err)
			}
			defer func() { _ = dbConn.Close() }()

			store, err := bunstore.NewBunStore(dbConn, sqlitedialect.New())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stats, err := store.RunStats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out,
				"Runs: %d | Failed: %d | Avg hops: %.2f | Avg latency: %.1fs | Total tokens: %d | Total cost: $%.4f\n",
				stats.TotalRuns,
				stats.FailedRuns,
				stats.AvgHops,
				stats.AvgLatencyMS/1000.0,
				stats.TotalTokens,
				stats.TotalCost,
			)

			recent, err := store.ListRecentRuns(ctx, statsRecentRuns)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				return nil
			}

			fmt.Fprintln(out, "\nRecent runs:")
			for _, row := range recent {
				fmt.Fprintf(out, "  %s  %-9s  hops=%d  %s\n", row.Timestamp, row.Status, row.HopCount, row.Question)
			}
			return nil
		},
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// app bundles the wired agent with the resources it owns.
type app struct {
	agent     *agent.Agent
	retriever *qdrant.Retriever
	dbConn    *sql.DB
}

func (a *app) close() {
	if a.retriever != nil {
		_ = a.retriever.Close()
	}
	if a.dbConn != nil {
		_ = a.dbConn.Close()
	}
}

// buildApp wires the full dependency graph from configuration.
func buildApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	chatClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, logger)
	embedder := embedding.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)

	retriever, err := qdrant.NewRetriever(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	}, embedder, logger)
	if err != nil {
		return nil, err
	}

	runLogger, err := instrumentation.NewRunLogger(cfg.RunLogDir, logger)
	if err != nil {
		_ = retriever.Close()
		return nil, err
	}

	sinks := []agent.RunSink{runLogger}

	var dbConn *sql.DB
	if cfg.RunDBPath != "" {
		dbConn, err = sql.Open(sqliteshim.ShimName, cfg.RunDBPath)
		if err != nil {
			_ = retriever.Close()
			return nil, fmt.Errorf("open run database %q: %w", cfg.RunDBPath, err)
		}
		store, err := bunstore.NewBunStore(dbConn, sqlitedialect.New())
		if err != nil {
			_ = retriever.Close()
			_ = dbConn.Close()
			return nil, err
		}
		sinks = append(sinks, store)
	}

	ag := agent.New(
		agent.NewPlanner(chatClient, cfg.PlannerModel, logger),
		agent.NewReader(chatClient, cfg.ReaderModel, logger),
		agent.NewSynthesizer(chatClient, cfg.SynthesizerModel, logger),
		retriever,
		agent.Options{MaxHops: cfg.MaxHops, TopK: cfg.TopK},
		logger,
		sinks...,
	)

	return &app{agent: ag, retriever: retriever, dbConn: dbConn}, nil
}

// runContext cancels on SIGINT/SIGTERM and applies the optional run timeout.
func runContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if cfg.RunTimeout <= 0 {
		return ctx, stop
	}

	ctx, timeoutCancel := context.WithTimeout(ctx, cfg.RunTimeout)
	return ctx, func() {
		timeoutCancel()
		stop()
	}
}
