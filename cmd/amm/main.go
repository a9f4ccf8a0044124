package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "amm",
		Short:        "Constant-product pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply an operation stream to a pool and record its events",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL path")
	replayCmd.Flags().String("asset-a", "", "asset 1 identity (hex address)")
	replayCmd.Flags().String("asset-b", "", "asset 2 identity (hex address)")
	replayCmd.Flags().String("seed", "", "balances seed JSON path")
	replayCmd.Flags().String("out", "./data/pool_events.jsonl", "output events JSONL path")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	replayCmd.Flags().String("state-file", "./data/replay_state.json", "replay state file path")
	replayCmd.Flags().Int("batch-size", 500, "events per storage flush")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a swap output for given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount-in", "", "input amount")
	quoteCmd.Flags().String("reserve-in", "", "reserve of the input asset")
	quoteCmd.Flags().String("reserve-out", "", "reserve of the output asset")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
