package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolEngine/internal/config"
	"poolEngine/internal/engine"
	"poolEngine/internal/ledger"
	"poolEngine/internal/replay"
	"poolEngine/internal/storage"
	"poolEngine/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	assetA, err := replay.ParseAccount(cfg.AssetA)
	if err != nil {
		return fmt.Errorf("asset-a: %w", err)
	}
	assetB, err := replay.ParseAccount(cfg.AssetB)
	if err != nil {
		return fmt.Errorf("asset-b: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assetLedger := ledger.New()
	if cfg.SeedFile != "" {
		if err := replay.SeedLedger(cfg.SeedFile, assetLedger); err != nil {
			return err
		}
	}

	recorder := replay.NewRecorder(assetA, assetB)
	pool, err := engine.NewPool(assetA, assetB, assetLedger, recorder, logger)
	if err != nil {
		return err
	}

	sinks := []storage.Storage{storage.NewJsonlStorage(cfg.Out)}
	var stateStore replay.StateStore = &replay.FileStateStore{Path: cfg.StateFile}
	var snapshotStore replay.SnapshotStore

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		sinks = append(sinks, store)
		snapshotStore = store
		stateStore = &replay.DBStateStore{Store: store, Name: fmt.Sprintf("replay:%s:%s", assetA.Hex(), assetB.Hex())}
	}

	runner := replay.NewRunner(replay.RunConfig{
		BatchSize:     cfg.BatchSize,
		StateStore:    stateStore,
		SnapshotStore: snapshotStore,
	}, pool, recorder, storage.NewFanout(sinks...), logger)

	logger.Info("replay start",
		zap.String("in", cfg.Input),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
	)

	if err := runner.Run(ctx, cfg.Input); err != nil {
		return err
	}

	reserve1, reserve2 := pool.Reserves()
	logger.Info("final pool state",
		zap.String("reserve1", reserve1.String()),
		zap.String("reserve2", reserve2.String()),
		zap.String("total_shares", pool.TotalShares().String()),
	)

	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
