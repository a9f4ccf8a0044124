package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"poolEngine/internal/engine"
	"poolEngine/internal/model"
	"poolEngine/internal/storage"
)

// SnapshotStore persists the latest pool accounting snapshot.
type SnapshotStore interface {
	UpsertPoolState(ctx context.Context, state model.PoolState) error
}

// RunConfig holds runtime settings for the replay runner.
type RunConfig struct {
	BatchSize     int
	StateStore    StateStore
	SnapshotStore SnapshotStore
}

// Runner applies a JSONL operation stream to a pool and writes the emitted
// notifications to storage. Per-operation engine rejections are logged and
// counted; storage failures abort the run.
type Runner struct {
	cfg      RunConfig
	pool     *engine.Pool
	recorder *Recorder
	storage  storage.Storage
	logger   *zap.Logger

	lastApplied uint64
}

// NewRunner builds a Runner. recorder must be the event sink the pool was
// constructed with, so records carry the right operation sequence.
func NewRunner(cfg RunConfig, pool *engine.Pool, recorder *Recorder, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		pool:     pool,
		recorder: recorder,
		storage:  storageSink,
		logger:   logger,
	}
}

// Run executes the replay loop over an ops JSONL file.
func (r *Runner) Run(ctx context.Context, inputPath string) error {
	if r.pool == nil {
		return fmt.Errorf("pool is nil")
	}
	if r.recorder == nil {
		return fmt.Errorf("recorder is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 500
	}

	if r.cfg.StateStore != nil {
		last, ok, err := r.cfg.StateStore.Load(ctx)
		if err != nil {
			return err
		}
		if ok {
			r.lastApplied = last
			r.logger.Info("resume from state", zap.Uint64("last_applied_seq", last))
		}
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, applied, rejected, skipped, failed int

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var op Op
		if err := json.Unmarshal(line, &op); err != nil {
			failed++
			r.logger.Warn("decode op", zap.Error(err))
			continue
		}

		if op.Seq <= r.lastApplied {
			skipped++
			continue
		}

		r.recorder.BeginOp(op.Seq)
		if err := r.apply(ctx, op); err != nil {
			rejected++
			r.logger.Warn("op rejected",
				zap.Uint64("seq", op.Seq),
				zap.String("op", op.Op),
				zap.String("account", op.Account),
				zap.Error(err),
			)
		} else {
			applied++
		}
		// Rejections consume the sequence too: replaying the same line
		// would deterministically reject again.
		r.lastApplied = op.Seq

		if r.recorder.Pending() >= r.cfg.BatchSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if err := r.flush(ctx); err != nil {
		return err
	}

	r.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("rejected", rejected),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (r *Runner) apply(ctx context.Context, op Op) error {
	account, err := ParseAccount(op.Account)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(op.Op)) {
	case OpProvision:
		amount1, err := ParseAmount(op.Amount1)
		if err != nil {
			return err
		}
		amount2, err := ParseAmount(op.Amount2)
		if err != nil {
			return err
		}
		_, err = r.pool.Provision(ctx, account, amount1, amount2)
		return err
	case OpWithdraw:
		shares, err := ParseAmount(op.Shares)
		if err != nil {
			return err
		}
		_, _, err = r.pool.Withdraw(ctx, account, shares)
		return err
	case OpSwap:
		assetIn, err := ParseAccount(op.AssetIn)
		if err != nil {
			return err
		}
		amountIn, err := ParseAmount(op.AmountIn)
		if err != nil {
			return err
		}
		_, err = r.pool.Swap(ctx, account, assetIn, amountIn)
		return err
	default:
		return fmt.Errorf("unknown op: %s", op.Op)
	}
}

func (r *Runner) flush(ctx context.Context) error {
	events := r.recorder.Drain()
	if len(events) > 0 {
		if err := r.storage.PutEventBatch(ctx, events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	if r.cfg.SnapshotStore != nil {
		if err := r.cfg.SnapshotStore.UpsertPoolState(ctx, r.pool.Snapshot()); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
	}
	if r.cfg.StateStore != nil {
		if err := r.cfg.StateStore.Save(ctx, r.lastApplied); err != nil {
			return err
		}
	}
	return nil
}
