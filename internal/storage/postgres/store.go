package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolEngine/internal/model"
)

// Store provides Postgres persistence for pool events and state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEventBatch inserts pool event records, skipping sequences already
// present so replays are idempotent.
func (s *Store) PutEventBatch(ctx context.Context, events []model.PoolEventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO pool_events (
				seq, event_name, asset1, asset2, decoded, applied_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(event.Seq),
			event.EventName,
			event.Asset1,
			event.Asset2,
			[]byte(event.Decoded),
			event.AppliedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolState stores the latest accounting snapshot for a pool.
func (s *Store) UpsertPoolState(ctx context.Context, state model.PoolState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_state (
			asset1, asset2, reserve1, reserve2, total_shares, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (asset1, asset2)
		DO UPDATE SET
			reserve1 = EXCLUDED.reserve1,
			reserve2 = EXCLUDED.reserve2,
			total_shares = EXCLUDED.total_shares,
			updated_at = now()
	`,
		state.Asset1,
		state.Asset2,
		state.Reserve1,
		state.Reserve2,
		state.TotalShares,
	)
	return err
}

// LoadState returns last_applied_seq for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_applied_seq FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts last_applied_seq for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_applied_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_applied_seq = EXCLUDED.last_applied_seq, updated_at = now()
	`, name, seq)
	return err
}
