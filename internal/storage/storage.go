package storage

import (
	"context"

	"poolEngine/internal/model"
)

// Storage defines a sink for pool event records.
type Storage interface {
	PutEventBatch(ctx context.Context, events []model.PoolEventRecord) error
}

// Fanout forwards each batch to every sink in order.
type Fanout struct {
	sinks []Storage
}

func NewFanout(sinks ...Storage) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) PutEventBatch(ctx context.Context, events []model.PoolEventRecord) error {
	for _, sink := range f.sinks {
		if err := sink.PutEventBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
