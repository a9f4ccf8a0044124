package replay

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolEngine/internal/model"
)

// Recorder collects pool notifications into persistable event records.
// It implements the engine's event sink and tags each record with the
// sequence of the operation being applied.
type Recorder struct {
	asset1  string
	asset2  string
	seq     uint64
	pending []model.PoolEventRecord
}

func NewRecorder(asset1, asset2 common.Address) *Recorder {
	return &Recorder{
		asset1: asset1.Hex(),
		asset2: asset2.Hex(),
	}
}

// BeginOp sets the sequence attached to subsequently recorded events.
func (r *Recorder) BeginOp(seq uint64) {
	r.seq = seq
}

func (r *Recorder) LiquidityAdded(event model.LiquidityAddedEvent) {
	r.append(model.EventLiquidityAdded, event)
}

func (r *Recorder) LiquidityRemoved(event model.LiquidityRemovedEvent) {
	r.append(model.EventLiquidityRemoved, event)
}

func (r *Recorder) Swap(event model.SwapEvent) {
	r.append(model.EventSwap, event)
}

// Pending returns the number of records collected since the last drain.
func (r *Recorder) Pending() int {
	return len(r.pending)
}

// Drain returns the collected records and resets the buffer.
func (r *Recorder) Drain() []model.PoolEventRecord {
	records := r.pending
	r.pending = nil
	return records
}

func (r *Recorder) append(name string, payload any) {
	decoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.pending = append(r.pending, model.PoolEventRecord{
		Seq:       r.seq,
		EventName: name,
		Asset1:    r.asset1,
		Asset2:    r.asset2,
		Decoded:   decoded,
		AppliedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
