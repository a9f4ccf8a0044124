package model

import "encoding/json"

// PoolEventRecord is the JSON representation of a pool notification used
// for persistence.
type PoolEventRecord struct {
	Seq       uint64          `json:"seq"`
	EventName string          `json:"event_name"`
	Asset1    string          `json:"asset1"`
	Asset2    string          `json:"asset2"`
	Decoded   json.RawMessage `json:"decoded"`
	AppliedAt string          `json:"applied_at"`
}

// PoolState is the persisted snapshot of pool accounting. Amounts are
// decimal strings so arbitrary magnitudes survive JSON round-trips.
type PoolState struct {
	Asset1      string `json:"asset1"`
	Asset2      string `json:"asset2"`
	Reserve1    string `json:"reserve1"`
	Reserve2    string `json:"reserve2"`
	TotalShares string `json:"total_shares"`
}
