package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"poolEngine/internal/ledger"
)

// SeedEntry credits one account with a balance of one asset. The same
// amount is approved for pulling, so seeded funds can enter the pool
// without a separate authorization step.
type SeedEntry struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Seed is the JSON document shape of a balances seed file.
type Seed struct {
	Balances []SeedEntry `json:"balances"`
}

// SeedLedger reads a seed file and applies it to the ledger.
func SeedLedger(path string, l *ledger.Ledger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for i, entry := range seed.Balances {
		asset, err := ParseAccount(entry.Asset)
		if err != nil {
			return fmt.Errorf("seed entry %d: %w", i, err)
		}
		account, err := ParseAccount(entry.Account)
		if err != nil {
			return fmt.Errorf("seed entry %d: %w", i, err)
		}
		amount, err := ParseAmount(entry.Amount)
		if err != nil {
			return fmt.Errorf("seed entry %d: %w", i, err)
		}
		l.Mint(asset, account, amount)
		l.Approve(asset, account, amount)
	}
	return nil
}
