package replay

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Operation kinds accepted in a replay input line.
const (
	OpProvision = "provision"
	OpWithdraw  = "withdraw"
	OpSwap      = "swap"
)

// Op is one replayable pool operation, as encoded on a JSONL input line.
// Amounts are decimal strings so arbitrary magnitudes survive JSON.
type Op struct {
	Seq     uint64 `json:"seq"`
	Op      string `json:"op"`
	Account string `json:"account"`

	// provision
	Amount1 string `json:"amount1,omitempty"`
	Amount2 string `json:"amount2,omitempty"`

	// withdraw
	Shares string `json:"shares,omitempty"`

	// swap
	AssetIn  string `json:"asset_in,omitempty"`
	AmountIn string `json:"amount_in,omitempty"`
}

// ParseAccount converts a hex string into an account address.
func ParseAccount(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid account address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount converts a decimal string into a positive big integer.
func ParseAmount(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: %s", input)
	}
	return value, nil
}
