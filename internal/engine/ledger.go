package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger moves asset value between external accounts and pool custody.
// Both operations are atomic: they fully apply or fail with no effect.
type AssetLedger interface {
	// Pull moves amount of asset from an external account into pool custody.
	// Fails if the account has not authorized the move or lacks the balance.
	Pull(ctx context.Context, asset, from common.Address, amount *big.Int) error

	// Push moves amount of asset from pool custody to an external account.
	// Fails if custody holds less than amount.
	Push(ctx context.Context, asset, to common.Address, amount *big.Int) error
}
