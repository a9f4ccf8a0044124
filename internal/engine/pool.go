package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolEngine/internal/model"
)

// EventSink receives pool notifications. Implementations must not call
// back into state-changing pool operations; such calls are rejected by
// the reentrancy guard.
type EventSink interface {
	LiquidityAdded(event model.LiquidityAddedEvent)
	LiquidityRemoved(event model.LiquidityRemovedEvent)
	Swap(event model.SwapEvent)
}

// Pool is a two-asset constant-product liquidity pool. All mutable state
// lives here; asset transfers are delegated to an AssetLedger. State-changing
// operations are serialized by a single-flight guard: a second invocation
// while one is in progress (including reentrant calls from the ledger)
// fails with ErrReentrantCall.
//
// Reserves are either both zero (empty pool) or both positive. Total shares
// are zero exactly when the reserves are. Draining the pool completely is a
// valid state from which provisioning can restart.
type Pool struct {
	asset1 common.Address
	asset2 common.Address

	reserve1    *big.Int
	reserve2    *big.Int
	totalShares *big.Int
	shares      map[common.Address]*big.Int

	ledger AssetLedger
	sink   EventSink
	logger *zap.Logger

	mu sync.Mutex
}

// NewPool builds an empty pool over two distinct, non-zero asset identities.
// sink may be nil; logger may be nil.
func NewPool(asset1, asset2 common.Address, ledger AssetLedger, sink EventSink, logger *zap.Logger) (*Pool, error) {
	if asset1 == (common.Address{}) || asset2 == (common.Address{}) {
		return nil, ErrNilAsset
	}
	if asset1 == asset2 {
		return nil, ErrIdenticalAsset
	}
	if ledger == nil {
		return nil, fmt.Errorf("asset ledger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		asset1:      asset1,
		asset2:      asset2,
		reserve1:    new(big.Int),
		reserve2:    new(big.Int),
		totalShares: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
		ledger:      ledger,
		sink:        sink,
		logger:      logger,
	}, nil
}

// Provision deposits amount1 of asset 1 and amount2 of asset 2 from the
// provider and mints liquidity shares. The first provision into an empty
// pool mints floor(sqrt(amount1*amount2)); later provisions mint the worse
// of the two contributed ratios, so a skewed deposit cannot dilute existing
// providers. Amounts diverging from the reserve ratio are accepted as-is
// and shift the pool's effective price; no excess is refunded.
func (p *Pool) Provision(ctx context.Context, provider common.Address, amount1, amount2 *big.Int) (*big.Int, error) {
	if !p.mu.TryLock() {
		return nil, ErrReentrantCall
	}
	defer p.mu.Unlock()

	if !isPositive(amount1) || !isPositive(amount2) {
		return nil, ErrInvalidAmount
	}

	minted, err := p.sharesForDeposit(amount1, amount2)
	if err != nil {
		return nil, err
	}

	if err := p.ledger.Pull(ctx, p.asset1, provider, amount1); err != nil {
		return nil, fmt.Errorf("%w: pull asset1: %v", ErrTransferFailed, err)
	}
	if err := p.ledger.Pull(ctx, p.asset2, provider, amount2); err != nil {
		if refundErr := p.ledger.Push(ctx, p.asset1, provider, amount1); refundErr != nil {
			return nil, fmt.Errorf("%w: pull asset2: %v (asset1 refund also failed: %v)", ErrTransferFailed, err, refundErr)
		}
		return nil, fmt.Errorf("%w: pull asset2: %v", ErrTransferFailed, err)
	}

	p.creditShares(provider, minted)
	p.totalShares.Add(p.totalShares, minted)
	p.reserve1.Add(p.reserve1, amount1)
	p.reserve2.Add(p.reserve2, amount2)

	p.logger.Debug("liquidity added",
		zap.String("provider", provider.Hex()),
		zap.String("amount1", amount1.String()),
		zap.String("amount2", amount2.String()),
		zap.String("shares_minted", minted.String()),
	)
	if p.sink != nil {
		p.sink.LiquidityAdded(model.LiquidityAddedEvent{
			Provider:     provider.Hex(),
			Amount1:      amount1.String(),
			Amount2:      amount2.String(),
			SharesMinted: minted.String(),
		})
	}

	return new(big.Int).Set(minted), nil
}

// Withdraw burns sharesToBurn of the provider's shares and pays out the
// pro-rata portion of both reserves. Burns whose payout rounds to zero in
// either asset are rejected rather than silently discarded.
func (p *Pool) Withdraw(ctx context.Context, provider common.Address, sharesToBurn *big.Int) (*big.Int, *big.Int, error) {
	if !p.mu.TryLock() {
		return nil, nil, ErrReentrantCall
	}
	defer p.mu.Unlock()

	if !isPositive(sharesToBurn) {
		return nil, nil, ErrInvalidAmount
	}
	if p.totalShares.Sign() == 0 {
		return nil, nil, ErrNoLiquidity
	}
	balance, ok := p.shares[provider]
	if !ok || balance.Cmp(sharesToBurn) < 0 {
		return nil, nil, ErrInsufficientShares
	}

	out1 := proRata(sharesToBurn, p.reserve1, p.totalShares)
	out2 := proRata(sharesToBurn, p.reserve2, p.totalShares)
	if out1.Sign() == 0 || out2.Sign() == 0 {
		return nil, nil, ErrZeroOutput
	}

	// Effects before interactions: commit the burn, roll back if a payout
	// leg fails so no partial mutation is observable.
	snapshot := p.snapshotAccounting(provider)
	p.debitShares(provider, sharesToBurn)
	p.totalShares.Sub(p.totalShares, sharesToBurn)
	p.reserve1.Sub(p.reserve1, out1)
	p.reserve2.Sub(p.reserve2, out2)

	if err := p.ledger.Push(ctx, p.asset1, provider, out1); err != nil {
		p.restoreAccounting(provider, snapshot)
		return nil, nil, fmt.Errorf("%w: push asset1: %v", ErrTransferFailed, err)
	}
	if err := p.ledger.Push(ctx, p.asset2, provider, out2); err != nil {
		p.restoreAccounting(provider, snapshot)
		if reclaimErr := p.ledger.Pull(ctx, p.asset1, provider, out1); reclaimErr != nil {
			return nil, nil, fmt.Errorf("%w: push asset2: %v (asset1 reclaim also failed: %v)", ErrTransferFailed, err, reclaimErr)
		}
		return nil, nil, fmt.Errorf("%w: push asset2: %v", ErrTransferFailed, err)
	}

	p.logger.Debug("liquidity removed",
		zap.String("provider", provider.Hex()),
		zap.String("amount1", out1.String()),
		zap.String("amount2", out2.String()),
		zap.String("shares_burned", sharesToBurn.String()),
	)
	if p.sink != nil {
		p.sink.LiquidityRemoved(model.LiquidityRemovedEvent{
			Provider:     provider.Hex(),
			Amount1:      out1.String(),
			Amount2:      out2.String(),
			SharesBurned: sharesToBurn.String(),
		})
	}

	return out1, out2, nil
}

// Swap trades amountIn of assetIn for the opposing asset at the
// constant-product price. assetIn selects the direction; both directions
// share this one path. The output can never claim the entire opposing
// reserve.
func (p *Pool) Swap(ctx context.Context, trader common.Address, assetIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if !p.mu.TryLock() {
		return nil, ErrReentrantCall
	}
	defer p.mu.Unlock()

	if !isPositive(amountIn) {
		return nil, ErrInvalidAmount
	}

	var assetOut common.Address
	var reserveIn, reserveOut *big.Int
	switch assetIn {
	case p.asset1:
		assetOut, reserveIn, reserveOut = p.asset2, p.reserve1, p.reserve2
	case p.asset2:
		assetOut, reserveIn, reserveOut = p.asset1, p.reserve2, p.reserve1
	default:
		return nil, ErrUnknownAsset
	}

	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrNoLiquidity
	}

	amountOut := getAmountOut(amountIn, reserveIn, reserveOut)
	if amountOut.Sign() == 0 {
		return nil, ErrZeroOutput
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrExcessiveOutput
	}

	if err := p.ledger.Pull(ctx, assetIn, trader, amountIn); err != nil {
		return nil, fmt.Errorf("%w: pull input: %v", ErrTransferFailed, err)
	}

	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, amountOut)

	if err := p.ledger.Push(ctx, assetOut, trader, amountOut); err != nil {
		reserveIn.Sub(reserveIn, amountIn)
		reserveOut.Add(reserveOut, amountOut)
		if refundErr := p.ledger.Push(ctx, assetIn, trader, amountIn); refundErr != nil {
			return nil, fmt.Errorf("%w: push output: %v (input refund also failed: %v)", ErrTransferFailed, err, refundErr)
		}
		return nil, fmt.Errorf("%w: push output: %v", ErrTransferFailed, err)
	}

	p.logger.Debug("swap executed",
		zap.String("trader", trader.Hex()),
		zap.String("asset_in", assetIn.Hex()),
		zap.String("asset_out", assetOut.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()),
	)
	if p.sink != nil {
		p.sink.Swap(model.SwapEvent{
			Trader:    trader.Hex(),
			AssetIn:   assetIn.Hex(),
			AssetOut:  assetOut.Hex(),
			AmountIn:  amountIn.String(),
			AmountOut: amountOut.String(),
		})
	}

	return amountOut, nil
}

// Assets returns the pool's asset identities in declaration order.
func (p *Pool) Assets() (common.Address, common.Address) {
	return p.asset1, p.asset2
}

// Reserves returns copies of the current reserves.
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserve1), new(big.Int).Set(p.reserve2)
}

// SpotPrice returns reserve2 * 10^18 / reserve1: the instantaneous price
// of asset 1 in units of asset 2, fixed-point scaled. Not time-weighted.
func (p *Pool) SpotPrice() (*big.Int, error) {
	if p.reserve1.Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	price := new(big.Int).Mul(p.reserve2, spotPriceScale)
	return price.Div(price, p.reserve1), nil
}

// TotalShares returns a copy of the outstanding share count.
func (p *Pool) TotalShares() *big.Int {
	return new(big.Int).Set(p.totalShares)
}

// ShareBalance returns a copy of the account's share balance.
func (p *Pool) ShareBalance(account common.Address) *big.Int {
	if balance, ok := p.shares[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// Snapshot returns the pool accounting as a persistable state record.
func (p *Pool) Snapshot() model.PoolState {
	return model.PoolState{
		Asset1:      p.asset1.Hex(),
		Asset2:      p.asset2.Hex(),
		Reserve1:    p.reserve1.String(),
		Reserve2:    p.reserve2.String(),
		TotalShares: p.totalShares.String(),
	}
}

func (p *Pool) sharesForDeposit(amount1, amount2 *big.Int) (*big.Int, error) {
	if p.totalShares.Sign() == 0 {
		minted := geometricMean(amount1, amount2)
		if minted.Sign() == 0 {
			return nil, ErrZeroShares
		}
		return minted, nil
	}
	byAsset1 := proRata(amount1, p.totalShares, p.reserve1)
	byAsset2 := proRata(amount2, p.totalShares, p.reserve2)
	minted := minBig(byAsset1, byAsset2)
	if minted.Sign() == 0 {
		return nil, ErrZeroShares
	}
	return minted, nil
}

func (p *Pool) creditShares(account common.Address, amount *big.Int) {
	if balance, ok := p.shares[account]; ok {
		balance.Add(balance, amount)
		return
	}
	p.shares[account] = new(big.Int).Set(amount)
}

func (p *Pool) debitShares(account common.Address, amount *big.Int) {
	balance := p.shares[account]
	balance.Sub(balance, amount)
	if balance.Sign() == 0 {
		delete(p.shares, account)
	}
}

type accountingSnapshot struct {
	reserve1    *big.Int
	reserve2    *big.Int
	totalShares *big.Int
	balance     *big.Int
	hadBalance  bool
}

func (p *Pool) snapshotAccounting(account common.Address) accountingSnapshot {
	snapshot := accountingSnapshot{
		reserve1:    new(big.Int).Set(p.reserve1),
		reserve2:    new(big.Int).Set(p.reserve2),
		totalShares: new(big.Int).Set(p.totalShares),
	}
	if balance, ok := p.shares[account]; ok {
		snapshot.balance = new(big.Int).Set(balance)
		snapshot.hadBalance = true
	}
	return snapshot
}

func (p *Pool) restoreAccounting(account common.Address, snapshot accountingSnapshot) {
	p.reserve1.Set(snapshot.reserve1)
	p.reserve2.Set(snapshot.reserve2)
	p.totalShares.Set(snapshot.totalShares)
	if snapshot.hadBalance {
		p.shares[account] = snapshot.balance
	} else {
		delete(p.shares, account)
	}
}

// proRata returns floor(amount * numerator / denominator).
func proRata(amount, numerator, denominator *big.Int) *big.Int {
	result := new(big.Int).Mul(amount, numerator)
	return result.Div(result, denominator)
}

func isPositive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
