package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poolEngine/internal/ledger"
	"poolEngine/internal/model"
)

var (
	assetA = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	assetB = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type captureSink struct {
	added   []model.LiquidityAddedEvent
	removed []model.LiquidityRemovedEvent
	swaps   []model.SwapEvent
}

func (s *captureSink) LiquidityAdded(e model.LiquidityAddedEvent) { s.added = append(s.added, e) }
func (s *captureSink) LiquidityRemoved(e model.LiquidityRemovedEvent) {
	s.removed = append(s.removed, e)
}
func (s *captureSink) Swap(e model.SwapEvent) { s.swaps = append(s.swaps, e) }

func newTestPool(t *testing.T) (*Pool, *ledger.Ledger, *captureSink) {
	t.Helper()
	l := ledger.New()
	sink := &captureSink{}
	pool, err := NewPool(assetA, assetB, l, sink, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool, l, sink
}

func fund(l *ledger.Ledger, account common.Address, amountA, amountB int64) {
	l.Mint(assetA, account, big.NewInt(amountA))
	l.Approve(assetA, account, big.NewInt(amountA))
	l.Mint(assetB, account, big.NewInt(amountB))
	l.Approve(assetB, account, big.NewInt(amountB))
}

func mustProvision(t *testing.T, pool *Pool, provider common.Address, a1, a2 int64) *big.Int {
	t.Helper()
	minted, err := pool.Provision(context.Background(), provider, big.NewInt(a1), big.NewInt(a2))
	if err != nil {
		t.Fatalf("provision(%d, %d): %v", a1, a2, err)
	}
	return minted
}

func TestNewPoolValidation(t *testing.T) {
	l := ledger.New()
	if _, err := NewPool(common.Address{}, assetB, l, nil, nil); !errors.Is(err, ErrNilAsset) {
		t.Fatalf("expected ErrNilAsset, got %v", err)
	}
	if _, err := NewPool(assetA, common.Address{}, l, nil, nil); !errors.Is(err, ErrNilAsset) {
		t.Fatalf("expected ErrNilAsset, got %v", err)
	}
	if _, err := NewPool(assetA, assetA, l, nil, nil); !errors.Is(err, ErrIdenticalAsset) {
		t.Fatalf("expected ErrIdenticalAsset, got %v", err)
	}
	if _, err := NewPool(assetA, assetB, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil ledger")
	}
}

func TestFirstProvision(t *testing.T) {
	pool, l, sink := newTestPool(t)
	fund(l, alice, 100, 200)

	minted := mustProvision(t, pool, alice, 100, 200)
	if minted.Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("shares minted: got %s want 141", minted)
	}

	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(100)) != 0 || r2.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("reserves: got (%s, %s) want (100, 200)", r1, r2)
	}
	if pool.TotalShares().Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("total shares: got %s want 141", pool.TotalShares())
	}
	if pool.ShareBalance(alice).Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("alice shares: got %s want 141", pool.ShareBalance(alice))
	}

	if len(sink.added) != 1 {
		t.Fatalf("expected 1 liquidity-added event, got %d", len(sink.added))
	}
	event := sink.added[0]
	if event.Provider != alice.Hex() || event.Amount1 != "100" || event.Amount2 != "200" || event.SharesMinted != "141" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestProvisionValidation(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)

	if _, err := pool.Provision(context.Background(), alice, big.NewInt(0), big.NewInt(100)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := pool.Provision(context.Background(), alice, big.NewInt(100), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	r1, r2 := pool.Reserves()
	if r1.Sign() != 0 || r2.Sign() != 0 {
		t.Fatalf("reserves changed on rejected provision: (%s, %s)", r1, r2)
	}
}

func TestSubsequentProvisionMintsWorseRatio(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)
	fund(l, bob, 50, 1000)
	mustProvision(t, pool, alice, 100, 200)

	// bob's asset1 ratio is the worse one: floor(50*141/100) = 70 even
	// though his asset2 amount alone would credit floor(1000*141/200) = 705.
	minted := mustProvision(t, pool, bob, 50, 1000)
	if minted.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("shares minted: got %s want 70", minted)
	}

	// The skewed deposit is absorbed whole; no refund.
	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(150)) != 0 || r2.Cmp(big.NewInt(1200)) != 0 {
		t.Fatalf("reserves: got (%s, %s) want (150, 1200)", r1, r2)
	}
}

func TestProvisionDegenerateMint(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)
	fund(l, bob, 1, 1)
	mustProvision(t, pool, alice, 100, 200)

	// floor(1*141/200) = 0: the deposit is too small for any credit.
	if _, err := pool.Provision(context.Background(), bob, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrZeroShares) {
		t.Fatalf("expected ErrZeroShares, got %v", err)
	}
	if l.BalanceOf(assetA, bob).Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("bob's balance should be untouched after rejection")
	}
}

func TestProvisionWithdrawRoundTrip(t *testing.T) {
	pool, l, sink := newTestPool(t)
	fund(l, alice, 100, 200)

	minted := mustProvision(t, pool, alice, 100, 200)

	out1, out2, err := pool.Withdraw(context.Background(), alice, minted)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out1.Cmp(big.NewInt(100)) != 0 || out2.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("round trip: got (%s, %s) want (100, 200)", out1, out2)
	}

	r1, r2 := pool.Reserves()
	if r1.Sign() != 0 || r2.Sign() != 0 {
		t.Fatalf("reserves after drain: got (%s, %s) want (0, 0)", r1, r2)
	}
	if pool.TotalShares().Sign() != 0 {
		t.Fatalf("total shares after drain: got %s want 0", pool.TotalShares())
	}
	if l.BalanceOf(assetA, alice).Cmp(big.NewInt(100)) != 0 || l.BalanceOf(assetB, alice).Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("alice balances not restored: (%s, %s)",
			l.BalanceOf(assetA, alice), l.BalanceOf(assetB, alice))
	}
	if len(sink.removed) != 1 {
		t.Fatalf("expected 1 liquidity-removed event, got %d", len(sink.removed))
	}
}

func TestDrainedPoolRestarts(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 200, 400)

	minted := mustProvision(t, pool, alice, 100, 200)
	if _, _, err := pool.Withdraw(context.Background(), alice, minted); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Drained pool accepts a fresh first provision on the sqrt path.
	l.Approve(assetA, alice, big.NewInt(100))
	l.Approve(assetB, alice, big.NewInt(200))
	minted = mustProvision(t, pool, alice, 100, 200)
	if minted.Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("restart mint: got %s want 141", minted)
	}
}

func TestWithdrawValidation(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)

	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(1)); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity on empty pool, got %v", err)
	}

	mustProvision(t, pool, alice, 100, 200)

	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(142)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, _, err := pool.Withdraw(context.Background(), bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares for non-provider, got %v", err)
	}
}

func TestWithdrawDegenerateOutput(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 2, 8)

	// sqrt(16) = 4 shares over reserve1 = 2: burning one share pays
	// floor(1*2/4) = 0 of asset 1.
	mustProvision(t, pool, alice, 2, 8)
	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(1)); !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
	if pool.TotalShares().Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("total shares changed on rejected withdraw: %s", pool.TotalShares())
	}
}

func TestSwapUpdatesReserves(t *testing.T) {
	pool, l, sink := newTestPool(t)
	fund(l, alice, 100, 200)
	fund(l, bob, 10, 0)
	mustProvision(t, pool, alice, 100, 200)

	out, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(10))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("swap output: got %s want 18", out)
	}

	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(110)) != 0 || r2.Cmp(big.NewInt(182)) != 0 {
		t.Fatalf("reserves: got (%s, %s) want (110, 182)", r1, r2)
	}

	// Constant product never decreases: 110*182 = 20020 >= 100*200.
	product := new(big.Int).Mul(r1, r2)
	if product.Cmp(big.NewInt(20000)) < 0 {
		t.Fatalf("product decreased: %s < 20000", product)
	}

	if l.BalanceOf(assetA, bob).Sign() != 0 || l.BalanceOf(assetB, bob).Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("bob balances: (%s, %s)", l.BalanceOf(assetA, bob), l.BalanceOf(assetB, bob))
	}

	if len(sink.swaps) != 1 {
		t.Fatalf("expected 1 swap event, got %d", len(sink.swaps))
	}
	event := sink.swaps[0]
	if event.AssetIn != assetA.Hex() || event.AssetOut != assetB.Hex() || event.AmountIn != "10" || event.AmountOut != "18" {
		t.Fatalf("unexpected swap event: %+v", event)
	}
}

func TestSwapOppositeDirection(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)
	fund(l, bob, 0, 40)
	mustProvision(t, pool, alice, 100, 200)

	// floor(40*997*100 / (200*1000 + 40*997)) = floor(3988000/239880) = 16
	out, err := pool.Swap(context.Background(), bob, assetB, big.NewInt(40))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out.Cmp(big.NewInt(16)) != 0 {
		t.Fatalf("swap output: got %s want 16", out)
	}

	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(84)) != 0 || r2.Cmp(big.NewInt(240)) != 0 {
		t.Fatalf("reserves: got (%s, %s) want (84, 240)", r1, r2)
	}
}

func TestSwapValidation(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)
	fund(l, bob, 10, 10)

	if _, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(10)); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity on empty pool, got %v", err)
	}

	mustProvision(t, pool, alice, 100, 200)

	if _, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	other := common.HexToAddress("0x00000000000000000000000000000000000000C3")
	if _, err := pool.Swap(context.Background(), bob, other, big.NewInt(10)); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
	// floor(1*997*100 / (200*1000 + 997)) = 0
	if _, err := pool.Swap(context.Background(), bob, assetB, big.NewInt(1)); !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestSpotPrice(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 100, 200)

	if _, err := pool.SpotPrice(); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity on empty pool, got %v", err)
	}

	mustProvision(t, pool, alice, 100, 200)

	price, err := pool.SpotPrice()
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if price.String() != "2000000000000000000" {
		t.Fatalf("spot price: got %s want 2*10^18", price)
	}
}

func TestPullFailureAbortsProvision(t *testing.T) {
	pool, l, _ := newTestPool(t)
	// alice has asset1 approved but no asset2 authorization.
	l.Mint(assetA, alice, big.NewInt(100))
	l.Approve(assetA, alice, big.NewInt(100))
	l.Mint(assetB, alice, big.NewInt(200))

	_, err := pool.Provision(context.Background(), alice, big.NewInt(100), big.NewInt(200))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	r1, r2 := pool.Reserves()
	if r1.Sign() != 0 || r2.Sign() != 0 || pool.TotalShares().Sign() != 0 {
		t.Fatalf("pool mutated on failed provision: (%s, %s, %s)", r1, r2, pool.TotalShares())
	}
	// The asset1 leg was refunded.
	if l.BalanceOf(assetA, alice).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("asset1 not refunded: %s", l.BalanceOf(assetA, alice))
	}
}

// faultyLedger wraps the in-memory ledger and fails pushes of one asset.
type faultyLedger struct {
	*ledger.Ledger
	failPushAsset common.Address
	failing       bool
}

func (f *faultyLedger) Push(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if f.failing && asset == f.failPushAsset {
		return fmt.Errorf("push rejected")
	}
	return f.Ledger.Push(ctx, asset, to, amount)
}

func TestPushFailureRollsBackWithdraw(t *testing.T) {
	l := &faultyLedger{Ledger: ledger.New(), failPushAsset: assetA}
	pool, err := NewPool(assetA, assetB, l, nil, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	fund(l.Ledger, alice, 100, 200)
	mustProvision(t, pool, alice, 100, 200)

	l.failing = true
	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(141)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(100)) != 0 || r2.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("reserves not rolled back: (%s, %s)", r1, r2)
	}
	if pool.TotalShares().Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("total shares not rolled back: %s", pool.TotalShares())
	}
	if pool.ShareBalance(alice).Cmp(big.NewInt(141)) != 0 {
		t.Fatalf("share balance not rolled back: %s", pool.ShareBalance(alice))
	}
}

func TestPushFailureRollsBackSwap(t *testing.T) {
	l := &faultyLedger{Ledger: ledger.New(), failPushAsset: assetB}
	pool, err := NewPool(assetA, assetB, l, nil, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	fund(l.Ledger, alice, 100, 200)
	fund(l.Ledger, bob, 10, 0)
	mustProvision(t, pool, alice, 100, 200)

	l.failing = true
	if _, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(10)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	r1, r2 := pool.Reserves()
	if r1.Cmp(big.NewInt(100)) != 0 || r2.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("reserves not rolled back: (%s, %s)", r1, r2)
	}
	// The pulled input was refunded.
	if l.BalanceOf(assetA, bob).Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("input not refunded: %s", l.BalanceOf(assetA, bob))
	}
}

// reentrantLedger calls back into the pool from inside Pull, once.
type reentrantLedger struct {
	*ledger.Ledger
	attack    func() error
	attacked  bool
	attackErr error
}

func (r *reentrantLedger) Pull(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if !r.attacked && r.attack != nil {
		r.attacked = true
		r.attackErr = r.attack()
	}
	return r.Ledger.Pull(ctx, asset, from, amount)
}

func TestReentrantCallRejected(t *testing.T) {
	l := &reentrantLedger{Ledger: ledger.New()}
	pool, err := NewPool(assetA, assetB, l, nil, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	fund(l.Ledger, alice, 100, 200)

	l.attack = func() error {
		_, err := pool.Swap(context.Background(), alice, assetA, big.NewInt(1))
		return err
	}

	if _, err := pool.Provision(context.Background(), alice, big.NewInt(100), big.NewInt(200)); err != nil {
		t.Fatalf("outer provision should succeed: %v", err)
	}
	if !l.attacked {
		t.Fatalf("reentrant callback never ran")
	}
	if !errors.Is(l.attackErr, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall from reentrant swap, got %v", l.attackErr)
	}
}

func TestShareSumMatchesTotal(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 1000, 2000)
	fund(l, bob, 1000, 2000)

	checkSum := func(stage string) {
		t.Helper()
		sum := new(big.Int).Add(pool.ShareBalance(alice), pool.ShareBalance(bob))
		if sum.Cmp(pool.TotalShares()) != 0 {
			t.Fatalf("%s: share sum %s != total %s", stage, sum, pool.TotalShares())
		}
		r1, r2 := pool.Reserves()
		if (r1.Sign() == 0) != (r2.Sign() == 0) {
			t.Fatalf("%s: one reserve zero while the other is not: (%s, %s)", stage, r1, r2)
		}
	}

	mustProvision(t, pool, alice, 100, 200)
	checkSum("after first provision")

	mustProvision(t, pool, bob, 300, 600)
	checkSum("after second provision")

	if _, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(25)); err != nil {
		t.Fatalf("swap: %v", err)
	}
	checkSum("after swap")

	if _, _, err := pool.Withdraw(context.Background(), alice, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	checkSum("after partial withdraw")
}

func TestSwapFeeAccruesToProviders(t *testing.T) {
	pool, l, _ := newTestPool(t)
	fund(l, alice, 1000, 2000)
	fund(l, bob, 100, 0)

	mustProvision(t, pool, alice, 1000, 2000)
	before1, before2 := pool.Reserves()
	productBefore := new(big.Int).Mul(before1, before2)

	if _, err := pool.Swap(context.Background(), bob, assetA, big.NewInt(100)); err != nil {
		t.Fatalf("swap: %v", err)
	}

	after1, after2 := pool.Reserves()
	productAfter := new(big.Int).Mul(after1, after2)
	if productAfter.Cmp(productBefore) <= 0 {
		t.Fatalf("product should grow through fee retention: %s <= %s", productAfter, productBefore)
	}
}
