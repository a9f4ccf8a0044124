package engine

import "math/big"

// fee: 0.3% => multiplier 997/1000
var (
	feeMul = big.NewInt(997)
	feeDen = big.NewInt(1000)
)

// spotPriceScale fixes the decimal point for SpotPrice results (10^18).
var spotPriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Quote returns the output amount the constant-product formula grants for
// swapping amountIn against the given reserves, with the 0.3% fee folded
// into the input. It validates preconditions but reads no pool state.
func Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrNoLiquidity
	}
	return getAmountOut(amountIn, reserveIn, reserveOut), nil
}

// getAmountOut computes floor(amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)).
// math/big keeps the triple product exact at any magnitude.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, feeMul)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDen)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Div(numerator, denominator)
}

// geometricMean returns floor(sqrt(a*b)).
func geometricMean(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Sqrt(product)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
