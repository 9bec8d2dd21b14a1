// Package calc holds the pure, stateless order-sizing math the Market-Maker
// Engine and Grid strategy both depend on (SPEC_FULL.md §4.4). Every function
// here is deterministic and side-effect free, following the pack's convention
// of factoring small pure helpers (e.g. types.TickSize.Decimals) out of the
// stateful components that call them.
package calc

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// SharesFromAmount returns floor(amount/price) shares purchasable with amount
// quote currency at price, or zero if price is not positive.
func SharesFromAmount(amount, price decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.Div(price).Floor()
}

// AmountFromShares returns the quote-currency cost of shares at price.
func AmountFromShares(shares, price decimal.Decimal) decimal.Decimal {
	return shares.Mul(price)
}

// PositionShares returns the shares obtainable by spending ratio*balance at
// price.
func PositionShares(balance, price, ratio decimal.Decimal) decimal.Decimal {
	amount := balance.Mul(ratio)
	return SharesFromAmount(amount, price)
}

// distributionTolerance bounds the floating-point drift allowed when
// verifying ratios sum to 1, per SPEC_FULL.md §4.4's "within floating
// tolerance" contract.
var distributionTolerance = decimal.New(1, -6)

// DistributionRatios returns n positive weights summing to 1, shaped by mode.
// UNIFORM divides evenly; PYRAMID weights level i (1-indexed) by i, normalized;
// INVERSE_PYRAMID weights level i by (n+1-i), normalized; CUSTOM normalizes
// the caller-supplied weights (must have length n).
func DistributionRatios(n int, mode types.DistributionMode, custom []float64) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, fmt.Errorf("distribution ratios: n must be positive, got %d", n)
	}

	var raw []decimal.Decimal
	switch mode {
	case types.DistUniform:
		raw = make([]decimal.Decimal, n)
		for i := range raw {
			raw[i] = decimal.NewFromInt(1)
		}
	case types.DistPyramid:
		raw = make([]decimal.Decimal, n)
		for i := range raw {
			raw[i] = decimal.NewFromInt(int64(i + 1))
		}
	case types.DistInversePyramid:
		raw = make([]decimal.Decimal, n)
		for i := range raw {
			raw[i] = decimal.NewFromInt(int64(n - i))
		}
	case types.DistCustom:
		if len(custom) != n {
			return nil, fmt.Errorf("distribution ratios: custom weights length %d != n %d", len(custom), n)
		}
		raw = make([]decimal.Decimal, n)
		for i, w := range custom {
			if w <= 0 {
				return nil, fmt.Errorf("distribution ratios: custom weight %d must be positive, got %v", i, w)
			}
			raw[i] = decimal.NewFromFloat(w)
		}
	default:
		return nil, fmt.Errorf("distribution ratios: unknown mode %q", mode)
	}

	total := decimal.Zero
	for _, w := range raw {
		total = total.Add(w)
	}
	if total.Sign() <= 0 {
		return nil, fmt.Errorf("distribution ratios: total weight is not positive")
	}

	ratios := make([]decimal.Decimal, n)
	sum := decimal.Zero
	for i, w := range raw {
		ratios[i] = w.Div(total)
		sum = sum.Add(ratios[i])
	}

	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(distributionTolerance) {
		return nil, fmt.Errorf("distribution ratios: sum %s deviates from 1 beyond tolerance", sum)
	}
	for i, r := range ratios {
		if r.Sign() <= 0 {
			return nil, fmt.Errorf("distribution ratios: ratio %d is not positive (%s)", i, r)
		}
	}

	return ratios, nil
}
