package calc

import (
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSharesFromAmount(t *testing.T) {
	t.Parallel()

	got := SharesFromAmount(d("10"), d("0.3"))
	if !got.Equal(d("33")) {
		t.Errorf("SharesFromAmount(10, 0.3) = %s, want 33", got)
	}
}

func TestSharesFromAmountZeroPrice(t *testing.T) {
	t.Parallel()

	got := SharesFromAmount(d("10"), decimal.Zero)
	if !got.Equal(decimal.Zero) {
		t.Errorf("SharesFromAmount with zero price = %s, want 0", got)
	}
}

func TestAmountFromSharesRoundTrip(t *testing.T) {
	t.Parallel()

	amount := d("10")
	price := d("0.3")
	shares := SharesFromAmount(amount, price)
	spent := AmountFromShares(shares, price)

	if spent.GreaterThan(amount) {
		t.Errorf("spent %s exceeds amount %s", spent, amount)
	}
	if amount.Sub(spent).GreaterThanOrEqual(price) {
		t.Errorf("gap %s should be less than price %s", amount.Sub(spent), price)
	}
}

func TestPositionShares(t *testing.T) {
	t.Parallel()

	got := PositionShares(d("100"), d("0.5"), d("0.2"))
	if !got.Equal(d("40")) {
		t.Errorf("PositionShares(100, 0.5, 0.2) = %s, want 40", got)
	}
}

func TestDistributionRatiosUniform(t *testing.T) {
	t.Parallel()

	ratios, err := DistributionRatios(4, types.DistUniform, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range ratios {
		if !r.Equal(d("0.25")) {
			t.Errorf("uniform ratio = %s, want 0.25", r)
		}
	}
}

func TestDistributionRatiosPyramid(t *testing.T) {
	t.Parallel()

	ratios, err := DistributionRatios(3, types.DistPyramid, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0.1666666666667", "0.3333333333333", "0.5"}
	for i, w := range want {
		if !ratios[i].Round(13).Equal(d(w)) {
			t.Errorf("pyramid ratio[%d] = %s, want %s", i, ratios[i], w)
		}
	}
}

func TestDistributionRatiosInversePyramid(t *testing.T) {
	t.Parallel()

	ratios, err := DistributionRatios(3, types.DistInversePyramid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ratios[0].GreaterThan(ratios[1]) || !ratios[1].GreaterThan(ratios[2]) {
		t.Errorf("inverse pyramid ratios should be descending, got %v", ratios)
	}
}

func TestDistributionRatiosCustom(t *testing.T) {
	t.Parallel()

	ratios, err := DistributionRatios(2, types.DistCustom, []float64{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !ratios[0].Equal(d("0.25")) || !ratios[1].Equal(d("0.75")) {
		t.Errorf("custom ratios = %v, want [0.25, 0.75]", ratios)
	}
}

func TestDistributionRatiosCustomWrongLength(t *testing.T) {
	t.Parallel()

	if _, err := DistributionRatios(3, types.DistCustom, []float64{1, 2}); err == nil {
		t.Error("expected error for mismatched custom weights length")
	}
}

func TestDistributionRatiosSumToOne(t *testing.T) {
	t.Parallel()

	for _, mode := range []types.DistributionMode{types.DistUniform, types.DistPyramid, types.DistInversePyramid} {
		ratios, err := DistributionRatios(5, mode, nil)
		if err != nil {
			t.Fatal(err)
		}
		sum := decimal.Zero
		for _, r := range ratios {
			sum = sum.Add(r)
		}
		if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(d("0.000001")) {
			t.Errorf("mode %s: sum = %s, want ~1", mode, sum)
		}
	}
}
