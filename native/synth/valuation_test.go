package synth

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestUsdValueConversion(t *testing.T) {
	h := newTestHarness(t)

	// 15 WETH at $2000 reported with 8 feed decimals is $30,000.
	value, err := h.engine.UsdValue("WETH", eth(15))
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Cmp(eth(30000)) != 0 {
		t.Fatalf("expected 30000e18, got %s", value)
	}
}

func TestTokenAmountFromUsd(t *testing.T) {
	h := newTestHarness(t)

	// $100 of WETH at $2000 is 0.05 WETH.
	amount, err := h.engine.TokenAmountFromUsd("WETH", eth(100))
	if err != nil {
		t.Fatalf("token amount: %v", err)
	}
	want, _ := new(big.Int).SetString("50000000000000000", 10)
	if amount.Cmp(want) != 0 {
		t.Fatalf("expected 0.05 WETH, got %s", amount)
	}
}

func TestValuationTruncatesTowardZero(t *testing.T) {
	h := newTestHarness(t)
	h.feed.Set("WETH", big.NewInt(299999999999), 8, h.now) // $2999.99999999

	value, err := h.engine.UsdValue("WETH", big.NewInt(1))
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	// 1 wei of WETH: 299999999999*1e18/(1e18*1e8) truncates to 2999.
	if value.Cmp(big.NewInt(2999)) != 0 {
		t.Fatalf("expected truncated value 2999, got %s", value)
	}
}

func TestValuationRejectsUnsupportedAsset(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.engine.UsdValue("DOGE", eth(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	if _, err := h.engine.TokenAmountFromUsd("DOGE", eth(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestValuationRejectsStalePrice(t *testing.T) {
	h := newTestHarness(t)
	h.feed.Set("WETH", price8(2000), 8, h.now.Add(-2*time.Hour))

	if _, err := h.engine.UsdValue("WETH", eth(1)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestValuationRejectsInvalidPrice(t *testing.T) {
	h := newTestHarness(t)
	h.feed.Set("WETH", big.NewInt(0), 8, h.now)

	if _, err := h.engine.UsdValue("WETH", eth(1)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestStalePriceBlocksMinting(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x88)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.feed.Set("WETH", price8(2000), 8, h.now.Add(-2*time.Hour))

	if err := h.engine.MintDebt(user, eth(100)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestHealthFactorComputation(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x99)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositAndMint(user, "WETH", eth(1), eth(500)); err != nil {
		t.Fatalf("composite deposit and mint: %v", err)
	}

	// $2000 collateral at a 50% threshold against $500 debt is a factor of 2.
	factor, err := h.engine.GetHealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(eth(2)) != 0 {
		t.Fatalf("expected factor 2e18, got %s", factor)
	}
}
