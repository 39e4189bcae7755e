package synth

import (
	"math/big"

	"synthmint/native/oracle"
)

// latestPrice fetches and validates the oracle observation for the asset. A
// non-positive price or an observation older than the configured staleness
// bound aborts the valuation.
func (e *Engine) latestPrice(symbol string) (oracle.PriceData, error) {
	feed, err := e.feeds.Feed(symbol)
	if err != nil {
		return oracle.PriceData{}, ErrUnsupportedAsset
	}
	data, err := feed.LatestPrice(canonicalSymbol(symbol))
	if err != nil {
		return oracle.PriceData{}, err
	}
	if data.Price == nil || data.Price.Sign() <= 0 {
		return oracle.PriceData{}, ErrInvalidPrice
	}
	if e.now().Sub(data.UpdatedAt) > e.staleness {
		return oracle.PriceData{}, ErrStalePrice
	}
	return data, nil
}

// UsdValue converts a native amount of the asset into its 18-decimal USD
// value at the current oracle price.
func (e *Engine) UsdValue(symbol string, amount *big.Int) (*big.Int, error) {
	asset, ok := e.assets[canonicalSymbol(symbol)]
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	price, err := e.latestPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	return usdFromTokens(amount, price.Price, asset.Decimals, price.Decimals), nil
}

// TokenAmountFromUsd converts an 18-decimal USD amount into native units of
// the asset at the current oracle price.
func (e *Engine) TokenAmountFromUsd(symbol string, usd *big.Int) (*big.Int, error) {
	asset, ok := e.assets[canonicalSymbol(symbol)]
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	if usd == nil || usd.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	price, err := e.latestPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	return tokensFromUsd(usd, price.Price, asset.Decimals, price.Decimals), nil
}

// collateralValueUsd sums the USD value of every supported asset held by the
// position. Unsupported symbols lingering in stored state are ignored.
func (e *Engine) collateralValueUsd(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	if pos == nil || len(pos.Collateral) == 0 {
		return total, nil
	}
	for _, symbol := range e.order {
		amount, ok := pos.Collateral[symbol]
		if !ok || amount == nil || amount.Sign() <= 0 {
			continue
		}
		asset := e.assets[symbol]
		price, err := e.latestPrice(symbol)
		if err != nil {
			return nil, err
		}
		total.Add(total, usdFromTokens(amount, price.Price, asset.Decimals, price.Decimals))
	}
	return total, nil
}

// healthFactorFor computes the 18-decimal health factor for the position:
// the threshold-adjusted collateral value divided by minted debt. Positions
// without debt report the max sentinel.
func (e *Engine) healthFactorFor(pos *Position) (*big.Int, error) {
	if pos == nil || pos.DebtMinted == nil || pos.DebtMinted.Sign() == 0 {
		return MaxHealthFactor(), nil
	}
	collateralUsd, err := e.collateralValueUsd(pos)
	if err != nil {
		return nil, err
	}
	adjusted := new(big.Int).Mul(collateralUsd, new(big.Int).SetUint64(e.params.LiquidationThresholdPct))
	adjusted.Quo(adjusted, hundred)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, pos.DebtMinted), nil
}
