package synth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthmint/core/events"
)

// Liquidate lets the liquidator repay debtToCover of the account's minted
// debt in exchange for the equivalent collateral plus the configured bonus.
// The target position must be below the minimum health factor and must not
// end up worse than it started. Returns the seized collateral amount in the
// asset's native units.
func (e *Engine) Liquidate(liquidator, account common.Address, symbol string, debtToCover *big.Int) (*big.Int, error) {
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	asset, ok := e.assets[canonicalSymbol(symbol)]
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	startFactor, err := e.healthFactorFor(pos)
	if err != nil {
		return nil, err
	}
	if startFactor.Cmp(precision) >= 0 {
		return nil, ErrHealthFactorOk
	}
	if pos.DebtMinted.Cmp(debtToCover) < 0 {
		return nil, ErrBurnExceedsDebt
	}

	price, err := e.latestPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	base := tokensFromUsd(debtToCover, price.Price, asset.Decimals, price.Decimals)
	seize := new(big.Int).Mul(base, new(big.Int).SetUint64(100+e.params.LiquidationBonusPct))
	seize.Quo(seize, hundred)
	if seize.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if pos.CollateralBalance(asset.Symbol).Cmp(seize) < 0 {
		return nil, ErrInsufficientCollateralToLiquidate
	}

	next := pos.Clone()
	next.DebtMinted = new(big.Int).Sub(next.DebtMinted, debtToCover)
	next.debitCollateral(asset.Symbol, seize)
	endFactor, err := e.healthFactorFor(next)
	if err != nil {
		return nil, err
	}
	if endFactor.Cmp(startFactor) <= 0 {
		return nil, ErrHealthFactorNotImproved
	}

	// The repayment must not leave the liquidator's own position unhealthy.
	// When liquidators repay their own debt the post-liquidation clone is the
	// authoritative view.
	liquidatorPos := next
	if liquidator != account {
		liquidatorPos, err = e.loadPosition(liquidator)
		if err != nil {
			return nil, err
		}
	}
	if err := e.requireHealthy(liquidatorPos); err != nil {
		return nil, err
	}

	if err := e.ledger.TransferFrom(e.vault, liquidator, e.vault, debtToCover); err != nil {
		return nil, transferFailed(err)
	}
	if err := e.ledger.Burn(e.vault, e.vault, debtToCover); err != nil {
		_ = e.ledger.TransferFrom(e.vault, e.vault, liquidator, debtToCover)
		return nil, transferFailed(err)
	}
	if err := e.state.PutPosition(account, next); err != nil {
		_ = e.ledger.Mint(e.vault, liquidator, debtToCover)
		return nil, err
	}
	if err := e.bank.Push(asset.Symbol, liquidator, seize); err != nil {
		_ = e.state.PutPosition(account, pos)
		_ = e.ledger.Mint(e.vault, liquidator, debtToCover)
		return nil, transferFailed(err)
	}
	e.emit(events.Liquidated{
		Liquidator:       liquidator,
		Account:          account,
		Asset:            asset.Symbol,
		DebtCovered:      new(big.Int).Set(debtToCover),
		CollateralSeized: new(big.Int).Set(seize),
	})
	return seize, nil
}
