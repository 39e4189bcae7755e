package synth

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState = errors.New("synth engine: state not configured")

	// ErrZeroAmount rejects operations with a non-positive amount.
	ErrZeroAmount = errors.New("synth engine: amount must be positive")
	// ErrUnsupportedAsset rejects operations naming an asset outside the
	// supported set fixed at construction.
	ErrUnsupportedAsset = errors.New("synth engine: unsupported collateral asset")
	// ErrInsufficientCollateral rejects withdrawals exceeding the deposited
	// balance.
	ErrInsufficientCollateral = errors.New("synth engine: insufficient collateral balance")
	// ErrBurnExceedsDebt rejects burns larger than the outstanding debt.
	ErrBurnExceedsDebt = errors.New("synth engine: burn amount exceeds minted debt")
	// ErrHealthFactorOk rejects liquidation attempts against healthy
	// positions.
	ErrHealthFactorOk = errors.New("synth engine: health factor above liquidation threshold")
	// ErrHealthFactorNotImproved rejects liquidations that would leave the
	// position worse off than before.
	ErrHealthFactorNotImproved = errors.New("synth engine: health factor not improved")
	// ErrInsufficientCollateralToLiquidate rejects liquidations whose seize
	// amount exceeds the position's balance of the named asset.
	ErrInsufficientCollateralToLiquidate = errors.New("synth engine: insufficient collateral to liquidate")
	// ErrStalePrice aborts valuation when the oracle observation exceeds the
	// configured staleness bound.
	ErrStalePrice = errors.New("synth engine: stale oracle price")
	// ErrInvalidPrice aborts valuation when the oracle reports a
	// non-positive price.
	ErrInvalidPrice = errors.New("synth engine: invalid oracle price")
	// ErrTransferFailed propagates failures from the asset transfer or debt
	// ledger collaborators.
	ErrTransferFailed = errors.New("synth engine: token transfer failed")
)

// BreaksHealthFactorError reports an operation that would leave the position
// below the minimum health factor. Factor carries the computed 18-decimal
// ratio for diagnostics.
type BreaksHealthFactorError struct {
	Factor *big.Int
}

func (e *BreaksHealthFactorError) Error() string {
	if e == nil || e.Factor == nil {
		return "synth engine: operation breaks health factor"
	}
	return fmt.Sprintf("synth engine: operation breaks health factor (factor %s)", e.Factor)
}

func breaksHealthFactor(factor *big.Int) error {
	cloned := big.NewInt(0)
	if factor != nil {
		cloned = new(big.Int).Set(factor)
	}
	return &BreaksHealthFactorError{Factor: cloned}
}

func transferFailed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
