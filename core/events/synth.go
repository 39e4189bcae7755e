package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeCollateralDeposited is emitted when collateral enters engine custody.
	TypeCollateralDeposited = "synth.collateral.deposited"
	// TypeCollateralWithdrawn is emitted when collateral is released back to
	// its owner.
	TypeCollateralWithdrawn = "synth.collateral.withdrawn"
	// TypeDebtMinted is emitted when new debt tokens are created against a
	// position.
	TypeDebtMinted = "synth.debt.minted"
	// TypeDebtBurned is emitted when debt tokens are destroyed.
	TypeDebtBurned = "synth.debt.burned"
	// TypeLiquidated is emitted when a third party closes an unhealthy
	// position.
	TypeLiquidated = "synth.position.liquidated"
)

// CollateralDeposited records a collateral deposit.
type CollateralDeposited struct {
	Account common.Address
	Asset   string
	Amount  *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

// CollateralWithdrawn records a collateral withdrawal.
type CollateralWithdrawn struct {
	Account common.Address
	Asset   string
	Amount  *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

// DebtMinted records debt token creation against a position.
type DebtMinted struct {
	Account common.Address
	Amount  *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

// DebtBurned records debt token destruction.
type DebtBurned struct {
	Account common.Address
	Amount  *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

// Liquidated records a third-party liquidation.
type Liquidated struct {
	Liquidator       common.Address
	Account          common.Address
	Asset            string
	DebtCovered      *big.Int
	CollateralSeized *big.Int
}

func (Liquidated) EventType() string { return TypeLiquidated }
