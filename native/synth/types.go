package synth

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset describes a supported collateral type. Decimals is the native unit
// scale of the asset; the associated price feed is bound at engine
// construction.
type Asset struct {
	Symbol   string
	Decimals uint8
}

// RiskParameters groups the protocol constants governing minting and
// liquidation.
type RiskParameters struct {
	// LiquidationThresholdPct expresses the required over-collateralization
	// as the percentage of collateral value that may back debt (e.g. 50
	// means debt may be at most half the collateral value).
	LiquidationThresholdPct uint64
	// LiquidationBonusPct is the percentage bonus paid to liquidators on top
	// of the seized collateral equivalent (e.g. 10).
	LiquidationBonusPct uint64
}

// Position maintains the collateral and debt bookkeeping for a single
// account. Collateral amounts are in each asset's native decimals; DebtMinted
// is in 18-decimal USD-pegged units.
type Position struct {
	Address    common.Address      `json:"address"`
	Collateral map[string]*big.Int `json:"collateral"`
	DebtMinted *big.Int            `json:"debtMinted"`
}

// NewPosition returns an empty position for the account.
func NewPosition(addr common.Address) *Position {
	return &Position{
		Address:    addr,
		Collateral: make(map[string]*big.Int),
		DebtMinted: big.NewInt(0),
	}
}

func (p *Position) normalise() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.DebtMinted == nil {
		p.DebtMinted = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position. Operations mutate a clone and
// persist it only once every check has passed.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := NewPosition(p.Address)
	for symbol, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[symbol] = new(big.Int).Set(amount)
		}
	}
	if p.DebtMinted != nil {
		clone.DebtMinted = new(big.Int).Set(p.DebtMinted)
	}
	return clone
}

// CollateralBalance returns the deposited amount of the asset.
func (p *Position) CollateralBalance(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[canonicalSymbol(symbol)]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

func (p *Position) creditCollateral(symbol string, amount *big.Int) {
	key := canonicalSymbol(symbol)
	if existing, ok := p.Collateral[key]; ok && existing != nil {
		p.Collateral[key] = new(big.Int).Add(existing, amount)
		return
	}
	p.Collateral[key] = new(big.Int).Set(amount)
}

func (p *Position) debitCollateral(symbol string, amount *big.Int) {
	key := canonicalSymbol(symbol)
	existing, ok := p.Collateral[key]
	if !ok || existing == nil {
		return
	}
	remaining := new(big.Int).Sub(existing, amount)
	if remaining.Sign() > 0 {
		p.Collateral[key] = remaining
		return
	}
	delete(p.Collateral, key)
}

// DebtLedger is the fungible debt token consumed by the engine. Mint and
// burn are gated on the caller being the ledger controller; the engine
// passes its module address.
type DebtLedger interface {
	Mint(caller, to common.Address, amount *big.Int) error
	Burn(caller, from common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// CollateralBank moves collateral units between user accounts and engine
// custody. Pull consumes the owner's allowance like an ERC-20 transferFrom.
type CollateralBank interface {
	Pull(symbol string, from common.Address, amount *big.Int) error
	Push(symbol string, to common.Address, amount *big.Int) error
}

// engineState is the persistence boundary injected into the engine.
type engineState interface {
	GetPosition(addr common.Address) (*Position, error)
	PutPosition(addr common.Address, position *Position) error
	ListPositions() ([]*Position, error)
}

func canonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
