package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned when a bank operation names a symbol without a
// registered ledger.
var ErrUnknownToken = errors.New("token bank: unknown token symbol")

// Bank groups the per-asset collateral ledgers and moves units between user
// accounts and a custody vault on behalf of the vault owner. Pull consumes
// the owner's allowance like an ERC-20 transferFrom; Push is a plain
// transfer out of the vault.
type Bank struct {
	mu      sync.RWMutex
	vault   common.Address
	ledgers map[string]*Ledger
}

// NewBank constructs a bank whose custody account is the supplied vault
// address.
func NewBank(vault common.Address) *Bank {
	return &Bank{vault: vault, ledgers: make(map[string]*Ledger)}
}

// RegisterLedger binds a ledger to its asset symbol. Registration happens
// during wiring, before the bank is shared.
func (b *Bank) RegisterLedger(symbol string, ledger *Ledger) error {
	key := canonicalSymbol(symbol)
	if key == "" {
		return fmt.Errorf("token bank: symbol required")
	}
	if ledger == nil {
		return fmt.Errorf("token bank: nil ledger for %s", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.ledgers[key]; exists {
		return fmt.Errorf("token bank: duplicate ledger for %s", key)
	}
	b.ledgers[key] = ledger
	return nil
}

// Ledger returns the ledger registered for the asset symbol.
func (b *Bank) Ledger(symbol string) (*Ledger, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ledger, ok := b.ledgers[canonicalSymbol(symbol)]
	if !ok {
		return nil, ErrUnknownToken
	}
	return ledger, nil
}

// Pull moves amount units of the asset from the account into the vault,
// consuming the account's allowance granted to the vault.
func (b *Bank) Pull(symbol string, from common.Address, amount *big.Int) error {
	ledger, err := b.Ledger(symbol)
	if err != nil {
		return err
	}
	return ledger.TransferFrom(b.vault, from, b.vault, amount)
}

// Push releases amount units of the asset from the vault to the recipient.
func (b *Bank) Push(symbol string, to common.Address, amount *big.Int) error {
	ledger, err := b.Ledger(symbol)
	if err != nil {
		return err
	}
	return ledger.Transfer(b.vault, to, amount)
}

func canonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
