package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errInvalidAmount         = errors.New("token ledger: amount must be positive")
	errInsufficientBalance   = errors.New("token ledger: insufficient balance")
	errInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	// ErrNotController is returned when mint or burn is attempted by an
	// account other than the designated controller.
	ErrNotController = errors.New("token ledger: caller is not the controller")
)

// Ledger is a fungible balance ledger with an owner-gated mint/burn
// capability. A single controller address, fixed at construction, is the
// only account permitted to create or destroy units.
type Ledger struct {
	mu         sync.RWMutex
	name       string
	symbol     string
	controller common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	supply     *big.Int
}

// NewLedger constructs an empty ledger controlled by the supplied address.
func NewLedger(name, symbol string, controller common.Address) *Ledger {
	return &Ledger{
		name:       name,
		symbol:     symbol,
		controller: controller,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		supply:     big.NewInt(0),
	}
}

// Name returns the human readable token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Controller returns the address permitted to mint and burn.
func (l *Ledger) Controller() common.Address { return l.controller }

// Mint creates amount units and credits them to the recipient. Only the
// controller may mint.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return ErrNotController
	}
	l.credit(to, amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

// Burn destroys amount units held by the target account. Only the controller
// may burn.
func (l *Ledger) Burn(caller, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return ErrNotController
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.supply = new(big.Int).Sub(l.supply, amount)
	return nil
}

// Transfer moves amount units from the sender to the recipient.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// Approve records the allowance the owner grants the spender. A nil amount
// clears the allowance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	grants, ok := l.allowances[owner]
	if !ok {
		grants = make(map[common.Address]*big.Int)
		l.allowances[owner] = grants
	}
	if amount == nil || amount.Sign() <= 0 {
		delete(grants, spender)
		return
	}
	grants[spender] = new(big.Int).Set(amount)
}

// TransferFrom moves amount units from the owner to the recipient on behalf
// of the spender, consuming the spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance := l.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errInsufficientAllowance
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	remaining := new(big.Int).Sub(allowance, amount)
	if remaining.Sign() > 0 {
		l.allowances[from][spender] = remaining
	} else {
		delete(l.allowances[from], spender)
	}
	return nil
}

// BalanceOf returns the balance held by the account.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[addr]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// Allowance returns the remaining allowance the owner granted the spender.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowance(owner, spender))
}

// TotalSupply returns the outstanding token supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

func (l *Ledger) allowance(owner, spender common.Address) *big.Int {
	if grants, ok := l.allowances[owner]; ok {
		if allowance, ok := grants[spender]; ok {
			return allowance
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	if balance, ok := l.balances[addr]; ok {
		l.balances[addr] = new(big.Int).Add(balance, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}

func (l *Ledger) debit(addr common.Address, amount *big.Int) error {
	balance, ok := l.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	l.balances[addr] = new(big.Int).Sub(balance, amount)
	return nil
}
