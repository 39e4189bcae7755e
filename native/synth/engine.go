package synth

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthmint/core/events"
	"synthmint/native/oracle"
)

// ModuleAddress is the custody account that holds deposited collateral and
// carries the mint/burn authority over the debt ledger.
var ModuleAddress = common.BytesToAddress([]byte("synthmint/engine/vault"))

// Engine orchestrates the collateral, debt and liquidation state transitions
// for the synthetic-asset module. All state-changing operations are
// serialized behind a single lock and persist their effects only after every
// invariant check has passed.
type Engine struct {
	mu        sync.RWMutex
	state     engineState
	assets    map[string]Asset
	order     []string
	feeds     *oracle.Registry
	ledger    DebtLedger
	bank      CollateralBank
	vault     common.Address
	params    RiskParameters
	staleness time.Duration
	now       func() time.Time
	emitter   events.Emitter
}

// NewEngine constructs an engine over the supplied asset set. The assets and
// feeds lists are parallel; a length mismatch fails with
// oracle.ErrFeedLengthMismatch.
func NewEngine(assets []Asset, feeds []oracle.PriceFeed, ledger DebtLedger, bank CollateralBank, params RiskParameters, staleness time.Duration) (*Engine, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("synth engine: at least one collateral asset required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("synth engine: debt ledger required")
	}
	if bank == nil {
		return nil, fmt.Errorf("synth engine: collateral bank required")
	}
	if params.LiquidationThresholdPct == 0 || params.LiquidationThresholdPct > 100 {
		return nil, fmt.Errorf("synth engine: liquidation threshold must be within (0, 100]")
	}
	if params.LiquidationBonusPct >= 100 {
		return nil, fmt.Errorf("synth engine: liquidation bonus must be below 100")
	}
	if staleness <= 0 {
		return nil, fmt.Errorf("synth engine: price staleness bound required")
	}
	symbols := make([]string, 0, len(assets))
	bySymbol := make(map[string]Asset, len(assets))
	for _, asset := range assets {
		canonical := canonicalSymbol(asset.Symbol)
		if canonical == "" {
			return nil, fmt.Errorf("synth engine: empty asset symbol")
		}
		if _, exists := bySymbol[canonical]; exists {
			return nil, fmt.Errorf("synth engine: duplicate asset symbol %s", canonical)
		}
		asset.Symbol = canonical
		bySymbol[canonical] = asset
		symbols = append(symbols, canonical)
	}
	registry, err := oracle.NewRegistry(symbols, feeds)
	if err != nil {
		return nil, err
	}
	return &Engine{
		assets:    bySymbol,
		order:     symbols,
		feeds:     registry,
		ledger:    ledger,
		bank:      bank,
		vault:     ModuleAddress,
		params:    params,
		staleness: staleness,
		now:       time.Now,
		emitter:   events.NoopEmitter{},
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source used for staleness checks.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// Params returns the configured risk parameters.
func (e *Engine) Params() RiskParameters { return e.params }

// Assets returns the supported collateral assets in registration order.
func (e *Engine) Assets() []Asset {
	out := make([]Asset, 0, len(e.order))
	for _, symbol := range e.order {
		out = append(out, e.assets[symbol])
	}
	return out
}

// PriceFeed returns the oracle feed bound to the asset.
func (e *Engine) PriceFeed(symbol string) (oracle.PriceFeed, error) {
	if !e.supported(symbol) {
		return nil, ErrUnsupportedAsset
	}
	return e.feeds.Feed(symbol)
}

// DepositCollateral locks collateral for the account inside engine custody.
func (e *Engine) DepositCollateral(account common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if !e.supported(symbol) {
		return ErrUnsupportedAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(account)
	if err != nil {
		return err
	}
	next := pos.Clone()
	next.creditCollateral(symbol, amount)

	if err := e.bank.Pull(symbol, account, amount); err != nil {
		return transferFailed(err)
	}
	if err := e.state.PutPosition(account, next); err != nil {
		_ = e.bank.Push(symbol, account, amount)
		return err
	}
	e.emit(events.CollateralDeposited{Account: account, Asset: canonicalSymbol(symbol), Amount: new(big.Int).Set(amount)})
	return nil
}

// WithdrawCollateral releases collateral back to the account while ensuring
// the resulting position remains healthy.
func (e *Engine) WithdrawCollateral(account common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if !e.supported(symbol) {
		return ErrUnsupportedAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(account)
	if err != nil {
		return err
	}
	if pos.CollateralBalance(symbol).Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	next := pos.Clone()
	next.debitCollateral(symbol, amount)
	if err := e.requireHealthy(next); err != nil {
		return err
	}
	if err := e.state.PutPosition(account, next); err != nil {
		return err
	}
	if err := e.bank.Push(symbol, account, amount); err != nil {
		_ = e.state.PutPosition(account, pos)
		return transferFailed(err)
	}
	e.emit(events.CollateralWithdrawn{Account: account, Asset: canonicalSymbol(symbol), Amount: new(big.Int).Set(amount)})
	return nil
}

// MintDebt creates debt tokens against the account's collateral.
func (e *Engine) MintDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mintDebtLocked(account, amount)
}

func (e *Engine) mintDebtLocked(account common.Address, amount *big.Int) error {
	pos, err := e.loadPosition(account)
	if err != nil {
		return err
	}
	next := pos.Clone()
	next.DebtMinted = new(big.Int).Add(next.DebtMinted, amount)
	if err := e.requireHealthy(next); err != nil {
		return err
	}
	if err := e.state.PutPosition(account, next); err != nil {
		return err
	}
	if err := e.ledger.Mint(e.vault, account, amount); err != nil {
		_ = e.state.PutPosition(account, pos)
		return transferFailed(err)
	}
	e.emit(events.DebtMinted{Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// BurnDebt pulls debt tokens from the account (which must have approved the
// engine) and destroys them, reducing the position's minted debt.
func (e *Engine) BurnDebt(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.burnDebtLocked(account, account, amount)
}

// burnDebtLocked pulls amount debt tokens from payer and retires them against
// the target position.
func (e *Engine) burnDebtLocked(position, payer common.Address, amount *big.Int) error {
	pos, err := e.loadPosition(position)
	if err != nil {
		return err
	}
	if pos.DebtMinted.Cmp(amount) < 0 {
		return ErrBurnExceedsDebt
	}
	next := pos.Clone()
	next.DebtMinted = new(big.Int).Sub(next.DebtMinted, amount)

	if err := e.ledger.TransferFrom(e.vault, payer, e.vault, amount); err != nil {
		return transferFailed(err)
	}
	if err := e.ledger.Burn(e.vault, e.vault, amount); err != nil {
		_ = e.ledger.TransferFrom(e.vault, e.vault, payer, amount)
		return transferFailed(err)
	}
	if err := e.state.PutPosition(position, next); err != nil {
		_ = e.ledger.Mint(e.vault, payer, amount)
		return err
	}
	e.emit(events.DebtBurned{Account: position, Amount: new(big.Int).Set(amount)})
	return nil
}

// DepositAndMint atomically deposits collateral and mints debt against it.
// If any step fails no collateral remains deposited.
func (e *Engine) DepositAndMint(account common.Address, symbol string, collateralAmount, mintAmount *big.Int) error {
	if collateralAmount == nil || collateralAmount.Sign() <= 0 || mintAmount == nil || mintAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if !e.supported(symbol) {
		return ErrUnsupportedAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(account)
	if err != nil {
		return err
	}
	next := pos.Clone()
	next.creditCollateral(symbol, collateralAmount)
	next.DebtMinted = new(big.Int).Add(next.DebtMinted, mintAmount)
	if err := e.requireHealthy(next); err != nil {
		return err
	}
	if err := e.bank.Pull(symbol, account, collateralAmount); err != nil {
		return transferFailed(err)
	}
	if err := e.ledger.Mint(e.vault, account, mintAmount); err != nil {
		_ = e.bank.Push(symbol, account, collateralAmount)
		return transferFailed(err)
	}
	if err := e.state.PutPosition(account, next); err != nil {
		_ = e.ledger.Burn(e.vault, account, mintAmount)
		_ = e.bank.Push(symbol, account, collateralAmount)
		return err
	}
	e.emit(events.CollateralDeposited{Account: account, Asset: canonicalSymbol(symbol), Amount: new(big.Int).Set(collateralAmount)})
	e.emit(events.DebtMinted{Account: account, Amount: new(big.Int).Set(mintAmount)})
	return nil
}

// RedeemAndBurn atomically burns debt and withdraws collateral. Debt is
// retired before collateral leaves custody so the position is never
// transiently under-collateralized; the final health check is authoritative.
func (e *Engine) RedeemAndBurn(account common.Address, symbol string, withdrawAmount, burnAmount *big.Int) error {
	if withdrawAmount == nil || withdrawAmount.Sign() <= 0 || burnAmount == nil || burnAmount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if !e.supported(symbol) {
		return ErrUnsupportedAsset
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(account)
	if err != nil {
		return err
	}
	if pos.DebtMinted.Cmp(burnAmount) < 0 {
		return ErrBurnExceedsDebt
	}
	if pos.CollateralBalance(symbol).Cmp(withdrawAmount) < 0 {
		return ErrInsufficientCollateral
	}
	next := pos.Clone()
	next.DebtMinted = new(big.Int).Sub(next.DebtMinted, burnAmount)
	next.debitCollateral(symbol, withdrawAmount)
	if err := e.requireHealthy(next); err != nil {
		return err
	}
	if err := e.ledger.TransferFrom(e.vault, account, e.vault, burnAmount); err != nil {
		return transferFailed(err)
	}
	if err := e.ledger.Burn(e.vault, e.vault, burnAmount); err != nil {
		_ = e.ledger.TransferFrom(e.vault, e.vault, account, burnAmount)
		return transferFailed(err)
	}
	if err := e.state.PutPosition(account, next); err != nil {
		_ = e.ledger.Mint(e.vault, account, burnAmount)
		return err
	}
	if err := e.bank.Push(symbol, account, withdrawAmount); err != nil {
		_ = e.state.PutPosition(account, pos)
		_ = e.ledger.Mint(e.vault, account, burnAmount)
		return transferFailed(err)
	}
	e.emit(events.DebtBurned{Account: account, Amount: new(big.Int).Set(burnAmount)})
	e.emit(events.CollateralWithdrawn{Account: account, Asset: canonicalSymbol(symbol), Amount: new(big.Int).Set(withdrawAmount)})
	return nil
}

// AccountOverview returns a copy of the account's stored position together
// with its collateral value and health factor. All three are computed under
// one read lock so callers never observe a position paired with the value or
// factor of a different position revision.
func (e *Engine) AccountOverview(account common.Address) (*Position, *big.Int, *big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, nil, nil, err
	}
	value, err := e.collateralValueUsd(pos)
	if err != nil {
		return nil, nil, nil, err
	}
	factor, err := e.healthFactorFor(pos)
	if err != nil {
		return nil, nil, nil, err
	}
	return pos.Clone(), value, factor, nil
}

// AccountInformation returns the minted debt and total collateral value for
// the account.
func (e *Engine) AccountInformation(account common.Address) (*big.Int, *big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, nil, err
	}
	value, err := e.collateralValueUsd(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.DebtMinted), value, nil
}

// GetHealthFactor returns the account's current health factor.
func (e *Engine) GetHealthFactor(account common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	return e.healthFactorFor(pos)
}

// AccountCollateralValue sums the USD value of every supported asset the
// account has deposited.
func (e *Engine) AccountCollateralValue(account common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	return e.collateralValueUsd(pos)
}

// CollateralBalance returns the account's deposited amount of the asset.
func (e *Engine) CollateralBalance(account common.Address, symbol string) (*big.Int, error) {
	if !e.supported(symbol) {
		return nil, ErrUnsupportedAsset
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	return pos.CollateralBalance(symbol), nil
}

// TotalCollateralValue sums the USD value of all collateral held in engine
// custody across every position.
func (e *Engine) TotalCollateralValue() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return nil, errNilState
	}
	positions, err := e.state.ListPositions()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, pos := range positions {
		if pos == nil {
			continue
		}
		pos.normalise()
		value, err := e.collateralValueUsd(pos)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) supported(symbol string) bool {
	_, ok := e.assets[canonicalSymbol(symbol)]
	return ok
}

func (e *Engine) loadPosition(account common.Address) (*Position, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return NewPosition(account), nil
	}
	pos.normalise()
	return pos, nil
}

// requireHealthy rejects the candidate position when its health factor is
// below 1.0.
func (e *Engine) requireHealthy(pos *Position) error {
	factor, err := e.healthFactorFor(pos)
	if err != nil {
		return err
	}
	if factor.Cmp(precision) < 0 {
		return breaksHealthFactor(factor)
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
