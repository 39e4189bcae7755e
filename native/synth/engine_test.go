package synth

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthmint/native/oracle"
	"synthmint/native/token"
)

type mockState struct {
	positions map[common.Address]*Position
}

func newMockState() *mockState {
	return &mockState{positions: make(map[common.Address]*Position)}
}

func (m *mockState) GetPosition(addr common.Address) (*Position, error) {
	if pos, ok := m.positions[addr]; ok {
		return pos.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutPosition(addr common.Address, pos *Position) error {
	m.positions[addr] = pos.Clone()
	return nil
}

func (m *mockState) ListPositions() ([]*Position, error) {
	out := make([]*Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos.Clone())
	}
	return out, nil
}

type testHarness struct {
	engine   *Engine
	state    *mockState
	feed     *oracle.ManualFeed
	wbtcFeed *oracle.ManualFeed
	debt     *token.Ledger
	weth     *token.Ledger
	wbtc     *token.Ledger
	bank     *token.Bank
	now      time.Time
}

func makeAddress(b byte) common.Address {
	var addr common.Address
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision())
}

// price8 scales a whole-dollar price to 8 feed decimals.
func price8(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(100000000))
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	now := time.Unix(1700000000, 0)
	feed := oracle.NewManualFeed()
	feed.Set("WETH", price8(2000), 8, now)
	wbtcFeed := oracle.NewManualFeed()
	wbtcFeed.Set("WBTC", price8(30000), 8, now)

	debt := token.NewLedger("Synthetic USD", "SUSD", ModuleAddress)
	weth := token.NewLedger("Wrapped Ether", "WETH", ModuleAddress)
	wbtc := token.NewLedger("Wrapped Bitcoin", "WBTC", ModuleAddress)
	bank := token.NewBank(ModuleAddress)
	if err := bank.RegisterLedger("WETH", weth); err != nil {
		t.Fatalf("register ledger: %v", err)
	}
	if err := bank.RegisterLedger("WBTC", wbtc); err != nil {
		t.Fatalf("register ledger: %v", err)
	}

	assets := []Asset{{Symbol: "WETH", Decimals: 18}, {Symbol: "WBTC", Decimals: 8}}
	feeds := []oracle.PriceFeed{feed, wbtcFeed}
	params := RiskParameters{LiquidationThresholdPct: 50, LiquidationBonusPct: 10}
	engine, err := NewEngine(assets, feeds, debt, bank, params, time.Hour)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	state := newMockState()
	engine.SetState(state)
	engine.SetClock(func() time.Time { return now })

	return &testHarness{
		engine:   engine,
		state:    state,
		feed:     feed,
		wbtcFeed: wbtcFeed,
		debt:     debt,
		weth:     weth,
		wbtc:     wbtc,
		bank:     bank,
		now:      now,
	}
}

// fundAsset mints collateral to the account and grants the vault allowance
// to pull it.
func (h *testHarness) fundAsset(t *testing.T, ledger *token.Ledger, account common.Address, amount *big.Int) {
	t.Helper()
	if err := ledger.Mint(ModuleAddress, account, amount); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	ledger.Approve(account, ModuleAddress, amount)
}

func (h *testHarness) fund(t *testing.T, account common.Address, amount *big.Int) {
	t.Helper()
	h.fundAsset(t, h.weth, account, amount)
}

// approveDebt grants the vault allowance over the account's debt tokens so
// burns and liquidations can pull them.
func (h *testHarness) approveDebt(account common.Address, amount *big.Int) {
	h.debt.Approve(account, ModuleAddress, amount)
}

func TestDepositCollateral(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x11)
	h.fund(t, user, eth(10))

	if err := h.engine.DepositCollateral(user, "WETH", eth(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, err := h.engine.CollateralBalance(user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Cmp(eth(10)) != 0 {
		t.Fatalf("expected 10 WETH deposited, got %s", balance)
	}
	if got := h.weth.BalanceOf(ModuleAddress); got.Cmp(eth(10)) != 0 {
		t.Fatalf("expected vault to hold 10 WETH, got %s", got)
	}
	if got := h.weth.BalanceOf(user); got.Sign() != 0 {
		t.Fatalf("expected user balance drained, got %s", got)
	}
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x11)
	if err := h.engine.DepositCollateral(user, "WETH", big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := h.engine.DepositCollateral(user, "WETH", nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
	}
}

func TestDepositRejectsUnsupportedAsset(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x11)
	if err := h.engine.DepositCollateral(user, "DOGE", eth(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestDepositWithoutAllowanceFails(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x11)
	if err := h.weth.Mint(ModuleAddress, user, eth(5)); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	err := h.engine.DepositCollateral(user, "WETH", eth(5))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	balance, err := h.engine.CollateralBalance(user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("failed deposit must not credit collateral, got %s", balance)
	}
}

func TestMintWithoutCollateralReportsZeroFactor(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x22)

	err := h.engine.MintDebt(user, eth(100))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected BreaksHealthFactorError, got %v", err)
	}
	if breaks.Factor.Sign() != 0 {
		t.Fatalf("expected factor 0 for zero collateral, got %s", breaks.Factor)
	}
	if got := h.debt.BalanceOf(user); got.Sign() != 0 {
		t.Fatalf("failed mint must not credit debt tokens, got %s", got)
	}
}

func TestMintUpToThreshold(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x22)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 1 WETH at $2000 with a 50% threshold backs at most 1000 SUSD.
	if err := h.engine.MintDebt(user, eth(1000)); err != nil {
		t.Fatalf("mint at limit: %v", err)
	}
	factor, err := h.engine.GetHealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(Precision()) != 0 {
		t.Fatalf("expected health factor exactly 1.0, got %s", factor)
	}
	if got := h.debt.BalanceOf(user); got.Cmp(eth(1000)) != 0 {
		t.Fatalf("expected 1000 SUSD minted, got %s", got)
	}

	err = h.engine.MintDebt(user, big.NewInt(1))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected BreaksHealthFactorError past limit, got %v", err)
	}
}

func TestWithdrawCollateral(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x33)
	h.fund(t, user, eth(2))
	if err := h.engine.DepositCollateral(user, "WETH", eth(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, eth(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Withdrawing 1 WETH leaves exactly enough backing for the 1000 SUSD.
	if err := h.engine.WithdrawCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := h.weth.BalanceOf(user); got.Cmp(eth(1)) != 0 {
		t.Fatalf("expected 1 WETH returned, got %s", got)
	}

	err := h.engine.WithdrawCollateral(user, "WETH", big.NewInt(1))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected BreaksHealthFactorError, got %v", err)
	}
}

func TestWithdrawExceedingBalance(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x33)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.WithdrawCollateral(user, "WETH", eth(2)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestBurnDebt(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x44)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, eth(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	h.approveDebt(user, eth(200))
	if err := h.engine.BurnDebt(user, eth(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	debt, _, err := h.engine.AccountInformation(user)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Cmp(eth(300)) != 0 {
		t.Fatalf("expected 300 SUSD debt remaining, got %s", debt)
	}
	if got := h.debt.BalanceOf(user); got.Cmp(eth(300)) != 0 {
		t.Fatalf("expected 300 SUSD in wallet, got %s", got)
	}
	if got := h.debt.TotalSupply(); got.Cmp(eth(300)) != 0 {
		t.Fatalf("expected supply reduced to 300, got %s", got)
	}
}

func TestBurnExceedingDebt(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x44)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, eth(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	h.approveDebt(user, eth(200))
	if err := h.engine.BurnDebt(user, eth(200)); !errors.Is(err, ErrBurnExceedsDebt) {
		t.Fatalf("expected ErrBurnExceedsDebt, got %v", err)
	}
}

func TestBurnWithoutAllowanceRestoresNothing(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x44)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositCollateral(user, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, eth(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.engine.BurnDebt(user, eth(50)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	debt, _, err := h.engine.AccountInformation(user)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Cmp(eth(100)) != 0 {
		t.Fatalf("failed burn must not change debt, got %s", debt)
	}
}

func TestDepositAndMintAtomicity(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x55)
	h.fund(t, user, eth(1))

	// Minting beyond the threshold must leave the deposit untouched as well.
	err := h.engine.DepositAndMint(user, "WETH", eth(1), eth(1001))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected BreaksHealthFactorError, got %v", err)
	}
	if got := h.weth.BalanceOf(user); got.Cmp(eth(1)) != 0 {
		t.Fatalf("failed composite must return collateral, got %s", got)
	}
	balance, err := h.engine.CollateralBalance(user, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("failed composite must not credit collateral, got %s", balance)
	}

	if err := h.engine.DepositAndMint(user, "WETH", eth(1), eth(1000)); err != nil {
		t.Fatalf("composite deposit and mint: %v", err)
	}
	if got := h.debt.BalanceOf(user); got.Cmp(eth(1000)) != 0 {
		t.Fatalf("expected 1000 SUSD minted, got %s", got)
	}
}

func TestRedeemAndBurnFullExit(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x66)
	h.fund(t, user, eth(1))
	if err := h.engine.DepositAndMint(user, "WETH", eth(1), eth(500)); err != nil {
		t.Fatalf("composite deposit and mint: %v", err)
	}
	h.approveDebt(user, eth(500))

	if err := h.engine.RedeemAndBurn(user, "WETH", eth(1), eth(500)); err != nil {
		t.Fatalf("redeem and burn: %v", err)
	}
	debt, value, err := h.engine.AccountInformation(user)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Sign() != 0 || value.Sign() != 0 {
		t.Fatalf("expected empty position, got debt %s value %s", debt, value)
	}
	if got := h.weth.BalanceOf(user); got.Cmp(eth(1)) != 0 {
		t.Fatalf("expected collateral returned, got %s", got)
	}
	if got := h.debt.BalanceOf(user); got.Sign() != 0 {
		t.Fatalf("expected debt tokens burned, got %s", got)
	}
}

func TestHealthFactorWithoutDebt(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(0x77)
	factor, err := h.engine.GetHealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(MaxHealthFactor()) != 0 {
		t.Fatalf("expected max health factor, got %s", factor)
	}
}

func TestTotalCollateralValue(t *testing.T) {
	h := newTestHarness(t)
	alice := makeAddress(0xa1)
	bob := makeAddress(0xb2)
	h.fund(t, alice, eth(1))
	h.fund(t, bob, eth(2))
	if err := h.engine.DepositCollateral(alice, "WETH", eth(1)); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if err := h.engine.DepositCollateral(bob, "WETH", eth(2)); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}
	total, err := h.engine.TotalCollateralValue()
	if err != nil {
		t.Fatalf("total collateral value: %v", err)
	}
	if total.Cmp(eth(6000)) != 0 {
		t.Fatalf("expected $6000 total, got %s", total)
	}
}
