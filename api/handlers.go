package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"synthmint/native/oracle"
	"synthmint/native/synth"
	"synthmint/native/token"
)

const requestLimit = 1 << 20 // 1 MiB

type errorResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse { return errorResponse{Error: msg} }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func parseAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

// writeEngineError maps engine failures onto HTTP statuses: validation
// failures are 400, solvency rejections 422, oracle outages 503 and
// collaborator transfer failures 502.
func (s *Server) writeEngineError(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	var breaks *synth.BreaksHealthFactorError
	switch {
	case errors.Is(err, synth.ErrZeroAmount),
		errors.Is(err, synth.ErrUnsupportedAsset),
		errors.Is(err, synth.ErrBurnExceedsDebt),
		errors.Is(err, oracle.ErrUnknownAsset):
		status = http.StatusBadRequest
	case errors.As(err, &breaks),
		errors.Is(err, synth.ErrInsufficientCollateral),
		errors.Is(err, synth.ErrHealthFactorOk),
		errors.Is(err, synth.ErrHealthFactorNotImproved),
		errors.Is(err, synth.ErrInsufficientCollateralToLiquidate):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, synth.ErrStalePrice), errors.Is(err, synth.ErrInvalidPrice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, synth.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("engine operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Warn("engine operation rejected", "operation", operation, "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func reasonFor(err error) string {
	if err == nil {
		return ""
	}
	var breaks *synth.BreaksHealthFactorError
	switch {
	case errors.Is(err, synth.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, synth.ErrUnsupportedAsset), errors.Is(err, oracle.ErrUnknownAsset):
		return "unsupported_asset"
	case errors.As(err, &breaks):
		return "breaks_health_factor"
	case errors.Is(err, synth.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, synth.ErrBurnExceedsDebt):
		return "burn_exceeds_debt"
	case errors.Is(err, synth.ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, synth.ErrHealthFactorNotImproved):
		return "health_factor_not_improved"
	case errors.Is(err, synth.ErrInsufficientCollateralToLiquidate):
		return "insufficient_collateral_to_liquidate"
	case errors.Is(err, synth.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, synth.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, synth.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}

func (s *Server) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveOperation(operation, reasonFor(err), time.Since(start).Seconds())
}

// --- queries ---

type assetResponse struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	assets := s.engine.Assets()
	out := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResponse{Symbol: asset.Symbol, Decimals: asset.Decimals})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

type positionResponse struct {
	Account         string            `json:"account"`
	Collateral      map[string]string `json:"collateral"`
	DebtMinted      string            `json:"debtMinted"`
	CollateralValue string            `json:"collateralValueUsd"`
	HealthFactor    string            `json:"healthFactor"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(chi.URLParam(r, "account"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	pos, value, factor, err := s.engine.AccountOverview(account)
	if err != nil {
		s.writeEngineError(w, "position", err)
		return
	}
	collateral := make(map[string]string, len(pos.Collateral))
	for symbol, amount := range pos.Collateral {
		collateral[symbol] = amount.String()
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Account:         account.Hex(),
		Collateral:      collateral,
		DebtMinted:      pos.DebtMinted.String(),
		CollateralValue: value.String(),
		HealthFactor:    factor.String(),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(chi.URLParam(r, "account"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	factor, err := s.engine.GetHealthFactor(account)
	if err != nil {
		s.writeEngineError(w, "health_factor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":      account.Hex(),
		"healthFactor": factor.String(),
	})
}

func (s *Server) handleCollateralValue(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(chi.URLParam(r, "account"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	value, err := s.engine.AccountCollateralValue(account)
	if err != nil {
		s.writeEngineError(w, "collateral_value", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":            account.Hex(),
		"collateralValueUsd": value.String(),
	})
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("asset")
	amount, ok := parseAmount(r.URL.Query().Get("amount"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	value, err := s.engine.UsdValue(symbol, amount)
	if err != nil {
		s.writeEngineError(w, "usd_value", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":    strings.ToUpper(strings.TrimSpace(symbol)),
		"amount":   amount.String(),
		"usdValue": value.String(),
	})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("asset")
	usd, ok := parseAmount(r.URL.Query().Get("usd"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid usd amount"))
		return
	}
	amount, err := s.engine.TokenAmountFromUsd(symbol, usd)
	if err != nil {
		s.writeEngineError(w, "token_amount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":       strings.ToUpper(strings.TrimSpace(symbol)),
		"usd":         usd.String(),
		"tokenAmount": amount.String(),
	})
}

// --- mutations ---

type depositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	err := s.engine.DepositCollateral(account, req.Asset, amount)
	s.observe("deposit", start, err)
	if err != nil {
		s.writeEngineError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	err := s.engine.WithdrawCollateral(account, req.Asset, amount)
	s.observe("withdraw", start, err)
	if err != nil {
		s.writeEngineError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type mintRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req mintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	err := s.engine.MintDebt(account, amount)
	s.observe("mint", start, err)
	if err != nil {
		s.writeEngineError(w, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req mintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	err := s.engine.BurnDebt(account, amount)
	s.observe("burn", start, err)
	if err != nil {
		s.writeEngineError(w, "burn", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type depositAndMintRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	MintAmount       string `json:"mintAmount"`
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req depositAndMintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	collateral, ok := parseAmount(req.CollateralAmount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid collateral amount"))
		return
	}
	mint, ok := parseAmount(req.MintAmount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid mint amount"))
		return
	}
	err := s.engine.DepositAndMint(account, req.Asset, collateral, mint)
	s.observe("deposit_and_mint", start, err)
	if err != nil {
		s.writeEngineError(w, "deposit_and_mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type redeemAndBurnRequest struct {
	Account        string `json:"account"`
	Asset          string `json:"asset"`
	WithdrawAmount string `json:"withdrawAmount"`
	BurnAmount     string `json:"burnAmount"`
}

func (s *Server) handleRedeemAndBurn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req redeemAndBurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	withdraw, ok := parseAmount(req.WithdrawAmount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid withdraw amount"))
		return
	}
	burn, ok := parseAmount(req.BurnAmount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid burn amount"))
		return
	}
	err := s.engine.RedeemAndBurn(account, req.Asset, withdraw, burn)
	s.observe("redeem_and_burn", start, err)
	if err != nil {
		s.writeEngineError(w, "redeem_and_burn", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req liquidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	liquidator, ok := parseAddress(req.Liquidator)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid liquidator address"))
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid account address"))
		return
	}
	debtToCover, ok := parseAmount(req.DebtToCover)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid debtToCover"))
		return
	}
	seized, err := s.engine.Liquidate(liquidator, account, req.Asset, debtToCover)
	s.observe("liquidate", start, err)
	if err != nil {
		s.writeEngineError(w, "liquidate", err)
		return
	}
	s.metrics.ObserveLiquidation()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "ok",
		"collateralSeized": seized.String(),
	})
}

type approveRequest struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// handleApprove sets a token allowance. The spender is typically the engine
// vault so it can pull collateral deposits and debt repayments.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid owner address"))
		return
	}
	spender, ok := parseAddress(req.Spender)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid spender address"))
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid amount"))
		return
	}
	ledger, err := s.ledgerFor(req.Token)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ledger.Approve(owner, spender, amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ledgerFor(symbol string) (*token.Ledger, error) {
	canonical := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical == strings.ToUpper(s.debt.Symbol()) {
		return s.debt, nil
	}
	return s.bank.Ledger(canonical)
}
