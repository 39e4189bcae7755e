package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"synthmint/config"
	"synthmint/native/synth"
	"synthmint/native/token"
	"synthmint/observability"
)

// Server exposes the engine over HTTP. Queries are open; state-changing
// endpoints require the configured bearer token.
type Server struct {
	engine  *synth.Engine
	bank    *token.Bank
	debt    *token.Ledger
	logger  *slog.Logger
	metrics *observability.EngineMetrics
	token   string
	limiter *rate.Limiter
}

// New constructs the API server.
func New(engine *synth.Engine, bank *token.Bank, debt *token.Ledger, logger *slog.Logger, cfg config.Server) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}
	return &Server{
		engine:  engine,
		bank:    bank,
		debt:    debt,
		logger:  logger,
		metrics: observability.Engine(),
		token:   cfg.AuthToken,
		limiter: limiter,
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/assets", s.handleAssets)
		r.Get("/positions/{account}", s.handlePosition)
		r.Get("/health/{account}", s.handleHealthFactor)
		r.Get("/collateral-value/{account}", s.handleCollateralValue)
		r.Get("/usd-value", s.handleUsdValue)
		r.Get("/token-amount", s.handleTokenAmount)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.rateLimit)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/mint", s.handleMint)
			r.Post("/burn", s.handleBurn)
			r.Post("/deposit-and-mint", s.handleDepositAndMint)
			r.Post("/redeem-and-burn", s.handleRedeemAndBurn)
			r.Post("/liquidate", s.handleLiquidate)
			r.Post("/approve", s.handleApprove)
		})
	})
	return r
}
