package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"synthmint/api"
	"synthmint/config"
	"synthmint/core/events"
	"synthmint/native/oracle"
	"synthmint/native/synth"
	"synthmint/native/token"
	"synthmint/observability/logging"
	"synthmint/storage"
)

const authTokenEnv = "SYNTHD_AUTH_TOKEN"

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	env := flag.String("env", "", "deployment environment label")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("synthd", *env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("synthd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	assets, feeds, err := buildAssets(cfg.Collateral)
	if err != nil {
		return fmt.Errorf("build collateral assets: %w", err)
	}

	debt := token.NewLedger(cfg.Engine.DebtTokenName, cfg.Engine.DebtTokenSymbol, synth.ModuleAddress)
	bank := token.NewBank(synth.ModuleAddress)
	for _, asset := range assets {
		ledger := token.NewLedger(asset.Symbol, asset.Symbol, synth.ModuleAddress)
		if err := bank.RegisterLedger(asset.Symbol, ledger); err != nil {
			return fmt.Errorf("register collateral ledger: %w", err)
		}
	}

	params := synth.RiskParameters{
		LiquidationThresholdPct: cfg.Engine.LiquidationThresholdPct,
		LiquidationBonusPct:     cfg.Engine.LiquidationBonusPct,
	}
	engine, err := synth.NewEngine(assets, feeds, debt, bank, params, cfg.Engine.PriceStaleness.Duration)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	engine.SetState(synth.NewStoreState(db))
	engine.SetEmitter(&logEmitter{logger: logger})

	serverCfg := cfg.Server
	if env := strings.TrimSpace(os.Getenv(authTokenEnv)); env != "" {
		serverCfg.AuthToken = env
	}
	server := api.New(engine, bank, debt, logger, serverCfg)

	httpServer := &http.Server{
		Addr:              serverCfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("synthd listening", "address", serverCfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

func openDatabase(cfg config.Storage) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(cfg.Path)
	case "bolt":
		return storage.NewBoltDB(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildAssets(entries []config.Collateral) ([]synth.Asset, []oracle.PriceFeed, error) {
	assets := make([]synth.Asset, 0, len(entries))
	feeds := make([]oracle.PriceFeed, 0, len(entries))
	for i, entry := range entries {
		symbol := strings.ToUpper(strings.TrimSpace(entry.Symbol))
		assets = append(assets, synth.Asset{Symbol: symbol, Decimals: entry.Decimals})
		switch strings.ToLower(strings.TrimSpace(entry.Feed)) {
		case "manual":
			feed := oracle.NewManualFeed()
			if err := feed.SetDecimal(symbol, entry.SeedPrice, entry.SeedPriceDecimals, time.Now()); err != nil {
				return nil, nil, fmt.Errorf("collateral[%d]: seed price: %w", i, err)
			}
			feeds = append(feeds, feed)
		case "http":
			feeds = append(feeds, oracle.NewHTTPFeed(&http.Client{Timeout: 10 * time.Second}, entry.FeedEndpoint, entry.FeedAPIKey))
		default:
			return nil, nil, fmt.Errorf("collateral[%d]: unknown feed kind %q", i, entry.Feed)
		}
	}
	return assets, feeds, nil
}

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(event events.Event) {
	if l == nil || l.logger == nil || event == nil {
		return
	}
	l.logger.Info("engine event", "type", event.EventType(), "event", event)
}
