package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration.
type Config struct {
	Engine     Engine       `toml:"engine"`
	Collateral []Collateral `toml:"collateral"`
	Server     Server       `toml:"server"`
	Storage    Storage      `toml:"storage"`
	Log        Log          `toml:"log"`
}

// Engine holds the protocol risk parameters.
type Engine struct {
	LiquidationThresholdPct uint64   `toml:"LiquidationThresholdPct"`
	LiquidationBonusPct     uint64   `toml:"LiquidationBonusPct"`
	PriceStaleness          Duration `toml:"PriceStaleness"`
	DebtTokenName           string   `toml:"DebtTokenName"`
	DebtTokenSymbol         string   `toml:"DebtTokenSymbol"`
}

// Collateral declares one supported collateral asset and its price feed.
type Collateral struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
	// Feed is "manual" or "http".
	Feed string `toml:"Feed"`
	// FeedEndpoint and FeedAPIKey configure the http feed.
	FeedEndpoint string `toml:"FeedEndpoint,omitempty"`
	FeedAPIKey   string `toml:"FeedAPIKey,omitempty"`
	// SeedPrice and SeedPriceDecimals initialize the manual feed.
	SeedPrice         string `toml:"SeedPrice,omitempty"`
	SeedPriceDecimals uint8  `toml:"SeedPriceDecimals,omitempty"`
}

// Server configures the HTTP API.
type Server struct {
	ListenAddress string `toml:"ListenAddress"`
	// AuthToken guards the state-changing endpoints. Empty disables them.
	AuthToken string `toml:"AuthToken"`
	// RateLimitPerSecond caps authenticated mutations; 0 disables limiting.
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Storage selects the position database backend.
type Storage struct {
	// Backend is "memory", "leveldb" or "bolt".
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Log configures structured logging output.
type Log struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `toml:"Level"`
	// File enables rotated file output alongside stdout when non-empty.
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
}

// Duration wraps time.Duration for TOML strings like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %s", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.LiquidationThresholdPct == 0 {
		c.Engine.LiquidationThresholdPct = 50
	}
	if c.Engine.LiquidationBonusPct == 0 {
		c.Engine.LiquidationBonusPct = 10
	}
	if c.Engine.PriceStaleness.Duration == 0 {
		c.Engine.PriceStaleness.Duration = 3 * time.Hour
	}
	if strings.TrimSpace(c.Engine.DebtTokenName) == "" {
		c.Engine.DebtTokenName = "Synthetic USD"
	}
	if strings.TrimSpace(c.Engine.DebtTokenSymbol) == "" {
		c.Engine.DebtTokenSymbol = "SUSD"
	}
	if strings.TrimSpace(c.Server.ListenAddress) == "" {
		c.Server.ListenAddress = "127.0.0.1:8547"
	}
	if c.Server.RateLimitPerSecond > 0 && c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = int(c.Server.RateLimitPerSecond)
		if c.Server.RateLimitBurst < 1 {
			c.Server.RateLimitBurst = 1
		}
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = "memory"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if c.Engine.LiquidationThresholdPct == 0 || c.Engine.LiquidationThresholdPct > 100 {
		return fmt.Errorf("engine: LiquidationThresholdPct must be within (0, 100]")
	}
	if c.Engine.LiquidationBonusPct >= 100 {
		return fmt.Errorf("engine: LiquidationBonusPct must be below 100")
	}
	if c.Engine.PriceStaleness.Duration <= 0 {
		return fmt.Errorf("engine: PriceStaleness must be positive")
	}
	if len(c.Collateral) == 0 {
		return fmt.Errorf("collateral: at least one asset required")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for i, asset := range c.Collateral {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return fmt.Errorf("collateral[%d]: Symbol required", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("collateral[%d]: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(asset.Feed)) {
		case "manual":
			if strings.TrimSpace(asset.SeedPrice) == "" {
				return fmt.Errorf("collateral[%d]: manual feed requires SeedPrice", i)
			}
		case "http":
			if strings.TrimSpace(asset.FeedEndpoint) == "" {
				return fmt.Errorf("collateral[%d]: http feed requires FeedEndpoint", i)
			}
		default:
			return fmt.Errorf("collateral[%d]: Feed must be manual or http", i)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "memory":
	case "leveldb", "bolt":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage: Path required for backend %s", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: Backend must be memory, leveldb or bolt")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: Level must be debug, info, warn or error")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Collateral: []Collateral{
			{Symbol: "WETH", Decimals: 18, Feed: "manual", SeedPrice: "2000", SeedPriceDecimals: 8},
			{Symbol: "WBTC", Decimals: 8, Feed: "manual", SeedPrice: "30000", SeedPriceDecimals: 8},
		},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
