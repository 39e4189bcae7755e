package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceData captures a single oracle observation for an asset. Price is an
// integer scaled by 10^Decimals; UpdatedAt is the timestamp reported by the
// upstream feed and must be validated by consumers before use.
type PriceData struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the observation so callers cannot mutate
// shared state.
func (p PriceData) Clone() PriceData {
	clone := PriceData{Decimals: p.Decimals, UpdatedAt: p.UpdatedAt}
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return clone
}

// PriceFeed resolves the latest observation for the provided asset symbol.
type PriceFeed interface {
	LatestPrice(symbol string) (PriceData, error)
}

// ErrFeedLengthMismatch is returned when the asset and feed lists supplied at
// construction do not line up one-to-one.
var ErrFeedLengthMismatch = errors.New("oracle: asset and price feed lists must be same length")

// ErrUnknownAsset is returned when a registry lookup misses.
var ErrUnknownAsset = errors.New("oracle: asset has no registered price feed")

// Registry binds each supported asset symbol to exactly one price feed. The
// binding is fixed at construction and immutable thereafter.
type Registry struct {
	symbols []string
	feeds   map[string]PriceFeed
}

// NewRegistry constructs a registry from parallel symbol and feed lists.
func NewRegistry(symbols []string, feeds []PriceFeed) (*Registry, error) {
	if len(symbols) != len(feeds) {
		return nil, ErrFeedLengthMismatch
	}
	reg := &Registry{
		symbols: make([]string, 0, len(symbols)),
		feeds:   make(map[string]PriceFeed, len(symbols)),
	}
	for i, symbol := range symbols {
		canonical := normaliseSymbol(symbol)
		if canonical == "" {
			return nil, fmt.Errorf("oracle: empty asset symbol at index %d", i)
		}
		if feeds[i] == nil {
			return nil, fmt.Errorf("oracle: nil price feed for asset %s", canonical)
		}
		if _, exists := reg.feeds[canonical]; exists {
			return nil, fmt.Errorf("oracle: duplicate asset symbol %s", canonical)
		}
		reg.symbols = append(reg.symbols, canonical)
		reg.feeds[canonical] = feeds[i]
	}
	return reg, nil
}

// Feed returns the price feed bound to the asset symbol.
func (r *Registry) Feed(symbol string) (PriceFeed, error) {
	if r == nil {
		return nil, ErrUnknownAsset
	}
	feed, ok := r.feeds[normaliseSymbol(symbol)]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return feed, nil
}

// Has reports whether the asset symbol is registered.
func (r *Registry) Has(symbol string) bool {
	if r == nil {
		return false
	}
	_, ok := r.feeds[normaliseSymbol(symbol)]
	return ok
}

// Symbols returns the registered asset symbols in registration order.
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]PriceData
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[string]PriceData)}
}

// Set stores the supplied observation for the asset symbol.
func (m *ManualFeed) Set(symbol string, price *big.Int, decimals uint8, updatedAt time.Time) {
	if m == nil || price == nil {
		return
	}
	key := normaliseSymbol(symbol)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.quotes[key] = PriceData{Price: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: updatedAt}
	m.mu.Unlock()
}

// SetDecimal records a decimal price string (e.g. "2000.50") scaled to the
// provided feed decimals.
func (m *ManualFeed) SetDecimal(symbol, price string, decimals uint8, updatedAt time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle: manual feed not configured")
	}
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return fmt.Errorf("oracle: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("oracle: invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("oracle: price must be positive")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	m.Set(symbol, value, decimals, updatedAt)
	return nil
}

// LatestPrice returns the stored observation for the asset symbol.
func (m *ManualFeed) LatestPrice(symbol string) (PriceData, error) {
	if m == nil {
		return PriceData{}, fmt.Errorf("oracle: manual feed not configured")
	}
	key := normaliseSymbol(symbol)
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return PriceData{}, fmt.Errorf("oracle: price for %s not found", key)
	}
	return stored.Clone(), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
