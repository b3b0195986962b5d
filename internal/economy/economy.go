// Package economy orchestrates every system market and the player exchange:
// it drives the hourly tick, injects economic events, moves goods between
// systems, and settles player trades against their accounts.
package economy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// ErrNoAccounts is returned by player-facing operations when no AccountBook
// has been attached.
var ErrNoAccounts = errors.New("economy: no account book attached")

// Config tunes the tick.
type Config struct {
	UpdateInterval uint64  // Game seconds between ticks
	BaseTaxRate    float64 // Informational default for new markets
	InflationEvery uint64  // Ticks between inflation adjustments
	MaxTradeFlows  int     // (market, good) pairs considered for redistribution per tick
	TradeFlowShare float64 // Share of source stock moved per flow
}

// DefaultConfig returns hourly ticks with the standard flow limits.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 3600,
		BaseTaxRate:    0.05,
		InflationEvery: 10,
		MaxTradeFlows:  5,
		TradeFlowShare: 0.2,
	}
}

// WeightedEvent is a global event and its per-tick probability.
type WeightedEvent struct {
	Kind        market.EventKind `json:"kind"`
	Probability float64          `json:"probability"`
}

// DefaultGlobalEvents are the events that may strike every market at once.
func DefaultGlobalEvents() []WeightedEvent {
	return []WeightedEvent{
		{Kind: market.EventTariffIncrease, Probability: 0.05},
		{Kind: market.EventTariffDecrease, Probability: 0.05},
		{Kind: market.EventMarketCrash, Probability: 0.01},
		{Kind: market.EventMarketBoom, Probability: 0.01},
	}
}

// EconomySystem owns every market. It is not safe for concurrent use; callers
// serialise access (see engine.Guard).
type EconomySystem struct {
	Markets          map[string]*market.SystemMarket `json:"markets"`
	Player           *exchange.PlayerMarket          `json:"player"`
	InflationRate    float64                         `json:"inflation_rate"`
	TradeIndex       float64                         `json:"trade_index"`
	ResourceScarcity map[item.Resource]float64       `json:"resource_scarcity"`
	GlobalEvents     []WeightedEvent                 `json:"global_events"`
	BaseTaxRate      float64                         `json:"base_tax_rate"`
	LastUpdate       uint64                          `json:"last_update"`
	UpdateInterval   uint64                          `json:"update_interval"`
	Step             uint64                          `json:"step"`

	// Accounts resolves player ids for settlement. Not persisted.
	Accounts AccountBook `json:"-"`

	cfg Config
	rng entropy.Source
}

// New returns an empty economy with default scarcity and global events.
func New(cfg Config, rng entropy.Source) *EconomySystem {
	e := &EconomySystem{
		Markets:        make(map[string]*market.SystemMarket),
		Player:         exchange.New(),
		InflationRate:  0.02,
		TradeIndex:     1.0,
		GlobalEvents:   DefaultGlobalEvents(),
		BaseTaxRate:    cfg.BaseTaxRate,
		UpdateInterval: cfg.UpdateInterval,
		cfg:            cfg,
		rng:            rng,
	}
	e.SetResourceScarcity()
	return e
}

// SetResourceScarcity resets scarcity to its starting values.
func (e *EconomySystem) SetResourceScarcity() {
	e.ResourceScarcity = map[item.Resource]float64{
		item.ResourceMineral: 1.0,
		item.ResourceGas:     1.2,
		item.ResourceIce:     0.8,
		item.ResourceLunar:   1.3,
		item.ResourceStellar: 1.5,
		item.ResourceExotic:  2.0,
		item.ResourceRefined: 1.1,
	}
}

// InitializeMarket creates (or replaces) the market at a location.
func (e *EconomySystem) InitializeMarket(locationID string, kind market.Kind) *market.SystemMarket {
	m := market.New(locationID, kind)
	e.Markets[locationID] = m
	return m
}

// Market looks up a location's market.
func (e *EconomySystem) Market(locationID string) (*market.SystemMarket, error) {
	m, ok := e.Markets[locationID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", locationID, tradeerr.ErrNotFound)
	}
	return m, nil
}

// MarketIDs returns every location with a market, sorted.
func (e *EconomySystem) MarketIDs() []string {
	ids := make([]string, 0, len(e.Markets))
	for id := range e.Markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Now is the game time of the last tick.
func (e *EconomySystem) Now() uint64 {
	return e.LastUpdate
}

func (e *EconomySystem) accounts() (AccountBook, error) {
	if e.Accounts == nil {
		return nil, ErrNoAccounts
	}
	return e.Accounts, nil
}

func (e *EconomySystem) account(id string) (Wallet, error) {
	book, err := e.accounts()
	if err != nil {
		return nil, err
	}
	w, ok := book.Account(id)
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, tradeerr.ErrNotFound)
	}
	return w, nil
}
