// Package persistence provides SQLite-based economy state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/engine"
	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/player"
)

// DB wraps a SQLite connection for economy state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS system_markets (
		location_id TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		tax_rate REAL NOT NULL,
		last_update INTEGER NOT NULL,
		items_json TEXT NOT NULL,
		orders_json TEXT NOT NULL,
		events_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		location_id TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bids (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		bidder_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		issuer_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		listing_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price_per_unit INTEGER NOT NULL,
		total_price INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		location_id TEXT NOT NULL,
		was_negotiated INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_trends (
		item_name TEXT NOT NULL,
		hour_timestamp INTEGER NOT NULL,
		average_price INTEGER NOT NULL,
		lowest_price INTEGER NOT NULL,
		highest_price INTEGER NOT NULL,
		volume_traded INTEGER NOT NULL,
		PRIMARY KEY (item_name, hour_timestamp)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credits INTEGER NOT NULL,
		faction TEXT NOT NULL,
		reputation INTEGER NOT NULL,
		inventory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS economy_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_item ON purchases(item_name);
	CREATE INDEX IF NOT EXISTS idx_listings_item ON listings(item_name);
	CREATE INDEX IF NOT EXISTS idx_bids_listing ON bids(listing_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Meta keys.
const (
	metaStep             = "step"
	metaLastUpdate       = "last_update"
	metaUpdateInterval   = "update_interval"
	metaInflation        = "inflation_rate"
	metaTradeIndex       = "trade_index"
	metaBaseTax          = "base_tax_rate"
	metaScarcity         = "resource_scarcity"
	metaGlobalEvents     = "global_events"
	metaMarketFee        = "market_fee"
	metaReputationChecks = "reputation_requirements"
)

// MetaGameClock is where callers record the engine clock.
const MetaGameClock = "game_clock"

// SaveMeta stores a key-value pair in economy metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO economy_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM economy_meta WHERE key = ?", key)
	return value, err
}

// HasEconomyState reports whether a saved economy exists.
func (db *DB) HasEconomyState() (bool, error) {
	_, err := db.GetMeta(metaStep)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func putMeta(tx execer, key string, value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case uint64:
		s = strconv.FormatUint(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		s = string(data)
	}
	_, err := tx.Exec("INSERT OR REPLACE INTO economy_meta (key, value) VALUES (?, ?)", key, s)
	return err
}

// SaveEconomy performs a full save of the economy (full replace).
func (db *DB) SaveEconomy(eco *economy.EconomySystem) error {
	slog.Info("saving economy state",
		"markets", len(eco.Markets),
		"listings", len(eco.Player.Listings),
		"contracts", len(eco.Player.Contracts),
	)

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"system_markets", "listings", "bids", "contracts", "purchases", "price_trends"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := saveMarkets(tx, eco); err != nil {
		return fmt.Errorf("save markets: %w", err)
	}
	if err := savePlayerMarket(tx, eco.Player); err != nil {
		return fmt.Errorf("save player market: %w", err)
	}

	meta := []struct {
		key   string
		value any
	}{
		{metaStep, eco.Step},
		{metaLastUpdate, eco.LastUpdate},
		{metaUpdateInterval, eco.UpdateInterval},
		{metaInflation, eco.InflationRate},
		{metaTradeIndex, eco.TradeIndex},
		{metaBaseTax, eco.BaseTaxRate},
		{metaScarcity, eco.ResourceScarcity},
		{metaGlobalEvents, eco.GlobalEvents},
		{metaMarketFee, eco.Player.MarketFee},
		{metaReputationChecks, eco.Player.ReputationRequirements},
	}
	for _, m := range meta {
		if err := putMeta(tx, m.key, m.value); err != nil {
			return fmt.Errorf("save meta %s: %w", m.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("economy state saved", "step", eco.Step)
	return nil
}

func saveMarkets(tx *sqlx.Tx, eco *economy.EconomySystem) error {
	stmt, err := tx.Preparex(`INSERT INTO system_markets
		(location_id, kind, tax_rate, last_update, items_json, orders_json, events_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range eco.MarketIDs() {
		m := eco.Markets[id]
		itemsJSON, err := json.Marshal(m.Items)
		if err != nil {
			return fmt.Errorf("encode items of %s: %w", id, err)
		}
		ordersJSON, _ := json.Marshal(m.Orders)
		eventsJSON, _ := json.Marshal(m.LocalEvents)

		if _, err := stmt.Exec(id, m.Kind, m.TaxRate, m.LastUpdate,
			string(itemsJSON), string(ordersJSON), string(eventsJSON)); err != nil {
			return fmt.Errorf("insert market %s: %w", id, err)
		}
	}
	return nil
}

func savePlayerMarket(tx *sqlx.Tx, pm *exchange.PlayerMarket) error {
	for _, l := range pm.Listings {
		data, _ := json.Marshal(l)
		if _, err := tx.Exec("INSERT INTO listings (id, seller_id, item_name, location_id, data_json) VALUES (?, ?, ?, ?, ?)",
			l.ID, l.SellerID, l.Item.Name, l.LocationID, string(data)); err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
	}
	for _, b := range pm.Bids {
		data, _ := json.Marshal(b)
		if _, err := tx.Exec("INSERT INTO bids (id, listing_id, bidder_id, status, data_json) VALUES (?, ?, ?, ?, ?)",
			b.ID, b.ListingID, b.BidderID, b.Status, string(data)); err != nil {
			return fmt.Errorf("insert bid %s: %w", b.ID, err)
		}
	}
	for _, c := range pm.Contracts {
		data, _ := json.Marshal(c)
		if _, err := tx.Exec("INSERT INTO contracts (id, issuer_id, status, data_json) VALUES (?, ?, ?, ?)",
			c.ID, c.IssuerID, c.Status, string(data)); err != nil {
			return fmt.Errorf("insert contract %s: %w", c.ID, err)
		}
	}
	for _, p := range pm.Purchases {
		if _, err := tx.NamedExec(`INSERT INTO purchases
			(id, listing_id, buyer_id, seller_id, item_name, quantity, price_per_unit,
			 total_price, fee, timestamp, location_id, was_negotiated)
			VALUES (:id, :listing_id, :buyer_id, :seller_id, :item_name, :quantity, :price_per_unit,
			 :total_price, :fee, :timestamp, :location_id, :was_negotiated)`, fromPurchase(p)); err != nil {
			return fmt.Errorf("insert purchase %s: %w", p.ID, err)
		}
	}
	for _, trends := range pm.Trends {
		for _, t := range trends {
			if _, err := tx.NamedExec(`INSERT INTO price_trends
				(item_name, hour_timestamp, average_price, lowest_price, highest_price, volume_traded)
				VALUES (:item_name, :hour_timestamp, :average_price, :lowest_price, :highest_price, :volume_traded)`,
				fromTrend(t)); err != nil {
				return fmt.Errorf("insert trend %s@%d: %w", t.ItemName, t.HourTimestamp, err)
			}
		}
	}
	return nil
}

// LoadEconomy rebuilds the saved economy. The result has no AccountBook
// attached.
func (db *DB) LoadEconomy(cfg economy.Config, rng entropy.Source) (*economy.EconomySystem, error) {
	eco := economy.New(cfg, rng)

	if err := db.loadMeta(eco); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if err := db.loadMarkets(eco); err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	if err := db.loadPlayerMarket(eco.Player); err != nil {
		return nil, fmt.Errorf("load player market: %w", err)
	}

	slog.Info("economy state loaded",
		"step", eco.Step,
		"markets", len(eco.Markets),
		"listings", len(eco.Player.Listings),
	)
	return eco, nil
}

func (db *DB) loadMeta(eco *economy.EconomySystem) error {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.Select(&rows, "SELECT key, value FROM economy_meta"); err != nil {
		return err
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Key] = r.Value
	}
	if _, ok := meta[metaStep]; !ok {
		return fmt.Errorf("no saved economy: %w", sql.ErrNoRows)
	}

	var err error
	u64 := func(key string, dst *uint64) {
		if v, ok := meta[key]; ok && err == nil {
			*dst, err = strconv.ParseUint(v, 10, 64)
		}
	}
	f64 := func(key string, dst *float64) {
		if v, ok := meta[key]; ok && err == nil {
			*dst, err = strconv.ParseFloat(v, 64)
		}
	}
	u64(metaStep, &eco.Step)
	u64(metaLastUpdate, &eco.LastUpdate)
	u64(metaUpdateInterval, &eco.UpdateInterval)
	f64(metaInflation, &eco.InflationRate)
	f64(metaTradeIndex, &eco.TradeIndex)
	f64(metaBaseTax, &eco.BaseTaxRate)
	f64(metaMarketFee, &eco.Player.MarketFee)
	if v, ok := meta[metaReputationChecks]; ok && err == nil {
		eco.Player.ReputationRequirements, err = strconv.ParseBool(v)
	}
	if err != nil {
		return err
	}

	if v, ok := meta[metaScarcity]; ok {
		scarcity := make(map[item.Resource]float64)
		if err := json.Unmarshal([]byte(v), &scarcity); err != nil {
			return fmt.Errorf("decode scarcity: %w", err)
		}
		eco.ResourceScarcity = scarcity
	}
	if v, ok := meta[metaGlobalEvents]; ok {
		var events []economy.WeightedEvent
		if err := json.Unmarshal([]byte(v), &events); err != nil {
			return fmt.Errorf("decode global events: %w", err)
		}
		eco.GlobalEvents = events
	}
	return nil
}

type marketRow struct {
	LocationID string  `db:"location_id"`
	Kind       uint8   `db:"kind"`
	TaxRate    float64 `db:"tax_rate"`
	LastUpdate uint64  `db:"last_update"`
	ItemsJSON  string  `db:"items_json"`
	OrdersJSON string  `db:"orders_json"`
	EventsJSON string  `db:"events_json"`
}

func (db *DB) loadMarkets(eco *economy.EconomySystem) error {
	var rows []marketRow
	if err := db.conn.Select(&rows, "SELECT * FROM system_markets"); err != nil {
		return err
	}
	for _, r := range rows {
		m := eco.InitializeMarket(r.LocationID, market.Kind(r.Kind))
		m.TaxRate = r.TaxRate
		m.LastUpdate = r.LastUpdate
		if err := json.Unmarshal([]byte(r.ItemsJSON), &m.Items); err != nil {
			return fmt.Errorf("decode items of %s: %w", r.LocationID, err)
		}
		if err := json.Unmarshal([]byte(r.OrdersJSON), &m.Orders); err != nil {
			return fmt.Errorf("decode orders of %s: %w", r.LocationID, err)
		}
		if err := json.Unmarshal([]byte(r.EventsJSON), &m.LocalEvents); err != nil {
			return fmt.Errorf("decode events of %s: %w", r.LocationID, err)
		}
		if m.Items == nil {
			m.Items = make(map[string]*market.MarketItem)
		}
	}
	return nil
}

func (db *DB) loadPlayerMarket(pm *exchange.PlayerMarket) error {
	var blobs []string
	if err := db.conn.Select(&blobs, "SELECT data_json FROM listings"); err != nil {
		return err
	}
	for _, b := range blobs {
		var l exchange.Listing
		if err := json.Unmarshal([]byte(b), &l); err != nil {
			return fmt.Errorf("decode listing: %w", err)
		}
		pm.Listings[l.ID] = &l
	}

	blobs = nil
	if err := db.conn.Select(&blobs, "SELECT data_json FROM bids"); err != nil {
		return err
	}
	for _, b := range blobs {
		var bid exchange.Bid
		if err := json.Unmarshal([]byte(b), &bid); err != nil {
			return fmt.Errorf("decode bid: %w", err)
		}
		pm.Bids[bid.ID] = &bid
	}

	blobs = nil
	if err := db.conn.Select(&blobs, "SELECT data_json FROM contracts"); err != nil {
		return err
	}
	for _, b := range blobs {
		var c exchange.Contract
		if err := json.Unmarshal([]byte(b), &c); err != nil {
			return fmt.Errorf("decode contract: %w", err)
		}
		pm.Contracts[c.ID] = &c
	}

	var purchases []purchaseRow
	if err := db.conn.Select(&purchases, "SELECT "+purchaseCols+" FROM purchases ORDER BY seq"); err != nil {
		return err
	}
	for _, p := range purchases {
		pm.Purchases = append(pm.Purchases, p.toPurchase())
	}

	var trends []trendRow
	if err := db.conn.Select(&trends, "SELECT * FROM price_trends ORDER BY item_name, hour_timestamp"); err != nil {
		return err
	}
	for _, t := range trends {
		pm.Trends[t.ItemName] = append(pm.Trends[t.ItemName], t.toTrend())
	}
	return nil
}

const purchaseCols = `id, listing_id, buyer_id, seller_id, item_name, quantity, price_per_unit,
	total_price, fee, timestamp, location_id, was_negotiated`

type purchaseRow struct {
	ID            string `db:"id"`
	ListingID     string `db:"listing_id"`
	BuyerID       string `db:"buyer_id"`
	SellerID      string `db:"seller_id"`
	ItemName      string `db:"item_name"`
	Quantity      uint32 `db:"quantity"`
	PricePerUnit  uint32 `db:"price_per_unit"`
	TotalPrice    uint64 `db:"total_price"`
	Fee           uint64 `db:"fee"`
	Timestamp     uint64 `db:"timestamp"`
	LocationID    string `db:"location_id"`
	WasNegotiated bool   `db:"was_negotiated"`
}

func fromPurchase(p exchange.Purchase) purchaseRow {
	return purchaseRow(p)
}

func (r purchaseRow) toPurchase() exchange.Purchase {
	return exchange.Purchase(r)
}

type trendRow struct {
	ItemName      string `db:"item_name"`
	HourTimestamp uint64 `db:"hour_timestamp"`
	AveragePrice  uint32 `db:"average_price"`
	LowestPrice   uint32 `db:"lowest_price"`
	HighestPrice  uint32 `db:"highest_price"`
	VolumeTraded  uint32 `db:"volume_traded"`
}

func fromTrend(t exchange.PriceTrend) trendRow {
	return trendRow{
		ItemName:      t.ItemName,
		HourTimestamp: t.HourTimestamp,
		AveragePrice:  t.AveragePrice,
		LowestPrice:   t.LowestPrice,
		HighestPrice:  t.HighestPrice,
		VolumeTraded:  t.VolumeTraded,
	}
}

func (r trendRow) toTrend() exchange.PriceTrend {
	return exchange.PriceTrend{
		ItemName:      r.ItemName,
		AveragePrice:  r.AveragePrice,
		LowestPrice:   r.LowestPrice,
		HighestPrice:  r.HighestPrice,
		VolumeTraded:  r.VolumeTraded,
		HourTimestamp: r.HourTimestamp,
	}
}

// RecentPurchases returns the most recent N saved sales, newest first.
func (db *DB) RecentPurchases(limit int) ([]exchange.Purchase, error) {
	var rows []purchaseRow
	err := db.conn.Select(&rows,
		"SELECT "+purchaseCols+" FROM purchases ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Purchase, len(rows))
	for i, r := range rows {
		out[i] = r.toPurchase()
	}
	return out, nil
}

// SaveAccounts writes every player account (full replace).
func (db *DB) SaveAccounts(accounts []*player.Account) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM accounts"); err != nil {
		return err
	}
	for _, a := range accounts {
		invJSON, err := json.Marshal(a.Inventory)
		if err != nil {
			return fmt.Errorf("encode inventory of %s: %w", a.ID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO accounts (id, name, credits, faction, reputation, inventory_json) VALUES (?, ?, ?, ?, ?, ?)",
			a.ID, a.Name, a.Credits, a.Faction, a.Reputation, string(invJSON),
		); err != nil {
			return fmt.Errorf("insert account %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAccounts fills a registry from the saved accounts.
func (db *DB) LoadAccounts(reg *player.Registry) error {
	var rows []struct {
		ID            string `db:"id"`
		Name          string `db:"name"`
		Credits       uint64 `db:"credits"`
		Faction       string `db:"faction"`
		Reputation    int32  `db:"reputation"`
		InventoryJSON string `db:"inventory_json"`
	}
	if err := db.conn.Select(&rows, "SELECT * FROM accounts"); err != nil {
		return err
	}
	for _, r := range rows {
		a := &player.Account{ID: r.ID, Name: r.Name, Credits: r.Credits, Faction: r.Faction, Reputation: r.Reputation}
		if err := json.Unmarshal([]byte(r.InventoryJSON), &a.Inventory); err != nil {
			return fmt.Errorf("decode inventory of %s: %w", r.ID, err)
		}
		reg.Put(a)
	}
	return nil
}

// SaveSimulation snapshots the economy, the accounts, and the game clock
// while holding the economy lock, so the three agree.
func (db *DB) SaveSimulation(sim *engine.Simulation, clock uint64) error {
	var err error
	sim.Economy.Read(func(eco *economy.EconomySystem) {
		if err = db.SaveEconomy(eco); err != nil {
			err = fmt.Errorf("save economy: %w", err)
			return
		}
		if err = db.SaveAccounts(sim.Accounts.All()); err != nil {
			err = fmt.Errorf("save accounts: %w", err)
			return
		}
		err = db.SaveMeta(MetaGameClock, strconv.FormatUint(clock, 10))
	})
	if err == nil {
		slog.Info("simulation saved", "clock", clock)
	}
	return err
}

// LoadClock returns the saved game clock, or zero when none was saved.
func (db *DB) LoadClock() (uint64, error) {
	v, err := db.GetMeta(MetaGameClock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}
