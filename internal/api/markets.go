package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func queryUint(r *http.Request, key string) uint32 {
	v, _ := strconv.ParseUint(r.URL.Query().Get(key), 10, 32)
	return uint32(v)
}

type marketSummary struct {
	LocationID  string  `json:"location_id"`
	Kind        string  `json:"kind"`
	TaxRate     float64 `json:"tax_rate"`
	Goods       int     `json:"goods"`
	OpenOrders  int     `json:"open_orders"`
	LocalEvents int     `json:"local_events"`
	LastUpdate  uint64  `json:"last_update"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		out := make([]marketSummary, 0, len(eco.Markets))
		for _, id := range eco.MarketIDs() {
			m := eco.Markets[id]
			var open int
			for _, o := range m.Orders {
				if o.Status == market.OrderActive {
					open++
				}
			}
			out = append(out, marketSummary{
				LocationID:  id,
				Kind:        m.Kind.String(),
				TaxRate:     m.TaxRate,
				Goods:       len(m.Items),
				OpenOrders:  open,
				LocalEvents: len(m.LocalEvents),
				LastUpdate:  m.LastUpdate,
			})
		}
		return out, nil
	})
}

func (s *Server) handleMarketDetail(w http.ResponseWriter, r *http.Request) {
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		m, err := eco.Market(r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		goods := make([]*market.MarketItem, 0, len(m.Items))
		for _, name := range m.ItemNames() {
			goods = append(goods, m.Items[name])
		}
		return map[string]any{
			"location_id":  m.LocationID,
			"kind":         m.Kind.String(),
			"tax_rate":     m.TaxRate,
			"goods":        goods,
			"local_events": m.LocalEvents,
			"last_update":  m.LastUpdate,
		}, nil
	})
}

func (s *Server) handleMarketTrend(w http.ResponseWriter, r *http.Request) {
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		m, err := eco.Market(r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		name := r.PathValue("item")
		pct, label, err := m.PriceTrend(name)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"item_name":      name,
			"change_percent": pct,
			"trend":          label,
			"history":        m.Items[name].PriceHistory,
		}, nil
	})
}

// handleOrders lists a market's orders, optionally only one owner's.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		m, err := eco.Market(r.PathValue("id"))
		if err != nil {
			return nil, err
		}
		if owner := r.URL.Query().Get("owner"); owner != "" {
			return m.OrdersFor(owner), nil
		}
		out := make([]market.TradeOrder, 0, len(m.Orders))
		for _, o := range m.Orders {
			out = append(out, *o)
		}
		return out, nil
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("item")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		fair, ok := eco.FairMarketPrice(name)
		if !ok {
			return nil, fmt.Errorf("prices for %s: %w", name, tradeerr.ErrNotFound)
		}
		return map[string]any{
			"item_name":  name,
			"fair_price": fair,
			"markets":    eco.PriceComparison(name),
		}, nil
	})
}

func (s *Server) handleBestMarkets(w http.ResponseWriter, r *http.Request) {
	cat, ok := item.ParseCategory(r.PathValue("category"))
	if !ok {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		return eco.BestMarketsForCategory(cat), nil
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["item"]
	if len(names) == 0 {
		http.Error(w, "at least one item parameter required", http.StatusBadRequest)
		return
	}
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		return eco.MarketTrends(names), nil
	})
}

type tradeRequest struct {
	PlayerID string `json:"player_id"`
	Item     string `json:"item"`
	Quantity uint32 `json:"quantity"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		return eco.BuyFromMarket(req.PlayerID, r.PathValue("id"), req.Item, req.Quantity, now)
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		return eco.SellToMarket(req.PlayerID, r.PathValue("id"), req.Item, req.Quantity, now)
	})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		tradeRequest
		Side        string `json:"side"` // "buy" or "sell"
		TargetPrice uint32 `json:"target_price"`
		TTL         uint64 `json:"ttl"`
	}
	if !decode(w, r, &req) {
		return
	}
	create := map[string]func(*economy.EconomySystem, uint64) (string, error){
		"buy": func(eco *economy.EconomySystem, now uint64) (string, error) {
			return eco.CreateBuyOrder(req.PlayerID, r.PathValue("id"), req.Item, req.Quantity, req.TargetPrice, now, req.TTL)
		},
		"sell": func(eco *economy.EconomySystem, now uint64) (string, error) {
			return eco.CreateSellOrder(req.PlayerID, r.PathValue("id"), req.Item, req.Quantity, req.TargetPrice, now, req.TTL)
		},
	}[req.Side]
	if create == nil {
		http.Error(w, `side must be "buy" or "sell"`, http.StatusBadRequest)
		return
	}
	s.write(w, http.StatusCreated, func(eco *economy.EconomySystem, now uint64) (any, error) {
		id, err := create(eco, now)
		return map[string]string{"id": id}, err
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		err := eco.CancelOrder(req.PlayerID, r.PathValue("id"), r.PathValue("oid"))
		return map[string]string{"status": "cancelled"}, err
	})
}
