package api

import (
	"fmt"
	"net/http"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/player"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// searchQuery reads listing filters from the query string.
func searchQuery(r *http.Request) (exchange.SearchQuery, error) {
	v := r.URL.Query()
	q := exchange.SearchQuery{
		PlayerID:   v.Get("player"),
		Faction:    v.Get("faction"),
		Name:       v.Get("name"),
		LocationID: v.Get("location"),
		Tags:       v["tag"],
		MinPrice:   queryUint(r, "min_price"),
		MaxPrice:   queryUint(r, "max_price"),
	}
	if c := v.Get("category"); c != "" {
		cat, ok := item.ParseCategory(c)
		if !ok {
			return q, fmt.Errorf("unknown category %q", c)
		}
		q.Category = &cat
	}
	if so := v.Get("sort"); so != "" {
		order, ok := exchange.ParseSortOrder(so)
		if !ok {
			return q, fmt.Errorf("unknown sort %q", so)
		}
		q.Sort = order
	}
	return q, nil
}

func (s *Server) handleSearchListings(w http.ResponseWriter, r *http.Request) {
	q, err := searchQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		return eco.Player.SearchListings(q), nil
	})
}

func (s *Server) handleListingDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		l, ok := eco.Player.Listing(id)
		if !ok {
			return nil, fmt.Errorf("listing %s: %w", id, tradeerr.ErrNotFound)
		}
		return l, nil
	})
}

func (s *Server) handleListingBids(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		bids := eco.Player.BidsFor(id)
		if bids == nil {
			bids = []exchange.Bid{}
		}
		return bids, nil
	})
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		return eco.Player.RecentPurchases(limit), nil
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("item")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		st, ok := eco.Player.MarketStatistics(name)
		if !ok {
			return nil, fmt.Errorf("statistics for %s: %w", name, tradeerr.ErrNotFound)
		}
		return st, nil
	})
}

type visibilityRequest struct {
	Scope   string   `json:"scope"` // "public", "faction", or "players"
	Faction string   `json:"faction"`
	Players []string `json:"players"`
}

func (v visibilityRequest) resolve() (exchange.Visibility, error) {
	switch v.Scope {
	case "", "public":
		return exchange.Public(), nil
	case "faction":
		return exchange.FactionOnly(v.Faction), nil
	case "players":
		return exchange.PlayerList(v.Players...), nil
	default:
		return exchange.Visibility{}, fmt.Errorf("unknown visibility %q", v.Scope)
	}
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerID      string            `json:"seller_id"`
		Item          string            `json:"item"`
		Quantity      uint32            `json:"quantity"`
		PricePerUnit  uint32            `json:"price_per_unit"`
		LocationID    string            `json:"location_id"`
		TTL           uint64            `json:"ttl"`
		MinReputation int32             `json:"min_reputation"`
		Visibility    visibilityRequest `json:"visibility"`
		Negotiable    bool              `json:"negotiable"`
		Description   string            `json:"description"`
		Tags          []string          `json:"tags"`
	}
	if !decode(w, r, &req) {
		return
	}
	vis, err := req.Visibility.resolve()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.write(w, http.StatusCreated, func(eco *economy.EconomySystem, now uint64) (any, error) {
		var sellerName string
		if a, ok := s.Sim.Accounts.Get(req.SellerID); ok {
			sellerName = a.Name
		}
		id, err := eco.ListItemForSale(exchange.ListingRequest{
			SellerID:      req.SellerID,
			SellerName:    sellerName,
			Item:          item.Item{Name: req.Item},
			Quantity:      req.Quantity,
			PricePerUnit:  req.PricePerUnit,
			LocationID:    req.LocationID,
			TTL:           req.TTL,
			MinReputation: req.MinReputation,
			Visibility:    vis,
			Negotiable:    req.Negotiable,
			Description:   req.Description,
			Tags:          req.Tags,
		}, now)
		return map[string]string{"id": id}, err
	})
}

func (s *Server) handlePurchaseListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID  string `json:"buyer_id"`
		Quantity uint32 `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		return eco.PurchaseListing(req.BuyerID, r.PathValue("id"), req.Quantity, now)
	})
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BidderID  string `json:"bidder_id"`
		BidAmount uint32 `json:"bid_amount"`
		Quantity  uint32 `json:"quantity"`
		Message   string `json:"message"`
		TTL       uint64 `json:"ttl"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusCreated, func(eco *economy.EconomySystem, now uint64) (any, error) {
		var name string
		if a, ok := s.Sim.Accounts.Get(req.BidderID); ok {
			name = a.Name
		}
		id, err := eco.PlaceBidOnListing(exchange.BidRequest{
			ListingID:  r.PathValue("id"),
			BidderID:   req.BidderID,
			BidderName: name,
			BidAmount:  req.BidAmount,
			Quantity:   req.Quantity,
			Message:    req.Message,
			TTL:        req.TTL,
		}, now)
		return map[string]string{"id": id}, err
	})
}

type actorRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		return eco.AcceptBid(r.PathValue("id"), req.PlayerID, now)
	})
}

func (s *Server) handleRejectBid(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		err := eco.Player.RejectBid(r.PathValue("id"), req.PlayerID)
		return map[string]string{"status": exchange.BidRejected.String()}, err
	})
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !decode(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		err := eco.Player.CancelBid(r.PathValue("id"), req.PlayerID)
		return map[string]string{"status": exchange.BidCanceled.String()}, err
	})
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Faction string `json:"faction"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	s.write(w, http.StatusCreated, func(eco *economy.EconomySystem, now uint64) (any, error) {
		if _, ok := s.Sim.Accounts.Get(req.ID); ok {
			return nil, fmt.Errorf("open account %s: already exists: %w", req.ID, tradeerr.ErrInvalidState)
		}
		return s.Sim.Accounts.Open(req.ID, req.Name, req.Faction, StartingCredits, player.DefaultCapacity), nil
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		a, ok := s.Sim.Accounts.Get(id)
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, tradeerr.ErrNotFound)
		}
		return a, nil
	})
}
